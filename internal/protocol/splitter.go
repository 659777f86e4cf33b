package protocol

import (
	"bytes"
	"strings"
)

// LineSplitter turns arbitrarily chunked bytes into complete, newline-terminated lines.
// A trailing fragment is carried over to the next Push. Splitting happens on raw bytes,
// so a multi-byte character split across chunks is whole again once its line completes.
type LineSplitter struct {
	carry []byte
}

// NewLineSplitter creates an empty splitter
func NewLineSplitter() *LineSplitter {
	return &LineSplitter{}
}

// Push appends chunk and returns every line it completes, trimmed, blanks dropped
func (s *LineSplitter) Push(chunk []byte) []string {
	s.carry = append(s.carry, chunk...)

	var lines []string
	for {
		i := bytes.IndexByte(s.carry, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(s.carry[:i]))
		s.carry = s.carry[i+1:]
		if line != "" {
			lines = append(lines, line)
		}
	}

	// Compact so the carry does not pin the whole stream's backing array
	if len(s.carry) == 0 {
		s.carry = nil
	} else if cap(s.carry) > 2*len(s.carry)+4096 {
		s.carry = append([]byte(nil), s.carry...)
	}

	return lines
}

// Pending returns the number of buffered bytes not yet terminated by a newline
func (s *LineSplitter) Pending() int {
	return len(s.carry)
}

// Finish discards any unterminated trailing fragment and returns its length
func (s *LineSplitter) Finish() int {
	n := len(s.carry)
	s.carry = nil
	return n
}
