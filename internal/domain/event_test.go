package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPageUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want Page
	}{
		{name: "zero", in: `0`, want: PageNumber(0)},
		{name: "integer", in: `12`, want: PageNumber(12)},
		{name: "integral float", in: `3.0`, want: PageNumber(3)},
		{name: "fractional float", in: `3.5`, want: UnknownPage()},
		{name: "dash marker", in: `"—"`, want: UnknownPage()},
		{name: "other string", in: `"iv"`, want: UnknownPage()},
		{name: "null", in: `null`, want: UnknownPage()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Page
			require.NoError(t, json.Unmarshal([]byte(tt.in), &p))
			assert.Equal(t, tt.want, p)
		})
	}
}

func TestPageDisplay(t *testing.T) {
	assert.Equal(t, "1", PageNumber(0).Display())
	assert.Equal(t, "8", PageNumber(7).Display())
	assert.Equal(t, UnknownPageMarker, UnknownPage().Display())
}

func TestPageMarshal(t *testing.T) {
	data, err := json.Marshal(Source{Title: "a.pdf", Page: UnknownPage()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"a.pdf","page":"—","snippet":""}`, string(data))

	data, err = json.Marshal(Source{Title: "a.pdf", Page: PageNumber(4)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"a.pdf","page":4,"snippet":""}`, string(data))
}

func TestMessageCloneIsolatesSlices(t *testing.T) {
	m := Message{Reasoning: []string{"a"}, Sources: []Source{{Title: "x"}}, Error: &MessageError{Text: "boom"}}
	c := m.Clone()
	c.Reasoning[0] = "b"
	c.Sources[0].Title = "y"
	c.Error.Text = "changed"

	assert.Equal(t, "a", m.Reasoning[0])
	assert.Equal(t, "x", m.Sources[0].Title)
	assert.Equal(t, "boom", m.Error.Text)
}
