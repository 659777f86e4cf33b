package backend

import (
	"cmp"
	"slices"
	"strings"
	"unicode"

	"github.com/liliang-cn/lexrag/internal/domain"
)

// Document is one indexed passage
type Document struct {
	Source string
	Page   domain.Page
	Text   string
}

// Corpus is a keyword-overlap index over a fixed set of passages
type Corpus struct {
	docs  []Document
	terms []map[string]struct{}
}

// NewCorpus indexes docs
func NewCorpus(docs []Document) *Corpus {
	c := &Corpus{docs: docs, terms: make([]map[string]struct{}, len(docs))}
	for i, d := range docs {
		set := make(map[string]struct{})
		for _, t := range tokenize(d.Source + " " + d.Text) {
			set[t] = struct{}{}
		}
		c.terms[i] = set
	}
	return c
}

// Len returns the number of indexed passages
func (c *Corpus) Len() int {
	return len(c.docs)
}

// Retrieve returns up to k passages sharing at least one term with query, best first
func (c *Corpus) Retrieve(query string, k int) []Document {
	type hit struct {
		idx   int
		score int
	}

	qterms := tokenize(query)
	var hits []hit
	for i, set := range c.terms {
		score := 0
		seen := make(map[string]struct{}, len(qterms))
		for _, t := range qterms {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			if _, ok := set[t]; ok {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{i, score})
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int {
		return cmp.Compare(b.score, a.score)
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]Document, len(hits))
	for i, h := range hits {
		out[i] = c.docs[h.idx]
	}
	return out
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "between": {},
	"by": {}, "can": {}, "compare": {}, "difference": {}, "do": {}, "does": {}, "for": {},
	"from": {}, "how": {}, "i": {}, "in": {}, "is": {}, "it": {}, "me": {}, "of": {},
	"on": {}, "or": {}, "the": {}, "to": {}, "under": {}, "versus": {}, "vs": {}, "what": {},
	"when": {}, "which": {}, "who": {}, "why": {}, "with": {},
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if _, stop := stopwords[f]; stop {
			continue
		}
		out = append(out, f)
	}
	return out
}

// DefaultCorpus is the built-in set of statute passages served by the development backend
func DefaultCorpus() *Corpus {
	return NewCorpus([]Document{
		{
			Source: "Indian Contract Act, 1872",
			Page:   domain.PageNumber(3),
			Text: "Section 10. All agreements are contracts if they are made by the free consent of parties " +
				"competent to contract, for a lawful consideration and with a lawful object, and are not " +
				"hereby expressly declared to be void.",
		},
		{
			Source: "Indian Contract Act, 1872",
			Page:   domain.PageNumber(1),
			Text: "Section 2(h). An agreement enforceable by law is a contract. Section 2(e). Every promise " +
				"and every set of promises, forming the consideration for each other, is an agreement.",
		},
		{
			Source: "Indian Penal Code, 1860",
			Page:   domain.PageNumber(112),
			Text: "Section 420. Whoever cheats and thereby dishonestly induces the person deceived to deliver " +
				"any property shall be punished with imprisonment of either description for a term which " +
				"may extend to seven years, and shall also be liable to fine.",
		},
		{
			Source: "Indian Penal Code, 1860",
			Page:   domain.PageNumber(78),
			Text: "Section 302. Whoever commits murder shall be punished with death, or imprisonment for " +
				"life, and shall also be liable to fine.",
		},
		{
			Source: "Constitution of India",
			Page:   domain.PageNumber(9),
			Text: "Article 21. No person shall be deprived of his life or personal liberty except according " +
				"to procedure established by law.",
		},
		{
			Source: "Constitution of India",
			Page:   domain.PageNumber(7),
			Text: "Article 14. The State shall not deny to any person equality before the law or the equal " +
				"protection of the laws within the territory of India.",
		},
		{
			Source: "Code of Criminal Procedure, 1973",
			Page:   domain.PageNumber(24),
			Text: "Section 41. Any police officer may without an order from a Magistrate and without a " +
				"warrant arrest any person who commits, in the presence of a police officer, a cognizable " +
				"offence.",
		},
		{
			Source: "Consumer Protection Act, 2019",
			Page:   domain.PageNumber(15),
			Text: "Section 35. A complaint in relation to any goods sold or delivered or any service provided " +
				"may be filed with a District Commission by the consumer to whom such goods are sold or " +
				"such service is provided.",
		},
		{
			Source: "Right to Information Act, 2005",
			Page:   domain.UnknownPage(),
			Text: "Section 6. A person who desires to obtain any information under this Act shall make a " +
				"request in writing or through electronic means to the Central Public Information Officer.",
		},
		{
			Source: "Specific Relief Act, 1963",
			Page:   domain.PageNumber(5),
			Text: "Section 10. The specific performance of a contract shall be enforced by the court " +
				"subject to the provisions contained in sub-section (2) of section 11, section 14 and " +
				"section 16.",
		},
	})
}
