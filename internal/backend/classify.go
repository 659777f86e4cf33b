package backend

import (
	"regexp"
	"strings"

	"github.com/liliang-cn/lexrag/internal/domain"
)

var smallTalk = []string{
	"hi", "hello", "hey", "thanks", "thank you", "good morning", "good afternoon",
	"good evening", "bye", "goodbye", "who are you", "how are you", "ok", "okay",
}

var multiHopMarkers = []string{
	"difference between", "compare", "comparison", " versus ", " vs ", " vs. ", "both ",
	"and then", "relationship between",
}

var hopSplitter = regexp.MustCompile(`(?i)\s+(?:and|versus|vs\.?|with)\s+|\?\s+|;\s*`)

// Classify picks the retrieval strategy for a query
func Classify(query string) domain.Strategy {
	q := strings.ToLower(strings.TrimSpace(query))
	trimmed := strings.TrimRight(q, "!?.,")

	for _, phrase := range smallTalk {
		if trimmed == phrase || (strings.HasPrefix(trimmed, phrase+" ") && len(strings.Fields(trimmed)) <= 4) {
			return domain.StrategySimpleConversation
		}
	}

	padded := " " + q + " "
	for _, marker := range multiHopMarkers {
		if strings.Contains(padded, marker) {
			return domain.StrategyMultiHop
		}
	}
	if strings.Count(q, "?") > 1 {
		return domain.StrategyMultiHop
	}

	return domain.StrategyComplex
}

// subqueries expands a query into the lookups its strategy performs
func subqueries(strategy domain.Strategy, query string) []string {
	switch strategy {
	case domain.StrategyMultiHop:
		var out []string
		for _, part := range hopSplitter.Split(query, -1) {
			part = strings.TrimSpace(strings.TrimRight(part, "?"))
			if part != "" {
				out = append(out, part)
			}
		}
		if len(out) < 2 {
			return []string{query}
		}
		return out
	case domain.StrategyComplex:
		terms := tokenize(query)
		if len(terms) < 2 {
			return []string{query}
		}
		return []string{query, strings.Join(terms, " ")}
	default:
		return nil
	}
}
