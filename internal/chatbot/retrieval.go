package chatbot

import (
	"sort"
	"strings"
	"unicode"
)

const minTermLength = 3

// stopwords are dropped before ranking so that filler words do not count as
// overlap.
var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "but": {}, "not": {}, "you": {},
	"all": {}, "any": {}, "can": {}, "had": {}, "her": {}, "was": {}, "one": {},
	"our": {}, "out": {}, "has": {}, "his": {}, "how": {}, "its": {}, "who": {},
	"did": {}, "get": {}, "may": {}, "use": {}, "what": {}, "when": {}, "where": {},
	"which": {}, "with": {}, "this": {}, "that": {}, "from": {}, "have": {},
	"will": {}, "your": {}, "about": {}, "there": {}, "their": {}, "would": {},
	"should": {}, "could": {}, "does": {}, "into": {}, "than": {}, "then": {},
}

// splitChunks cuts a knowledge document into paragraph chunks.
func splitChunks(doc string) []string {
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	var chunks []string
	for _, para := range strings.Split(doc, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		if para != "" {
			chunks = append(chunks, para)
		}
	}
	return chunks
}

func terms(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTermLength {
			continue
		}
		if _, stop := stopwords[f]; stop {
			continue
		}
		out[f] = struct{}{}
	}
	return out
}

type scoredChunk struct {
	text  string
	score int
	index int
}

// rank returns up to topK chunks sharing at least one term with query, best
// first. Ties keep knowledge order.
func rank(query string, chunks []string, topK int) []string {
	if topK <= 0 || len(chunks) == 0 {
		return nil
	}
	q := terms(query)
	if len(q) == 0 {
		return nil
	}

	var scored []scoredChunk
	for i, c := range chunks {
		score := 0
		for t := range terms(c) {
			if _, ok := q[t]; ok {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, scoredChunk{text: c, score: score, index: i})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].score != scored[j].score {
			return scored[i].score > scored[j].score
		}
		return scored[i].index < scored[j].index
	})
	if len(scored) > topK {
		scored = scored[:topK]
	}
	out := make([]string, 0, len(scored))
	for _, s := range scored {
		out = append(out, s.text)
	}
	return out
}
