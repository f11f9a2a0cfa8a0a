package index

import "strings"

// maxTags bounds the keywords extracted from a caption.
const maxTags = 10

// tagStopwords are filler words excluded from tag extraction.
var tagStopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {},
	"by": {}, "for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {},
	"it": {}, "its": {}, "of": {}, "on": {}, "that": {}, "the": {}, "to": {},
	"was": {}, "were": {}, "will": {}, "with": {}, "this": {}, "but": {},
	"they": {}, "have": {}, "had": {}, "what": {}, "which": {}, "their": {},
	"then": {}, "there": {}, "over": {}, "such": {}, "her": {}, "his": {},
	"him": {}, "into": {}, "than": {}, "been": {}, "would": {}, "some": {},
	"near": {}, "next": {},
}

// ExtractTags derives a small set of keywords from a caption by lexical
// extraction: lowercase words longer than two characters, stopwords
// removed, deduplicated in order of first appearance, capped at maxTags.
// No external call is involved.
func ExtractTags(caption string) []string {
	if caption == "" {
		return nil
	}

	words := strings.FieldsFunc(strings.ToLower(caption), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})

	var tags []string
	seen := make(map[string]struct{}, len(words))
	for _, w := range words {
		if len(w) <= 2 {
			continue
		}
		if _, stop := tagStopwords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		tags = append(tags, w)
		if len(tags) == maxTags {
			break
		}
	}
	return tags
}
