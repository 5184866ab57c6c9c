// Package guard implements the LLM prompt guard: regex/PII recognizers,
// webhook calls, and OpenAI-moderation checks applied to request and
// response message content.
package guard

import "regexp"

// Finding is one recognizer match within scanned text.
type Finding struct {
	EntityType string
	Matched    string
	Start      int
	End        int
	Score      float64
}

// pattern pairs a compiled regex with the confidence score a match against
// it carries.
type pattern struct {
	re    *regexp.Regexp
	score float64
}

// InvalidateFunc rejects a would-be match as a false positive (e.g. an SSN
// that is actually a well-known placeholder). Returning true drops the
// finding.
type InvalidateFunc func(matched string) bool

// Recognizer finds entities of one type within text using ranked patterns,
// with an optional invalidation rule applied after matching.
type Recognizer struct {
	entityType string
	patterns   []pattern
	invalidate InvalidateFunc
}

// Recognize scans text and returns every surviving match, each tagged with
// its entity type and confidence score.
func (r *Recognizer) Recognize(text string) []Finding {
	var findings []Finding
	for _, p := range r.patterns {
		locs := p.re.FindAllStringIndex(text, -1)
		for _, loc := range locs {
			matched := text[loc[0]:loc[1]]
			if r.invalidate != nil && r.invalidate(matched) {
				continue
			}
			findings = append(findings, Finding{
				EntityType: r.entityType,
				Matched:    matched,
				Start:      loc[0],
				End:        loc[1],
				Score:      p.score,
			})
		}
	}
	return findings
}
