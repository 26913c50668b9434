package reward

import (
	"strings"

	"github.com/tsawler/prose/v3"
)

// Explicit-source labels and their fixed score table.
const (
	SourcePraise     = "praise"
	SourceThumbs     = "thumbs"
	SourceFollowUp   = "follow_up"
	SourceCorrection = "correction"
	SourceSilence    = "silence"
)

// explicitScores fixes sign and magnitude per source.
var explicitScores = map[string]float64{
	SourcePraise:     0.8,
	SourceThumbs:     0.6,
	SourceFollowUp:   0.3,
	SourceCorrection: -0.6,
	SourceSilence:    -0.1,
}

var praiseWords = map[string]bool{
	"thanks": true, "thank": true, "great": true, "perfect": true, "love": true,
	"helpful": true, "nice": true, "awesome": true, "appreciate": true, "good": true,
}

var thumbsMarkers = []string{"👍", "❤️", "🙏", ":+1:", "<3"}

var correctionWords = map[string]bool{
	"wrong": true, "incorrect": true, "actually": true, "no": true, "not": true,
	"stop": true, "don't": true, "mistaken": true,
}

var followUpMarkers = []string{"?", "tell me more", "what about", "how about", "and then"}

// ClassifyReply maps a user reply onto an explicit reward source. Empty
// replies classify as silence.
func ClassifyReply(reply string) (source string, score float64) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return SourceSilence, explicitScores[SourceSilence]
	}

	for _, marker := range thumbsMarkers {
		if strings.Contains(trimmed, marker) {
			return SourceThumbs, explicitScores[SourceThumbs]
		}
	}

	var praise, correction int
	for _, tok := range tokenize(trimmed) {
		if praiseWords[tok] {
			praise++
		}
		if correctionWords[tok] {
			correction++
		}
	}
	if correction > praise && correction > 0 {
		return SourceCorrection, explicitScores[SourceCorrection]
	}
	if praise > 0 {
		return SourcePraise, explicitScores[SourcePraise]
	}

	lower := strings.ToLower(trimmed)
	for _, marker := range followUpMarkers {
		if strings.Contains(lower, marker) {
			return SourceFollowUp, explicitScores[SourceFollowUp]
		}
	}
	return SourceFollowUp, explicitScores[SourceFollowUp]
}

// tokenize lowercases and tokenizes a reply, falling back to whitespace
// splitting when the NLP tokenizer rejects the input.
func tokenize(text string) []string {
	doc, err := prose.NewDocument(text)
	if err != nil {
		return strings.Fields(strings.ToLower(text))
	}
	var out []string
	for _, tok := range doc.Tokens() {
		out = append(out, strings.ToLower(tok.Text))
	}
	return out
}
