// Package classifier scores text for signs of AI generation.
//
// The classifier is a pure rule set: five regular-expression signatures and a
// sentence-length uniformity check. Each hit adds one point, and text scoring
// three or more points is considered suspicious. Text shorter than
// MinLength characters is never scored.
package classifier

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MinLength is the shortest text, in characters, that is scored at all.
const MinLength = 100

// Threshold is the score at or above which text is suspicious.
const Threshold = 3

// Sentence uniformity limits.
const (
	minSentences        = 3
	maxSentenceVariance = 50.0
	minSentenceMean     = 60.0
)

// Signature names a single scoring rule.
type Signature string

const (
	SigFormalSentences Signature = "formal_sentences"
	SigTransitionWords Signature = "transition_words"
	SigDisclosure      Signature = "ai_disclosure"
	SigEnumeration     Signature = "enumerated_clause"
	SigNumberedList    Signature = "numbered_list"
	SigUniformLength   Signature = "uniform_sentence_length"
)

type rule struct {
	sig Signature
	re  *regexp.Regexp
}

var rules = []rule{
	{SigFormalSentences, regexp.MustCompile(`^[A-Z][^.!?]*[.!?](\s+[A-Z][^.!?]*[.!?])*$`)},
	{SigTransitionWords, regexp.MustCompile(`(?i)\b(furthermore|moreover|additionally|consequently|therefore|nevertheless)\b`)},
	{SigDisclosure, regexp.MustCompile(`(?i)\b(I'd be happy to|I'd be glad to|feel free to|please don't hesitate|as an AI)\b`)},
	{SigEnumeration, regexp.MustCompile(`^[^,]*,\s+[^,]*,\s+and\s+[^.]*\.$`)},
	{SigNumberedList, regexp.MustCompile(`(?m)^\d+\.\s+.*\n\d+\.\s+.*\n\d+\.\s+`)},
}

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Result is the breakdown of a single classification.
type Result struct {
	// Scored is false when the text was too short to evaluate.
	Scored bool `json:"scored"`

	Matched   []Signature `json:"matched,omitempty"`
	Sentences int         `json:"sentences"`
	MeanLen   float64     `json:"meanLength"`
	Variance  float64     `json:"variance"`
	Score     int         `json:"score"`
}

// Suspicious reports whether the result crosses Threshold.
func (r Result) Suspicious() bool {
	return r.Scored && r.Score >= Threshold
}

// Classify reports whether text looks AI generated.
func Classify(text string) bool {
	return Score(text).Suspicious()
}

// Score evaluates every rule against text and returns the breakdown.
func Score(text string) Result {
	if utf8.RuneCountInString(text) < MinLength {
		return Result{}
	}

	res := Result{Scored: true}
	for _, r := range rules {
		if r.re.MatchString(text) {
			res.Matched = append(res.Matched, r.sig)
			res.Score++
		}
	}

	sentences := splitSentences(text)
	res.Sentences = len(sentences)
	if len(sentences) > minSentences {
		res.MeanLen, res.Variance = lengthStats(sentences)
		if res.Variance < maxSentenceVariance && res.MeanLen > minSentenceMean {
			res.Matched = append(res.Matched, SigUniformLength)
			res.Score++
		}
	}

	return res
}

// splitSentences splits on runs of terminal punctuation and drops blank
// fragments. Fragments keep their surrounding whitespace, which counts toward
// their length.
func splitSentences(text string) []string {
	parts := sentenceSplit.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if strings.TrimSpace(p) != "" {
			out = append(out, p)
		}
	}
	return out
}

// lengthStats returns the mean and population variance of sentence lengths.
func lengthStats(sentences []string) (mean, variance float64) {
	if len(sentences) == 0 {
		return 0, 0
	}
	lengths := make([]float64, len(sentences))
	var sum float64
	for i, s := range sentences {
		lengths[i] = float64(utf8.RuneCountInString(s))
		sum += lengths[i]
	}
	mean = sum / float64(len(lengths))
	for _, l := range lengths {
		d := l - mean
		variance += d * d
	}
	variance /= float64(len(lengths))
	return mean, variance
}
