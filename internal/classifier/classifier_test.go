package classifier

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const assistantReply = "Furthermore, I'd be happy to help with that request today.\n" +
	"1. First open the settings panel\n" +
	"2. Then choose the account tab\n" +
	"3. Finally save your changes"

func TestShortTextNeverSuspicious(t *testing.T) {
	tests := []string{
		"",
		"I went to the store and bought milk.",
		"Furthermore, I'd be happy to help. As an AI, moreover, therefore.",
		strings.Repeat("x", MinLength-1),
	}
	for _, text := range tests {
		res := Score(text)
		assert.False(t, res.Scored, "text %q", text)
		assert.False(t, Classify(text), "text %q", text)
	}
}

func TestPlainTextNotSuspicious(t *testing.T) {
	text := "i went to the store and bought milk, then i walked home slowly because " +
		"it was raining a lot and i forgot my umbrella at home"
	res := Score(text)
	require.True(t, res.Scored)
	assert.Equal(t, 0, res.Score)
	assert.Empty(t, res.Matched)
	assert.False(t, Classify(text))
}

func TestAssistantReplySuspicious(t *testing.T) {
	res := Score(assistantReply)
	require.True(t, res.Scored)
	assert.Contains(t, res.Matched, SigTransitionWords)
	assert.Contains(t, res.Matched, SigDisclosure)
	assert.Contains(t, res.Matched, SigNumberedList)
	assert.GreaterOrEqual(t, res.Score, Threshold)
	assert.True(t, Classify(assistantReply))
}

func TestEnumeratedClause(t *testing.T) {
	text := "For the picnic tomorrow afternoon we will definitely need to bring " +
		"fresh apples, ripe oranges, and sweet pears."
	res := Score(text)
	require.True(t, res.Scored)
	assert.ElementsMatch(t, []Signature{SigFormalSentences, SigEnumeration}, res.Matched)
	assert.Equal(t, 2, res.Score)
	assert.False(t, res.Suspicious())
}

func TestUniformSentenceLength(t *testing.T) {
	sentence := "A" + strings.Repeat("b", 69) + "."
	text := strings.Join([]string{sentence, sentence, sentence, sentence}, " ")

	res := Score(text)
	require.True(t, res.Scored)
	assert.Equal(t, 4, res.Sentences)
	assert.Greater(t, res.MeanLen, minSentenceMean)
	assert.Less(t, res.Variance, maxSentenceVariance)
	assert.Contains(t, res.Matched, SigUniformLength)
	assert.Contains(t, res.Matched, SigFormalSentences)
}

func TestUniformRuleNeedsMoreThanThreeSentences(t *testing.T) {
	sentence := "A" + strings.Repeat("b", 69) + "."
	text := strings.Join([]string{sentence, sentence, sentence}, " ")

	res := Score(text)
	assert.Equal(t, 3, res.Sentences)
	assert.NotContains(t, res.Matched, SigUniformLength)
	assert.Zero(t, res.Variance)
}

func TestCaseInsensitiveSignatures(t *testing.T) {
	text := strings.Repeat("filler words without any punctuation at all ", 3) +
		"AS AN AI model NEVERTHELESS"
	res := Score(text)
	assert.Contains(t, res.Matched, SigDisclosure)
	assert.Contains(t, res.Matched, SigTransitionWords)
}

func TestDeterministic(t *testing.T) {
	first := Score(assistantReply)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(assistantReply))
	}
}

func TestSplitSentences(t *testing.T) {
	got := splitSentences("One. Two!! Three?  ...")
	assert.Equal(t, []string{"One", " Two", " Three"}, got)
}
