// Package retrieval implements the Context Retriever (CR): progressive,
// token-budgeted disclosure of historical context for a new orchestration
// (spec §4.3), composing the Memory Store and Vector Store beneath it.
package retrieval

// EstimateTokens approximates a token count from character length. No
// tokenizer library appears anywhere in the retrieval pack for any
// language model family used here, so this conservative char/4 heuristic
// (spec §4.3's documented fallback) is used as the only estimator rather
// than bundling a model-specific tokenizer nobody else in the pack needs.
func EstimateTokens(s string) int {
	n := len(s) / 4
	if n == 0 && len(s) > 0 {
		n = 1
	}
	return n
}

// TruncateToSentenceBoundary shortens s to at most maxTokens (estimated),
// cutting at the last whole-sentence boundary at or before that point
// (spec §4.3 step 4: "truncate result summary to whole-sentence
// boundaries"). If no boundary is found, it falls back to a hard
// character cut.
func TruncateToSentenceBoundary(s string, maxTokens int) string {
	maxChars := maxTokens * 4
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	window := s[:maxChars]
	lastBoundary := -1
	for i, r := range window {
		if r == '.' || r == '!' || r == '?' {
			lastBoundary = i + 1
		}
	}
	if lastBoundary > 0 {
		return window[:lastBoundary]
	}
	return window
}
