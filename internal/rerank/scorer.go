// Package rerank applies the higher-cost relevance pass used on top fused
// candidates: each (query, passage) pair is scored independently by a
// cross-encoding model behind a provider-neutral interface.
package rerank

import "context"

// Scorer rates the relevance of a passage to a query in [0, 1].
type Scorer interface {
	Name() string
	Score(ctx context.Context, query, passage string) (float64, error)
}

const scoringPrompt = "Rate the relevance of the document to the query on a scale of 0.0 to 1.0. Reply with ONLY the number."

// truncate keeps scoring prompts bounded; relevance judgments do not need
// the whole passage.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
