// Package scorer ranks candidate restaurants for a user. The production
// implementation runs an external program; ContentScorer ranks in-process.
package scorer

import (
	"context"
	"time"
)

// Request is the input to a scoring call.
type Request struct {
	CandidateIDs []int64
	UserID       int64
	Count        int
}

// Scorer orders candidate ids by relevance to a user. The returned ids are
// in descending relevance order. An empty slice is a valid result.
type Scorer interface {
	Score(ctx context.Context, req Request, timeout time.Duration) ([]int64, error)
}

// ScorerFunc adapts a function to the Scorer interface.
type ScorerFunc func(ctx context.Context, req Request, timeout time.Duration) ([]int64, error)

// Score implements Scorer.
func (f ScorerFunc) Score(ctx context.Context, req Request, timeout time.Duration) ([]int64, error) {
	return f(ctx, req, timeout)
}
