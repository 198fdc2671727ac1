package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/ajitpratap0/neatrank/internal/neat"
)

// DefaultLeaderboardSize is the number of results kept per applicant
const DefaultLeaderboardSize = 10

// ErrNaNScore is returned wherever a NaN composite score would take part in
// a comparison
var ErrNaNScore = errors.New("result has a NaN composite score")

// ResultDeleter removes stored results
type ResultDeleter interface {
	DeleteResult(ctx context.Context, id string) error
}

// Rank orders results by composite score, best first. Equal scores keep
// their input order.
func Rank(results []neat.Result) ([]neat.Result, error) {
	scores := make([]float64, len(results))
	for i, r := range results {
		s := r.Wallet * r.Drawdown
		if math.IsNaN(s) {
			return nil, fmt.Errorf("result %s: %w", r.ObjectID, ErrNaNScore)
		}
		scores[i] = CompositeScore(r.Wallet, r.Drawdown)
	}

	idx := make([]int, len(results))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})

	ranked := make([]neat.Result, len(results))
	for i, j := range idx {
		ranked[i] = results[j]
	}
	return ranked, nil
}

// Prune keeps the keep best results and deletes the rest from the tail of
// the ranking. It returns the removed results in deletion order. A delete
// failure stops pruning and returns what was removed so far.
func Prune(ctx context.Context, deleter ResultDeleter, results []neat.Result, keep int) ([]neat.Result, error) {
	if keep < 0 {
		keep = 0
	}
	if len(results) <= keep {
		return nil, nil
	}

	ranked, err := Rank(results)
	if err != nil {
		return nil, err
	}

	var removed []neat.Result
	for len(ranked) > keep {
		last := ranked[len(ranked)-1]
		if err := deleter.DeleteResult(ctx, last.ObjectID); err != nil {
			return removed, fmt.Errorf("failed to prune result %s: %w", last.ObjectID, err)
		}
		removed = append(removed, last)
		ranked = ranked[:len(ranked)-1]
	}

	return removed, nil
}
