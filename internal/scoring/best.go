package scoring

import (
	"context"
	"fmt"
	"math"

	"github.com/ajitpratap0/neatrank/internal/neat"
)

// ResultPager walks the stored results of a set of applicants page by page
type ResultPager interface {
	EachResultPage(ctx context.Context, applicantIDs []string, pageSize int, fn func([]neat.Result) error) error
}

// BuildBestScores returns the best composite score stored for each
// applicant. Every id in applicantIDs is present in the map; applicants
// without results score 0. A stored result with a NaN score fails the
// build with ErrNaNScore.
func BuildBestScores(ctx context.Context, pager ResultPager, applicantIDs []string, pageSize int) (map[string]float64, error) {
	best := make(map[string]float64, len(applicantIDs))
	for _, id := range applicantIDs {
		best[id] = 0
	}
	if len(applicantIDs) == 0 {
		return best, nil
	}

	err := pager.EachResultPage(ctx, applicantIDs, pageSize, func(page []neat.Result) error {
		for _, r := range page {
			score := CompositeScore(r.Wallet, r.Drawdown)
			if math.IsNaN(score) {
				return fmt.Errorf("result %s of applicant %s: %w", r.ObjectID, r.ApplicantID, ErrNaNScore)
			}
			if score > best[r.ApplicantID] {
				best[r.ApplicantID] = score
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build best scores: %w", err)
	}

	return best, nil
}
