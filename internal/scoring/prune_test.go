package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/neatrank/internal/neat"
)

// recordingDeleter records deleted ids and fails on the ids in failOn
type recordingDeleter struct {
	deleted []string
	failOn  map[string]error
}

func (d *recordingDeleter) DeleteResult(ctx context.Context, id string) error {
	if err := d.failOn[id]; err != nil {
		return err
	}
	d.deleted = append(d.deleted, id)
	return nil
}

func makeResults(wallets ...float64) []neat.Result {
	results := make([]neat.Result, len(wallets))
	for i, w := range wallets {
		results[i] = neat.Result{ObjectID: fmt.Sprintf("r%d", i), ApplicantID: "a1", Wallet: w, Drawdown: 1}
	}
	return results
}

func TestPrune_KeepsTopTen(t *testing.T) {
	tests := []struct {
		name    string
		wallets []float64
	}{
		{"eleven", []float64{5, 3, 9, 1, 7, 11, 2, 8, 4, 10, 6}},
		{"fifteen", []float64{15, 1, 14, 2, 13, 3, 12, 4, 11, 5, 10, 6, 9, 7, 8}},
		{"twenty descending", []float64{20, 19, 18, 17, 16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := makeResults(tt.wallets...)
			deleter := &recordingDeleter{}

			removed, err := Prune(context.Background(), deleter, results, DefaultLeaderboardSize)
			require.NoError(t, err)
			assert.Len(t, removed, len(results)-10)
			assert.Len(t, deleter.deleted, len(results)-10)

			sorted := append([]float64(nil), tt.wallets...)
			sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
			cutoff := sorted[9]

			for _, r := range removed {
				assert.Less(t, r.Wallet, cutoff, "removed a top ten result")
			}
		})
	}
}

func TestPrune_AtOrBelowLimitIsNoop(t *testing.T) {
	for _, n := range []int{0, 1, 10} {
		wallets := make([]float64, n)
		for i := range wallets {
			wallets[i] = float64(i)
		}
		deleter := &recordingDeleter{}

		removed, err := Prune(context.Background(), deleter, makeResults(wallets...), DefaultLeaderboardSize)
		require.NoError(t, err)
		assert.Empty(t, removed)
		assert.Empty(t, deleter.deleted)
	}
}

func TestPrune_DeletesFromTail(t *testing.T) {
	results := makeResults(10, 12, 9, 11, 13, 14, 15, 16, 17, 18, 8, 7)
	deleter := &recordingDeleter{}

	_, err := Prune(context.Background(), deleter, results, DefaultLeaderboardSize)
	require.NoError(t, err)
	// lowest first: 7 (r11) then 8 (r10)
	assert.Equal(t, []string{"r11", "r10"}, deleter.deleted)
}

func TestPrune_TiesKeepStoreOrder(t *testing.T) {
	results := makeResults(5, 5, 5)
	deleter := &recordingDeleter{}

	removed, err := Prune(context.Background(), deleter, results, 1)
	require.NoError(t, err)
	require.Len(t, removed, 2)
	assert.Equal(t, []string{"r2", "r1"}, deleter.deleted)
}

func TestPrune_NaNScore(t *testing.T) {
	results := makeResults(1, 2, 3)
	results[1].Drawdown = math.NaN()
	deleter := &recordingDeleter{}

	_, err := Prune(context.Background(), deleter, results, 1)
	assert.ErrorIs(t, err, ErrNaNScore)
	assert.Empty(t, deleter.deleted)
}

func TestPrune_DeleteError(t *testing.T) {
	boom := errors.New("forbidden")
	results := makeResults(1, 2, 3, 4)
	deleter := &recordingDeleter{failOn: map[string]error{"r1": boom}}

	removed, err := Prune(context.Background(), deleter, results, 1)
	require.ErrorIs(t, err, boom)
	require.Len(t, removed, 1)
	assert.Equal(t, "r0", removed[0].ObjectID)
}

func TestRank(t *testing.T) {
	results := makeResults(1, 3, 2)
	ranked, err := Rank(results)
	require.NoError(t, err)

	ids := []string{ranked[0].ObjectID, ranked[1].ObjectID, ranked[2].ObjectID}
	assert.Equal(t, []string{"r1", "r2", "r0"}, ids)
	assert.Equal(t, "r0", results[0].ObjectID, "input is not reordered")
}
