package neat

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/neatrank/internal/store"
	"github.com/ajitpratap0/neatrank/internal/validation"
)

func testApplicant(ticker string, lookback int) *Applicant {
	return NewApplicant(ApplicantParams{
		Ticker:   ticker,
		Interval: 5,
		Lookback: lookback,
		Lag:      4,
		Gain:     1.25,
		Stake:    200,
		Days:     6,
	}, time.Date(2024, 3, 10, 15, 30, 0, 0, time.UTC))
}

func TestNewApplicant(t *testing.T) {
	a := testApplicant("BTCUSDT", 12)

	assert.Equal(t, time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).Unix(), a.To)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC).Unix(), a.From)
	assert.Equal(t, 180, a.Inputs)
	assert.Equal(t, 5, a.Outputs)
	assert.NoError(t, a.Validate())
}

func TestApplicantValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(a *Applicant)
	}{
		{"missing ticker", func(a *Applicant) { a.Ticker = "" }},
		{"lower case ticker", func(a *Applicant) { a.Ticker = "btc/usdt" }},
		{"negative stake", func(a *Applicant) { a.Stake = -1 }},
		{"zero gain", func(a *Applicant) { a.Gain = 0 }},
		{"negative gain", func(a *Applicant) { a.Gain = -0.5 }},
		{"negative lag", func(a *Applicant) { a.Lag = -1 }},
		{"zero interval", func(a *Applicant) { a.Interval = 0 }},
		{"zero lookback", func(a *Applicant) { a.Lookback = 0 }},
		{"zero days", func(a *Applicant) { a.Days = 0 }},
		{"empty period", func(a *Applicant) { a.From = a.To }},
		{"wrong inputs", func(a *Applicant) { a.Inputs = 100 }},
		{"wrong outputs", func(a *Applicant) { a.Outputs = 3 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := testApplicant("BTCUSDT", 12)
			tt.mutate(a)
			assert.Error(t, a.Validate())
		})
	}
}

func TestApplicantValidate_ZeroLag(t *testing.T) {
	a := testApplicant("BTCUSDT", 12)
	a.Lag = 0
	assert.NoError(t, a.Validate())
}

func TestApplicantValidate_ReportsEveryField(t *testing.T) {
	a := testApplicant("", 12)
	a.Gain = 0

	err := a.Validate()
	var verrs validation.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.Len(t, verrs, 2)
	assert.Equal(t, "ticker", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "required")
	assert.Equal(t, "gain", verrs[1].Field)
}

func TestRepository_Applicants(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore(), 2)

	for _, a := range []*Applicant{
		testApplicant("BTCUSDT", 12),
		testApplicant("ETHUSDT", 12),
		testApplicant("BTCUSDT", 6),
		testApplicant("SOLUSDT", 12),
	} {
		_, err := repo.CreateApplicant(ctx, a)
		require.NoError(t, err)
		assert.NotEmpty(t, a.ObjectID)
	}

	matched, err := repo.ApplicantsFor(ctx, 180, 5)
	require.NoError(t, err)
	require.Len(t, matched, 3)
	assert.Equal(t, "BTCUSDT", matched[0].Ticker)
	assert.Equal(t, "ETHUSDT", matched[1].Ticker)
	assert.Equal(t, "SOLUSDT", matched[2].Ticker)

	got, found, err := repo.GetApplicant(ctx, matched[1].ObjectID)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, matched[1], *got)

	_, found, err = repo.GetApplicant(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestRepository_CreateApplicantRejectsInvalid(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore(), 0)
	a := testApplicant("", 12)

	_, err := repo.CreateApplicant(context.Background(), a)
	assert.Error(t, err)
	assert.Empty(t, a.ObjectID)
}

func TestRepository_Networks(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore(), 0)

	network := &Network{
		Network: json.RawMessage(`{"nodes":[1,2,3]}`),
		Inputs:  180,
		Outputs: 5,
	}
	id, err := repo.SaveNetwork(ctx, network)
	require.NoError(t, err)

	got, found, err := repo.GetNetwork(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 180, got.Inputs)
	assert.JSONEq(t, `{"nodes":[1,2,3]}`, string(got.Network))

	got, found, err = repo.GetNetwork(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, got)
}

func TestRepository_Results(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(store.NewMemoryStore(), 3)

	for i := 0; i < 7; i++ {
		applicant := "a1"
		if i%2 == 1 {
			applicant = "a2"
		}
		_, err := repo.SaveResult(ctx, &Result{
			NetworkID:   fmt.Sprintf("n%d", i),
			ApplicantID: applicant,
			Wallet:      float64(100 + i),
			Drawdown:    1,
		})
		require.NoError(t, err)
	}

	a1, err := repo.ResultsFor(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, a1, 4)
	assert.Equal(t, "n0", a1[0].NetworkID)
	assert.Equal(t, "n6", a1[3].NetworkID)

	var pages, rows int
	err = repo.EachResultPage(ctx, []string{"a1", "a2"}, 3, func(page []Result) error {
		pages++
		rows += len(page)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, pages)
	assert.Equal(t, 7, rows)

	require.NoError(t, repo.DeleteResult(ctx, a1[0].ObjectID))
	require.NoError(t, repo.DeleteResult(ctx, a1[0].ObjectID))

	a1, err = repo.ResultsFor(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, a1, 3)
}

func TestRepository_EachResultPageNoApplicants(t *testing.T) {
	repo := NewRepository(store.NewMemoryStore(), 0)

	called := false
	err := repo.EachResultPage(context.Background(), nil, 1000, func([]Result) error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.False(t, called)
}
