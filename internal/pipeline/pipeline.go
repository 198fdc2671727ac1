// Package pipeline scores a newly evolved network against every compatible
// applicant and keeps each applicant's leaderboard trimmed
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/evolution"
	"github.com/ajitpratap0/neatrank/internal/market"
	"github.com/ajitpratap0/neatrank/internal/metrics"
	"github.com/ajitpratap0/neatrank/internal/neat"
	"github.com/ajitpratap0/neatrank/internal/scoring"
	"github.com/ajitpratap0/neatrank/internal/store"
)

// Repository is the part of neat.Repository a run reads and writes through
type Repository interface {
	GetNetwork(ctx context.Context, id string) (*neat.Network, bool, error)
	ApplicantsFor(ctx context.Context, inputs, outputs int) ([]neat.Applicant, error)
	EachResultPage(ctx context.Context, applicantIDs []string, pageSize int, fn func([]neat.Result) error) error
	ResultsFor(ctx context.Context, applicantID string) ([]neat.Result, error)
	SaveResult(ctx context.Context, result *neat.Result) (string, error)
	DeleteResult(ctx context.Context, id string) error
}

// Config holds runner settings
type Config struct {
	ResultPageSize  int  `json:"result_page_size" yaml:"result_page_size"`
	LeaderboardSize int  `json:"leaderboard_size" yaml:"leaderboard_size"`
	BucketBars      int  `json:"bucket_bars" yaml:"bucket_bars"`
	Dedupe          bool `json:"dedupe" yaml:"dedupe"`
}

// DefaultConfig returns the standard runner settings
func DefaultConfig() Config {
	return Config{
		ResultPageSize:  store.DefaultPageSize,
		LeaderboardSize: scoring.DefaultLeaderboardSize,
	}
}

// Improvement describes one persisted result that beat the applicant's
// previous best
type Improvement struct {
	ApplicantID  string  `json:"applicant_id" yaml:"applicant_id"`
	ResultID     string  `json:"result_id" yaml:"result_id"`
	Days         int     `json:"days" yaml:"days"`
	PreviousBest float64 `json:"previous_best" yaml:"previous_best"`
	Score        float64 `json:"score" yaml:"score"`
	ScorePerDay  float64 `json:"score_per_day" yaml:"score_per_day"`
	Pruned       int     `json:"pruned" yaml:"pruned"`
}

// RunSummary reports what one run did
type RunSummary struct {
	NetworkID    string        `json:"network_id" yaml:"network_id"`
	NetworkFound bool          `json:"network_found" yaml:"network_found"`
	Applicants   int           `json:"applicants" yaml:"applicants"`
	Evaluated    int           `json:"evaluated" yaml:"evaluated"`
	Improvements []Improvement `json:"improvements,omitempty" yaml:"improvements,omitempty"`
	Pruned       int           `json:"pruned" yaml:"pruned"`
	CacheHits    int           `json:"cache_hits" yaml:"cache_hits"`
	CacheMisses  int           `json:"cache_misses" yaml:"cache_misses"`
	Duration     time.Duration `json:"duration" yaml:"duration"`
}

// Runner executes scoring runs. A Runner may be reused; every run gets its
// own candle cache.
type Runner struct {
	repo      Repository
	provider  market.Provider
	evaluator evolution.Evaluator
	config    Config
	log       zerolog.Logger
}

// NewRunner creates a runner. Zero config values fall back to the defaults.
func NewRunner(repo Repository, provider market.Provider, evaluator evolution.Evaluator, config Config) *Runner {
	defaults := DefaultConfig()
	if config.ResultPageSize <= 0 {
		config.ResultPageSize = defaults.ResultPageSize
	}
	if config.LeaderboardSize <= 0 {
		config.LeaderboardSize = defaults.LeaderboardSize
	}

	return &Runner{
		repo:      repo,
		provider:  provider,
		evaluator: evaluator,
		config:    config,
		log:       log.With().Str("component", "pipeline").Logger(),
	}
}

// OnAddNetwork scores the network against every applicant with matching
// dimensions. A missing network is not an error; the summary reports
// NetworkFound false. The first collaborator error aborts the run.
func (r *Runner) OnAddNetwork(ctx context.Context, networkID string) (*RunSummary, error) {
	start := time.Now()
	summary := &RunSummary{NetworkID: networkID}

	err := r.run(ctx, networkID, summary)
	summary.Duration = time.Since(start)

	outcome := metrics.RunOutcomeCompleted
	switch {
	case err != nil:
		outcome = metrics.RunOutcomeFailed
		metrics.RecordError("pipeline", err)
	case !summary.NetworkFound:
		outcome = metrics.RunOutcomeNetworkNotFound
	}
	metrics.RecordRun(outcome, summary.Duration.Seconds())

	if err != nil {
		return summary, err
	}

	r.log.Info().
		Str("network_id", networkID).
		Bool("network_found", summary.NetworkFound).
		Int("applicants", summary.Applicants).
		Int("improved", len(summary.Improvements)).
		Int("pruned", summary.Pruned).
		Int("cache_hits", summary.CacheHits).
		Int("cache_misses", summary.CacheMisses).
		Dur("duration", summary.Duration).
		Msg("Run completed")

	return summary, nil
}

func (r *Runner) run(ctx context.Context, networkID string, summary *RunSummary) error {
	network, found, err := r.repo.GetNetwork(ctx, networkID)
	if err != nil {
		return fmt.Errorf("failed to load network %s: %w", networkID, err)
	}
	if !found {
		r.log.Warn().Str("network_id", networkID).Msg("Network not found, nothing to score")
		return nil
	}
	summary.NetworkFound = true

	applicants, err := r.repo.ApplicantsFor(ctx, network.Inputs, network.Outputs)
	if err != nil {
		return fmt.Errorf("failed to fetch applicants: %w", err)
	}
	summary.Applicants = len(applicants)
	if len(applicants) == 0 {
		r.log.Info().
			Str("network_id", networkID).
			Int("inputs", network.Inputs).
			Int("outputs", network.Outputs).
			Msg("No applicants match the network")
		return nil
	}

	ids := make([]string, len(applicants))
	for i, a := range applicants {
		ids[i] = a.ObjectID
	}

	best, err := scoring.BuildBestScores(ctx, r.repo, ids, r.config.ResultPageSize)
	if err != nil {
		return err
	}

	assembler := market.NewAssembler(r.provider, market.NewCandleCache(), market.AssemblerOptions{
		BucketBars: r.config.BucketBars,
		Dedupe:     r.config.Dedupe,
	})
	defer func() {
		summary.CacheHits = assembler.Cache().Hits()
		summary.CacheMisses = assembler.Cache().Misses()
	}()

	for i := range applicants {
		applicant := &applicants[i]

		improvement, err := r.scoreApplicant(ctx, assembler, network, applicant, best[applicant.ObjectID])
		if err != nil {
			return err
		}
		summary.Evaluated++
		if improvement != nil {
			summary.Improvements = append(summary.Improvements, *improvement)
			summary.Pruned += improvement.Pruned
		}
	}

	return nil
}

// scoreApplicant evaluates the network for one applicant. It returns nil
// when the score does not beat previousBest.
func (r *Runner) scoreApplicant(ctx context.Context, assembler *market.Assembler, network *neat.Network, applicant *neat.Applicant, previousBest float64) (*Improvement, error) {
	candles, err := assembler.Window(ctx, applicant.Ticker, applicant.Interval, applicant.Lookback, applicant.From, applicant.To)
	if err != nil {
		return nil, fmt.Errorf("failed to assemble window for applicant %s: %w", applicant.ObjectID, err)
	}

	evalStart := time.Now()
	outcome, err := r.evaluator.Evaluate(ctx, network, applicant, candles)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate network %s for applicant %s: %w", network.ObjectID, applicant.ObjectID, err)
	}
	metrics.RecordEvaluation(float64(time.Since(evalStart).Milliseconds()))

	score := scoring.CompositeScore(outcome.Wallet, outcome.Drawdown)
	if math.IsNaN(score) {
		return nil, fmt.Errorf("network %s for applicant %s: %w", network.ObjectID, applicant.ObjectID, scoring.ErrNaNScore)
	}

	r.log.Debug().
		Str("applicant_id", applicant.ObjectID).
		Int("candles", len(candles)).
		Float64("wallet", outcome.Wallet).
		Float64("drawdown", outcome.Drawdown).
		Float64("score", score).
		Float64("previous_best", previousBest).
		Msg("Evaluated network")

	if score <= previousBest {
		return nil, nil
	}

	result := &neat.Result{
		NetworkID:   network.ObjectID,
		ApplicantID: applicant.ObjectID,
		Wallet:      outcome.Wallet,
		Drawdown:    outcome.Drawdown,
		Score:       score,
		IsBest:      true,
	}
	resultID, err := r.repo.SaveResult(ctx, result)
	if err != nil {
		return nil, fmt.Errorf("failed to save result for applicant %s: %w", applicant.ObjectID, err)
	}

	results, err := r.repo.ResultsFor(ctx, applicant.ObjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch results for applicant %s: %w", applicant.ObjectID, err)
	}

	removed, err := scoring.Prune(ctx, r.repo, results, r.config.LeaderboardSize)
	if err != nil {
		return nil, fmt.Errorf("failed to prune leaderboard of applicant %s: %w", applicant.ObjectID, err)
	}

	improvement := &Improvement{
		ApplicantID:  applicant.ObjectID,
		ResultID:     resultID,
		Days:         applicant.Days,
		PreviousBest: previousBest,
		Score:        score,
		ScorePerDay:  perDay(score, applicant.Days),
		Pruned:       len(removed),
	}

	metrics.RecordImprovement(score, len(removed))

	r.log.Info().
		Str("applicant_id", improvement.ApplicantID).
		Str("network_id", network.ObjectID).
		Int("days", improvement.Days).
		Float64("previous_best", improvement.PreviousBest).
		Float64("score", improvement.Score).
		Float64("score_per_day", improvement.ScorePerDay).
		Int("pruned", improvement.Pruned).
		Msg("New best result")

	return improvement, nil
}

// perDay normalises a score by the applicant horizon; applicants without a
// horizon report 0
func perDay(score float64, days int) float64 {
	if days <= 0 {
		return 0
	}
	return score / float64(days)
}
