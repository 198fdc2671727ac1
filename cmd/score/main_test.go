package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/neatrank/internal/evolution"
	"github.com/ajitpratap0/neatrank/internal/neat"
	"github.com/ajitpratap0/neatrank/internal/pipeline"
)

func TestParseFlagsDefaults(t *testing.T) {
	opts, err := parseFlags(nil)
	require.NoError(t, err)

	assert.Equal(t, neat.ApplicantParams{
		Ticker:   "BTCUSDT",
		Interval: 5,
		Lookback: 12,
		Lag:      4,
		Gain:     1.25,
		Stake:    200,
		Days:     6,
	}, opts.params)
	assert.Equal(t, evolution.DefaultEvolveOptions(), opts.evolve)
	assert.Empty(t, opts.applicantID)
	assert.Empty(t, opts.output)
	assert.False(t, opts.verbose)
}

func TestParseFlagsOverrides(t *testing.T) {
	opts, err := parseFlags([]string{
		"-lookback", "6",
		"-interval", "15",
		"-population", "20",
		"-best",
		"-applicant", "abc",
		"-output", "report.yaml",
	})
	require.NoError(t, err)

	assert.Equal(t, 6, opts.params.Lookback)
	assert.Equal(t, 15, opts.params.Interval)
	assert.Equal(t, 20, opts.evolve.Population)
	assert.True(t, opts.evolve.Best)
	assert.Equal(t, 0.35, opts.evolve.Mutation.AddNode)
	assert.Equal(t, "abc", opts.applicantID)
	assert.Equal(t, "report.yaml", opts.output)
}

func TestParseFlagsNormalizesTicker(t *testing.T) {
	opts, err := parseFlags([]string{"-ticker", "eth/usdt"})
	require.NoError(t, err)
	assert.Equal(t, "ETHUSDT", opts.params.Ticker)
}

func TestParseFlagsValidates(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"bad applicant id", []string{"-applicant", "../x"}, "applicant"},
		{"zero population", []string{"-population", "0"}, "population"},
		{"negative stagnation", []string{"-stagnation", "-1"}, "stagnation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseFlags(tt.args)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseFlagsRejectsUnknown(t *testing.T) {
	_, err := parseFlags([]string{"-nope"})
	assert.Error(t, err)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.yaml")

	report := &Report{
		Applicant: &neat.Applicant{ObjectID: "a1", Ticker: "BTCUSDT", Interval: 5, Lookback: 12, Days: 6},
		Evolve:    evolution.DefaultEvolveOptions(),
		NetworkID: "n1",
		Run: &pipeline.RunSummary{
			NetworkID:    "n1",
			NetworkFound: true,
			Applicants:   2,
			Evaluated:    2,
			Improvements: []pipeline.Improvement{
				{ApplicantID: "a1", Days: 6, Score: 110.4, ScorePerDay: 18.4},
			},
		},
	}
	require.NoError(t, writeReport(path, report))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(data, &decoded))

	assert.Equal(t, "n1", decoded["network_id"])
	applicant := decoded["applicant"].(map[string]any)
	assert.Equal(t, "a1", applicant["id"])
	run := decoded["run"].(map[string]any)
	assert.Equal(t, true, run["network_found"])
	improvements := run["improvements"].([]any)
	require.Len(t, improvements, 1)
	assert.Equal(t, 110.4, improvements[0].(map[string]any)["score"])
}

func TestWriteReportBadPath(t *testing.T) {
	err := writeReport(filepath.Join(t.TempDir(), "missing", "report.yaml"), &Report{})
	assert.Error(t, err)
}
