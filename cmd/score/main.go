// Score-for-period CLI: ensures an applicant exists, asks the evolution
// service for a network and scores it against every compatible applicant
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/ajitpratap0/neatrank/internal/config"
	"github.com/ajitpratap0/neatrank/internal/deps"
	"github.com/ajitpratap0/neatrank/internal/evolution"
	"github.com/ajitpratap0/neatrank/internal/neat"
	"github.com/ajitpratap0/neatrank/internal/validation"
)

type options struct {
	params      neat.ApplicantParams
	evolve      evolution.EvolveOptions
	applicantID string
	configPath  string
	output      string
	verbose     bool
}

func parseFlags(args []string) (*options, error) {
	fs := flag.NewFlagSet("score", flag.ContinueOnError)

	opts := &options{evolve: evolution.DefaultEvolveOptions()}
	fs.IntVar(&opts.params.Lookback, "lookback", 12, "Number of bars of history per network input window")
	fs.Float64Var(&opts.params.Gain, "gain", 1.25, "Take-profit gain multiplier")
	fs.Float64Var(&opts.params.Stake, "stake", 200, "Stake per trade")
	fs.IntVar(&opts.params.Lag, "lag", 4, "Bars between signal and execution")
	fs.IntVar(&opts.params.Interval, "interval", 5, "Bar interval in minutes")
	fs.IntVar(&opts.params.Days, "days", 6, "Evaluation horizon in days")
	fs.StringVar(&opts.params.Ticker, "ticker", "BTCUSDT", "Instrument ticker")
	fs.IntVar(&opts.evolve.Population, "population", opts.evolve.Population, "Population size")
	fs.IntVar(&opts.evolve.Stagnation, "stagnation", opts.evolve.Stagnation, "Generations without improvement before stopping")
	fs.BoolVar(&opts.evolve.Best, "best", opts.evolve.Best, "Seed the population from the applicant's best network")
	fs.StringVar(&opts.applicantID, "applicant", "", "Existing applicant id; a new applicant is created when empty")
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.output, "output", "", "Write the run report as YAML to this file")
	fs.BoolVar(&opts.verbose, "verbose", false, "Enable debug logging")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	opts.params.Ticker = validation.SanitizeTicker(opts.params.Ticker)

	v := validation.NewValidator()
	if opts.applicantID != "" {
		v.ObjectID("applicant", opts.applicantID)
	}
	v.PositiveInt("population", opts.evolve.Population)
	v.PositiveInt("stagnation", opts.evolve.Stagnation)
	if err := v.Err(); err != nil {
		return nil, err
	}
	return opts, nil
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid arguments: %v\n", err)
		os.Exit(2)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	level := cfg.App.LogLevel
	if opts.verbose {
		level = "debug"
	}
	config.InitLoggerWithOutput(level, cfg.App.LogFormat, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, opts); err != nil {
		log.Error().Err(err).Msg("Score run failed")
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, opts *options) error {
	d, err := deps.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	applicantID := opts.applicantID
	if applicantID == "" {
		applicant := neat.NewApplicant(opts.params, time.Now())
		applicantID, err = d.Repo.CreateApplicant(ctx, applicant)
		if err != nil {
			return fmt.Errorf("failed to create applicant: %w", err)
		}
		log.Info().
			Str("applicant_id", applicantID).
			Str("ticker", applicant.Ticker).
			Int("interval", applicant.Interval).
			Int("lookback", applicant.Lookback).
			Int("days", applicant.Days).
			Msg("Created applicant")
	}

	applicant, found, err := d.Repo.GetApplicant(ctx, applicantID)
	if err != nil {
		return err
	}
	if !found {
		log.Warn().Str("applicant_id", applicantID).Msg("Applicant not found, nothing to do")
		return nil
	}

	report := &Report{Applicant: applicant, Evolve: opts.evolve}

	started := time.Now()
	networkID, ok, err := d.Evolution.Evolve(ctx, applicant, opts.evolve)
	if err != nil {
		return fmt.Errorf("failed to evolve network: %w", err)
	}
	log.Info().
		Str("applicant_id", applicantID).
		Str("network_id", networkID).
		Bool("produced", ok).
		Dur("duration", time.Since(started)).
		Msg("Evolution finished")

	if ok {
		report.NetworkID = networkID
		report.Run, err = d.Runner.OnAddNetwork(ctx, networkID)
		if err != nil {
			return err
		}
	}

	if opts.output != "" {
		if err := writeReport(opts.output, report); err != nil {
			return err
		}
		log.Info().Str("path", opts.output).Msg("Report written")
	}

	return nil
}
