// Package neat holds the persisted domain objects of the scoring pipeline:
// applicants (strategy specifications), evolved networks and their results.
package neat

import (
	"encoding/json"
	"time"

	"github.com/ajitpratap0/neatrank/internal/validation"
)

// Store classes
const (
	ClassNetworks   = "NeatNetworks"
	ClassApplicants = "NeatNetworkApplicants"
	ClassResults    = "NeatNetworkResults"
)

const (
	// FeatureWidth is the number of network inputs per lookback bar
	FeatureWidth = 15
	// ActionWidth is the number of network outputs
	ActionWidth = 5
)

// Applicant is an immutable strategy specification networks are scored
// against. Interval is the bar size in minutes; From and To are unix
// seconds bounding the half-open evaluation period [From, To).
type Applicant struct {
	ObjectID string  `json:"objectId,omitempty" yaml:"id"`
	Ticker   string  `json:"ticker" yaml:"ticker"`
	Interval int     `json:"interval" yaml:"interval"`
	Lookback int     `json:"lookback" yaml:"lookback"`
	Lag      int     `json:"lag" yaml:"lag"`
	Gain     float64 `json:"gain" yaml:"gain"`
	Stake    float64 `json:"stake" yaml:"stake"`
	From     int64   `json:"from" yaml:"from"`
	To       int64   `json:"to" yaml:"to"`
	Days     int     `json:"days" yaml:"days"`
	Inputs   int     `json:"inputs" yaml:"inputs"`
	Outputs  int     `json:"outputs" yaml:"outputs"`
}

// ApplicantParams are the user-chosen parts of an applicant
type ApplicantParams struct {
	Ticker   string
	Interval int
	Lookback int
	Lag      int
	Gain     float64
	Stake    float64
	Days     int
}

// NewApplicant derives the evaluation period and the network dimensions.
// The period ends at the start of the UTC day containing now and spans
// Days whole days.
func NewApplicant(p ApplicantParams, now time.Time) *Applicant {
	to := now.UTC().Truncate(24 * time.Hour)
	from := to.AddDate(0, 0, -p.Days)

	return &Applicant{
		Ticker:   p.Ticker,
		Interval: p.Interval,
		Lookback: p.Lookback,
		Lag:      p.Lag,
		Gain:     p.Gain,
		Stake:    p.Stake,
		From:     from.Unix(),
		To:       to.Unix(),
		Days:     p.Days,
		Inputs:   p.Lookback * FeatureWidth,
		Outputs:  ActionWidth,
	}
}

// Validate checks the fields every applicant must carry
func (a *Applicant) Validate() error {
	v := validation.NewValidator()
	v.Required("ticker", a.Ticker)
	if a.Ticker != "" {
		v.Ticker("ticker", a.Ticker)
	}
	v.PositiveInt("interval", a.Interval)
	v.PositiveInt("lookback", a.Lookback)
	v.NonNegative("lag", float64(a.Lag))
	v.PositiveInt("days", a.Days)
	v.Positive("gain", a.Gain)
	v.NonNegative("stake", a.Stake)
	v.Before("period", a.From, a.To)
	v.Equal("inputs", a.Inputs, a.Lookback*FeatureWidth)
	v.Equal("outputs", a.Outputs, ActionWidth)
	return v.Err()
}

// Network is an evolved network. The topology is opaque to this service.
type Network struct {
	ObjectID string          `json:"objectId,omitempty"`
	Network  json.RawMessage `json:"network"`
	Inputs   int             `json:"inputs"`
	Outputs  int             `json:"outputs"`
	Parent   string          `json:"parent,omitempty"`
}

// TrialOutcome is what a simulation of one network over one candle window
// reports
type TrialOutcome struct {
	Wallet   float64 `json:"wallet" yaml:"wallet"`
	Drawdown float64 `json:"drawdown" yaml:"drawdown"`
}

// Result is a persisted trial outcome of a network against an applicant
type Result struct {
	ObjectID    string  `json:"objectId,omitempty"`
	NetworkID   string  `json:"networkId"`
	ApplicantID string  `json:"applicantId"`
	Wallet      float64 `json:"wallet"`
	Drawdown    float64 `json:"drawdown"`
	Score       float64 `json:"score"`
	IsBest      bool    `json:"isBest"`
}
