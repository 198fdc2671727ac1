// Package evolution is the boundary to the process that evolves networks
// and simulates them against candle windows.
package evolution

import (
	"context"

	"github.com/ajitpratap0/neatrank/internal/market"
	"github.com/ajitpratap0/neatrank/internal/neat"
)

// Evaluator simulates a network trading the applicant's strategy over a
// candle window
type Evaluator interface {
	Evaluate(ctx context.Context, network *neat.Network, applicant *neat.Applicant, candles []market.Candle) (neat.TrialOutcome, error)
}

// Searcher runs an evolutionary search for an applicant. ok is false when
// the search finished without producing a network.
type Searcher interface {
	Evolve(ctx context.Context, applicant *neat.Applicant, opts EvolveOptions) (networkID string, ok bool, err error)
}

// MutationConfig holds the mutation probabilities and limits of the search
type MutationConfig struct {
	AddNode               float64 `json:"add_node" yaml:"add_node"`
	AddConnection         float64 `json:"add_connection" yaml:"add_connection"`
	ConnectionEnabled     float64 `json:"connection_enabled" yaml:"connection_enabled"`
	Crossover             float64 `json:"crossover" yaml:"crossover"`
	ConnectionWeight      float64 `json:"connection_weight" yaml:"connection_weight"`
	ConnectionWeightProb  float64 `json:"connection_weight_prob" yaml:"connection_weight_prob"`
	ConnectionWeightDelta float64 `json:"connection_weight_delta" yaml:"connection_weight_delta"`
	NodeBiasProb          float64 `json:"node_bias_prob" yaml:"node_bias_prob"`
	NodeActivationProb    float64 `json:"node_activation_prob" yaml:"node_activation_prob"`
	NodeBiasDelta         float64 `json:"node_bias_delta" yaml:"node_bias_delta"`
	NodeBias              float64 `json:"node_bias" yaml:"node_bias"`
	ConnectionMax         int     `json:"connection_max" yaml:"connection_max"`
	NodeMax               int     `json:"node_max" yaml:"node_max"`
	NodeEnabled           float64 `json:"node_enabled" yaml:"node_enabled"`
}

// EvolveOptions configures one search run
type EvolveOptions struct {
	Population int            `json:"population" yaml:"population"`
	Stagnation int            `json:"stagnation" yaml:"stagnation"`
	Best       bool           `json:"best" yaml:"best"` // seed the population from the applicant's best network
	Mutation   MutationConfig `json:"mutation" yaml:"mutation"`
}

// DefaultMutationConfig returns the standard mutation rates
func DefaultMutationConfig() MutationConfig {
	return MutationConfig{
		AddNode:               0.35,
		AddConnection:         0.35,
		ConnectionEnabled:     0.1,
		Crossover:             0.1,
		ConnectionWeight:      1.0,
		ConnectionWeightProb:  0.8,
		ConnectionWeightDelta: 0.1,
		NodeBiasProb:          0.25,
		NodeActivationProb:    0.25,
		NodeBiasDelta:         0.1,
		NodeBias:              1.0,
		ConnectionMax:         100000,
		NodeMax:               10000,
		NodeEnabled:           0.25,
	}
}

// DefaultEvolveOptions returns the standard search settings
func DefaultEvolveOptions() EvolveOptions {
	return EvolveOptions{
		Population: 50,
		Stagnation: 100,
		Best:       false,
		Mutation:   DefaultMutationConfig(),
	}
}
