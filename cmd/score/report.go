package main

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/neatrank/internal/evolution"
	"github.com/ajitpratap0/neatrank/internal/neat"
	"github.com/ajitpratap0/neatrank/internal/pipeline"
)

// Report is the YAML document -output writes
type Report struct {
	Applicant *neat.Applicant         `yaml:"applicant"`
	Evolve    evolution.EvolveOptions `yaml:"evolve"`
	NetworkID string                  `yaml:"network_id,omitempty"`
	Run       *pipeline.RunSummary    `yaml:"run,omitempty"`
}

func writeReport(path string, report *Report) error {
	data, err := yaml.Marshal(report)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
