package core

import (
	"errors"
	"testing"

	"github.com/marketlens/market-simulator/model"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate, got %v", err)
	}
}

func TestConfigValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*SimulationConfig)
	}{
		{"zero search iterations", func(c *SimulationConfig) { c.SearchIterations = 0 }},
		{"negative search iterations", func(c *SimulationConfig) { c.SearchIterations = -5 }},
		{"zero supply iterations", func(c *SimulationConfig) { c.SupplyConfigurationIterations = 0 }},
		{"bid probability above one", func(c *SimulationConfig) { c.CleanerBaseBidProbability = 1.5 }},
		{"bid probability negative", func(c *SimulationConfig) { c.CleanerBaseBidProbability = -0.1 }},
		{"connection probability above one", func(c *SimulationConfig) { c.ConnectionBaseProbability = 2 }},
		{"negative decay", func(c *SimulationConfig) { c.DistanceDecayFactor = -0.2 }},
		{"zero search radius", func(c *SimulationConfig) { c.SearchRadiusKm = 0 }},
		{"zero max connections per member", func(c *SimulationConfig) { c.MaxConnectionsPerMember = 0 }},
		{"zero min capacity factor", func(c *SimulationConfig) { c.MinCapacityFactor = 0 }},
		{"quality weight above one", func(c *SimulationConfig) { c.QualityWeight = 1.2 }},
		{"negative jitter", func(c *SimulationConfig) { c.CellJitterStdKm = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("expected validation error")
			}
			if !errors.Is(err, model.ErrValidation) {
				t.Errorf("error should wrap ErrValidation, got %v", err)
			}
		})
	}
}

func TestTotalIterations(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SearchIterations = 200
	cfg.SupplyConfigurationIterations = 5
	if got := cfg.TotalIterations(); got != 1000 {
		t.Errorf("expected 1000 total iterations, got %d", got)
	}
}
