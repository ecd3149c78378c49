package core

import (
	"fmt"

	"github.com/marketlens/market-simulator/model"
)

// SimulationConfig carries every tunable of a simulation run. Validated once
// up front; immutable afterwards.
type SimulationConfig struct {
	// SearchIterations is the number of simulated searches per supply
	// configuration. Positive.
	SearchIterations int `json:"search_iterations" mapstructure:"search_iterations"`
	// SupplyConfigurationIterations repeats the whole run under
	// independently sub-seeded draws to study variance across supply
	// snapshots. Positive; 1 means a single run.
	SupplyConfigurationIterations int `json:"supply_configuration_iterations" mapstructure:"supply_configuration_iterations"`
	// RandomSeed is the master seed. Results are a deterministic function
	// of (market, providers, config, seed).
	RandomSeed uint64 `json:"random_seed" mapstructure:"random_seed"`

	// CleanerBaseBidProbability is the base probability of a provider
	// bidding before adjustments. In [0, 1].
	CleanerBaseBidProbability float64 `json:"cleaner_base_bid_probability" mapstructure:"cleaner_base_bid_probability"`
	// ConnectionBaseProbability is the base probability of a bid
	// converting into a connection. In [0, 1].
	ConnectionBaseProbability float64 `json:"connection_base_probability" mapstructure:"connection_base_probability"`
	// DistanceDecayFactor controls the exponential fall-off of bid and
	// connection likelihood with distance. Non-negative.
	DistanceDecayFactor float64 `json:"distance_decay_factor" mapstructure:"distance_decay_factor"`
	// SearchRadiusKm caps how far a search is willing to look,
	// independent of each provider's own radius. Positive.
	SearchRadiusKm float64 `json:"search_radius_km" mapstructure:"search_radius_km"`

	// MaxConnectionsPerMember derives a provider's capacity from its team
	// size. MinCapacityFactor is the floor the capacity adjustment trends
	// to as utilisation approaches 1; never exactly zero.
	MaxConnectionsPerMember int     `json:"max_connections_per_member" mapstructure:"max_connections_per_member"`
	MinCapacityFactor       float64 `json:"min_capacity_factor" mapstructure:"min_capacity_factor"`

	// QualityWeight steers the linear quality blend; see QualityAdjustment.
	QualityWeight float64 `json:"quality_weight" mapstructure:"quality_weight"`

	// CellJitterStdKm is the normal spread applied around a postal cell's
	// centroid when sampling search points. Zero samples the centroid.
	CellJitterStdKm float64 `json:"cell_jitter_std_km" mapstructure:"cell_jitter_std_km"`
}

// DefaultConfig returns the baseline configuration. The probability
// constants come from observed marketplace data.
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		SearchIterations:              10,
		SupplyConfigurationIterations: 1,
		RandomSeed:                    1,
		CleanerBaseBidProbability:     0.14,
		ConnectionBaseProbability:     0.4,
		DistanceDecayFactor:           0.2,
		SearchRadiusKm:                10.0,
		MaxConnectionsPerMember:       10,
		MinCapacityFactor:             0.1,
		QualityWeight:                 0.5,
		CellJitterStdKm:               1.0,
	}
}

// Validate checks every field; any failure is fatal before a run starts.
func (c SimulationConfig) Validate() error {
	if c.SearchIterations <= 0 {
		return fmt.Errorf("%w: search_iterations must be positive, got %d", model.ErrValidation, c.SearchIterations)
	}
	if c.SupplyConfigurationIterations <= 0 {
		return fmt.Errorf("%w: supply_configuration_iterations must be positive, got %d", model.ErrValidation, c.SupplyConfigurationIterations)
	}
	if c.CleanerBaseBidProbability < 0 || c.CleanerBaseBidProbability > 1 {
		return fmt.Errorf("%w: cleaner_base_bid_probability %v out of range [0, 1]", model.ErrValidation, c.CleanerBaseBidProbability)
	}
	if c.ConnectionBaseProbability < 0 || c.ConnectionBaseProbability > 1 {
		return fmt.Errorf("%w: connection_base_probability %v out of range [0, 1]", model.ErrValidation, c.ConnectionBaseProbability)
	}
	if c.DistanceDecayFactor < 0 {
		return fmt.Errorf("%w: distance_decay_factor cannot be negative, got %v", model.ErrValidation, c.DistanceDecayFactor)
	}
	if c.SearchRadiusKm <= 0 {
		return fmt.Errorf("%w: search_radius_km must be positive, got %v", model.ErrValidation, c.SearchRadiusKm)
	}
	if c.MaxConnectionsPerMember <= 0 {
		return fmt.Errorf("%w: max_connections_per_member must be positive, got %d", model.ErrValidation, c.MaxConnectionsPerMember)
	}
	if c.MinCapacityFactor <= 0 || c.MinCapacityFactor > 1 {
		return fmt.Errorf("%w: min_capacity_factor %v out of range (0, 1]", model.ErrValidation, c.MinCapacityFactor)
	}
	if c.QualityWeight < 0 || c.QualityWeight > 1 {
		return fmt.Errorf("%w: quality_weight %v out of range [0, 1]", model.ErrValidation, c.QualityWeight)
	}
	if c.CellJitterStdKm < 0 {
		return fmt.Errorf("%w: cell_jitter_std_km cannot be negative, got %v", model.ErrValidation, c.CellJitterStdKm)
	}
	return nil
}

// TotalIterations is the number of searches across all supply configurations.
func (c SimulationConfig) TotalIterations() int {
	return c.SearchIterations * c.SupplyConfigurationIterations
}
