package core

import (
	"errors"
	"fmt"
	"sort"

	"github.com/marketlens/market-simulator/model"
)

var (
	ErrProviderExists   = errors.New("provider already exists")
	ErrProviderNotFound = errors.New("provider not found")
	ErrProviderBadInput = errors.New("invalid provider")

	// ErrEmptyMarket flags a market with zero providers or zero area;
	// a simulation cannot proceed meaningfully against one.
	ErrEmptyMarket = errors.New("empty market")
)

// Candidate pairs a provider with its realised distance to a search point.
type Candidate struct {
	Provider   *model.Provider
	DistanceKm float64
}

// ProviderRegistry holds the read-only provider snapshot for a simulation
// run and answers the spatial query "which providers can reach point P".
//
// The registry is populated before a run starts and never mutated during it,
// so per-iteration results cannot depend on iteration order.
type ProviderRegistry struct {
	providers map[string]*model.Provider
	ordered   []string // insertion order, for stable iteration
}

// NewProviderRegistry creates an empty registry.
func NewProviderRegistry() *ProviderRegistry {
	return &ProviderRegistry{
		providers: make(map[string]*model.Provider),
	}
}

// Add validates and inserts a provider. Duplicate IDs are rejected.
func (r *ProviderRegistry) Add(p *model.Provider) error {
	if p == nil {
		return fmt.Errorf("%w: nil provider", ErrProviderBadInput)
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrProviderBadInput, err)
	}
	if _, exists := r.providers[p.ID]; exists {
		return fmt.Errorf("%w: %q", ErrProviderExists, p.ID)
	}
	r.providers[p.ID] = p
	r.ordered = append(r.ordered, p.ID)
	return nil
}

// Get returns a provider by ID, or nil if not found.
func (r *ProviderRegistry) Get(id string) *model.Provider {
	return r.providers[id]
}

// All returns every provider in insertion order.
func (r *ProviderRegistry) All() []*model.Provider {
	out := make([]*model.Provider, 0, len(r.ordered))
	for _, id := range r.ordered {
		out = append(out, r.providers[id])
	}
	return out
}

// Len returns the number of registered providers.
func (r *ProviderRegistry) Len() int { return len(r.providers) }

// BiddingActiveCount returns how many providers currently accept bids.
func (r *ProviderRegistry) BiddingActiveCount() int {
	n := 0
	for _, p := range r.providers {
		if p.BiddingActive {
			n++
		}
	}
	return n
}

// EligibleProviders returns the providers that are accepting bids and can
// geometrically serve the point: each provider's OWN service radius must
// reach the point, and the point must lie within the global search radius
// cap. Ordered by ascending distance, ties broken by provider ID so results
// are deterministic. An empty result is not an error.
func (r *ProviderRegistry) EligibleProviders(point model.GeoPoint, searchRadiusKm float64) []Candidate {
	var out []Candidate
	for _, id := range r.ordered {
		p := r.providers[id]
		if !p.BiddingActive {
			continue
		}
		d := p.Location.DistanceKm(point)
		if d > p.ServiceRadiusKm || d > searchRadiusKm {
			continue
		}
		out = append(out, Candidate{Provider: p, DistanceKm: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Provider.ID < out[j].Provider.ID
	})
	return out
}

// CheckViable returns ErrEmptyMarket when the registry holds no providers or
// the market has no measurable area to search in.
func (r *ProviderRegistry) CheckViable(m *model.Market) error {
	if r.Len() == 0 {
		return fmt.Errorf("%w: market %q has no providers", ErrEmptyMarket, m.ID)
	}
	if m.Kind == model.MarketKindLocation && m.RadiusKm <= 0 {
		return fmt.Errorf("%w: market %q has zero radius", ErrEmptyMarket, m.ID)
	}
	if m.Kind == model.MarketKindPostalCode && len(m.Cells) == 0 {
		return fmt.Errorf("%w: market %q has no postal cells", ErrEmptyMarket, m.ID)
	}
	return nil
}
