package model

import "fmt"

// Provider is an immutable snapshot of a service provider ("cleaner") for the
// duration of a simulation run. Capacity fields feed the probability model;
// nothing mutates a Provider mid-run.
type Provider struct {
	ID         string
	Location   GeoPoint
	PostalCode string // optional; empty for location-based supply

	// BiddingActive controls whether the provider can receive and bid on
	// new work. AssignmentActive controls assignment to existing work and
	// is carried for reporting only.
	BiddingActive    bool
	AssignmentActive bool

	// Score is a quality score in [0, 1].
	Score float64
	// ServiceRadiusKm is the maximum distance the provider is willing to
	// travel, in kilometres. Must be positive.
	ServiceRadiusKm float64

	TeamSize          int
	ActiveConnections int
}

// Validate checks all provider fields. Construction-time only; the per-search
// loop never re-validates.
func (p *Provider) Validate() error {
	if p == nil || p.ID == "" {
		return fmt.Errorf("%w: provider with empty id", ErrValidation)
	}
	if err := p.Location.Validate(); err != nil {
		return fmt.Errorf("provider %q: %w", p.ID, err)
	}
	if p.Score < 0 || p.Score > 1 {
		return fmt.Errorf("%w: provider %q score %v out of range [0, 1]", ErrValidation, p.ID, p.Score)
	}
	if p.ServiceRadiusKm <= 0 {
		return fmt.Errorf("%w: provider %q service radius must be positive, got %v", ErrValidation, p.ID, p.ServiceRadiusKm)
	}
	if p.TeamSize < 1 {
		return fmt.Errorf("%w: provider %q team size must be at least 1, got %d", ErrValidation, p.ID, p.TeamSize)
	}
	if p.ActiveConnections < 0 {
		return fmt.Errorf("%w: provider %q active connections cannot be negative, got %d", ErrValidation, p.ID, p.ActiveConnections)
	}
	return nil
}

// CanReach reports whether the point lies within the provider's own service
// radius. Eligibility is always evaluated per provider against the search
// point, never against a shared market-wide range.
func (p *Provider) CanReach(point GeoPoint) bool {
	return p.Location.DistanceKm(point) <= p.ServiceRadiusKm
}
