package core

import "github.com/marketlens/market-simulator/model"

// Offer records one eligible provider considered for a search, in distance
// order.
type Offer struct {
	ProviderID        string  `json:"provider_id"`
	DistanceKm        float64 `json:"distance_km"`
	Score             float64 `json:"score"`
	TeamSize          int     `json:"team_size"`
	ActiveConnections int     `json:"active_connections"`
}

// Bid records a provider's realised decision to respond to a search.
type Bid struct {
	ProviderID     string  `json:"provider_id"`
	DistanceKm     float64 `json:"distance_km"`
	Score          float64 `json:"score"`
	BidProbability float64 `json:"bid_probability"`
	// ConnectionProbability is the evaluated conversion likelihood for
	// this bid, recorded whether or not it converted.
	ConnectionProbability float64 `json:"connection_probability"`
}

// Connection records the committed match for a search, if any. At most one
// per search.
type Connection struct {
	ProviderID            string  `json:"provider_id"`
	DistanceKm            float64 `json:"distance_km"`
	Score                 float64 `json:"score"`
	ConnectionProbability float64 `json:"connection_probability"`
}

// SearchOutcome is the immutable record of one simulated search: where it
// landed, who could serve it, who bid, and who (if anyone) connected.
type SearchOutcome struct {
	SearchID string         `json:"search_id"`
	Point    model.GeoPoint `json:"point"`
	// CellID names the postal cell the search was anchored to; empty for
	// location-based markets.
	CellID string `json:"cell_id,omitempty"`

	Offers []Offer `json:"offers"`
	Bids   []Bid   `json:"bids"`
	// Connected is nil when no bid converted.
	Connected *Connection `json:"connected,omitempty"`
}

// HasEligible reports whether any provider could serve the search point.
func (o *SearchOutcome) HasEligible() bool { return len(o.Offers) > 0 }

// HasConnection reports whether the search produced a committed match.
func (o *SearchOutcome) HasConnection() bool { return o.Connected != nil }
