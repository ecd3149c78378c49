package model

import (
	"fmt"
	"math"
)

// MarketKind identifies how a market's geography is defined.
type MarketKind int

const (
	// MarketKindPostalCode defines the market as a union of postal-code
	// cells, each with a centroid and a demand weight.
	MarketKindPostalCode MarketKind = iota
	// MarketKindLocation defines the market as a circle: centre + radius.
	MarketKindLocation
)

func (k MarketKind) String() string {
	switch k {
	case MarketKindPostalCode:
		return "postal_code"
	case MarketKindLocation:
		return "location"
	default:
		return "unknown"
	}
}

// PostalCell is one postal-code cell of a postal-code market: centroid,
// total-addressable-demand weight, and an optional area in km². Immutable
// after load.
type PostalCell struct {
	ID       string
	Centroid GeoPoint
	// DemandWeight is the cell's total addressable market size (str_tam).
	// Non-negative.
	DemandWeight float64
	// AreaKm2 is optional; zero means unknown.
	AreaKm2 float64
}

// Validate checks the cell's fields.
func (c *PostalCell) Validate() error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("%w: postal cell with empty id", ErrValidation)
	}
	if err := c.Centroid.Validate(); err != nil {
		return fmt.Errorf("postal cell %q: %w", c.ID, err)
	}
	if c.DemandWeight < 0 {
		return fmt.Errorf("%w: postal cell %q demand weight cannot be negative, got %v", ErrValidation, c.ID, c.DemandWeight)
	}
	if c.AreaKm2 < 0 {
		return fmt.Errorf("%w: postal cell %q area cannot be negative, got %v", ErrValidation, c.ID, c.AreaKm2)
	}
	return nil
}

// Market is an aggregate geographic area, defined either by postal-code cells
// or by a centre and radius. Exactly one representation is populated per
// kind. Markets are constructed once from validated input and stay immutable
// for the simulation's duration.
type Market struct {
	ID   string
	Kind MarketKind

	// Populated when Kind == MarketKindPostalCode.
	Cells []PostalCell

	// Populated when Kind == MarketKindLocation.
	Center   GeoPoint
	RadiusKm float64
}

// NewPostalCodeMarket builds a postal-code market from a non-empty ordered
// set of cells.
func NewPostalCodeMarket(id string, cells []PostalCell) (*Market, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: market with empty id", ErrValidation)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: market %q needs at least one postal cell", ErrValidation, id)
	}
	seen := make(map[string]struct{}, len(cells))
	for i := range cells {
		if err := cells[i].Validate(); err != nil {
			return nil, fmt.Errorf("market %q: %w", id, err)
		}
		if _, dup := seen[cells[i].ID]; dup {
			return nil, fmt.Errorf("%w: market %q has duplicate postal cell %q", ErrValidation, id, cells[i].ID)
		}
		seen[cells[i].ID] = struct{}{}
	}
	return &Market{ID: id, Kind: MarketKindPostalCode, Cells: cells}, nil
}

// NewLocationMarket builds a circular market around a centre point.
func NewLocationMarket(id string, center GeoPoint, radiusKm float64) (*Market, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: market with empty id", ErrValidation)
	}
	if err := center.Validate(); err != nil {
		return nil, fmt.Errorf("market %q: %w", id, err)
	}
	if radiusKm <= 0 {
		return nil, fmt.Errorf("%w: market %q radius must be positive, got %v", ErrValidation, id, radiusKm)
	}
	return &Market{ID: id, Kind: MarketKindLocation, Center: center, RadiusKm: radiusKm}, nil
}

// Contains reports whether the point falls inside the market. For
// location-based markets this is a radius check; for postal-code markets the
// point is assigned to its nearest cell and considered contained when that
// cell's area (or a 1 km fallback) covers it. Used for coverage reporting,
// not for search generation, which always samples from within the market by
// construction.
func (m *Market) Contains(point GeoPoint) bool {
	switch m.Kind {
	case MarketKindLocation:
		return m.Center.DistanceKm(point) <= m.RadiusKm
	case MarketKindPostalCode:
		cell := m.NearestCell(point)
		if cell == nil {
			return false
		}
		reach := 1.0
		if cell.AreaKm2 > 0 {
			// Radius of a circle with the cell's area.
			reach = math.Sqrt(cell.AreaKm2 / math.Pi)
		}
		return cell.Centroid.DistanceKm(point) <= reach
	default:
		return false
	}
}

// NearestCell returns the postal cell whose centroid is closest to the point,
// or nil for location-based markets.
func (m *Market) NearestCell(point GeoPoint) *PostalCell {
	if m.Kind != MarketKindPostalCode {
		return nil
	}
	var best *PostalCell
	bestDist := math.Inf(1)
	for i := range m.Cells {
		d := m.Cells[i].Centroid.DistanceKm(point)
		if d < bestDist {
			best = &m.Cells[i]
			bestDist = d
		}
	}
	return best
}

// NeighbourCells returns the cells (other than cellID) whose centroids lie
// within thresholdKm of the named cell's centroid.
func (m *Market) NeighbourCells(cellID string, thresholdKm float64) []PostalCell {
	if m.Kind != MarketKindPostalCode || thresholdKm <= 0 {
		return nil
	}
	var origin *PostalCell
	for i := range m.Cells {
		if m.Cells[i].ID == cellID {
			origin = &m.Cells[i]
			break
		}
	}
	if origin == nil {
		return nil
	}
	var out []PostalCell
	for i := range m.Cells {
		if m.Cells[i].ID == cellID {
			continue
		}
		if origin.Centroid.DistanceKm(m.Cells[i].Centroid) <= thresholdKm {
			out = append(out, m.Cells[i])
		}
	}
	return out
}

// TotalAreaKm2 returns the sum of cell areas, or π·r² for location-based
// markets. Cells with unknown area contribute zero.
func (m *Market) TotalAreaKm2() float64 {
	switch m.Kind {
	case MarketKindLocation:
		return math.Pi * m.RadiusKm * m.RadiusKm
	case MarketKindPostalCode:
		var total float64
		for i := range m.Cells {
			total += m.Cells[i].AreaKm2
		}
		return total
	default:
		return 0
	}
}

// TotalDemandWeight returns the sum of cell demand weights. Only defined for
// postal-code markets; callers must not assume a demand weight exists for
// location-based markets.
func (m *Market) TotalDemandWeight() (float64, bool) {
	if m.Kind != MarketKindPostalCode {
		return 0, false
	}
	var total float64
	for i := range m.Cells {
		total += m.Cells[i].DemandWeight
	}
	return total, true
}

// DemandWeightShare returns the named cell's share of total market demand.
func (m *Market) DemandWeightShare(cellID string) (float64, error) {
	total, ok := m.TotalDemandWeight()
	if !ok {
		return 0, fmt.Errorf("%w: demand weight only available for postal-code markets", ErrValidation)
	}
	if total <= 0 {
		return 0, fmt.Errorf("%w: market %q has zero total demand weight", ErrValidation, m.ID)
	}
	for i := range m.Cells {
		if m.Cells[i].ID == cellID {
			return m.Cells[i].DemandWeight / total, nil
		}
	}
	return 0, fmt.Errorf("%w: postal cell %q not in market %q", ErrValidation, cellID, m.ID)
}
