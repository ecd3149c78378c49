package model

import (
	"math"
	"testing"
)

func threeCells() []PostalCell {
	return []PostalCell{
		{ID: "10001", Centroid: GeoPoint{Lat: 40.75, Lon: -73.997}, DemandWeight: 100, AreaKm2: 1.6},
		{ID: "10002", Centroid: GeoPoint{Lat: 40.716, Lon: -73.986}, DemandWeight: 50, AreaKm2: 2.3},
		{ID: "10003", Centroid: GeoPoint{Lat: 40.732, Lon: -73.989}, DemandWeight: 150, AreaKm2: 1.5},
	}
}

func TestNewPostalCodeMarket_Valid(t *testing.T) {
	m, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Kind != MarketKindPostalCode {
		t.Errorf("expected postal_code kind, got %s", m.Kind)
	}
	if len(m.Cells) != 3 {
		t.Errorf("expected 3 cells, got %d", len(m.Cells))
	}
}

func TestNewPostalCodeMarket_Rejections(t *testing.T) {
	if _, err := NewPostalCodeMarket("", threeCells()); err == nil {
		t.Errorf("expected error for empty market id")
	}
	if _, err := NewPostalCodeMarket("nyc", nil); err == nil {
		t.Errorf("expected error for empty cell set")
	}

	dup := threeCells()
	dup[1].ID = dup[0].ID
	if _, err := NewPostalCodeMarket("nyc", dup); err == nil {
		t.Errorf("expected error for duplicate cell id")
	}

	bad := threeCells()
	bad[2].DemandWeight = -1
	if _, err := NewPostalCodeMarket("nyc", bad); err == nil {
		t.Errorf("expected error for negative demand weight")
	}
}

func TestNewLocationMarket_Valid(t *testing.T) {
	m, err := NewLocationMarket("demo", GeoPoint{Lat: 40.75, Lon: -73.99}, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.Kind != MarketKindLocation {
		t.Errorf("expected location kind, got %s", m.Kind)
	}
}

func TestNewLocationMarket_ZeroRadius(t *testing.T) {
	if _, err := NewLocationMarket("demo", GeoPoint{}, 0); err == nil {
		t.Errorf("expected error for zero radius")
	}
}

func TestContains_LocationMarket(t *testing.T) {
	center := GeoPoint{Lat: 40.75, Lon: -73.99}
	m, err := NewLocationMarket("demo", center, 5)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !m.Contains(center) {
		t.Errorf("centre must be contained")
	}
	// ~11 km north of the centre.
	outside := GeoPoint{Lat: center.Lat + 0.1, Lon: center.Lon}
	if m.Contains(outside) {
		t.Errorf("point %v km out should not be contained", center.DistanceKm(outside))
	}
}

func TestContains_PostalMarketUsesNearestCellArea(t *testing.T) {
	m, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// A centroid itself is always within its cell's equivalent circle.
	if !m.Contains(m.Cells[0].Centroid) {
		t.Errorf("cell centroid must be contained")
	}
	// ~30 km away from every centroid.
	far := GeoPoint{Lat: 41.0, Lon: -73.7}
	if m.Contains(far) {
		t.Errorf("point far outside all cells should not be contained")
	}
}

func TestNearestCell(t *testing.T) {
	m, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cell := m.NearestCell(GeoPoint{Lat: 40.751, Lon: -73.996})
	if cell == nil || cell.ID != "10001" {
		t.Fatalf("expected nearest cell 10001, got %+v", cell)
	}
}

func TestNeighbourCells(t *testing.T) {
	m, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// 10002 and 10003 are ~1.8 km apart; 10001 is ~2.1 km from 10003.
	neighbours := m.NeighbourCells("10003", 2.0)
	if len(neighbours) != 1 || neighbours[0].ID != "10002" {
		t.Errorf("expected only 10002 within 2 km of 10003, got %+v", neighbours)
	}

	all := m.NeighbourCells("10003", 50)
	if len(all) != 2 {
		t.Errorf("expected both other cells within 50 km, got %d", len(all))
	}

	if got := m.NeighbourCells("nope", 10); got != nil {
		t.Errorf("unknown cell should yield nil, got %+v", got)
	}
}

func TestTotalAreaKm2(t *testing.T) {
	postal, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := postal.TotalAreaKm2(); math.Abs(got-5.4) > 1e-9 {
		t.Errorf("expected cell area sum 5.4, got %v", got)
	}

	circle, err := NewLocationMarket("demo", GeoPoint{}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := circle.TotalAreaKm2(); math.Abs(got-4*math.Pi) > 1e-9 {
		t.Errorf("expected pi*r^2 = %v, got %v", 4*math.Pi, got)
	}
}

func TestDemandWeightShare(t *testing.T) {
	m, err := NewPostalCodeMarket("nyc", threeCells())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	share, err := m.DemandWeightShare("10003")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(share-0.5) > 1e-9 {
		t.Errorf("expected share 0.5, got %v", share)
	}

	if _, err := m.DemandWeightShare("nope"); err == nil {
		t.Errorf("expected error for unknown cell")
	}

	circle, _ := NewLocationMarket("demo", GeoPoint{}, 2)
	if _, err := circle.DemandWeightShare("10003"); err == nil {
		t.Errorf("expected error for location-based market")
	}
}
