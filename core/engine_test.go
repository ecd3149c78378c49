package core

import (
	"math/rand/v2"
	"testing"

	"github.com/marketlens/market-simulator/model"
)

// recordingSink captures engine observations for assertions.
type recordingSink struct {
	searches  int
	bids      int
	connected int
	anomalies map[string]int
}

func (r *recordingSink) ObserveSearch(eligible, bids int, connected bool, connectionDistanceKm float64) {
	r.searches++
	r.bids += bids
	if connected {
		r.connected++
	}
}

func (r *recordingSink) IncAnomaly(stage string) {
	if r.anomalies == nil {
		r.anomalies = map[string]int{}
	}
	r.anomalies[stage]++
}

func denseMarket(t *testing.T) *model.Market {
	t.Helper()
	m, err := model.NewLocationMarket("test", model.GeoPoint{Lat: 40.75, Lon: -73.99}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return m
}

func engineConfig() SimulationConfig {
	cfg := DefaultConfig()
	cfg.SearchIterations = 1
	return cfg
}

func TestNewMatchingEngine_Rejections(t *testing.T) {
	market := denseMarket(t)
	reg := NewProviderRegistry()

	if _, err := NewMatchingEngine(nil, reg, engineConfig()); err == nil {
		t.Errorf("expected error for nil market")
	}
	if _, err := NewMatchingEngine(market, nil, engineConfig()); err == nil {
		t.Errorf("expected error for nil registry")
	}

	bad := engineConfig()
	bad.SearchRadiusKm = 0
	if _, err := NewMatchingEngine(market, reg, bad); err == nil {
		t.Errorf("expected error for invalid config")
	}
}

func TestSimulateSearch_CertainConnection(t *testing.T) {
	// Base probabilities 1 with zero decay: the lone high-score provider
	// always bids and always converts.
	market := denseMarket(t)
	reg := NewProviderRegistry()
	p := testProvider("p1", 40.75, -73.99, 20)
	p.Score = 0.9
	if err := reg.Add(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := engineConfig()
	cfg.CleanerBaseBidProbability = 1
	cfg.ConnectionBaseProbability = 1
	cfg.DistanceDecayFactor = 0
	cfg.SearchRadiusKm = 20

	engine, err := NewMatchingEngine(market, reg, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 0))
	for i := 0; i < 100; i++ {
		out := engine.SimulateSearch(rng, 1, i)
		if !out.HasConnection() {
			t.Fatalf("search %d failed to connect under certain probabilities", i)
		}
		if out.Connected.ProviderID != "p1" {
			t.Fatalf("unexpected winner %s", out.Connected.ProviderID)
		}
	}
}

func TestSimulateSearch_NoEligibleProviders(t *testing.T) {
	// Provider is ~110 km north of the market; nothing can reach.
	market := denseMarket(t)
	reg := NewProviderRegistry()
	if err := reg.Add(testProvider("far", 41.75, -73.99, 5)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine, err := NewMatchingEngine(market, reg, engineConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 0))
	out := engine.SimulateSearch(rng, 1, 0)
	if out.HasEligible() || len(out.Bids) != 0 || out.HasConnection() {
		t.Errorf("expected an empty funnel, got %+v", out)
	}
}

func TestSimulateSearch_ZeroBidProbability(t *testing.T) {
	// Eligible but unwilling: offers recorded, no bids, no connection.
	market := denseMarket(t)
	reg := NewProviderRegistry()
	if err := reg.Add(testProvider("p1", 40.75, -73.99, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := engineConfig()
	cfg.CleanerBaseBidProbability = 0
	cfg.SearchRadiusKm = 20

	engine, err := NewMatchingEngine(market, reg, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 0))
	out := engine.SimulateSearch(rng, 1, 0)
	if !out.HasEligible() {
		t.Fatalf("provider should be eligible")
	}
	if len(out.Bids) != 0 || out.HasConnection() {
		t.Errorf("zero bid probability must yield no bids, got %+v", out)
	}
}

func TestSimulateSearch_BidProbabilitiesRecorded(t *testing.T) {
	market := denseMarket(t)
	reg := NewProviderRegistry()
	if err := reg.Add(testProvider("p1", 40.75, -73.99, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := engineConfig()
	cfg.CleanerBaseBidProbability = 1
	cfg.DistanceDecayFactor = 0
	cfg.SearchRadiusKm = 20

	engine, err := NewMatchingEngine(market, reg, cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 0))
	out := engine.SimulateSearch(rng, 1, 0)
	if len(out.Bids) != 1 {
		t.Fatalf("expected one bid, got %d", len(out.Bids))
	}
	b := out.Bids[0]
	if b.BidProbability <= 0 || b.BidProbability > 1 {
		t.Errorf("bid probability out of range: %v", b.BidProbability)
	}
	if b.ConnectionProbability <= 0 || b.ConnectionProbability > 1 {
		t.Errorf("connection probability out of range: %v", b.ConnectionProbability)
	}
}

func TestSimulateSearch_DeterministicSearchIDs(t *testing.T) {
	market := denseMarket(t)
	reg := NewProviderRegistry()
	if err := reg.Add(testProvider("p1", 40.75, -73.99, 20)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	engine, err := NewMatchingEngine(market, reg, engineConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := engine.SimulateSearch(rand.New(rand.NewPCG(7, 0)), 7, 3)
	b := engine.SimulateSearch(rand.New(rand.NewPCG(7, 0)), 7, 3)
	if a.SearchID != b.SearchID {
		t.Errorf("same seed and index must give the same search id: %s vs %s", a.SearchID, b.SearchID)
	}

	c := engine.SimulateSearch(rand.New(rand.NewPCG(7, 0)), 7, 4)
	if a.SearchID == c.SearchID {
		t.Errorf("different index must give a different search id")
	}
}

func TestSimulateSearch_RecorderObservations(t *testing.T) {
	market := denseMarket(t)
	reg := NewProviderRegistry()
	p := testProvider("p1", 40.75, -73.99, 20)
	p.Score = 0.9
	if err := reg.Add(p); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	cfg := engineConfig()
	cfg.CleanerBaseBidProbability = 1
	cfg.ConnectionBaseProbability = 1
	cfg.DistanceDecayFactor = 0
	cfg.SearchRadiusKm = 20

	sink := &recordingSink{}
	engine, err := NewMatchingEngine(market, reg, cfg, WithMetricsRecorder(sink))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rng := rand.New(rand.NewPCG(1, 0))
	for i := 0; i < 10; i++ {
		engine.SimulateSearch(rng, 1, i)
	}

	if sink.searches != 10 {
		t.Errorf("expected 10 observed searches, got %d", sink.searches)
	}
	if sink.connected != 10 {
		t.Errorf("expected 10 observed connections, got %d", sink.connected)
	}
	// Score 0.9 pushes quality above 1, so the pre-clamp probability
	// exceeds 1 and must be reported as an anomaly.
	if sink.anomalies["bid"] == 0 || sink.anomalies["connection"] == 0 {
		t.Errorf("expected bid and connection anomalies, got %v", sink.anomalies)
	}
}
