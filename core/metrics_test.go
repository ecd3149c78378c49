package core

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/marketlens/market-simulator/model"
)

func outcomeWith(offers, bids int, connected bool) SearchOutcome {
	o := SearchOutcome{SearchID: "s"}
	for i := 0; i < offers; i++ {
		o.Offers = append(o.Offers, Offer{ProviderID: "p", DistanceKm: float64(i + 1), Score: 0.5})
	}
	for i := 0; i < bids; i++ {
		o.Bids = append(o.Bids, Bid{ProviderID: "p", DistanceKm: float64(i + 1), Score: 0.5})
	}
	if connected {
		o.Connected = &Connection{ProviderID: "p", DistanceKm: 1.5, Score: 0.8}
	}
	return o
}

func TestAggregator_Rates(t *testing.T) {
	a := NewAggregator()
	a.Add(outcomeWith(3, 2, true))
	a.Add(outcomeWith(1, 0, false))
	a.Add(outcomeWith(0, 0, false))
	a.Add(outcomeWith(2, 1, true))

	if got := a.Searches(); got != 4 {
		t.Errorf("expected 4 searches, got %d", got)
	}
	if got := a.ConnectionRate(); math.Abs(got-0.5) > 1e-12 {
		t.Errorf("expected connection rate 0.5, got %v", got)
	}
	// 3 of 4 searches had at least one eligible provider.
	if got := a.CoverageRatio(); math.Abs(got-0.75) > 1e-12 {
		t.Errorf("expected coverage ratio 0.75, got %v", got)
	}
}

func TestAggregator_EmptyRates(t *testing.T) {
	a := NewAggregator()
	if a.ConnectionRate() != 0 || a.CoverageRatio() != 0 {
		t.Errorf("empty aggregator must report zero rates")
	}
	s := a.Summarise(nil, nil)
	if s.TotalSearches != 0 || s.ConnectionRate != 0 {
		t.Errorf("empty summary should be all zeros, got %+v", s)
	}
}

func TestAggregator_MergeMatchesSequential(t *testing.T) {
	// Folding outcomes into one aggregator must equal folding them into two
	// and merging, regardless of the split.
	rng := rand.New(rand.NewPCG(42, 0))
	var outcomes []SearchOutcome
	for i := 0; i < 200; i++ {
		outcomes = append(outcomes, outcomeWith(rng.IntN(5), rng.IntN(3), rng.IntN(2) == 0))
	}

	whole := NewAggregator()
	for _, o := range outcomes {
		whole.Add(o)
	}

	left, right := NewAggregator(), NewAggregator()
	for i, o := range outcomes {
		if i < 73 {
			left.Add(o)
		} else {
			right.Add(o)
		}
	}
	left.Merge(right)

	ws := whole.Summarise(nil, nil)
	ls := left.Summarise(nil, nil)

	if ws.TotalSearches != ls.TotalSearches || ws.TotalBids != ls.TotalBids || ws.TotalConnections != ls.TotalConnections {
		t.Fatalf("counts differ: %+v vs %+v", ws, ls)
	}
	if math.Abs(ws.ConnectionRate-ls.ConnectionRate) > 1e-12 {
		t.Errorf("connection rates differ: %v vs %v", ws.ConnectionRate, ls.ConnectionRate)
	}
	if math.Abs(ws.BidDistances.Mean-ls.BidDistances.Mean) > 1e-9 {
		t.Errorf("bid distance means differ: %v vs %v", ws.BidDistances.Mean, ls.BidDistances.Mean)
	}
	if math.Abs(ws.BidDistances.StdDev-ls.BidDistances.StdDev) > 1e-9 {
		t.Errorf("bid distance stddevs differ: %v vs %v", ws.BidDistances.StdDev, ls.BidDistances.StdDev)
	}
}

func TestWelford_AgainstDirectComputation(t *testing.T) {
	values := []float64{2, 4, 4, 4, 5, 5, 7, 9}

	var w welford
	for _, v := range values {
		w.add(v)
	}

	if w.Count != len(values) {
		t.Fatalf("count %d", w.Count)
	}
	if math.Abs(w.Mean-5.0) > 1e-12 {
		t.Errorf("expected mean 5, got %v", w.Mean)
	}
	// Sample standard deviation of this classic series is sqrt(32/7).
	want := math.Sqrt(32.0 / 7.0)
	if math.Abs(w.stddev()-want) > 1e-12 {
		t.Errorf("expected stddev %v, got %v", want, w.stddev())
	}
}

func TestPercentile_LinearInterpolation(t *testing.T) {
	series := []float64{1, 2, 3, 4}

	if got := percentile(series, 50); math.Abs(got-2.5) > 1e-12 {
		t.Errorf("expected median 2.5, got %v", got)
	}
	if got := percentile(series, 25); math.Abs(got-1.75) > 1e-12 {
		t.Errorf("expected p25 1.75, got %v", got)
	}
	if got := percentile(series, 0); got != 1 {
		t.Errorf("expected p0 1, got %v", got)
	}
	if got := percentile(series, 100); got != 4 {
		t.Errorf("expected p100 4, got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty series should yield 0, got %v", got)
	}
	if got := percentile([]float64{3}, 75); got != 3 {
		t.Errorf("single element is every percentile, got %v", got)
	}
}

func TestSummarise_DensitiesAndRadius(t *testing.T) {
	market, err := model.NewLocationMarket("demo", model.GeoPoint{Lat: 40.75, Lon: -73.99}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reg := NewProviderRegistry()
	active := testProvider("a", 40.75, -73.99, 6)
	if err := reg.Add(active); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	inactive := testProvider("b", 40.75, -73.99, 100)
	inactive.BiddingActive = false
	if err := reg.Add(inactive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	a := NewAggregator()
	for i := 0; i < 10; i++ {
		a.Add(outcomeWith(1, 1, i < 4))
	}

	s := a.Summarise(market, reg)

	area := math.Pi * 4
	if math.Abs(s.SearchDensityKm2-10/area) > 1e-9 {
		t.Errorf("search density: expected %v, got %v", 10/area, s.SearchDensityKm2)
	}
	if math.Abs(s.ConnectionDensityKm2-4/area) > 1e-9 {
		t.Errorf("connection density: expected %v, got %v", 4/area, s.ConnectionDensityKm2)
	}
	// Only bidding-active providers contribute to the average radius.
	if s.AvgServiceRadiusKm != 6 {
		t.Errorf("expected avg service radius 6, got %v", s.AvgServiceRadiusKm)
	}
	if math.Abs(s.AvgBidsPerSearch-1) > 1e-12 {
		t.Errorf("expected avg bids per search 1, got %v", s.AvgBidsPerSearch)
	}
	if math.Abs(s.PctSearchesWithBids-1) > 1e-12 {
		t.Errorf("expected all searches to have bids, got %v", s.PctSearchesWithBids)
	}
}

func TestConnectionSeries_SortedCopies(t *testing.T) {
	a := NewAggregator()
	for _, d := range []float64{3, 1, 2} {
		a.Add(SearchOutcome{Connected: &Connection{ProviderID: "p", DistanceKm: d, Score: d / 10}})
	}

	dists := a.ConnectionDistancesKm()
	if len(dists) != 3 || dists[0] != 1 || dists[2] != 3 {
		t.Errorf("expected sorted distances, got %v", dists)
	}
	scores := a.ConnectionScores()
	if len(scores) != 3 || scores[0] != 0.1 {
		t.Errorf("expected sorted scores, got %v", scores)
	}
}
