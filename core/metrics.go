package core

import (
	"math"
	"sort"

	"github.com/marketlens/market-simulator/model"
)

// welford is a streaming mean/variance accumulator. Merging two accumulators
// gives the same result as accumulating their union, which keeps the
// aggregator associative over outcome order.
type welford struct {
	Count int     `json:"count"`
	Mean  float64 `json:"mean"`
	m2    float64
}

func (w *welford) add(v float64) {
	w.Count++
	delta := v - w.Mean
	w.Mean += delta / float64(w.Count)
	w.m2 += delta * (v - w.Mean)
}

func (w *welford) merge(other welford) {
	if other.Count == 0 {
		return
	}
	if w.Count == 0 {
		*w = other
		return
	}
	total := w.Count + other.Count
	delta := other.Mean - w.Mean
	w.m2 += other.m2 + delta*delta*float64(w.Count)*float64(other.Count)/float64(total)
	w.Mean += delta * float64(other.Count) / float64(total)
	w.Count = total
}

func (w *welford) stddev() float64 {
	if w.Count < 2 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.Count-1))
}

// DistributionStats summarises an observed series.
type DistributionStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
}

// stageSeries tracks distances and scores for one stage of the funnel
// (offer, bid, or connection).
type stageSeries struct {
	distances []float64
	scores    []float64

	distMean  welford
	scoreMean welford
}

func (s *stageSeries) add(distanceKm, score float64) {
	s.distances = append(s.distances, distanceKm)
	s.scores = append(s.scores, score)
	s.distMean.add(distanceKm)
	s.scoreMean.add(score)
}

func (s *stageSeries) merge(other *stageSeries) {
	s.distances = append(s.distances, other.distances...)
	s.scores = append(s.scores, other.scores...)
	s.distMean.merge(other.distMean)
	s.scoreMean.merge(other.scoreMean)
}

// Aggregator consumes a stream of SearchOutcomes and accumulates rate,
// density, and distribution summaries. All accumulation is associative and
// commutative over outcome order, so independent aggregators can be merged
// after parallel runs.
type Aggregator struct {
	searches     int
	withEligible int
	withBids     int
	connections  int

	bidsPerSearch []float64

	offers            stageSeries
	bids              stageSeries
	connectionsSeries stageSeries
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Add folds one search outcome into the running aggregates.
func (a *Aggregator) Add(o SearchOutcome) {
	a.searches++
	if o.HasEligible() {
		a.withEligible++
	}
	if len(o.Bids) > 0 {
		a.withBids++
	}
	a.bidsPerSearch = append(a.bidsPerSearch, float64(len(o.Bids)))

	for _, offer := range o.Offers {
		a.offers.add(offer.DistanceKm, offer.Score)
	}
	for _, bid := range o.Bids {
		a.bids.add(bid.DistanceKm, bid.Score)
	}
	if o.Connected != nil {
		a.connections++
		a.connectionsSeries.add(o.Connected.DistanceKm, o.Connected.Score)
	}
}

// Merge folds another aggregator into this one. Order does not matter.
func (a *Aggregator) Merge(other *Aggregator) {
	a.searches += other.searches
	a.withEligible += other.withEligible
	a.withBids += other.withBids
	a.connections += other.connections
	a.bidsPerSearch = append(a.bidsPerSearch, other.bidsPerSearch...)
	a.offers.merge(&other.offers)
	a.bids.merge(&other.bids)
	a.connectionsSeries.merge(&other.connectionsSeries)
}

// Searches returns the number of outcomes folded in so far.
func (a *Aggregator) Searches() int { return a.searches }

// ConnectionRate returns connected searches over total searches.
func (a *Aggregator) ConnectionRate() float64 {
	if a.searches == 0 {
		return 0
	}
	return float64(a.connections) / float64(a.searches)
}

// CoverageRatio approximates the fraction of market area reachable by at
// least one eligible provider as the empirical fraction of searches with one
// or more eligible providers. Sampling-based: accuracy improves with
// iteration count. Exact polygon-union coverage is out of scope.
func (a *Aggregator) CoverageRatio() float64 {
	if a.searches == 0 {
		return 0
	}
	return float64(a.withEligible) / float64(a.searches)
}

// Summary is the finalised metric set for a run.
type Summary struct {
	TotalSearches    int `json:"total_searches"`
	TotalOffers      int `json:"total_offers"`
	TotalBids        int `json:"total_bids"`
	TotalConnections int `json:"total_connections"`

	ConnectionRate       float64 `json:"connection_rate"`
	CoverageRatio        float64 `json:"coverage_ratio"`
	SearchDensityKm2     float64 `json:"search_density_per_km2"`
	ConnectionDensityKm2 float64 `json:"connection_density_per_km2"`

	AvgBidsPerSearch    float64 `json:"avg_bids_per_search"`
	MedBidsPerSearch    float64 `json:"med_bids_per_search"`
	PctSearchesWithBids float64 `json:"pct_searches_with_bids"`

	OfferDistances      DistributionStats `json:"offer_distances_km"`
	BidDistances        DistributionStats `json:"bid_distances_km"`
	ConnectionDistances DistributionStats `json:"connection_distances_km"`

	OfferScores      DistributionStats `json:"offer_scores"`
	BidScores        DistributionStats `json:"bid_scores"`
	ConnectionScores DistributionStats `json:"connection_scores"`

	AvgServiceRadiusKm float64 `json:"avg_service_radius_km"`
}

// Summarise finalises the aggregates against the market geometry and the
// provider snapshot.
func (a *Aggregator) Summarise(m *model.Market, reg *ProviderRegistry) Summary {
	s := Summary{
		TotalSearches:    a.searches,
		TotalOffers:      a.offers.distMean.Count,
		TotalBids:        a.bids.distMean.Count,
		TotalConnections: a.connections,
		ConnectionRate:   a.ConnectionRate(),
		CoverageRatio:    a.CoverageRatio(),

		OfferDistances:      distributionStats(a.offers.distances, &a.offers.distMean),
		BidDistances:        distributionStats(a.bids.distances, &a.bids.distMean),
		ConnectionDistances: distributionStats(a.connectionsSeries.distances, &a.connectionsSeries.distMean),
		OfferScores:         distributionStats(a.offers.scores, &a.offers.scoreMean),
		BidScores:           distributionStats(a.bids.scores, &a.bids.scoreMean),
		ConnectionScores:    distributionStats(a.connectionsSeries.scores, &a.connectionsSeries.scoreMean),
	}

	if a.searches > 0 {
		s.AvgBidsPerSearch = mean(a.bidsPerSearch)
		s.MedBidsPerSearch = percentile(a.bidsPerSearch, 50)
		s.PctSearchesWithBids = float64(a.withBids) / float64(a.searches)
	}

	if m != nil {
		if area := m.TotalAreaKm2(); area > 0 {
			s.SearchDensityKm2 = float64(a.searches) / area
			s.ConnectionDensityKm2 = float64(a.connections) / area
		}
	}

	if reg != nil {
		var radiusSum float64
		n := 0
		for _, p := range reg.All() {
			if p.BiddingActive {
				radiusSum += p.ServiceRadiusKm
				n++
			}
		}
		if n > 0 {
			s.AvgServiceRadiusKm = radiusSum / float64(n)
		}
	}

	return s
}

// ConnectionDistancesKm returns the ordered sequence of connection distances
// for downstream percentile or histogram computation.
func (a *Aggregator) ConnectionDistancesKm() []float64 {
	out := make([]float64, len(a.connectionsSeries.distances))
	copy(out, a.connectionsSeries.distances)
	sort.Float64s(out)
	return out
}

// ConnectionScores returns the ordered sequence of connected-provider
// quality scores.
func (a *Aggregator) ConnectionScores() []float64 {
	out := make([]float64, len(a.connectionsSeries.scores))
	copy(out, a.connectionsSeries.scores)
	sort.Float64s(out)
	return out
}

func distributionStats(series []float64, w *welford) DistributionStats {
	return DistributionStats{
		Count:  w.Count,
		Mean:   w.Mean,
		StdDev: w.stddev(),
		P25:    percentile(series, 25),
		Median: percentile(series, 50),
		P75:    percentile(series, 75),
	}
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

// percentile computes the p-th percentile with linear interpolation between
// closest ranks, matching the conventional default.
func percentile(series []float64, p float64) float64 {
	if len(series) == 0 {
		return 0
	}
	sorted := make([]float64, len(series))
	copy(sorted, series)
	sort.Float64s(sorted)

	rank := p / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo]*(1-frac) + sorted[hi]*frac
}
