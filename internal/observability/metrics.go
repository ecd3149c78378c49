package observability

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SimulationCollector bundles Prometheus metrics for simulation activity and
// provides a ready-to-serve /metrics handler. It satisfies the engine's
// MetricsRecorder and the runner's MarketShapeRecorder interfaces.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Searches    prometheus.Counter
	Bids        prometheus.Counter
	Connections prometheus.Counter
	Anomalies   *prometheus.CounterVec

	EligiblePerSearch    prometheus.Histogram
	ConnectionDistanceKm prometheus.Histogram

	MarketProviders     prometheus.Gauge
	MarketBiddingActive prometheus.Gauge
	MarketPostalCells   prometheus.Gauge
}

// NewSimulationCollector registers the simulation metrics against the
// provided registerer, defaulting to the global Prometheus registry when nil.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	searches, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_searches_total",
		Help: "Total number of simulated searches.",
	}), "sim_searches_total")
	if err != nil {
		return nil, err
	}
	bids, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_bids_total",
		Help: "Total number of provider bids across all searches.",
	}), "sim_bids_total")
	if err != nil {
		return nil, err
	}
	connections, err := registerCounter(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_connections_total",
		Help: "Total number of committed connections.",
	}), "sim_connections_total")
	if err != nil {
		return nil, err
	}

	anomalies := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_probability_anomalies_total",
		Help: "Probabilities that fell outside [0,1] before clamping, labeled by model stage.",
	}, []string{"stage"})
	anomalies, err = registerCounterVec(reg, anomalies, "sim_probability_anomalies_total")
	if err != nil {
		return nil, err
	}

	eligible, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_eligible_providers_per_search",
		Help:    "Number of geometrically eligible providers per search.",
		Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21, 34},
	}), "sim_eligible_providers_per_search")
	if err != nil {
		return nil, err
	}
	connDistance, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sim_connection_distance_km",
		Help:    "Distance between search point and connected provider in kilometres.",
		Buckets: []float64{0.5, 1, 2, 3, 5, 8, 10, 15, 20, 30, 50},
	}), "sim_connection_distance_km")
	if err != nil {
		return nil, err
	}

	providers, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "market_providers",
		Help: "Number of providers in the simulated market snapshot.",
	}), "market_providers")
	if err != nil {
		return nil, err
	}
	biddingActive, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "market_bidding_active_providers",
		Help: "Number of providers currently accepting bids.",
	}), "market_bidding_active_providers")
	if err != nil {
		return nil, err
	}
	cells, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "market_postal_cells",
		Help: "Number of postal cells in the market; zero for location-based markets.",
	}), "market_postal_cells")
	if err != nil {
		return nil, err
	}

	return &SimulationCollector{
		gatherer:             gatherer,
		Searches:             searches,
		Bids:                 bids,
		Connections:          connections,
		Anomalies:            anomalies,
		EligiblePerSearch:    eligible,
		ConnectionDistanceKm: connDistance,
		MarketProviders:      providers,
		MarketBiddingActive:  biddingActive,
		MarketPostalCells:    cells,
	}, nil
}

// ObserveSearch records one completed search.
func (c *SimulationCollector) ObserveSearch(eligible, bids int, connected bool, connectionDistanceKm float64) {
	if c == nil {
		return
	}
	c.Searches.Inc()
	c.Bids.Add(float64(bids))
	c.EligiblePerSearch.Observe(float64(eligible))
	if connected {
		c.Connections.Inc()
		c.ConnectionDistanceKm.Observe(connectionDistanceKm)
	}
}

// IncAnomaly counts a clamped out-of-range probability.
func (c *SimulationCollector) IncAnomaly(stage string) {
	if c == nil {
		return
	}
	c.Anomalies.WithLabelValues(stage).Inc()
}

// SetMarketShape drives the market gauges at run start.
func (c *SimulationCollector) SetMarketShape(providers, biddingActive, cells int) {
	if c == nil {
		return
	}
	c.MarketProviders.Set(float64(providers))
	c.MarketBiddingActive.Set(float64(biddingActive))
	c.MarketPostalCells.Set(float64(cells))
}

// Handler exposes a ready-to-use /metrics handler.
func (c *SimulationCollector) Handler() http.Handler {
	gatherer := c.gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}

func registerCounterVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string) (*prometheus.CounterVec, error) {
	if err := reg.Register(vec); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return vec, nil
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerGauge(reg prometheus.Registerer, gauge prometheus.Gauge, name string) (prometheus.Gauge, error) {
	if err := reg.Register(gauge); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Gauge); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return gauge, nil
}
