package core

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/marketlens/market-simulator/internal/logging"
	"github.com/marketlens/market-simulator/model"
)

// MetricsRecorder receives per-search observations from the engine. Wired to
// the Prometheus collector in production; nil disables recording.
type MetricsRecorder interface {
	ObserveSearch(eligible, bids int, connected bool, connectionDistanceKm float64)
	IncAnomaly(stage string)
}

// MatchingEngine orchestrates one simulated search end to end: sample a
// point, query eligible providers, run the bid model, run the connection
// model, emit a SearchOutcome. It reads Market and ProviderRegistry as
// immutable snapshots; the injected random stream is its only source of
// variability.
type MatchingEngine struct {
	market   *model.Market
	registry *ProviderRegistry
	cfg      SimulationConfig
	probs    *probabilityModel

	recorder MetricsRecorder
	log      logging.Logger
}

// EngineOption customises a MatchingEngine beyond its defaults.
type EngineOption func(*MatchingEngine)

// WithQualityAdjustment replaces the default linear quality curve.
func WithQualityAdjustment(fn QualityAdjustment) EngineOption {
	return func(e *MatchingEngine) { e.probs.quality = fn }
}

// WithCapacityAdjustment replaces the default team-derived capacity curve.
func WithCapacityAdjustment(fn CapacityAdjustment) EngineOption {
	return func(e *MatchingEngine) { e.probs.capacity = fn }
}

// WithMetricsRecorder wires a per-search metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) EngineOption {
	return func(e *MatchingEngine) { e.recorder = rec }
}

// WithLogger replaces the no-op logger.
func WithLogger(log logging.Logger) EngineOption {
	return func(e *MatchingEngine) { e.log = log }
}

// NewMatchingEngine validates the configuration and assembles an engine over
// the given market and provider snapshot.
func NewMatchingEngine(market *model.Market, registry *ProviderRegistry, cfg SimulationConfig, opts ...EngineOption) (*MatchingEngine, error) {
	if market == nil {
		return nil, fmt.Errorf("%w: nil market", model.ErrValidation)
	}
	if registry == nil {
		return nil, fmt.Errorf("%w: nil provider registry", model.ErrValidation)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &MatchingEngine{
		market:   market,
		registry: registry,
		cfg:      cfg,
		probs: &probabilityModel{
			baseBid:        cfg.CleanerBaseBidProbability,
			baseConnection: cfg.ConnectionBaseProbability,
			decay:          cfg.DistanceDecayFactor,
			quality:        LinearQualityAdjustment(cfg.QualityWeight),
			capacity:       TeamCapacityAdjustment(cfg.MaxConnectionsPerMember, cfg.MinCapacityFactor),
		},
		log: logging.Noop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.probs.onAnomaly = e.reportAnomaly
	return e, nil
}

// SimulateSearch runs a single search. The search ID is a SHA-1 UUID over
// (run seed, search index) so identical runs produce identical IDs. The
// method is side-effect-free with respect to market and registry; only the
// rng stream advances.
func (e *MatchingEngine) SimulateSearch(rng *rand.Rand, runSeed uint64, index int) SearchOutcome {
	point, cellID := SampleSearchPoint(e.market, e.cfg.CellJitterStdKm, rng)

	outcome := SearchOutcome{
		SearchID: searchID(runSeed, index),
		Point:    point,
		CellID:   cellID,
	}

	candidates := e.registry.EligibleProviders(point, e.cfg.SearchRadiusKm)
	if len(candidates) == 0 {
		e.record(&outcome)
		return outcome
	}

	outcome.Offers = make([]Offer, 0, len(candidates))
	for _, c := range candidates {
		outcome.Offers = append(outcome.Offers, Offer{
			ProviderID:        c.Provider.ID,
			DistanceKm:        c.DistanceKm,
			Score:             c.Provider.Score,
			TeamSize:          c.Provider.TeamSize,
			ActiveConnections: c.Provider.ActiveConnections,
		})
	}

	// Bid round: one uniform draw per candidate, in distance order.
	var bidders []Candidate
	for _, c := range candidates {
		pBid := e.probs.bidProbability(c.Provider, c.DistanceKm)
		if rng.Float64() < pBid {
			bidders = append(bidders, c)
			outcome.Bids = append(outcome.Bids, Bid{
				ProviderID:            c.Provider.ID,
				DistanceKm:            c.DistanceKm,
				Score:                 c.Provider.Score,
				BidProbability:        pBid,
				ConnectionProbability: e.probs.connectionProbability(c.Provider, c.DistanceKm),
			})
		}
	}

	// Connection round: first bidder in distance order whose draw succeeds
	// wins; single-round, first-acceptor semantics, not an auction.
	for i, b := range bidders {
		pConn := outcome.Bids[i].ConnectionProbability
		if rng.Float64() < pConn {
			outcome.Connected = &Connection{
				ProviderID:            b.Provider.ID,
				DistanceKm:            b.DistanceKm,
				Score:                 b.Provider.Score,
				ConnectionProbability: pConn,
			}
			break
		}
	}

	e.record(&outcome)
	return outcome
}

func (e *MatchingEngine) record(o *SearchOutcome) {
	if e.recorder == nil {
		return
	}
	connDist := 0.0
	if o.Connected != nil {
		connDist = o.Connected.DistanceKm
	}
	e.recorder.ObserveSearch(len(o.Offers), len(o.Bids), o.Connected != nil, connDist)
}

func (e *MatchingEngine) reportAnomaly(stage string, value float64) {
	e.log.Warn(context.Background(), "probability outside [0,1] before clamping",
		logging.String("stage", stage),
		logging.Any("value", value),
	)
	if e.recorder != nil {
		e.recorder.IncAnomaly(stage)
	}
}

// searchID derives a stable per-search identifier from the run seed and the
// search index.
func searchID(runSeed uint64, index int) string {
	name := fmt.Sprintf("run-%d-search-%d", runSeed, index)
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)).String()
}
