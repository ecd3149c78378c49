package core

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/marketlens/market-simulator/internal/logging"
	"github.com/marketlens/market-simulator/model"
)

// RunState tracks the runner's lifecycle.
type RunState int

const (
	StateConfigured RunState = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s RunState) String() string {
	switch s {
	case StateConfigured:
		return "configured"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarketShapeRecorder receives market-level gauge values at run start.
// The Prometheus collector implements it; recorders that don't are simply
// not called.
type MarketShapeRecorder interface {
	SetMarketShape(providers, biddingActive, cells int)
}

// SimulationResult is the finalised output of a run: every outcome, the
// derived summary, and the configuration used. For identical market,
// providers, config, and seed, two results are identical.
type SimulationResult struct {
	MarketID string           `json:"market_id"`
	Config   SimulationConfig `json:"config"`
	Outcomes []SearchOutcome  `json:"outcomes"`
	Summary  Summary          `json:"summary"`
	// Interrupted is true when the run was cancelled and the result holds
	// fewer than the configured number of outcomes. A partial result is
	// still internally consistent.
	Interrupted bool `json:"interrupted,omitempty"`
}

// Runner drives the configured number of search iterations against one
// market and supply snapshot, owning the seeded random stream.
//
// State machine: Configured → Running → Completed | Failed. A runner is
// single-shot; build a new one to repeat a run.
type Runner struct {
	market   *model.Market
	registry *ProviderRegistry
	cfg      SimulationConfig

	engineOpts []EngineOption
	recorder   MetricsRecorder
	log        logging.Logger

	mu    sync.Mutex
	state RunState
	cause error
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger replaces the no-op logger.
func WithRunnerLogger(log logging.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// WithRunnerMetrics wires the per-search metrics sink into the engine and,
// when supported, market shape gauges.
func WithRunnerMetrics(rec MetricsRecorder) RunnerOption {
	return func(r *Runner) { r.recorder = rec }
}

// WithEngineOptions forwards options to the underlying MatchingEngine, e.g.
// replacement quality or capacity curves.
func WithEngineOptions(opts ...EngineOption) RunnerOption {
	return func(r *Runner) { r.engineOpts = append(r.engineOpts, opts...) }
}

// NewRunner assembles a runner in the Configured state. Validation is
// deferred to Run so failures surface through the Failed state.
func NewRunner(market *model.Market, registry *ProviderRegistry, cfg SimulationConfig, opts ...RunnerOption) *Runner {
	r := &Runner{
		market:   market,
		registry: registry,
		cfg:      cfg,
		state:    StateConfigured,
		log:      logging.Noop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current lifecycle state.
func (r *Runner) State() RunState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// FailureCause returns the fatal error that moved the runner to Failed, or
// nil.
func (r *Runner) FailureCause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cause
}

func (r *Runner) transition(to RunState, cause error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = to
	r.cause = cause
}

// Run executes search_iterations × supply_configuration_iterations simulated
// searches. Each supply configuration gets an independent random stream
// seeded deterministically from (master seed, run index), so results do not
// depend on how many runs execute concurrently elsewhere.
//
// Cancellation is cooperative at iteration granularity: when ctx is done the
// run stops after the current iteration and returns a valid partial result.
func (r *Runner) Run(ctx context.Context) (*SimulationResult, error) {
	r.mu.Lock()
	if r.state != StateConfigured {
		state := r.state
		r.mu.Unlock()
		return nil, fmt.Errorf("runner is %s, not configured", state)
	}
	r.state = StateRunning
	r.mu.Unlock()

	if r.market == nil || r.registry == nil {
		err := fmt.Errorf("%w: runner needs a market and a provider registry", model.ErrValidation)
		r.transition(StateFailed, err)
		return nil, err
	}
	if err := r.cfg.Validate(); err != nil {
		r.transition(StateFailed, err)
		return nil, err
	}
	if err := r.registry.CheckViable(r.market); err != nil {
		r.transition(StateFailed, err)
		return nil, err
	}

	engine, err := NewMatchingEngine(r.market, r.registry, r.cfg, r.engineOpts...)
	if err != nil {
		r.transition(StateFailed, err)
		return nil, err
	}
	if r.recorder != nil {
		engine.recorder = r.recorder
		if shape, ok := r.recorder.(MarketShapeRecorder); ok {
			shape.SetMarketShape(r.registry.Len(), r.registry.BiddingActiveCount(), len(r.market.Cells))
		}
	}

	tracer := otel.Tracer("market-simulator/core")
	ctx, span := tracer.Start(ctx, "simulation.run", trace.WithAttributes(
		attribute.String("market.id", r.market.ID),
		attribute.String("market.kind", r.market.Kind.String()),
		attribute.Int("search.iterations", r.cfg.SearchIterations),
		attribute.Int("supply.iterations", r.cfg.SupplyConfigurationIterations),
		attribute.Int64("random.seed", int64(r.cfg.RandomSeed)),
	))
	defer span.End()

	r.log.Info(ctx, "simulation starting",
		logging.String("market", r.market.ID),
		logging.Int("providers", r.registry.Len()),
		logging.Int("iterations", r.cfg.TotalIterations()),
	)

	result := &SimulationResult{
		MarketID: r.market.ID,
		Config:   r.cfg,
		Outcomes: make([]SearchOutcome, 0, r.cfg.TotalIterations()),
	}
	agg := NewAggregator()

	interrupted := false
supplyLoop:
	for runIdx := 0; runIdx < r.cfg.SupplyConfigurationIterations; runIdx++ {
		_, runSpan := tracer.Start(ctx, "simulation.supply_configuration",
			trace.WithAttributes(attribute.Int("run.index", runIdx)))

		// Independent, deterministically derived stream per supply
		// configuration; never reseeded mid-run.
		rng := rand.New(rand.NewPCG(r.cfg.RandomSeed, uint64(runIdx)))

		for i := 0; i < r.cfg.SearchIterations; i++ {
			select {
			case <-ctx.Done():
				interrupted = true
				runSpan.End()
				break supplyLoop
			default:
			}

			globalIndex := runIdx*r.cfg.SearchIterations + i
			outcome := engine.SimulateSearch(rng, r.cfg.RandomSeed, globalIndex)
			result.Outcomes = append(result.Outcomes, outcome)
			agg.Add(outcome)
		}
		runSpan.End()
	}

	result.Summary = agg.Summarise(r.market, r.registry)
	result.Interrupted = interrupted

	r.transition(StateCompleted, nil)
	r.log.Info(ctx, "simulation completed",
		logging.String("market", r.market.ID),
		logging.Int("searches", result.Summary.TotalSearches),
		logging.Int("connections", result.Summary.TotalConnections),
		logging.Any("connection_rate", result.Summary.ConnectionRate),
	)
	return result, nil
}
