package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/marketlens/market-simulator/core"
	"github.com/marketlens/market-simulator/internal/dataio"
	"github.com/marketlens/market-simulator/internal/logging"
	"github.com/marketlens/market-simulator/internal/observability"
	"github.com/marketlens/market-simulator/model"
)

func main() {
	configPath := flag.String("config", "", "simulation config file (yaml/json); defaults apply when empty")
	geoPath := flag.String("geo", "", "postal-code geography CSV (geo_mapping.csv)")
	providersPath := flag.String("providers", "", "providers CSV (cleaners.csv)")
	marketID := flag.String("market", "", "market identifier to simulate (required with -geo)")
	seed := flag.Uint64("seed", 0, "override the configured random seed (0 keeps config value)")
	iterations := flag.Int("iterations", 0, "override the configured search iterations (0 keeps config value)")
	outputDir := flag.String("out", "results", "output directory for run artifacts")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, log)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Error(ctx, "failed to load config", logging.String("path", *configPath), logging.Err(err))
		os.Exit(1)
	}
	if *seed != 0 {
		cfg.RandomSeed = *seed
	}
	if *iterations != 0 {
		cfg.SearchIterations = *iterations
	}

	market, registry, err := buildMarket(log, *geoPath, *providersPath, *marketID)
	if err != nil {
		log.Error(ctx, "failed to build market", logging.Err(err))
		os.Exit(1)
	}

	collector, err := observability.NewSimulationCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	var metricsServer *http.Server
	if *metricsAddr != "" {
		metricsServer = serveMetrics(*metricsAddr, collector, log)
	}

	// SIGINT/SIGTERM cancel cooperatively; the run stops after the
	// current iteration and still exports a valid partial result.
	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := core.NewRunner(market, registry, cfg,
		core.WithRunnerLogger(log),
		core.WithRunnerMetrics(collector),
	)
	result, err := runner.Run(runCtx)
	if err != nil {
		log.Error(ctx, "simulation failed",
			logging.String("state", runner.State().String()),
			logging.Err(err),
		)
		os.Exit(1)
	}

	if err := dataio.ExportResult(*outputDir, result); err != nil {
		log.Error(ctx, "failed to export results", logging.String("dir", *outputDir), logging.Err(err))
		os.Exit(1)
	}

	log.Info(ctx, "run artifacts written",
		logging.String("dir", *outputDir),
		logging.Int("searches", result.Summary.TotalSearches),
		logging.Int("bids", result.Summary.TotalBids),
		logging.Int("connections", result.Summary.TotalConnections),
		logging.Float64("connection_rate", result.Summary.ConnectionRate),
		logging.Float64("coverage_ratio", result.Summary.CoverageRatio),
	)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

// loadConfig starts from defaults and overlays the optional config file.
func loadConfig(path string) (core.SimulationConfig, error) {
	cfg := core.DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}
	return cfg, nil
}

// buildMarket assembles the market and provider snapshot, either from the
// two CSV datasets or, when no geography file is given, a synthetic
// location-based demo market.
func buildMarket(log logging.Logger, geoPath, providersPath, marketID string) (*model.Market, *core.ProviderRegistry, error) {
	if geoPath == "" {
		return buildDemoMarket()
	}
	if marketID == "" {
		return nil, nil, fmt.Errorf("-market is required when -geo is set")
	}
	if providersPath == "" {
		return nil, nil, fmt.Errorf("-providers is required when -geo is set")
	}

	geoFile, err := os.Open(geoPath)
	if err != nil {
		return nil, nil, err
	}
	defer geoFile.Close()

	cellsByMarket, err := dataio.LoadPostalCells(geoFile)
	if err != nil {
		return nil, nil, err
	}
	cells, ok := cellsByMarket[marketID]
	if !ok {
		return nil, nil, fmt.Errorf("market %q not present in %s", marketID, geoPath)
	}

	market, err := model.NewPostalCodeMarket(marketID, cells)
	if err != nil {
		return nil, nil, err
	}

	providersFile, err := os.Open(providersPath)
	if err != nil {
		return nil, nil, err
	}
	defer providersFile.Close()

	providers, err := dataio.LoadProviders(providersFile)
	if err != nil {
		return nil, nil, err
	}

	inMarket := make(map[string]struct{}, len(cells))
	for _, c := range cells {
		inMarket[c.ID] = struct{}{}
	}

	registry := core.NewProviderRegistry()
	skipped := 0
	for _, p := range providers {
		if _, ok := inMarket[p.PostalCode]; !ok {
			skipped++
			continue
		}
		if err := registry.Add(p); err != nil {
			return nil, nil, err
		}
	}
	log.Info(context.Background(), "loaded market",
		logging.String("market", marketID),
		logging.Int("cells", len(cells)),
		logging.Int("providers", registry.Len()),
		logging.Int("providers_outside_market", skipped),
	)

	return market, registry, nil
}

// buildDemoMarket returns a small location-based market around midtown
// Manhattan with a handful of synthetic providers, handy for smoke runs
// without datasets.
func buildDemoMarket() (*model.Market, *core.ProviderRegistry, error) {
	center, err := model.NewGeoPoint(40.75, -73.99)
	if err != nil {
		return nil, nil, err
	}
	market, err := model.NewLocationMarket("demo", center, 5.0)
	if err != nil {
		return nil, nil, err
	}

	registry := core.NewProviderRegistry()
	demo := []*model.Provider{
		{ID: "demo-1", Location: model.GeoPoint{Lat: 40.75, Lon: -73.99}, BiddingActive: true, AssignmentActive: true, Score: 0.9, ServiceRadiusKm: 10, TeamSize: 3, ActiveConnections: 4},
		{ID: "demo-2", Location: model.GeoPoint{Lat: 40.77, Lon: -73.97}, BiddingActive: true, AssignmentActive: true, Score: 0.6, ServiceRadiusKm: 6, TeamSize: 1, ActiveConnections: 2},
		{ID: "demo-3", Location: model.GeoPoint{Lat: 40.73, Lon: -74.01}, BiddingActive: true, AssignmentActive: false, Score: 0.75, ServiceRadiusKm: 8, TeamSize: 2, ActiveConnections: 9},
		{ID: "demo-4", Location: model.GeoPoint{Lat: 40.76, Lon: -74.02}, BiddingActive: false, AssignmentActive: true, Score: 0.4, ServiceRadiusKm: 5, TeamSize: 1, ActiveConnections: 0},
	}
	for _, p := range demo {
		if err := registry.Add(p); err != nil {
			return nil, nil, err
		}
	}
	return market, registry, nil
}

func serveMetrics(addr string, collector *observability.SimulationCollector, log logging.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()
	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
