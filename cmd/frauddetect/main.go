package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fraud-detector/internal/cfg"
	"fraud-detector/internal/metrics"
	"fraud-detector/internal/ml"
	"fraud-detector/internal/storage"
	"fraud-detector/internal/web"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	cfg.SetupLogging(c, os.Stderr)

	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The artifact is loaded exactly once; without it there is nothing to serve
	artifact, err := ml.Load(ctx, ml.LoaderConfig{
		Path:       c.ModelPath,
		PythonPath: c.PythonPath,
		Timeout:    c.ModelTimeout,
	})
	if err != nil {
		log.Fatal().Err(err).Str("model_path", c.ModelPath).Msg("model artifact load failed")
	}
	defer artifact.Close()

	md := artifact.Metadata()
	log.Info().
		Str("model_path", artifact.Path()).
		Str("version", md.Version).
		Str("algorithm", md.Algorithm).
		Int("features", len(md.Features)).
		Msg("model artifact loaded")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mw := metrics.NewWrapper(metrics.NewWithRegistry(registry))

	driftCfg := ml.DriftConfig{
		Enabled:        c.DriftEnabled,
		WindowSize:     c.DriftWindow,
		AlertThreshold: c.DriftThreshold,
		Methods:        []ml.DriftMethod{ml.PopulationStabilityIndex, ml.KolmogorovSmirnov},
	}
	if c.DriftEnabled && c.DriftBaselinePath != "" {
		store, err := storage.New(c.DriftBaselinePath)
		if err != nil {
			log.Fatal().Err(err).Str("path", c.DriftBaselinePath).Msg("drift baseline store open failed")
		}
		defer store.Close()

		model := orDefault(md.Version, "default")
		if times, err := store.Baselines(model); err == nil && len(times) > 0 {
			log.Info().
				Str("model", model).
				Int("baselines", len(times)).
				Time("latest", times[len(times)-1]).
				Msg("drift baselines on record")
		}
		driftCfg.Store = store.ForModel(model)
	}
	drift := ml.NewDriftMonitor(driftCfg, mw)
	svc := ml.NewService(artifact, mw).WithDriftMonitor(drift)
	if drift.Enabled() {
		go watchDrift(ctx, drift)
	}

	webCfg := web.Config{
		Addr:         c.Addr(),
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
	if c.MetricsEnabled {
		webCfg.MetricsHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	}

	server, err := web.NewServer(webCfg, svc, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("web server setup failed")
	}

	if err := server.Run(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
		artifact.Close()
		os.Exit(1)
	}

	log.Info().Msg("shutdown complete")
}

const driftCheckInterval = time.Minute

// watchDrift refreshes the drift gauges and logs alerts until ctx is done.
func watchDrift(ctx context.Context, d *ml.DriftMonitor) {
	ticker := time.NewTicker(driftCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.Scores()
			d.Detect()
		}
	}
}

func orDefault(v, def string) string {
	if v != "" {
		return v
	}
	return def
}
