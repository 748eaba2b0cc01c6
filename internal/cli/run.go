package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/23skdu/longbow-sieve/internal/arrowio"
	"github.com/23skdu/longbow-sieve/internal/batching"
	"github.com/23skdu/longbow-sieve/internal/config"
	"github.com/23skdu/longbow-sieve/internal/device"
	"github.com/23skdu/longbow-sieve/internal/logger"
	"github.com/23skdu/longbow-sieve/internal/metrics"
	"github.com/23skdu/longbow-sieve/internal/perturb"
)

func newRunCmd() *cobra.Command {
	var (
		configPath string
		flags      = config.Default()
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Aggregate noise sensitivity over random inputs in bounded sub-batches",
		Example: `  # 10 samples per example, at most 8 examples per metric call
  sieve run --batch-size 4 --n-samples 10 --max-examples-per-batch 8

  # from a config file, writing an Arrow result
  sieve run --config sieve.yaml --output result.arrow`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, configPath, flags, limit)
			if err != nil {
				return err
			}
			return runSieve(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configPath, "config", "", "YAML config file")
	f.IntVar(&flags.BatchSize, "batch-size", flags.BatchSize, "number of original examples")
	f.IntVar(&flags.Features, "features", flags.Features, "features per example")
	f.IntVar(&flags.NSamples, "n-samples", flags.NSamples, "perturbed samples per example")
	f.IntVar(&limit, "max-examples-per-batch", 0, "cap on examples per metric call (unset: one call)")
	f.StringVar(&flags.Aggregation, "aggregation", flags.Aggregation, "sum or max")
	f.Float64Var(&flags.NoiseScale, "noise-scale", flags.NoiseScale, "standard deviation of the perturbation")
	f.Uint64Var(&flags.Seed, "seed", flags.Seed, "random seed")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "debug, info, warn or error")
	f.StringVar(&flags.LogFormat, "log-format", flags.LogFormat, "console or json")
	f.StringVar(&flags.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	f.StringVar(&flags.OutputPath, "output", "", "write results as an Arrow IPC stream")
	return cmd
}

// resolveConfig layers explicitly set flags over the config file, which is
// layered over defaults.
func resolveConfig(cmd *cobra.Command, path string, flags config.Config, limit int) (config.Config, error) {
	cfg := config.Default()
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return cfg, err
		}
	}

	set := cmd.Flags().Changed
	if set("batch-size") {
		cfg.BatchSize = flags.BatchSize
	}
	if set("features") {
		cfg.Features = flags.Features
	}
	if set("n-samples") {
		cfg.NSamples = flags.NSamples
	}
	if set("max-examples-per-batch") {
		cfg.MaxExamplesPerBatch = &limit
	}
	if set("aggregation") {
		cfg.Aggregation = flags.Aggregation
	}
	if set("noise-scale") {
		cfg.NoiseScale = flags.NoiseScale
	}
	if set("seed") {
		cfg.Seed = flags.Seed
	}
	if set("log-level") {
		cfg.LogLevel = flags.LogLevel
	}
	if set("log-format") {
		cfg.LogFormat = flags.LogFormat
	}
	if set("metrics-addr") {
		cfg.MetricsAddr = flags.MetricsAddr
	}
	if set("output") {
		cfg.OutputPath = flags.OutputPath
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func runSieve(cmd *cobra.Command, cfg config.Config) error {
	log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel, cfg.LogFormat).With(
		"aggregation", cfg.GetAggregation(),
		"seed", cfg.Seed,
	)

	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, log)
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx)
		}()
	}

	ctx := device.NewContext()
	defer ctx.Free()

	inputs, err := perturb.RandomInputs(ctx, cfg.BatchSize, cfg.Features, cfg.Seed)
	if err != nil {
		return err
	}
	metric, err := perturb.New(inputs, perturb.RandomWeights(cfg.Features, cfg.Seed), cfg.NoiseScale, cfg.NSamples, cfg.Seed)
	if err != nil {
		return err
	}

	agg, _ := batching.AggByName(cfg.GetAggregation())
	if cfg.GetAggregation() == "max" {
		metric.Reduce = perturb.ReduceMax
	}

	opts := []batching.Option{batching.WithAggregator(agg), batching.WithLogger(log)}
	if cfg.HasCap() {
		opts = append(opts, batching.WithMaxExamplesPerBatch(*cfg.MaxExamplesPerBatch))
	}

	start := time.Now()
	total, err := batching.DivideAndAggregate([]*device.Tensor{inputs}, cfg.NSamples, metric.Metric, opts...)
	if err != nil {
		return fmt.Errorf("aggregation failed: %w", err)
	}

	width := batching.ChunkWidth(cfg.BatchSize, cfg.NSamples, cfg.MaxExamplesPerBatch)
	stats := device.ComputeStats(total.Data())
	log.Info("aggregation complete",
		"batch_size", cfg.BatchSize,
		"n_samples", cfg.NSamples,
		"chunk_width", width,
		"duration", time.Since(start).String(),
		"max", stats.Max,
		"min", stats.Min,
		"mean", stats.Mean,
		"device_bytes", ctx.MemUsed(),
		"allocated_bytes", device.AllocatedBytes(),
		"total_samples", metrics.TotalSamples(),
	)

	per := 0
	if cfg.GetAggregation() == "sum" {
		per = cfg.NSamples
	}
	renderValues(cmd.OutOrStdout(), total.Data(), per, metric.Score())

	if cfg.OutputPath != "" {
		res := arrowio.Result{
			Values:      total.Data(),
			NSamples:    cfg.NSamples,
			ChunkWidth:  width,
			Aggregation: cfg.GetAggregation(),
			Device:      total.Device().String(),
		}
		if err := arrowio.WriteFile(cfg.OutputPath, res); err != nil {
			return err
		}
		log.Info("wrote results", "path", cfg.OutputPath)
	}
	return nil
}

func serveMetrics(addr string, log *logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info("metrics serving", "addr", addr+"/metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", "error", err.Error())
		}
	}()
	return srv
}
