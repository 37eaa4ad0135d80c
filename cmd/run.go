package main

import (
	"context"

	"github.com/quickshadows/scripts/backend"
	"github.com/quickshadows/scripts/benchmark"
	"github.com/quickshadows/scripts/config"
	"github.com/quickshadows/scripts/metrics"
	"github.com/quickshadows/scripts/progress"
	"github.com/quickshadows/scripts/report"
	"github.com/spf13/cobra"
)

func newRunCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Upload synthetic objects, then download each of them several times",
		Example: `  s3bench run -b my-bucket --sizes 1,10 --part-size 64MiB --upload-mbps 200
  s3bench run -p minio --endpoint http://localhost:9000 -b bench --sizes 256MiB --parallel-parts 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.cfg.Validate(); err != nil {
				return err
			}
			cmd.SilenceUsage = true
			return runBenchmark(cmd, a)
		},
	}

	flags := cmd.Flags()
	flags.SortFlags = false
	flags.String("sizes", config.DefaultSizes, "Comma separated object sizes; bare numbers are GiB")
	flags.Int("files-per-size", 1, "Objects uploaded per size")
	flags.String("part-size", config.DefaultPartSize, "Multipart part size (min 5MiB)")
	flags.Float64("upload-mbps", 0, "Upload limit in megabits/s (0 = unlimited)")
	flags.Float64("download-mbps", 0, "Download limit in megabits/s (0 = unlimited)")
	flags.Int("parallel-parts", 1, "Parts uploaded concurrently per object")
	flags.String("io-chunk", config.DefaultIOChunk, "Upload generation chunk metered by the limiter")
	flags.String("download-chunk", config.DefaultDownloadChunk, "Download read chunk metered by the limiter")
	flags.Int("download-cycles", config.DefaultDownloadCycles, "Downloads per uploaded object")
	flags.Duration("progress-interval", config.DefaultProgressInterval, "Minimum gap between progress log lines")
	flags.Bool("progress-bar", false, "Draw terminal progress bars")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runBenchmark(cmd *cobra.Command, a *app) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	logger := a.logger

	// Set system resource limits for high-performance testing
	if err := benchmark.SetMaxResources(logger); err != nil {
		logger.Warn("resource limits unchanged", "err", err)
	}

	store, err := backend.New(ctx, storageConfig(a.cfg))
	if err != nil {
		return err
	}

	collector := metrics.NewCollector()
	if a.cfg.MetricsAddr != "" {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := collector.Serve(ctx, a.cfg.MetricsAddr, logger); err != nil {
				logger.Error("metrics server stopped", "err", err)
			}
		}()
		defer func() {
			cancel()
			<-done
		}()
	}

	reporter := progress.NewReporter(logger, a.cfg.ProgressInterval,
		progress.WithBars(a.cfg.ProgressBar),
		progress.WithBarOutput(cmd.ErrOrStderr()),
	)
	runner := benchmark.NewRunner(store, benchmark.ParamsFromConfig(a.cfg), benchmark.RunnerOptions{
		Logger:   logger,
		Progress: reporter,
		Metrics:  collector,
	})

	rep, err := runner.Run(ctx)
	report.DisplayResults(cmd.OutOrStdout(), rep, err)
	return err
}
