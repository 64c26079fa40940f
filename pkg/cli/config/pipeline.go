package config

import (
	"log/slog"
	"time"

	"github.com/secmon-lab/contrack/pkg/usecase"
	"github.com/urfave/cli/v3"
)

// Pipeline holds tuning flags of the contact pipeline
type Pipeline struct {
	extractTimeout  time.Duration
	extractAttempts int
	exportTimeout   time.Duration
	exportAttempts  int
	leaseTTL        time.Duration
	concurrency     int
	laneBuffer      int
	syncInterval    time.Duration
	shutdownTimeout time.Duration
}

func (x *Pipeline) Flags() []cli.Flag {
	def := usecase.DefaultRetryPolicy()
	return []cli.Flag{
		&cli.DurationFlag{
			Name:        "extract-timeout",
			Usage:       "Timeout of one extraction call",
			Category:    "Pipeline",
			Value:       def.Timeout,
			Sources:     cli.EnvVars("CONTRACK_EXTRACT_TIMEOUT"),
			Destination: &x.extractTimeout,
		},
		&cli.IntFlag{
			Name:        "extract-attempts",
			Usage:       "Attempts per extraction including the first one",
			Category:    "Pipeline",
			Value:       def.MaxAttempts,
			Sources:     cli.EnvVars("CONTRACK_EXTRACT_ATTEMPTS"),
			Destination: &x.extractAttempts,
		},
		&cli.DurationFlag{
			Name:        "export-timeout",
			Usage:       "Timeout of one export call",
			Category:    "Pipeline",
			Value:       def.Timeout,
			Sources:     cli.EnvVars("CONTRACK_EXPORT_TIMEOUT"),
			Destination: &x.exportTimeout,
		},
		&cli.IntFlag{
			Name:        "export-attempts",
			Usage:       "Attempts per export call including the first one",
			Category:    "Pipeline",
			Value:       def.MaxAttempts,
			Sources:     cli.EnvVars("CONTRACK_EXPORT_ATTEMPTS"),
			Destination: &x.exportAttempts,
		},
		&cli.DurationFlag{
			Name:        "lease-ttl",
			Usage:       "How long an enrichment lease is valid. Must exceed the extraction retry budget.",
			Category:    "Pipeline",
			Value:       usecase.DefaultLeaseTTL,
			Sources:     cli.EnvVars("CONTRACK_LEASE_TTL"),
			Destination: &x.leaseTTL,
		},
		&cli.IntFlag{
			Name:        "enrich-concurrency",
			Usage:       "Concurrent extraction calls",
			Category:    "Pipeline",
			Value:       usecase.DefaultEnrichConcurrency,
			Sources:     cli.EnvVars("CONTRACK_ENRICH_CONCURRENCY"),
			Destination: &x.concurrency,
		},
		&cli.IntFlag{
			Name:        "lane-buffer",
			Usage:       "Queued events per tenant before intake blocks",
			Category:    "Pipeline",
			Value:       usecase.DefaultLaneBuffer,
			Sources:     cli.EnvVars("CONTRACK_LANE_BUFFER"),
			Destination: &x.laneBuffer,
		},
		&cli.DurationFlag{
			Name:        "sync-interval",
			Usage:       "Interval of the periodic export pass",
			Category:    "Pipeline",
			Value:       10 * time.Minute,
			Sources:     cli.EnvVars("CONTRACK_SYNC_INTERVAL"),
			Destination: &x.syncInterval,
		},
		&cli.DurationFlag{
			Name:        "shutdown-timeout",
			Usage:       "Time given to in-flight work on shutdown",
			Category:    "Pipeline",
			Value:       30 * time.Second,
			Sources:     cli.EnvVars("CONTRACK_SHUTDOWN_TIMEOUT"),
			Destination: &x.shutdownTimeout,
		},
	}
}

func (x Pipeline) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Duration("extract_timeout", x.extractTimeout),
		slog.Int("extract_attempts", x.extractAttempts),
		slog.Duration("export_timeout", x.exportTimeout),
		slog.Int("export_attempts", x.exportAttempts),
		slog.Duration("lease_ttl", x.leaseTTL),
		slog.Int("enrich_concurrency", x.concurrency),
		slog.Int("lane_buffer", x.laneBuffer),
		slog.Duration("sync_interval", x.syncInterval),
	)
}

// ExtractionPolicy returns the retry policy for extraction calls
func (x *Pipeline) ExtractionPolicy() usecase.RetryPolicy {
	p := usecase.DefaultRetryPolicy()
	p.Timeout = x.extractTimeout
	p.MaxAttempts = x.extractAttempts
	return p
}

// ExportPolicy returns the retry policy for export calls
func (x *Pipeline) ExportPolicy() usecase.RetryPolicy {
	p := usecase.DefaultRetryPolicy()
	p.Timeout = x.exportTimeout
	p.MaxAttempts = x.exportAttempts
	return p
}

// LeaseTTL returns the enrichment lease TTL, raised to outlive one retried
// extraction when configured too short
func (x *Pipeline) LeaseTTL() time.Duration {
	budget := x.ExtractionPolicy().Budget()
	if x.leaseTTL <= budget {
		return budget + time.Minute
	}
	return x.leaseTTL
}

// SyncInterval returns the interval of the periodic export pass
func (x *Pipeline) SyncInterval() time.Duration {
	return x.syncInterval
}

// ShutdownTimeout returns the time given to in-flight work on shutdown
func (x *Pipeline) ShutdownTimeout() time.Duration {
	return x.shutdownTimeout
}

// Options returns the use case options for the pipeline settings
func (x *Pipeline) Options() []usecase.Option {
	return []usecase.Option{
		usecase.WithEnricherOptions(
			usecase.WithExtractionPolicy(x.ExtractionPolicy()),
			usecase.WithLeaseTTL(x.LeaseTTL()),
			usecase.WithEnrichConcurrency(x.concurrency),
		),
		usecase.WithSyncOptions(usecase.WithExportPolicy(x.ExportPolicy())),
		usecase.WithProcessorOptions(usecase.WithLaneBuffer(x.laneBuffer)),
	}
}
