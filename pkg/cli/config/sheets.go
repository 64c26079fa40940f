package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/service/sheets"
	"github.com/urfave/cli/v3"
)

// Sheets holds CLI flags for the Google Sheets export target
type Sheets struct {
	credentialsFile string
	sessions        int
	ratePerSec      float64
	burst           int
}

func (x *Sheets) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "sheets-credentials",
			Usage:       "Service account JSON for the Sheets API. Application Default Credentials are used when empty.",
			Category:    "Sheets",
			Sources:     cli.EnvVars("CONTRACK_SHEETS_CREDENTIALS"),
			Destination: &x.credentialsFile,
		},
		&cli.IntFlag{
			Name:        "sheets-sessions",
			Usage:       "Concurrent export sessions per tenant",
			Category:    "Sheets",
			Value:       1,
			Sources:     cli.EnvVars("CONTRACK_SHEETS_SESSIONS"),
			Destination: &x.sessions,
		},
		&cli.FloatFlag{
			Name:        "sheets-rate",
			Usage:       "Sheets API requests per second shared by all tenants",
			Category:    "Sheets",
			Value:       1,
			Sources:     cli.EnvVars("CONTRACK_SHEETS_RATE"),
			Destination: &x.ratePerSec,
		},
		&cli.IntFlag{
			Name:        "sheets-burst",
			Usage:       "Sheets API request burst",
			Category:    "Sheets",
			Value:       5,
			Sources:     cli.EnvVars("CONTRACK_SHEETS_BURST"),
			Destination: &x.burst,
		},
	}
}

func (x Sheets) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Bool("credentials_file", x.credentialsFile != ""),
		slog.Int("sessions", x.sessions),
		slog.Float64("rate", x.ratePerSec),
		slog.Int("burst", x.burst),
	)
}

// Configure creates the export target. It returns nil when no tenant has a
// spreadsheet, so that credentials are only required when something is exported.
func (x *Sheets) Configure(ctx context.Context, tenants *Tenants) (interfaces.ExportTarget, error) {
	if !tenants.AnyExportConfigured() {
		return nil, nil
	}

	opts := []sheets.Option{
		sheets.WithSessionsPerTenant(x.sessions),
		sheets.WithRateLimit(x.ratePerSec, x.burst),
	}
	if x.credentialsFile != "" {
		opts = append(opts, sheets.WithCredentialsFile(x.credentialsFile))
	}

	target, err := sheets.New(ctx, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create sheets export target")
	}
	return target, nil
}
