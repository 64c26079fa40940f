package cli

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/cli/config"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func cmdValidate() *cli.Command {
	var tenantsCfg config.Tenants
	var pipelineCfg config.Pipeline

	var flags []cli.Flag
	flags = append(flags, tenantsCfg.Flags()...)
	flags = append(flags, pipelineCfg.Flags()...)

	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate the tenants file and pipeline settings",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.Default()

			registry, err := tenantsCfg.Configure()
			if err != nil {
				return goerr.Wrap(err, "configuration validation failed")
			}

			for _, t := range registry.List() {
				logger.Info("Tenant validated",
					"id", t.ID,
					"name", t.Name,
					"slack_team_id", t.SlackTeamID,
					"export", t.ExportConfigured(),
					"auto_export", t.AutoExport,
					"excerpt_cap", t.EffectiveExcerptCap(),
				)
			}

			budget := pipelineCfg.ExtractionPolicy().Budget()
			if lease := pipelineCfg.LeaseTTL(); lease != c.Duration("lease-ttl") {
				logger.Warn("lease-ttl is shorter than the extraction retry budget and will be raised",
					"lease_ttl", c.Duration("lease-ttl"),
					"budget", budget,
					"effective", lease,
				)
			}

			logger.Info("Configuration validation passed",
				"tenant_count", len(registry.IDs()),
				"extraction_budget", budget,
			)
			return nil
		},
	}
}
