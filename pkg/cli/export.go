package cli

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/cli/config"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/urfave/cli/v3"
)

func cmdExport() *cli.Command {
	var tenantID string
	var tenantsCfg config.Tenants
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var sheetsCfg config.Sheets
	var slackCfg config.Slack
	var pipelineCfg config.Pipeline

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "tenant",
			Aliases:     []string{"t"},
			Usage:       "Tenant to export. All tenants with a spreadsheet when empty.",
			Destination: &tenantID,
		},
	}
	flags = append(flags, tenantsCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, sheetsCfg.Flags()...)
	flags = append(flags, pipelineCfg.Flags()...)

	return &cli.Command{
		Name:    "export",
		Aliases: []string{"e"},
		Usage:   "Export every pending contact now",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			deps, err := setupPipeline(ctx, &tenantsCfg, &repoCfg, &geminiCfg, &sheetsCfg, &slackCfg, &pipelineCfg)
			if err != nil {
				return err
			}
			defer deps.close()

			targets := deps.registry.IDs()
			if tenantID != "" {
				if _, err := deps.registry.Get(types.TenantID(tenantID)); err != nil {
					return err
				}
				targets = []types.TenantID{types.TenantID(tenantID)}
			}

			failed := 0
			for _, id := range targets {
				report, err := deps.uc.Command.ForceExport(ctx, id)
				if err != nil {
					return goerr.Wrap(err, "export failed", goerr.V("tenant_id", id))
				}
				if !report.Configured {
					fmt.Printf("%s: %s\n", id, color.YellowString("no spreadsheet configured"))
					continue
				}

				fmt.Printf("%s: %s exported, %s failed\n", id,
					color.GreenString("%d", report.Succeeded),
					color.RedString("%d", report.Failed))
				for _, f := range report.Failures {
					fmt.Printf("  %s %s\n", color.RedString(f.CounterpartID.String()), f.Reason)
				}
				failed += report.Failed
			}

			if failed > 0 {
				return goerr.New("some contacts could not be exported", goerr.V("failed", failed))
			}
			return nil
		},
	}
}
