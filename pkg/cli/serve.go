package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/cli/config"
	httpctrl "github.com/secmon-lab/contrack/pkg/controller/http"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/service/worker"
	"github.com/secmon-lab/contrack/pkg/usecase"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

// pipelineDeps bundles the configured backends shared by commands
type pipelineDeps struct {
	repo     interfaces.Repository
	registry *model.TenantRegistry
	uc       *usecase.UseCases
	target   interfaces.ExportTarget
	close    func()
}

// setupPipeline loads tenants and builds the repository, the export target,
// the extractor and the use cases
func setupPipeline(ctx context.Context, tenantsCfg *config.Tenants, repoCfg *config.Repository, geminiCfg *config.Gemini, sheetsCfg *config.Sheets, slackCfg *config.Slack, pipelineCfg *config.Pipeline) (*pipelineDeps, error) {
	registry, err := tenantsCfg.Configure()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load tenants")
	}

	repo, closeRepo, err := repoCfg.Configure(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to initialize repository")
	}

	ucOpts := pipelineCfg.Options()

	ext, err := geminiCfg.Extractor(ctx)
	if err != nil {
		closeRepo()
		return nil, goerr.Wrap(err, "failed to initialize extractor")
	}
	if ext != nil {
		ucOpts = append(ucOpts, usecase.WithExtractor(ext))
		logging.Default().Info("Gemini extraction enabled")
	} else {
		logging.Default().Warn("Gemini project not configured, contacts are enriched with empty fields")
	}

	target, err := sheetsCfg.Configure(ctx, tenantsCfg)
	if err != nil {
		closeRepo()
		return nil, goerr.Wrap(err, "failed to initialize export target")
	}
	if target != nil {
		ucOpts = append(ucOpts, usecase.WithExportTarget(target))
	} else {
		logging.Default().Info("No tenant has a spreadsheet, export disabled")
	}

	lookups, err := slackCfg.ProfileLookups(tenantsCfg.Entries())
	if err != nil {
		closeRepo()
		return nil, goerr.Wrap(err, "failed to initialize slack profile lookup")
	}
	ucOpts = append(ucOpts, usecase.WithEnricherOptions(lookups...))

	return &pipelineDeps{
		repo:     repo,
		registry: registry,
		uc:       usecase.New(repo, registry, ucOpts...),
		target:   target,
		close:    closeRepo,
	}, nil
}

func cmdServe() *cli.Command {
	var addr string
	var enableAPI bool
	var tenantsCfg config.Tenants
	var repoCfg config.Repository
	var geminiCfg config.Gemini
	var sheetsCfg config.Sheets
	var slackCfg config.Slack
	var pipelineCfg config.Pipeline

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "HTTP server address",
			Value:       ":8080",
			Sources:     cli.EnvVars("CONTRACK_ADDR"),
			Destination: &addr,
		},
		&cli.BoolFlag{
			Name:        "api",
			Usage:       "Serve the contact management API under /api. It has no authentication; expose it on a private network only.",
			Value:       true,
			Sources:     cli.EnvVars("CONTRACK_API"),
			Destination: &enableAPI,
		},
	}

	// Add shared config flags
	flags = append(flags, tenantsCfg.Flags()...)
	flags = append(flags, repoCfg.Flags()...)
	flags = append(flags, geminiCfg.Flags()...)
	flags = append(flags, sheetsCfg.Flags()...)
	flags = append(flags, slackCfg.Flags()...)
	flags = append(flags, pipelineCfg.Flags()...)

	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Receive Slack events, enrich contacts and export them",
		Flags:   flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logging.Default().Info("Serve configuration",
				"tenants", tenantsCfg,
				"repository", repoCfg,
				"gemini", geminiCfg,
				"sheets", sheetsCfg,
				"slack", slackCfg,
				"pipeline", pipelineCfg,
			)

			deps, err := setupPipeline(ctx, &tenantsCfg, &repoCfg, &geminiCfg, &sheetsCfg, &slackCfg, &pipelineCfg)
			if err != nil {
				return err
			}
			defer deps.close()

			uc := deps.uc

			// Recover contacts left unfinished by a previous run
			if err := uc.Processor.Start(ctx); err != nil {
				return goerr.Wrap(err, "failed to start event processor")
			}

			var syncWorker *worker.SyncWorker
			if deps.target != nil {
				syncWorker = worker.NewSyncWorker(uc.Sync, deps.registry, pipelineCfg.SyncInterval())
				if err := syncWorker.Start(ctx); err != nil {
					return goerr.Wrap(err, "failed to start sync worker")
				}
			}

			var httpOpts []httpctrl.Options
			if enableAPI {
				httpOpts = append(httpOpts, httpctrl.WithAPI(uc.Command, deps.registry))
				logging.Default().Info("Contact API enabled")
			}
			if slackCfg.IsWebhookConfigured() {
				slackWebhookHandler := httpctrl.NewSlackWebhookHandler(uc.Slack)
				httpOpts = append(httpOpts, httpctrl.WithSlackWebhook(slackWebhookHandler, slackCfg.SigningSecret()))
				logging.Default().Info("Slack webhook handler enabled")
			} else {
				logging.Default().Warn("Slack signing secret not configured, no events will be received")
			}

			server := &http.Server{
				Addr:              addr,
				Handler:           httpctrl.New(httpOpts...),
				ReadHeaderTimeout: 30 * time.Second,
			}

			// Setup signal handling for graceful shutdown
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

			// Start server in goroutine
			errCh := make(chan error, 1)
			go func() {
				logging.Default().Info("Starting HTTP server", "addr", addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					errCh <- goerr.Wrap(err, "failed to start server")
				}
			}()

			var serveErr error
			select {
			case serveErr = <-errCh:
			case sig := <-sigCh:
				logging.Default().Info("Received shutdown signal", "signal", sig)
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), pipelineCfg.ShutdownTimeout())
			defer cancel()

			// Stop intake first so no event is accepted after the lanes close
			if err := server.Shutdown(shutdownCtx); err != nil {
				logging.Default().Error("failed to shutdown server gracefully", "error", err.Error())
			}
			if syncWorker != nil {
				syncWorker.Stop()
			}
			if err := uc.Processor.Stop(shutdownCtx); err != nil {
				logging.Default().Warn("event processor did not drain in time", "error", err.Error())
			}

			logging.Default().Info("Server shutdown completed")
			return serveErr
		},
	}
}
