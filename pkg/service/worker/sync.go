package worker

import (
	"context"
	"sync"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// DefaultSyncParallelism bounds tenants reconciled at the same time
const DefaultSyncParallelism = 4

// Syncer exports a tenant's pending contacts
type Syncer interface {
	SyncPending(ctx context.Context, tenantID types.TenantID) (*model.SyncReport, error)
}

// SyncWorker periodically reconciles every tenant with its export target.
// It catches contacts left unsynced by failed or skipped passes: rows that
// hit SYNC_FAILED, edits, and tenants without automatic export.
//
// Architecture assumptions:
// - Single server instance (SyncPending serializes per tenant in-process only)
type SyncWorker struct {
	syncer      Syncer
	registry    *model.TenantRegistry
	interval    time.Duration
	parallelism int
	stopCh      chan struct{}
	doneCh      chan struct{}
	stopOnce    sync.Once
}

// NewSyncWorker creates a new worker reconciling all registered tenants
func NewSyncWorker(syncer Syncer, registry *model.TenantRegistry, interval time.Duration) *SyncWorker {
	return &SyncWorker{
		syncer:      syncer,
		registry:    registry,
		interval:    interval,
		parallelism: DefaultSyncParallelism,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
}

// Start begins the background loop. The first pass runs immediately in the
// background and does not block server startup.
func (w *SyncWorker) Start(ctx context.Context) error {
	logging.Default().Info("Sync worker starting",
		"interval", w.interval.String(),
		"tenants", len(w.registry.IDs()))

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for the running pass
func (w *SyncWorker) Stop() {
	w.stopOnce.Do(func() {
		logging.Default().Info("Sync worker stopping")
		close(w.stopCh)
	})
	<-w.doneCh
	logging.Default().Info("Sync worker stopped")
}

func (w *SyncWorker) run(ctx context.Context) {
	defer close(w.doneCh)

	// A stop during a pass cancels the pass.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	w.SyncAll(runCtx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.SyncAll(runCtx)

		case <-w.stopCh:
			logging.Default().Info("Sync worker received stop signal")
			return

		case <-ctx.Done():
			logging.Default().Info("Sync worker context cancelled")
			return
		}
	}
}

// SyncAll runs one pass over every tenant. A failing tenant is logged and
// does not stop the others.
func (w *SyncWorker) SyncAll(ctx context.Context) {
	startTime := time.Now()

	var (
		mu        sync.Mutex
		succeeded int
		failed    int
	)

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(w.parallelism)
	for _, tenantID := range w.registry.IDs() {
		eg.Go(func() error {
			report, err := w.syncer.SyncPending(ctx, tenantID)
			if err != nil {
				_ = errutil.Handle(ctx, err, "periodic sync failed")
				return nil
			}
			mu.Lock()
			succeeded += report.Succeeded
			failed += report.Failed
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	if succeeded+failed > 0 {
		logging.Default().Info("Periodic sync completed",
			"succeeded", succeeded,
			"failed", failed,
			"duration", time.Since(startTime).String())
	}
}
