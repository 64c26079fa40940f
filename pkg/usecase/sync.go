package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// SyncEngine reconciles a tenant's unsynced contacts with its export target.
// Rows are keyed by Contact.Key, so re-exporting a contact updates its row
// instead of appending a second one.
type SyncEngine struct {
	repo     interfaces.Repository
	registry *model.TenantRegistry
	target   interfaces.ExportTarget
	policy   RetryPolicy
	now      func() time.Time

	mu    sync.Mutex
	locks map[types.TenantID]*sync.Mutex
}

// SyncOption configures a SyncEngine
type SyncOption func(*SyncEngine)

// WithExportPolicy sets the retry policy of export calls
func WithExportPolicy(policy RetryPolicy) SyncOption {
	return func(s *SyncEngine) {
		s.policy = policy
	}
}

// WithSyncClock replaces time.Now
func WithSyncClock(now func() time.Time) SyncOption {
	return func(s *SyncEngine) {
		s.now = now
	}
}

// NewSyncEngine creates a new SyncEngine. target may be nil, in which case
// every tenant reports as not configured.
func NewSyncEngine(repo interfaces.Repository, registry *model.TenantRegistry, target interfaces.ExportTarget, opts ...SyncOption) *SyncEngine {
	s := &SyncEngine{
		repo:     repo,
		registry: registry,
		target:   target,
		policy:   DefaultRetryPolicy(),
		now:      time.Now,
		locks:    make(map[types.TenantID]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Configured reports whether contacts of the tenant can be exported
func (s *SyncEngine) Configured(tenant *model.Tenant) bool {
	return s.target != nil && tenant.ExportConfigured()
}

// SyncPending exports every unsynced contact of the tenant whose enrichment
// has been attempted. Per-row failures are recorded on the contact and in the
// report; they never abort the batch. Passes for the same tenant run one at a
// time.
func (s *SyncEngine) SyncPending(ctx context.Context, tenantID types.TenantID) (*model.SyncReport, error) {
	tenant, err := s.registry.Get(tenantID)
	if err != nil {
		return nil, err
	}

	report := &model.SyncReport{TenantID: tenantID}
	if !s.Configured(tenant) {
		logging.From(ctx).Debug("export target not configured, skipping sync", TenantIDKey, tenantID)
		return report, nil
	}
	report.Configured = true

	lock := s.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	contacts, err := s.repo.Contact().ListUnsynced(ctx, tenantID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list unsynced contacts", goerr.V(TenantIDKey, tenantID))
	}
	if len(contacts) == 0 {
		return report, nil
	}

	session, release, err := s.target.Acquire(ctx, tenant)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire export session", goerr.V(TenantIDKey, tenantID))
	}
	defer release()

	for _, contact := range contacts {
		if err := ctx.Err(); err != nil {
			return report, goerr.Wrap(err, "sync interrupted", goerr.V(TenantIDKey, tenantID))
		}
		s.syncOne(ctx, session, contact, report)
	}

	logging.From(ctx).Info("sync completed",
		TenantIDKey, tenantID,
		"succeeded", report.Succeeded,
		"failed", report.Failed,
	)
	return report, nil
}

// DeleteRemote removes the contact's row from the export target. It is a
// no-op for tenants without an export target.
func (s *SyncEngine) DeleteRemote(ctx context.Context, contact *model.Contact) error {
	tenant, err := s.registry.Get(contact.TenantID)
	if err != nil {
		return err
	}
	if !s.Configured(tenant) {
		return nil
	}

	lock := s.tenantLock(contact.TenantID)
	lock.Lock()
	defer lock.Unlock()

	session, release, err := s.target.Acquire(ctx, tenant)
	if err != nil {
		return goerr.Wrap(err, "failed to acquire export session", goerr.V(TenantIDKey, contact.TenantID))
	}
	defer release()

	key := contact.Key()
	_, err = callWithRetry(ctx, s.policy, "export_delete", func(ctx context.Context) (types.Outcome, error) {
		reply := session.Delete(ctx, key, contact.RowRef)
		return reply.Outcome, reply.Err
	})
	if err != nil {
		return goerr.Wrap(err, "failed to delete exported row",
			goerr.V(TenantIDKey, contact.TenantID),
			goerr.V(CounterpartIDKey, contact.CounterpartID))
	}
	return nil
}

func (s *SyncEngine) syncOne(ctx context.Context, session interfaces.ExportSession, snapshot *model.Contact, report *model.SyncReport) {
	logger := logging.From(ctx).With(
		TenantIDKey, snapshot.TenantID,
		CounterpartIDKey, snapshot.CounterpartID,
	)

	row := snapshot.ToExportRow()
	var reply model.ExportReply
	_, err := callWithRetry(ctx, s.policy, "export_upsert", func(ctx context.Context) (types.Outcome, error) {
		reply = session.Upsert(ctx, row, snapshot.RowRef)
		return reply.Outcome, reply.Err
	})

	if err != nil {
		reason := err.Error()
		_, patchErr := s.repo.Contact().Patch(ctx, snapshot.TenantID, snapshot.CounterpartID, func(c *model.Contact) error {
			c.MarkSyncFailed(reason)
			return nil
		})
		if patchErr != nil && !errors.Is(patchErr, interfaces.ErrNotFound) {
			logger.Error("failed to record sync failure", "error", patchErr.Error())
		}
		logger.Warn("contact export failed", "error", reason)

		report.Failed++
		report.Failures = append(report.Failures, model.SyncFailure{
			CounterpartID: snapshot.CounterpartID,
			Reason:        reason,
		})
		return
	}

	now := s.now()
	_, err = s.repo.Contact().Patch(ctx, snapshot.TenantID, snapshot.CounterpartID, func(c *model.Contact) error {
		if c.Revision != snapshot.Revision {
			// Edited while exporting. Keep the row reference but leave the
			// contact unsynced so the newer state goes out next pass.
			c.RowRef = reply.RowRef
			return nil
		}
		c.MarkSynced(reply.RowRef, now)
		return nil
	})
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		logger.Info("contact deleted during export")
		return
	case err != nil:
		reason := err.Error()
		logger.Error("failed to mark contact synced", "error", reason)
		report.Failed++
		report.Failures = append(report.Failures, model.SyncFailure{
			CounterpartID: snapshot.CounterpartID,
			Reason:        reason,
		})
		return
	}

	report.Succeeded++
}

func (s *SyncEngine) tenantLock(tenantID types.TenantID) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tenantID] = lock
	}
	return lock
}
