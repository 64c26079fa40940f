package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/async"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// CommandUseCase implements the manual operations a user can trigger on a
// tenant's contacts
type CommandUseCase struct {
	repo     interfaces.Repository
	registry *model.TenantRegistry
	enricher *Enricher
	syncer   *SyncEngine
	now      func() time.Time
}

// NewCommandUseCase creates a new CommandUseCase
func NewCommandUseCase(repo interfaces.Repository, registry *model.TenantRegistry, enricher *Enricher, syncer *SyncEngine) *CommandUseCase {
	return &CommandUseCase{
		repo:     repo,
		registry: registry,
		enricher: enricher,
		syncer:   syncer,
		now:      time.Now,
	}
}

// TagRecent sets the event tag of every untagged contact first seen within
// lookback. Contacts that already carry a tag are left alone. It returns the
// number of contacts tagged.
func (uc *CommandUseCase) TagRecent(ctx context.Context, tenantID types.TenantID, eventTag string, lookback time.Duration) (int, error) {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return 0, err
	}
	if eventTag == "" {
		return 0, goerr.Wrap(ErrEmptyEventTag, "cannot tag contacts", goerr.V(TenantIDKey, tenantID))
	}
	if lookback <= 0 {
		return 0, goerr.Wrap(ErrInvalidLookback, "cannot tag contacts",
			goerr.V(TenantIDKey, tenantID),
			goerr.V("lookback", lookback))
	}

	since := uc.now().Add(-lookback)
	contacts, err := uc.repo.Contact().ListSince(ctx, tenantID, since)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to list recent contacts", goerr.V(TenantIDKey, tenantID))
	}

	tagged := 0
	for _, c := range contacts {
		if c.EventTag != "" {
			continue
		}
		_, err := uc.repo.Contact().Patch(ctx, tenantID, c.CounterpartID, func(c *model.Contact) error {
			if c.EventTag != "" {
				return errNoChange
			}
			return c.ApplyEdit(types.EditableFieldEventTag, eventTag)
		})
		switch {
		case errors.Is(err, errNoChange), errors.Is(err, interfaces.ErrNotFound):
			continue
		case err != nil:
			return tagged, goerr.Wrap(err, "failed to tag contact",
				goerr.V(TenantIDKey, tenantID),
				goerr.V(CounterpartIDKey, c.CounterpartID))
		}
		tagged++
	}

	logging.From(ctx).Info("contacts tagged",
		TenantIDKey, tenantID,
		"event_tag", eventTag,
		"count", tagged,
	)
	return tagged, nil
}

// EditContact sets one user editable field and marks the contact for export
func (uc *CommandUseCase) EditContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, field types.EditableField, value string) (*model.Contact, error) {
	if _, err := types.ParseEditableField(field.String()); err != nil {
		return nil, err
	}
	if _, err := uc.registry.Get(tenantID); err != nil {
		return nil, err
	}

	updated, err := uc.repo.Contact().Patch(ctx, tenantID, counterpartID, func(c *model.Contact) error {
		return c.ApplyEdit(field, value)
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to edit contact",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID),
			goerr.V("field", field))
	}
	return updated, nil
}

// ReEnrich runs extraction again for a contact in any unlocked state and then
// syncs the tenant so the new fields reach the export target
func (uc *CommandUseCase) ReEnrich(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error) {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return nil, err
	}

	contact, err := uc.enricher.Enrich(ctx, tenantID, counterpartID, true)
	if err != nil {
		return nil, err
	}

	if _, err := uc.syncer.SyncPending(ctx, tenantID); err != nil {
		_ = errutil.Handle(ctx, err, "sync after re-enrichment failed")
		return contact, nil
	}

	latest, err := uc.repo.Contact().Get(ctx, tenantID, counterpartID)
	if err != nil {
		return contact, nil
	}
	return latest, nil
}

// ForceExport exports every pending contact of the tenant now
func (uc *CommandUseCase) ForceExport(ctx context.Context, tenantID types.TenantID) (*model.SyncReport, error) {
	return uc.syncer.SyncPending(ctx, tenantID)
}

// GetStats aggregates the tenant's contacts
func (uc *CommandUseCase) GetStats(ctx context.Context, tenantID types.TenantID) (*model.Stats, error) {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return nil, err
	}
	contacts, err := uc.repo.Contact().List(ctx, tenantID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list contacts", goerr.V(TenantIDKey, tenantID))
	}
	return model.ComputeStats(tenantID, contacts, uc.now()), nil
}

// DeleteContact removes the local row and then, in the background, the
// contact's row in the export target. A failed remote delete is only logged.
func (uc *CommandUseCase) DeleteContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return err
	}

	contact, err := uc.repo.Contact().Get(ctx, tenantID, counterpartID)
	if err != nil {
		return goerr.Wrap(err, "failed to get contact",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}

	if err := uc.repo.Contact().Delete(ctx, tenantID, counterpartID); err != nil {
		return goerr.Wrap(err, "failed to delete contact",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}

	logging.From(ctx).Info("contact deleted",
		TenantIDKey, tenantID,
		CounterpartIDKey, counterpartID,
	)

	async.Dispatch(ctx, func(ctx context.Context) error {
		return uc.syncer.DeleteRemote(ctx, contact)
	})
	return nil
}

// GetContact retrieves one contact
func (uc *CommandUseCase) GetContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error) {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return nil, err
	}
	contact, err := uc.repo.Contact().Get(ctx, tenantID, counterpartID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get contact",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	return contact, nil
}

// ListContacts retrieves the tenant's contacts, optionally restricted to the
// given statuses
func (uc *CommandUseCase) ListContacts(ctx context.Context, tenantID types.TenantID, statuses ...types.ContactStatus) ([]*model.Contact, error) {
	if _, err := uc.registry.Get(tenantID); err != nil {
		return nil, err
	}

	var (
		contacts []*model.Contact
		err      error
	)
	if len(statuses) > 0 {
		contacts, err = uc.repo.Contact().ListByStatus(ctx, tenantID, statuses...)
	} else {
		contacts, err = uc.repo.Contact().List(ctx, tenantID)
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list contacts", goerr.V(TenantIDKey, tenantID))
	}
	return contacts, nil
}
