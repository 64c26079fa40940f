package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// observeAttempts bounds the insert/touch loop. A second pass only happens
// when the row is deleted between the insert conflict and the touch.
const observeAttempts = 3

var errNoChange = errors.New("no change")

// Observation is the result of folding one message into the contact table
type Observation struct {
	Contact *model.Contact
	// IsNew is true only for the caller whose insert created the row
	IsNew bool
	// Changed is false for a redelivered message
	Changed bool
}

// Deduplicator decides whether a message comes from a first time counterpart
// and records it either way
type Deduplicator struct {
	repo interfaces.Repository
	now  func() time.Time
}

// NewDeduplicator creates a new Deduplicator
func NewDeduplicator(repo interfaces.Repository) *Deduplicator {
	return &Deduplicator{
		repo: repo,
		now:  time.Now,
	}
}

// IsNewContact reports whether no contact row exists for the counterpart
func (d *Deduplicator) IsNewContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (bool, error) {
	exists, err := d.repo.Contact().Exists(ctx, tenantID, counterpartID)
	if err != nil {
		return false, goerr.Wrap(err, "failed to check contact existence",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	return !exists, nil
}

// Observe records ev. The first message of a counterpart inserts a NEW
// contact; any later message, including one that loses an insert race,
// touches the existing row instead.
func (d *Deduplicator) Observe(ctx context.Context, ev *model.MessageEvent, excerptCap int) (*Observation, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	var lastErr error
	for range observeAttempts {
		isNew, err := d.IsNewContact(ctx, ev.TenantID, ev.CounterpartID)
		if err != nil {
			return nil, err
		}

		if isNew {
			contact := model.NewContactFromEvent(ev, d.now())
			err := d.repo.Contact().Insert(ctx, contact)
			if err == nil {
				logging.From(ctx).Info("new contact detected",
					TenantIDKey, ev.TenantID,
					CounterpartIDKey, ev.CounterpartID,
				)
				return &Observation{Contact: contact, IsNew: true, Changed: true}, nil
			}
			if !errors.Is(err, interfaces.ErrAlreadyExists) {
				return nil, goerr.Wrap(err, "failed to insert contact",
					goerr.V(TenantIDKey, ev.TenantID),
					goerr.V(CounterpartIDKey, ev.CounterpartID))
			}
			// lost the race, fall through to touch
		}

		obs, err := d.touch(ctx, ev, excerptCap)
		if err == nil {
			return obs, nil
		}
		if !errors.Is(err, interfaces.ErrNotFound) {
			return nil, err
		}
		lastErr = err
	}

	return nil, goerr.Wrap(lastErr, "contact vanished while observing message",
		goerr.V(TenantIDKey, ev.TenantID),
		goerr.V(CounterpartIDKey, ev.CounterpartID))
}

func (d *Deduplicator) touch(ctx context.Context, ev *model.MessageEvent, excerptCap int) (*Observation, error) {
	updated, err := d.repo.Contact().Patch(ctx, ev.TenantID, ev.CounterpartID, func(c *model.Contact) error {
		if !c.Touch(ev, excerptCap) {
			return errNoChange
		}
		return nil
	})
	if errors.Is(err, errNoChange) {
		current, err := d.repo.Contact().Get(ctx, ev.TenantID, ev.CounterpartID)
		if err != nil {
			return nil, err
		}
		logging.From(ctx).Debug("duplicate message ignored",
			TenantIDKey, ev.TenantID,
			CounterpartIDKey, ev.CounterpartID,
			MessageIDKey, ev.MessageID,
		)
		return &Observation{Contact: current}, nil
	}
	if errors.Is(err, interfaces.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to touch contact",
			goerr.V(TenantIDKey, ev.TenantID),
			goerr.V(CounterpartIDKey, ev.CounterpartID))
	}
	return &Observation{Contact: updated, Changed: true}, nil
}
