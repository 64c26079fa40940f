package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
	"golang.org/x/sync/semaphore"
)

const (
	// DefaultLeaseTTL outlives the worst case of DefaultRetryPolicy (5 x 30s
	// calls plus 30s of waits)
	DefaultLeaseTTL = 5 * time.Minute

	// DefaultEnrichConcurrency bounds concurrent extraction calls per process
	DefaultEnrichConcurrency = 8
)

var errAlreadyEnriched = errors.New("contact already enriched")

// Enricher fills company, role and topics of a contact through the extraction
// service. At most one enrichment per contact runs at a time: an in-process
// in-flight set guards this process and a row lease guards against others.
type Enricher struct {
	repo      interfaces.Repository
	extractor interfaces.Extractor
	policy    RetryPolicy
	leaseTTL  time.Duration
	owner     string
	sem       *semaphore.Weighted
	profiles  map[types.TenantID]interfaces.ProfileLookup
	now       func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// EnricherOption configures an Enricher
type EnricherOption func(*Enricher)

// WithExtractionPolicy sets the retry policy of extraction calls
func WithExtractionPolicy(policy RetryPolicy) EnricherOption {
	return func(e *Enricher) {
		e.policy = policy
	}
}

// WithLeaseTTL sets how long a row lease stays valid
func WithLeaseTTL(ttl time.Duration) EnricherOption {
	return func(e *Enricher) {
		e.leaseTTL = ttl
	}
}

// WithEnrichConcurrency bounds concurrent enrichments
func WithEnrichConcurrency(n int) EnricherOption {
	return func(e *Enricher) {
		if n > 0 {
			e.sem = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLeaseOwner overrides the generated lease owner ID
func WithLeaseOwner(owner string) EnricherOption {
	return func(e *Enricher) {
		e.owner = owner
	}
}

// WithProfileLookup registers the profile source used to complete missing
// display name and bio of a tenant's contacts before extraction
func WithProfileLookup(tenantID types.TenantID, lookup interfaces.ProfileLookup) EnricherOption {
	return func(e *Enricher) {
		e.profiles[tenantID] = lookup
	}
}

// WithEnricherClock replaces time.Now
func WithEnricherClock(now func() time.Time) EnricherOption {
	return func(e *Enricher) {
		e.now = now
	}
}

// NewEnricher creates a new Enricher
func NewEnricher(repo interfaces.Repository, extractor interfaces.Extractor, opts ...EnricherOption) *Enricher {
	e := &Enricher{
		repo:      repo,
		extractor: extractor,
		policy:    DefaultRetryPolicy(),
		leaseTTL:  DefaultLeaseTTL,
		owner:     uuid.NewString(),
		sem:       semaphore.NewWeighted(DefaultEnrichConcurrency),
		profiles:  make(map[types.TenantID]interfaces.ProfileLookup),
		now:       time.Now,
		inFlight:  make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Owner returns the lease owner ID of this enricher
func (e *Enricher) Owner() string {
	return e.owner
}

// Enrich runs extraction for one contact and stores the result. Unless force
// is set, a contact that is no longer NEW or ENRICHING is returned unchanged.
// It returns ErrEnrichmentInFlight or ErrContactLocked when another
// enrichment of the same contact is running.
func (e *Enricher) Enrich(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, force bool) (*model.Contact, error) {
	key := model.ContactKey(tenantID, counterpartID)
	if !e.claim(key) {
		return nil, goerr.Wrap(ErrEnrichmentInFlight, "enrichment already running",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	defer e.unclaim(key)

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, goerr.Wrap(err, "failed to acquire enrichment slot",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	defer e.sem.Release(1)

	contact, err := e.acquireLease(ctx, tenantID, counterpartID, force)
	if errors.Is(err, errAlreadyEnriched) {
		return e.repo.Contact().Get(ctx, tenantID, counterpartID)
	}
	if err != nil {
		return nil, err
	}

	logger := logging.From(ctx).With(
		TenantIDKey, tenantID,
		CounterpartIDKey, counterpartID,
	)

	profile := e.lookupProfile(ctx, contact)
	input := &model.ExtractionInput{
		DisplayName: firstNonEmpty(contact.DisplayName, profile.Name),
		Bio:         firstNonEmpty(contact.Bio, profile.Bio),
		Messages:    contact.ExcerptTexts(),
	}

	var reply model.ExtractionReply
	outcome, callErr := callWithRetry(ctx, e.policy, "extract", func(ctx context.Context) (types.Outcome, error) {
		reply = e.extractor.Extract(ctx, input)
		return reply.Outcome, reply.Err
	})

	if ctxErr := ctx.Err(); ctxErr != nil {
		// Interrupted rather than failed: hand the contact back for recovery.
		e.releaseLease(context.WithoutCancel(ctx), tenantID, counterpartID)
		return nil, goerr.Wrap(ctxErr, "enrichment interrupted",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}

	updated, err := e.repo.Contact().Patch(ctx, tenantID, counterpartID, func(c *model.Contact) error {
		if !c.HoldsLock(e.owner) {
			return ErrLeaseLost
		}
		c.EnrichLock = nil
		fillProfile(c, profile)

		if outcome == types.OutcomeSuccess {
			result := reply.Result
			if result == nil {
				result = &model.ExtractionResult{}
			}
			c.ApplyExtraction(result, contact)
			return nil
		}

		reason := "extraction failed"
		if callErr != nil {
			reason = callErr.Error()
		}
		c.MarkEnrichmentFailed(reason, contact)
		return nil
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store enrichment result",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}

	if updated.Status == types.ContactStatusEnrichmentFailed {
		logger.Warn("enrichment failed",
			"outcome", outcome,
			"attempts", updated.EnrichAttempts,
			"error", updated.LastError,
		)
	} else {
		logger.Info("contact enriched",
			"company", model.StringValue(updated.Company),
			"role", model.StringValue(updated.Role),
		)
	}

	return updated, nil
}

// ReleaseLease drops a lease left behind by a crashed or stopped worker so
// the contact can be enriched again. ENRICHING contacts go back to NEW.
func (e *Enricher) ReleaseLease(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error {
	_, err := e.repo.Contact().Patch(ctx, tenantID, counterpartID, func(c *model.Contact) error {
		if c.EnrichLock == nil && c.Status != types.ContactStatusEnriching {
			return errNoChange
		}
		c.EnrichLock = nil
		if c.Status == types.ContactStatusEnriching {
			c.Status = types.ContactStatusNew
		}
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		return goerr.Wrap(err, "failed to release enrichment lease",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	return nil
}

func (e *Enricher) acquireLease(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, force bool) (*model.Contact, error) {
	contact, err := e.repo.Contact().Patch(ctx, tenantID, counterpartID, func(c *model.Contact) error {
		now := e.now()
		if c.IsLocked(now) && !c.HoldsLock(e.owner) {
			return ErrContactLocked
		}
		if !force && !c.Status.IsEnrichmentPending() {
			return errAlreadyEnriched
		}
		c.Status = types.ContactStatusEnriching
		c.EnrichLock = &model.EnrichLock{
			Owner:     e.owner,
			ExpiresAt: now.Add(e.leaseTTL),
		}
		c.EnrichAttempts++
		return nil
	})
	if errors.Is(err, errAlreadyEnriched) {
		return nil, err
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to acquire enrichment lease",
			goerr.V(TenantIDKey, tenantID),
			goerr.V(CounterpartIDKey, counterpartID))
	}
	return contact, nil
}

func (e *Enricher) releaseLease(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) {
	_, err := e.repo.Contact().Patch(ctx, tenantID, counterpartID, func(c *model.Contact) error {
		if !c.HoldsLock(e.owner) {
			return errNoChange
		}
		c.EnrichLock = nil
		c.Status = types.ContactStatusNew
		return nil
	})
	if err != nil && !errors.Is(err, errNoChange) {
		logging.From(ctx).Warn("failed to release enrichment lease",
			TenantIDKey, tenantID,
			CounterpartIDKey, counterpartID,
			"error", err.Error(),
		)
	}
}

// lookupProfile asks the tenant's profile source for fields the contact lacks.
// Failures are logged and enrichment continues with what is stored.
func (e *Enricher) lookupProfile(ctx context.Context, c *model.Contact) model.Profile {
	lookup, ok := e.profiles[c.TenantID]
	if !ok || (c.DisplayName != "" && c.Handle != "" && c.Bio != "") {
		return model.Profile{}
	}

	profile, err := lookup.LookupProfile(ctx, c.CounterpartID.String())
	if err != nil {
		logging.From(ctx).Warn("failed to look up counterpart profile",
			TenantIDKey, c.TenantID,
			CounterpartIDKey, c.CounterpartID,
			"error", err.Error(),
		)
		return model.Profile{}
	}
	if profile == nil {
		return model.Profile{}
	}
	return *profile
}

func (e *Enricher) claim(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.inFlight[key]; ok {
		return false
	}
	e.inFlight[key] = struct{}{}
	return true
}

func (e *Enricher) unclaim(key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inFlight, key)
}

func fillProfile(c *model.Contact, p model.Profile) {
	if c.DisplayName == "" {
		c.DisplayName = p.Name
	}
	if c.Handle == "" {
		c.Handle = p.Handle
	}
	if c.Bio == "" {
		c.Bio = p.Bio
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
