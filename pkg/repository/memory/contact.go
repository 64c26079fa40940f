package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

type contactRepository struct {
	mu       sync.RWMutex
	contacts map[types.TenantID]map[types.CounterpartID]*model.Contact
}

var _ interfaces.ContactRepository = &contactRepository{}

func newContactRepository() *contactRepository {
	return &contactRepository{
		contacts: make(map[types.TenantID]map[types.CounterpartID]*model.Contact),
	}
}

func (r *contactRepository) ensureTenant(tenantID types.TenantID) map[types.CounterpartID]*model.Contact {
	tenant, exists := r.contacts[tenantID]
	if !exists {
		tenant = make(map[types.CounterpartID]*model.Contact)
		r.contacts[tenantID] = tenant
	}
	return tenant
}

// copyContact creates a deep copy of a contact
func copyContact(c *model.Contact) *model.Contact {
	copied := *c

	if c.Company != nil {
		v := *c.Company
		copied.Company = &v
	}
	if c.Role != nil {
		v := *c.Role
		copied.Role = &v
	}
	if c.Topics != nil {
		copied.Topics = make([]string, len(c.Topics))
		copy(copied.Topics, c.Topics)
	}
	if c.Excerpt != nil {
		copied.Excerpt = make([]model.ExcerptMessage, len(c.Excerpt))
		copy(copied.Excerpt, c.Excerpt)
	}
	if c.SyncedAt != nil {
		v := *c.SyncedAt
		copied.SyncedAt = &v
	}
	if c.EnrichLock != nil {
		v := *c.EnrichLock
		copied.EnrichLock = &v
	}

	return &copied
}

func sortContacts(contacts []*model.Contact) {
	sort.Slice(contacts, func(i, j int) bool {
		if !contacts[i].FirstSeen.Equal(contacts[j].FirstSeen) {
			return contacts[i].FirstSeen.Before(contacts[j].FirstSeen)
		}
		return contacts[i].CounterpartID < contacts[j].CounterpartID
	})
}

func (r *contactRepository) Exists(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.contacts[tenantID][counterpartID]
	return exists, nil
}

func (r *contactRepository) Insert(ctx context.Context, contact *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tenant := r.ensureTenant(contact.TenantID)
	if _, exists := tenant[contact.CounterpartID]; exists {
		return goerr.Wrap(ErrAlreadyExists, "contact already exists",
			goerr.V("tenant_id", contact.TenantID),
			goerr.V("counterpart_id", contact.CounterpartID))
	}

	now := time.Now().UTC()
	created := copyContact(contact)
	created.Revision = 1
	if created.CreatedAt.IsZero() {
		created.CreatedAt = now
	}
	created.UpdatedAt = now

	tenant[created.CounterpartID] = created
	contact.Revision = created.Revision
	return nil
}

func (r *contactRepository) Get(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, exists := r.contacts[tenantID][counterpartID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "contact not found",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	return copyContact(c), nil
}

func (r *contactRepository) Update(ctx context.Context, contact *model.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.contacts[contact.TenantID][contact.CounterpartID]
	if !exists {
		return goerr.Wrap(ErrNotFound, "contact not found",
			goerr.V("tenant_id", contact.TenantID),
			goerr.V("counterpart_id", contact.CounterpartID))
	}

	updated := copyContact(contact)
	updated.CreatedAt = existing.CreatedAt
	updated.Revision = existing.Revision + 1
	updated.UpdatedAt = time.Now().UTC()

	r.contacts[contact.TenantID][contact.CounterpartID] = updated
	contact.Revision = updated.Revision
	return nil
}

func (r *contactRepository) Patch(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, fn interfaces.PatchFunc) (*model.Contact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.contacts[tenantID][counterpartID]
	if !exists {
		return nil, goerr.Wrap(ErrNotFound, "contact not found",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	patched := copyContact(existing)
	if err := fn(patched); err != nil {
		return nil, err
	}

	// Identity is fixed once the row exists
	patched.TenantID = existing.TenantID
	patched.CounterpartID = existing.CounterpartID
	patched.CreatedAt = existing.CreatedAt
	patched.Revision = existing.Revision + 1
	patched.UpdatedAt = time.Now().UTC()

	r.contacts[tenantID][counterpartID] = patched
	return copyContact(patched), nil
}

func (r *contactRepository) list(tenantID types.TenantID, filter func(*model.Contact) bool) []*model.Contact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tenant, exists := r.contacts[tenantID]
	if !exists {
		return []*model.Contact{}
	}

	contacts := make([]*model.Contact, 0, len(tenant))
	for _, c := range tenant {
		if filter == nil || filter(c) {
			contacts = append(contacts, copyContact(c))
		}
	}
	sortContacts(contacts)
	return contacts
}

func (r *contactRepository) List(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error) {
	return r.list(tenantID, nil), nil
}

func (r *contactRepository) ListUnsynced(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error) {
	return r.list(tenantID, func(c *model.Contact) bool {
		return !c.Synced && c.Status.IsEnrichmentAttempted()
	}), nil
}

func (r *contactRepository) ListByStatus(ctx context.Context, tenantID types.TenantID, statuses ...types.ContactStatus) ([]*model.Contact, error) {
	return r.list(tenantID, func(c *model.Contact) bool {
		return slices.Contains(statuses, c.Status)
	}), nil
}

func (r *contactRepository) ListSince(ctx context.Context, tenantID types.TenantID, since time.Time) ([]*model.Contact, error) {
	return r.list(tenantID, func(c *model.Contact) bool {
		return !c.FirstSeen.Before(since)
	}), nil
}

func (r *contactRepository) Delete(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.contacts[tenantID][counterpartID]; !exists {
		return goerr.Wrap(ErrNotFound, "contact not found",
			goerr.V("tenant_id", tenantID),
			goerr.V("counterpart_id", counterpartID))
	}

	delete(r.contacts[tenantID], counterpartID)
	return nil
}
