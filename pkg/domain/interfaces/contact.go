package interfaces

import (
	"context"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// PatchFunc mutates a contact inside an atomic read-modify-write. Returning an
// error aborts the write and the error is returned from Patch unchanged.
type PatchFunc func(c *model.Contact) error

// ContactRepository is the per-tenant contact table. Every method is safe for
// concurrent callers, including callers working on the same tenant.
type ContactRepository interface {
	// Exists reports whether a contact row exists
	Exists(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (bool, error)

	// Insert creates a new contact row. It returns ErrAlreadyExists when a row
	// with the same (tenant, counterpart) exists; the existing row is untouched.
	Insert(ctx context.Context, contact *model.Contact) error

	// Get retrieves a contact. It returns ErrNotFound when missing.
	Get(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error)

	// Update overwrites an existing contact row
	Update(ctx context.Context, contact *model.Contact) error

	// Patch atomically applies fn to the stored contact and writes the result,
	// bumping Revision and UpdatedAt. It returns the stored contact.
	Patch(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, fn PatchFunc) (*model.Contact, error)

	// List retrieves all contacts of a tenant ordered by first_seen
	List(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error)

	// ListUnsynced retrieves contacts with synced=false whose enrichment was attempted
	ListUnsynced(ctx context.Context, tenantID types.TenantID) ([]*model.Contact, error)

	// ListByStatus retrieves contacts in any of the given statuses
	ListByStatus(ctx context.Context, tenantID types.TenantID, statuses ...types.ContactStatus) ([]*model.Contact, error)

	// ListSince retrieves contacts first seen at or after since
	ListSince(ctx context.Context, tenantID types.TenantID, since time.Time) ([]*model.Contact, error)

	// Delete removes a contact. It returns ErrNotFound when missing.
	Delete(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error
}
