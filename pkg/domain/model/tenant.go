package model

import (
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// ErrTenantNotFound is returned when a tenant is not found in the registry
var ErrTenantNotFound = goerr.New("tenant not found")

// Tenant is one monitored account and its export settings
type Tenant struct {
	ID   types.TenantID
	Name string

	// SlackTeamID routes Slack events to this tenant
	SlackTeamID string
	// SlackUserID is the monitored user. Messages authored by it are ignored.
	SlackUserID string

	SpreadsheetID string
	SheetName     string
	ExcerptCap    int

	// AutoExport triggers a sync after every enrichment. When off, contacts
	// are exported by the periodic worker or on demand only.
	AutoExport bool
}

// ExportConfigured reports whether the tenant has an export target
func (t *Tenant) ExportConfigured() bool {
	return t.SpreadsheetID != ""
}

// EffectiveExcerptCap returns the excerpt cap, falling back to the default
func (t *Tenant) EffectiveExcerptCap() int {
	if t.ExcerptCap <= 0 {
		return DefaultExcerptCap
	}
	return t.ExcerptCap
}

// TenantRegistry holds tenant settings in registration order.
// It is built once at startup and read concurrently afterwards.
type TenantRegistry struct {
	entries map[types.TenantID]*Tenant
	byTeam  map[string]types.TenantID
	order   []types.TenantID
}

// NewTenantRegistry creates a new empty TenantRegistry
func NewTenantRegistry() *TenantRegistry {
	return &TenantRegistry{
		entries: make(map[types.TenantID]*Tenant),
		byTeam:  make(map[string]types.TenantID),
	}
}

// Register adds a tenant to the registry, replacing any tenant with the same ID
func (r *TenantRegistry) Register(tenant *Tenant) {
	if prev, exists := r.entries[tenant.ID]; exists {
		if prev.SlackTeamID != "" {
			delete(r.byTeam, prev.SlackTeamID)
		}
	} else {
		r.order = append(r.order, tenant.ID)
	}
	r.entries[tenant.ID] = tenant
	if tenant.SlackTeamID != "" {
		r.byTeam[tenant.SlackTeamID] = tenant.ID
	}
}

// Get retrieves a tenant by ID
func (r *TenantRegistry) Get(tenantID types.TenantID) (*Tenant, error) {
	tenant, ok := r.entries[tenantID]
	if !ok {
		return nil, goerr.Wrap(ErrTenantNotFound, "tenant not found",
			goerr.V("tenant_id", tenantID))
	}
	return tenant, nil
}

// FindBySlackTeam resolves the tenant monitoring a Slack team
func (r *TenantRegistry) FindBySlackTeam(teamID string) (*Tenant, error) {
	id, ok := r.byTeam[teamID]
	if !ok {
		return nil, goerr.Wrap(ErrTenantNotFound, "no tenant for slack team",
			goerr.V("team_id", teamID))
	}
	return r.entries[id], nil
}

// List returns all registered tenants in registration order
func (r *TenantRegistry) List() []*Tenant {
	result := make([]*Tenant, 0, len(r.order))
	for _, id := range r.order {
		result = append(result, r.entries[id])
	}
	return result
}

// IDs returns all registered tenant IDs in registration order
func (r *TenantRegistry) IDs() []types.TenantID {
	return append([]types.TenantID(nil), r.order...)
}
