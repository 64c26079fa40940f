package model

import (
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// SyncFailure describes one contact that could not be exported
type SyncFailure struct {
	CounterpartID types.CounterpartID `json:"counterpart_id"`
	Reason        string              `json:"reason"`
}

// SyncReport summarizes one reconciliation pass of a tenant
type SyncReport struct {
	TenantID   types.TenantID `json:"tenant_id"`
	Configured bool           `json:"configured"`
	Succeeded  int            `json:"succeeded"`
	Failed     int            `json:"failed"`
	Failures   []SyncFailure  `json:"failures,omitempty"`
}

// Processed returns the number of contacts attempted
func (r *SyncReport) Processed() int {
	return r.Succeeded + r.Failed
}

// StatsWindow is the lookback used for the recent contacts counter
const StatsWindow = 7 * 24 * time.Hour

// Stats summarizes a tenant's contacts
type Stats struct {
	TenantID         types.TenantID              `json:"tenant_id"`
	Total            int                         `json:"total"`
	WithCompany      int                         `json:"with_company"`
	Recent7d         int                         `json:"recent_7d"`
	Unsynced         int                         `json:"unsynced"`
	EnrichmentFailed int                         `json:"enrichment_failed"`
	ByEvent          map[string]int              `json:"by_event"`
	ByStatus         map[types.ContactStatus]int `json:"by_status"`
}

// ComputeStats aggregates contacts into Stats as of now
func ComputeStats(tenantID types.TenantID, contacts []*Contact, now time.Time) *Stats {
	stats := &Stats{
		TenantID: tenantID,
		ByEvent:  make(map[string]int),
		ByStatus: make(map[types.ContactStatus]int),
	}
	since := now.Add(-StatsWindow)

	for _, c := range contacts {
		stats.Total++
		if StringValue(c.Company) != "" {
			stats.WithCompany++
		}
		if !c.FirstSeen.Before(since) {
			stats.Recent7d++
		}
		if !c.Synced {
			stats.Unsynced++
		}
		if c.Status == types.ContactStatusEnrichmentFailed {
			stats.EnrichmentFailed++
		}
		if c.EventTag != "" {
			stats.ByEvent[c.EventTag]++
		}
		stats.ByStatus[c.Status]++
	}

	return stats
}
