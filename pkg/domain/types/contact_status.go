package types

import "github.com/m-mizutani/goerr/v2"

// ErrInvalidContactStatus is returned when a status string is not a known ContactStatus
var ErrInvalidContactStatus = goerr.New("invalid contact status")

// ContactStatus represents the lifecycle state of a contact
type ContactStatus string

const (
	ContactStatusNew              ContactStatus = "NEW"
	ContactStatusEnriching        ContactStatus = "ENRICHING"
	ContactStatusEnriched         ContactStatus = "ENRICHED"
	ContactStatusEnrichmentFailed ContactStatus = "ENRICHMENT_FAILED"
	ContactStatusSynced           ContactStatus = "SYNCED"
	ContactStatusSyncFailed       ContactStatus = "SYNC_FAILED"
)

// AllContactStatuses returns all valid contact statuses
func AllContactStatuses() []ContactStatus {
	return []ContactStatus{
		ContactStatusNew,
		ContactStatusEnriching,
		ContactStatusEnriched,
		ContactStatusEnrichmentFailed,
		ContactStatusSynced,
		ContactStatusSyncFailed,
	}
}

// IsValid checks if the contact status is valid
func (s ContactStatus) IsValid() bool {
	switch s {
	case ContactStatusNew,
		ContactStatusEnriching,
		ContactStatusEnriched,
		ContactStatusEnrichmentFailed,
		ContactStatusSynced,
		ContactStatusSyncFailed:
		return true
	default:
		return false
	}
}

// IsEnrichmentPending reports whether enrichment has not completed yet.
// Contacts in these states are resubmitted on restart.
func (s ContactStatus) IsEnrichmentPending() bool {
	return s == ContactStatusNew || s == ContactStatusEnriching
}

// IsEnrichmentAttempted reports whether the contact is eligible for export
func (s ContactStatus) IsEnrichmentAttempted() bool {
	return s.IsValid() && !s.IsEnrichmentPending()
}

// String returns the string representation of the contact status
func (s ContactStatus) String() string {
	return string(s)
}

// ParseContactStatus parses a string into a ContactStatus
func ParseContactStatus(s string) (ContactStatus, error) {
	status := ContactStatus(s)
	if !status.IsValid() {
		return "", goerr.Wrap(ErrInvalidContactStatus, "failed to parse contact status", goerr.V("status", s))
	}
	return status, nil
}
