package model

import (
	"strings"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// DefaultExcerptCap is the number of messages retained in a contact's excerpt
const DefaultExcerptCap = 5

// ExcerptMessage is one message retained as enrichment context
type ExcerptMessage struct {
	MessageID string
	Text      string
	SentAt    time.Time
}

// EnrichLock is a row lease held by the enrichment worker that owns the contact
type EnrichLock struct {
	Owner     string
	ExpiresAt time.Time
}

// Contact is the local record of one counterpart of one tenant
type Contact struct {
	TenantID      types.TenantID
	CounterpartID types.CounterpartID

	DisplayName string
	Handle      string
	Bio         string

	Company *string
	Role    *string
	Topics  []string

	Excerpt  []ExcerptMessage
	Notes    string
	EventTag string

	FirstSeen   time.Time
	LastContact time.Time

	Status   types.ContactStatus
	Synced   bool
	RowRef   string
	SyncedAt *time.Time

	LastError      string
	EnrichAttempts int
	EnrichLock     *EnrichLock

	// Revision increases on every stored mutation
	Revision  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ContactKey builds the export key of a contact
func ContactKey(tenantID types.TenantID, counterpartID types.CounterpartID) string {
	return tenantID.String() + ":" + counterpartID.String()
}

// Key returns the stable key identifying the contact in the export target
func (c *Contact) Key() string {
	return ContactKey(c.TenantID, c.CounterpartID)
}

// NewContactFromEvent builds the initial NEW record for a first message
func NewContactFromEvent(ev *MessageEvent, now time.Time) *Contact {
	return &Contact{
		TenantID:      ev.TenantID,
		CounterpartID: ev.CounterpartID,
		DisplayName:   ev.Profile.Name,
		Handle:        ev.Profile.Handle,
		Bio:           ev.Profile.Bio,
		Excerpt: []ExcerptMessage{
			{MessageID: ev.MessageID, Text: ev.Text, SentAt: ev.Timestamp},
		},
		FirstSeen:   ev.Timestamp,
		LastContact: ev.Timestamp,
		Status:      types.ContactStatusNew,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch folds a later (or out of order) message into the contact. It keeps
// first_seen as the minimum and last_contact as the maximum timestamp, appends
// to the excerpt while below excerptCap, and fills profile fields that are still
// empty. A message already present in the excerpt is ignored entirely. Touch
// returns false when nothing changed.
func (c *Contact) Touch(ev *MessageEvent, excerptCap int) bool {
	for _, m := range c.Excerpt {
		if ev.MessageID != "" && m.MessageID == ev.MessageID {
			return false
		}
	}

	changed := false
	if c.FirstSeen.IsZero() || ev.Timestamp.Before(c.FirstSeen) {
		c.FirstSeen = ev.Timestamp
		changed = true
	}
	if ev.Timestamp.After(c.LastContact) {
		c.LastContact = ev.Timestamp
		changed = true
	}

	if excerptCap <= 0 {
		excerptCap = DefaultExcerptCap
	}
	if len(c.Excerpt) < excerptCap {
		c.Excerpt = append(c.Excerpt, ExcerptMessage{
			MessageID: ev.MessageID,
			Text:      ev.Text,
			SentAt:    ev.Timestamp,
		})
		changed = true
	}

	if c.DisplayName == "" && ev.Profile.Name != "" {
		c.DisplayName = ev.Profile.Name
		changed = true
	}
	if c.Handle == "" && ev.Profile.Handle != "" {
		c.Handle = ev.Profile.Handle
		changed = true
	}
	if c.Bio == "" && ev.Profile.Bio != "" {
		c.Bio = ev.Profile.Bio
		changed = true
	}

	return changed
}

// ExcerptTexts returns the retained message texts in arrival order
func (c *Contact) ExcerptTexts() []string {
	texts := make([]string, 0, len(c.Excerpt))
	for _, m := range c.Excerpt {
		texts = append(texts, m.Text)
	}
	return texts
}

// IsLocked reports whether another worker holds an unexpired enrichment lease
func (c *Contact) IsLocked(now time.Time) bool {
	return c.EnrichLock != nil && now.Before(c.EnrichLock.ExpiresAt)
}

// HoldsLock reports whether owner holds the enrichment lease
func (c *Contact) HoldsLock(owner string) bool {
	return c.EnrichLock != nil && c.EnrichLock.Owner == owner
}

// ApplyEdit sets a user editable field. For company and role an empty value
// clears the field.
func (c *Contact) ApplyEdit(field types.EditableField, value string) error {
	if _, err := types.ParseEditableField(field.String()); err != nil {
		return err
	}

	value = strings.TrimSpace(value)
	switch field {
	case types.EditableFieldDisplayName:
		c.DisplayName = value
	case types.EditableFieldHandle:
		c.Handle = value
	case types.EditableFieldBio:
		c.Bio = value
	case types.EditableFieldCompany:
		c.Company = optionalString(value)
	case types.EditableFieldRole:
		c.Role = optionalString(value)
	case types.EditableFieldNotes:
		c.Notes = value
	case types.EditableFieldEventTag:
		c.EventTag = value
	}
	c.Synced = false
	return nil
}

// ApplyExtraction stores a successful extraction and marks the contact enriched.
// base is the contact as it was when the extraction started; Company and Role
// that differ from base were edited meanwhile and keep the edited value.
func (c *Contact) ApplyExtraction(result *ExtractionResult, base *Contact) {
	if !c.companyEditedSince(base) {
		c.Company = result.Company
	}
	if !c.roleEditedSince(base) {
		c.Role = result.Role
	}
	c.Topics = append([]string(nil), result.Topics...)
	c.Status = types.ContactStatusEnriched
	c.LastError = ""
	c.Synced = false
}

// MarkEnrichmentFailed records a terminal extraction failure. Extracted fields
// are left null unless edited since base.
func (c *Contact) MarkEnrichmentFailed(reason string, base *Contact) {
	if !c.companyEditedSince(base) {
		c.Company = nil
	}
	if !c.roleEditedSince(base) {
		c.Role = nil
	}
	c.Topics = nil
	c.Status = types.ContactStatusEnrichmentFailed
	c.LastError = reason
	c.Synced = false
}

func (c *Contact) companyEditedSince(base *Contact) bool {
	return base != nil && !sameString(c.Company, base.Company)
}

func (c *Contact) roleEditedSince(base *Contact) bool {
	return base != nil && !sameString(c.Role, base.Role)
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// MarkSynced records a successful export. A contact whose enrichment failed
// keeps that status so the failure stays visible.
func (c *Contact) MarkSynced(rowRef string, at time.Time) {
	c.Synced = true
	c.RowRef = rowRef
	c.SyncedAt = &at
	c.LastError = ""
	if c.Status != types.ContactStatusEnrichmentFailed {
		c.Status = types.ContactStatusSynced
	}
}

// MarkSyncFailed records a failed export attempt. As with MarkSynced an
// enrichment failure takes precedence in Status; Synced and LastError still
// carry the export failure.
func (c *Contact) MarkSyncFailed(reason string) {
	c.Synced = false
	c.LastError = reason
	if c.Status != types.ContactStatusEnrichmentFailed {
		c.Status = types.ContactStatusSyncFailed
	}
}

// StringValue dereferences an optional string
func StringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
