package model

import (
	"strings"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// ExportTimeFormat is the timestamp layout written to the export target
const ExportTimeFormat = "2006-01-02 15:04:05"

// ExportHeaders are the column headers of the export target. Column A is the
// contact key and must stay first.
var ExportHeaders = []string{
	"Key",
	"Counterpart ID",
	"First Seen",
	"Name",
	"Handle",
	"Company",
	"Role",
	"Bio",
	"Topics",
	"Initial Context",
	"Event Tag",
	"Last Contact",
	"Notes",
	"Status",
}

// ExportRow is the flattened representation of a contact in the export target
type ExportRow struct {
	Key            string
	CounterpartID  string
	FirstSeen      string
	Name           string
	Handle         string
	Company        string
	Role           string
	Bio            string
	Topics         string
	InitialContext string
	EventTag       string
	LastContact    string
	Notes          string
	Status         string
}

// ToExportRow flattens the contact into export columns
func (c *Contact) ToExportRow() ExportRow {
	initial := ""
	if len(c.Excerpt) > 0 {
		initial = c.Excerpt[0].Text
	}
	return ExportRow{
		Key:            c.Key(),
		CounterpartID:  c.CounterpartID.String(),
		FirstSeen:      formatExportTime(c.FirstSeen),
		Name:           c.DisplayName,
		Handle:         c.Handle,
		Company:        StringValue(c.Company),
		Role:           StringValue(c.Role),
		Bio:            c.Bio,
		Topics:         strings.Join(c.Topics, ", "),
		InitialContext: initial,
		EventTag:       c.EventTag,
		LastContact:    formatExportTime(c.LastContact),
		Notes:          c.Notes,
		Status:         c.Status.String(),
	}
}

// Values returns the row cells in ExportHeaders order
func (r ExportRow) Values() []any {
	return []any{
		r.Key,
		r.CounterpartID,
		r.FirstSeen,
		r.Name,
		r.Handle,
		r.Company,
		r.Role,
		r.Bio,
		r.Topics,
		r.InitialContext,
		r.EventTag,
		r.LastContact,
		r.Notes,
		r.Status,
	}
}

func formatExportTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(ExportTimeFormat)
}

// ExportReply is the tagged result of one export call. RowRef locates the
// written row in the export target.
type ExportReply struct {
	Outcome types.Outcome
	RowRef  string
	Err     error
}

// ExportSucceeded builds a success reply
func ExportSucceeded(rowRef string) ExportReply {
	return ExportReply{Outcome: types.OutcomeSuccess, RowRef: rowRef}
}

// ExportTransient builds a retryable failure reply
func ExportTransient(err error) ExportReply {
	return ExportReply{Outcome: types.OutcomeTransient, Err: err}
}

// ExportPermanent builds a non-retryable failure reply
func ExportPermanent(err error) ExportReply {
	return ExportReply{Outcome: types.OutcomePermanent, Err: err}
}
