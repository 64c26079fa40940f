package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// ErrMalformedEvent is returned for events missing an identity or timestamp
var ErrMalformedEvent = goerr.New("malformed message event")

// Profile is the counterpart's profile as seen by the event source
type Profile struct {
	Name   string
	Handle string
	Bio    string
}

// MessageEvent is one inbound private message from a counterpart to a tenant
type MessageEvent struct {
	TenantID      types.TenantID
	CounterpartID types.CounterpartID
	MessageID     string
	Profile       Profile
	Text          string
	Timestamp     time.Time
}

// Validate checks that the event carries enough identity to be processed
func (e *MessageEvent) Validate() error {
	if e == nil {
		return goerr.Wrap(ErrMalformedEvent, "event is nil")
	}
	if err := e.TenantID.Validate(); err != nil {
		return goerr.Wrap(ErrMalformedEvent, "invalid tenant", goerr.V("cause", err.Error()))
	}
	if err := e.CounterpartID.Validate(); err != nil {
		return goerr.Wrap(ErrMalformedEvent, "invalid counterpart",
			goerr.V("tenant_id", e.TenantID), goerr.V("cause", err.Error()))
	}
	if e.Timestamp.IsZero() {
		return goerr.Wrap(ErrMalformedEvent, "missing timestamp",
			goerr.V("tenant_id", e.TenantID), goerr.V("counterpart_id", e.CounterpartID))
	}
	return nil
}
