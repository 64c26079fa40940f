package types

import (
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	ErrInvalidTenantID      = goerr.New("invalid tenant ID")
	ErrInvalidCounterpartID = goerr.New("invalid counterpart ID")
)

// TenantID identifies one monitored account
type TenantID string

func (id TenantID) String() string {
	return string(id)
}

// Validate checks that the ID is usable as a storage path segment
func (id TenantID) Validate() error {
	if err := validatePathSegment(string(id)); err != nil {
		return goerr.Wrap(ErrInvalidTenantID, err.Error(), goerr.V("tenant_id", string(id)))
	}
	return nil
}

// CounterpartID identifies the other party of a private conversation
type CounterpartID string

func (id CounterpartID) String() string {
	return string(id)
}

// Validate checks that the ID is usable as a storage path segment
func (id CounterpartID) Validate() error {
	if err := validatePathSegment(string(id)); err != nil {
		return goerr.Wrap(ErrInvalidCounterpartID, err.Error(), goerr.V("counterpart_id", string(id)))
	}
	return nil
}

func validatePathSegment(s string) error {
	switch {
	case strings.TrimSpace(s) == "":
		return goerr.New("empty identifier")
	case len(s) > 128:
		return goerr.New("identifier too long")
	case strings.ContainsAny(s, "/:"):
		return goerr.New("identifier contains reserved character")
	case s == "." || s == "..":
		return goerr.New("identifier is a reserved name")
	}
	return nil
}
