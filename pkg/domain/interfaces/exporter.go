package interfaces

import (
	"context"

	"github.com/secmon-lab/contrack/pkg/domain/model"
)

// ExportSession is a borrowed connection to one tenant's export target.
// A session is used by one goroutine at a time.
type ExportSession interface {
	// Upsert writes the row keyed by row.Key. rowRef is a hint from a previous
	// export and may be empty or stale. The reply carries the row's current reference.
	Upsert(ctx context.Context, row model.ExportRow, rowRef string) model.ExportReply

	// Delete removes the row keyed by key if present
	Delete(ctx context.Context, key string, rowRef string) model.ExportReply
}

// ExportTarget hands out per-tenant export sessions. Acquire blocks until a
// session is free; the returned release function must be called exactly once.
type ExportTarget interface {
	Acquire(ctx context.Context, tenant *model.Tenant) (ExportSession, func(), error)
}
