package usecase

import (
	"context"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// CallWithRetry is exported for testing
func CallWithRetry(ctx context.Context, policy RetryPolicy, call func(ctx context.Context) (types.Outcome, error)) (types.Outcome, error) {
	return callWithRetry(ctx, policy, "test", call)
}

// SetNow replaces the clock of the command use case for testing
func (uc *CommandUseCase) SetNow(now func() time.Time) {
	uc.now = now
}

// SetNow replaces the clock of the deduplicator for testing
func (d *Deduplicator) SetNow(now func() time.Time) {
	d.now = now
}

// NopExtractor is exported for testing
type NopExtractor = nopExtractor
