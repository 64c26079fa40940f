package interfaces

import (
	"context"

	"github.com/secmon-lab/contrack/pkg/domain/model"
)

// Extractor derives structured fields from a contact's bio and messages.
// Implementations never retry; the caller applies the backoff policy based on
// the reply's Outcome.
type Extractor interface {
	Extract(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply
}
