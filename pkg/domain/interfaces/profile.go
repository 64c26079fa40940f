package interfaces

import (
	"context"

	"github.com/secmon-lab/contrack/pkg/domain/model"
)

// ProfileLookup resolves a counterpart's public profile at the event source
type ProfileLookup interface {
	LookupProfile(ctx context.Context, userID string) (*model.Profile, error)
}
