package safe

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// Close closes c and logs a failure with the given resource name. Nil closers are ignored.
func Close(ctx context.Context, c io.Closer, resource string) {
	if c == nil {
		return
	}
	if err := c.Close(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.String("resource", resource), slog.Any("error", err))
	}
}

// WriteJSON encodes v as the response body. Encoding failures after the header is
// committed can only be logged.
func WriteJSON(ctx context.Context, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.From(ctx).Error("Failed to write response", slog.Any("error", err))
	}
}
