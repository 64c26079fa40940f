package errutil

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var transientMarkers = []string{
	"429",
	"resource_exhausted",
	"rate limit",
	"quota",
	"500",
	"502",
	"503",
	"504",
	"unavailable",
	"deadline exceeded",
	"timeout",
}

// IsTransient reports whether an error from an external Google service is
// worth retrying: timeouts, rate limits and server side failures.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded, codes.ResourceExhausted, codes.Unavailable, codes.Aborted, codes.Internal:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// Errors surfaced by the Gemini SDK carry the HTTP status only in the message
	msg := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
