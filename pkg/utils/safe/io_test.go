package safe_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/utils/safe"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestClose(t *testing.T) {
	called := false
	safe.Close(context.Background(), closerFunc(func() error {
		called = true
		return errors.New("already closed")
	}), "test")
	gt.B(t, called).True()

	safe.Close(context.Background(), nil, "nil closer")
}

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	safe.WriteJSON(context.Background(), w, http.StatusAccepted, map[string]int{"succeeded": 2})

	gt.N(t, w.Code).Equal(http.StatusAccepted)
	gt.S(t, w.Header().Get("Content-Type")).Equal("application/json")
	gt.S(t, w.Body.String()).Contains(`"succeeded":2`)
}
