package types_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

func TestParseEditableField(t *testing.T) {
	for _, f := range types.AllEditableFields() {
		t.Run(f.String(), func(t *testing.T) {
			got, err := types.ParseEditableField(f.String())
			gt.NoError(t, err)
			gt.V(t, got).Equal(f)
		})
	}

	t.Run("identity fields are rejected", func(t *testing.T) {
		for _, name := range []string{"tenant_id", "counterpart_id", "first_seen", "status", "synced", ""} {
			_, err := types.ParseEditableField(name)
			gt.Error(t, err)
			gt.B(t, errors.Is(err, types.ErrUnknownField)).True()
		}
	})
}

func TestOutcome_Retryable(t *testing.T) {
	gt.B(t, types.OutcomeTransient.Retryable()).True()
	gt.B(t, types.OutcomePermanent.Retryable()).False()
	gt.B(t, types.OutcomeSuccess.Retryable()).False()
}

func TestEventState_IsTerminal(t *testing.T) {
	gt.B(t, types.EventStateStored.IsTerminal()).True()
	gt.B(t, types.EventStateDropped.IsTerminal()).True()
	gt.B(t, types.EventStateReceived.IsTerminal()).False()
	gt.B(t, types.EventStateDeduplicated.IsTerminal()).False()
}
