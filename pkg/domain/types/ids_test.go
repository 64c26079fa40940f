package types_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

func TestTenantID_Validate(t *testing.T) {
	tests := []struct {
		name    string
		id      types.TenantID
		wantErr bool
	}{
		{name: "plain", id: "acme"},
		{name: "with dash", id: "acme-sales"},
		{name: "empty", id: "", wantErr: true},
		{name: "blank", id: "   ", wantErr: true},
		{name: "slash", id: "a/b", wantErr: true},
		{name: "colon", id: "a:b", wantErr: true},
		{name: "dot dot", id: "..", wantErr: true},
		{name: "too long", id: types.TenantID(strings.Repeat("x", 129)), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.id.Validate()
			if tt.wantErr {
				gt.Error(t, err)
				gt.B(t, errors.Is(err, types.ErrInvalidTenantID)).True()
				return
			}
			gt.NoError(t, err)
		})
	}
}

func TestCounterpartID_Validate(t *testing.T) {
	gt.NoError(t, types.CounterpartID("U012ABCDEF").Validate())

	err := types.CounterpartID("").Validate()
	gt.Error(t, err)
	gt.B(t, errors.Is(err, types.ErrInvalidCounterpartID)).True()
}
