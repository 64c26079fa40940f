package model_test

import (
	"errors"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/domain/model"
)

func TestNewTenantRegistry(t *testing.T) {
	reg := model.NewTenantRegistry()
	gt.Value(t, reg).NotNil()
	gt.Array(t, reg.List()).Length(0)
	gt.Array(t, reg.IDs()).Length(0)
}

func TestTenantRegistry_RegisterMultiple(t *testing.T) {
	reg := model.NewTenantRegistry()

	reg.Register(&model.Tenant{ID: "sales", Name: "Sales", SlackTeamID: "T001"})
	reg.Register(&model.Tenant{ID: "events", Name: "Events", SlackTeamID: "T002"})

	gt.Array(t, reg.List()).Length(2)

	// Verify registration order is preserved
	ids := reg.IDs()
	gt.Value(t, ids[0].String()).Equal("sales")
	gt.Value(t, ids[1].String()).Equal("events")
}

func TestTenantRegistry_RegisterOverwrite(t *testing.T) {
	reg := model.NewTenantRegistry()

	reg.Register(&model.Tenant{ID: "sales", Name: "Old", SlackTeamID: "T001"})
	reg.Register(&model.Tenant{ID: "sales", Name: "New", SlackTeamID: "T009"})

	gt.Array(t, reg.List()).Length(1)
	tenant, err := reg.Get("sales")
	gt.NoError(t, err).Required()
	gt.Value(t, tenant.Name).Equal("New")

	_, err = reg.FindBySlackTeam("T001")
	gt.B(t, errors.Is(err, model.ErrTenantNotFound)).True()

	found, err := reg.FindBySlackTeam("T009")
	gt.NoError(t, err).Required()
	gt.Value(t, found.ID.String()).Equal("sales")
}

func TestTenantRegistry_GetNotFound(t *testing.T) {
	reg := model.NewTenantRegistry()

	_, err := reg.Get("missing")
	gt.Error(t, err)
	gt.B(t, errors.Is(err, model.ErrTenantNotFound)).True()
}

func TestTenant_Settings(t *testing.T) {
	tenant := &model.Tenant{ID: "sales"}
	gt.B(t, tenant.ExportConfigured()).False()
	gt.N(t, tenant.EffectiveExcerptCap()).Equal(model.DefaultExcerptCap)

	tenant.SpreadsheetID = "sheet-id"
	tenant.ExcerptCap = 3
	gt.B(t, tenant.ExportConfigured()).True()
	gt.N(t, tenant.EffectiveExcerptCap()).Equal(3)
}
