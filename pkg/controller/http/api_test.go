package http_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	httpctrl "github.com/secmon-lab/contrack/pkg/controller/http"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/repository/memory"
	"github.com/secmon-lab/contrack/pkg/usecase"
)

type apiFixture struct {
	repo   *memory.Memory
	server *httpctrl.Server
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	registry := model.NewTenantRegistry()
	registry.Register(&model.Tenant{
		ID:          "acme",
		Name:        "Acme",
		SlackTeamID: "T111",
		AutoExport:  true,
	})
	repo := memory.New()
	uc := usecase.New(repo, registry)
	t.Cleanup(func() {
		gt.NoError(t, uc.Processor.Stop(context.Background()))
	})

	now := time.Now().UTC()
	for i, id := range []types.CounterpartID{"U1", "U2"} {
		ev := &model.MessageEvent{
			TenantID:      "acme",
			CounterpartID: id,
			MessageID:     "D1:" + id.String(),
			Profile:       model.Profile{Name: "User " + id.String()},
			Text:          "hello",
			Timestamp:     now.Add(-time.Duration(i) * time.Hour),
		}
		gt.NoError(t, repo.Contact().Insert(context.Background(), model.NewContactFromEvent(ev, now))).Required()
	}

	return &apiFixture{
		repo:   repo,
		server: httpctrl.New(httpctrl.WithAPI(uc.Command, registry)),
	}
}

func (f *apiFixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

type contactBody struct {
	CounterpartID string  `json:"counterpart_id"`
	DisplayName   string  `json:"display_name"`
	Company       *string `json:"company"`
	EventTag      string  `json:"event_tag"`
	Status        string  `json:"status"`
	Synced        bool    `json:"synced"`
}

func TestAPI_Tenants(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodGet, "/api/tenants", "")
	gt.V(t, rec.Code).Equal(http.StatusOK)

	var resp struct {
		Tenants []struct {
			ID               string `json:"id"`
			ExportConfigured bool   `json:"export_configured"`
			AutoExport       bool   `json:"auto_export"`
		} `json:"tenants"`
	}
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
	gt.A(t, resp.Tenants).Length(1).Required()
	gt.V(t, resp.Tenants[0].ID).Equal("acme")
	gt.B(t, resp.Tenants[0].ExportConfigured).False()
	gt.B(t, resp.Tenants[0].AutoExport).True()
}

func TestAPI_Contacts(t *testing.T) {
	t.Run("list", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/acme/contacts", "")
		gt.V(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Contacts []contactBody `json:"contacts"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.A(t, resp.Contacts).Length(2)
	})

	t.Run("list by status", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/acme/contacts?status=ENRICHED,SYNCED", "")
		gt.V(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Contacts []contactBody `json:"contacts"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.A(t, resp.Contacts).Length(0)
	})

	t.Run("invalid status filter", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/acme/contacts?status=DONE", "")
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/nobody/contacts", "")
		gt.V(t, rec.Code).Equal(http.StatusNotFound)
	})

	t.Run("get", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/acme/contacts/U1", "")
		gt.V(t, rec.Code).Equal(http.StatusOK)

		var c contactBody
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c)).Required()
		gt.V(t, c.CounterpartID).Equal("U1")
		gt.V(t, c.DisplayName).Equal("User U1")
		gt.V(t, c.Status).Equal("NEW")
		gt.Value(t, c.Company).Nil()
	})

	t.Run("get missing contact", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodGet, "/api/tenants/acme/contacts/U404", "")
		gt.V(t, rec.Code).Equal(http.StatusNotFound)
	})
}

func TestAPI_EditContact(t *testing.T) {
	t.Run("sets an editable field", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPatch, "/api/tenants/acme/contacts/U1", `{"field":"company","value":"Initech"}`)
		gt.V(t, rec.Code).Equal(http.StatusOK)

		var c contactBody
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c)).Required()
		gt.Value(t, c.Company).NotNil().Required()
		gt.V(t, *c.Company).Equal("Initech")
		gt.B(t, c.Synced).False()

		stored, err := f.repo.Contact().Get(context.Background(), "acme", "U1")
		gt.NoError(t, err).Required()
		gt.V(t, model.StringValue(stored.Company)).Equal("Initech")
	})

	t.Run("rejects immutable field", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPatch, "/api/tenants/acme/contacts/U1", `{"field":"first_seen","value":"x"}`)
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("rejects broken body", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPatch, "/api/tenants/acme/contacts/U1", `{`)
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("missing contact", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPatch, "/api/tenants/acme/contacts/U404", `{"field":"notes","value":"x"}`)
		gt.V(t, rec.Code).Equal(http.StatusNotFound)
	})
}

func TestAPI_DeleteContact(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodDelete, "/api/tenants/acme/contacts/U1", "")
	gt.V(t, rec.Code).Equal(http.StatusNoContent)

	_, err := f.repo.Contact().Get(context.Background(), "acme", "U1")
	gt.Error(t, err)

	rec = f.do(t, http.MethodDelete, "/api/tenants/acme/contacts/U1", "")
	gt.V(t, rec.Code).Equal(http.StatusNotFound)
}

func TestAPI_ReEnrich(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tenants/acme/contacts/U1/enrich", "")
	gt.V(t, rec.Code).Equal(http.StatusOK)

	var c contactBody
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c)).Required()
	gt.V(t, c.Status).Equal("ENRICHED")
}

func TestAPI_Tag(t *testing.T) {
	t.Run("default lookback", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/tenants/acme/tag", `{"event_tag":"KubeCon"}`)
		gt.V(t, rec.Code).Equal(http.StatusOK)

		var resp struct {
			Tagged int `json:"tagged"`
		}
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.N(t, resp.Tagged).Equal(2)

		// already tagged contacts keep their tag
		rec = f.do(t, http.MethodPost, "/api/tenants/acme/tag", `{"event_tag":"Other"}`)
		gt.V(t, rec.Code).Equal(http.StatusOK)
		gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp)).Required()
		gt.N(t, resp.Tagged).Equal(0)
	})

	t.Run("narrow lookback", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/tenants/acme/tag", `{"event_tag":"KubeCon","lookback_hours":1}`)
		gt.V(t, rec.Code).Equal(http.StatusOK)

		c, err := f.repo.Contact().Get(context.Background(), "acme", "U1")
		gt.NoError(t, err).Required()
		gt.V(t, c.EventTag).Equal("KubeCon")
	})

	t.Run("empty tag", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/tenants/acme/tag", `{"event_tag":""}`)
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})

	t.Run("invalid lookback", func(t *testing.T) {
		f := newAPIFixture(t)
		rec := f.do(t, http.MethodPost, "/api/tenants/acme/tag", `{"event_tag":"KubeCon","lookback_hours":0}`)
		gt.V(t, rec.Code).Equal(http.StatusBadRequest)
	})
}

func TestAPI_ExportAndStats(t *testing.T) {
	f := newAPIFixture(t)

	rec := f.do(t, http.MethodPost, "/api/tenants/acme/export", "")
	gt.V(t, rec.Code).Equal(http.StatusOK)
	var report model.SyncReport
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report)).Required()
	gt.B(t, report.Configured).False()

	rec = f.do(t, http.MethodGet, "/api/tenants/acme/stats", "")
	gt.V(t, rec.Code).Equal(http.StatusOK)
	var stats model.Stats
	gt.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats)).Required()
	gt.N(t, stats.Total).Equal(2)
	gt.N(t, stats.ByStatus[types.ContactStatusNew]).Equal(2)

	rec = f.do(t, http.MethodGet, "/api/tenants/nobody/stats", "")
	gt.V(t, rec.Code).Equal(http.StatusNotFound)
}

func TestAPI_Disabled(t *testing.T) {
	server := httpctrl.New()
	rec := httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/tenants", nil))
	gt.V(t, rec.Code).Equal(http.StatusNotFound)

	rec = httptest.NewRecorder()
	server.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	gt.V(t, rec.Code).Equal(http.StatusOK)
}
