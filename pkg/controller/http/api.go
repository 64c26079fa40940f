package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/usecase"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
	"github.com/secmon-lab/contrack/pkg/utils/safe"
)

// DefaultTagLookback is used when a tag request names no window
const DefaultTagLookback = 24 * time.Hour

// ContactCommands is the set of manual operations exposed over HTTP
type ContactCommands interface {
	TagRecent(ctx context.Context, tenantID types.TenantID, eventTag string, lookback time.Duration) (int, error)
	EditContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID, field types.EditableField, value string) (*model.Contact, error)
	ReEnrich(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error)
	ForceExport(ctx context.Context, tenantID types.TenantID) (*model.SyncReport, error)
	GetStats(ctx context.Context, tenantID types.TenantID) (*model.Stats, error)
	DeleteContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) error
	GetContact(ctx context.Context, tenantID types.TenantID, counterpartID types.CounterpartID) (*model.Contact, error)
	ListContacts(ctx context.Context, tenantID types.TenantID, statuses ...types.ContactStatus) ([]*model.Contact, error)
}

var _ ContactCommands = (*usecase.CommandUseCase)(nil)

type apiHandler struct {
	commands ContactCommands
	registry *model.TenantRegistry
}

type tenantResponse struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	ExportConfigured bool   `json:"export_configured"`
	AutoExport       bool   `json:"auto_export"`
}

type excerptResponse struct {
	MessageID string    `json:"message_id"`
	Text      string    `json:"text"`
	SentAt    time.Time `json:"sent_at"`
}

type contactResponse struct {
	Key            string            `json:"key"`
	TenantID       string            `json:"tenant_id"`
	CounterpartID  string            `json:"counterpart_id"`
	DisplayName    string            `json:"display_name"`
	Handle         string            `json:"handle"`
	Bio            string            `json:"bio"`
	Company        *string           `json:"company"`
	Role           *string           `json:"role"`
	Topics         []string          `json:"topics"`
	Excerpt        []excerptResponse `json:"excerpt"`
	Notes          string            `json:"notes"`
	EventTag       string            `json:"event_tag"`
	FirstSeen      time.Time         `json:"first_seen"`
	LastContact    time.Time         `json:"last_contact"`
	Status         string            `json:"status"`
	Synced         bool              `json:"synced"`
	RowRef         string            `json:"row_ref,omitempty"`
	SyncedAt       *time.Time        `json:"synced_at,omitempty"`
	LastError      string            `json:"last_error,omitempty"`
	EnrichAttempts int               `json:"enrich_attempts"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func toContactResponse(c *model.Contact) contactResponse {
	excerpt := make([]excerptResponse, len(c.Excerpt))
	for i, m := range c.Excerpt {
		excerpt[i] = excerptResponse{MessageID: m.MessageID, Text: m.Text, SentAt: m.SentAt}
	}
	topics := c.Topics
	if topics == nil {
		topics = []string{}
	}
	return contactResponse{
		Key:            c.Key(),
		TenantID:       c.TenantID.String(),
		CounterpartID:  c.CounterpartID.String(),
		DisplayName:    c.DisplayName,
		Handle:         c.Handle,
		Bio:            c.Bio,
		Company:        c.Company,
		Role:           c.Role,
		Topics:         topics,
		Excerpt:        excerpt,
		Notes:          c.Notes,
		EventTag:       c.EventTag,
		FirstSeen:      c.FirstSeen,
		LastContact:    c.LastContact,
		Status:         c.Status.String(),
		Synced:         c.Synced,
		RowRef:         c.RowRef,
		SyncedAt:       c.SyncedAt,
		LastError:      c.LastError,
		EnrichAttempts: c.EnrichAttempts,
		UpdatedAt:      c.UpdatedAt,
	}
}

func (h *apiHandler) listTenants(w http.ResponseWriter, r *http.Request) {
	type response struct {
		Tenants []tenantResponse `json:"tenants"`
	}

	tenants := h.registry.List()
	resp := response{Tenants: make([]tenantResponse, len(tenants))}
	for i, t := range tenants {
		resp.Tenants[i] = tenantResponse{
			ID:               t.ID.String(),
			Name:             t.Name,
			ExportConfigured: t.ExportConfigured(),
			AutoExport:       t.AutoExport,
		}
	}
	safe.WriteJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *apiHandler) listContacts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var statuses []types.ContactStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			status, err := types.ParseContactStatus(strings.TrimSpace(s))
			if err != nil {
				errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid status filter"), http.StatusBadRequest)
				return
			}
			statuses = append(statuses, status)
		}
	}

	contacts, err := h.commands.ListContacts(ctx, tenantParam(r), statuses...)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}

	resp := struct {
		Contacts []contactResponse `json:"contacts"`
	}{Contacts: make([]contactResponse, len(contacts))}
	for i, c := range contacts {
		resp.Contacts[i] = toContactResponse(c)
	}
	safe.WriteJSON(ctx, w, http.StatusOK, resp)
}

func (h *apiHandler) getContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.commands.GetContact(ctx, tenantParam(r), counterpartParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, toContactResponse(c))
}

func (h *apiHandler) editContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Field string `json:"field"`
		Value string `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	field, err := types.ParseEditableField(req.Field)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, http.StatusBadRequest)
		return
	}

	c, err := h.commands.EditContact(ctx, tenantParam(r), counterpartParam(r), field, req.Value)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, toContactResponse(c))
}

func (h *apiHandler) deleteContact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.commands.DeleteContact(ctx, tenantParam(r), counterpartParam(r)); err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *apiHandler) reEnrich(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	c, err := h.commands.ReEnrich(ctx, tenantParam(r), counterpartParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, toContactResponse(c))
}

func (h *apiHandler) forceExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.commands.ForceExport(ctx, tenantParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, report)
}

func (h *apiHandler) tagRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		EventTag      string `json:"event_tag"`
		LookbackHours *int   `json:"lookback_hours"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errutil.HandleHTTP(ctx, w, goerr.Wrap(err, "invalid request body"), http.StatusBadRequest)
		return
	}

	lookback := DefaultTagLookback
	if req.LookbackHours != nil {
		lookback = time.Duration(*req.LookbackHours) * time.Hour
	}

	n, err := h.commands.TagRecent(ctx, tenantParam(r), req.EventTag, lookback)
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, map[string]int{"tagged": n})
}

func (h *apiHandler) getStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	stats, err := h.commands.GetStats(ctx, tenantParam(r))
	if err != nil {
		errutil.HandleHTTP(ctx, w, err, statusOf(err))
		return
	}
	safe.WriteJSON(ctx, w, http.StatusOK, stats)
}

func tenantParam(r *http.Request) types.TenantID {
	return types.TenantID(chi.URLParam(r, "tenant"))
}

func counterpartParam(r *http.Request) types.CounterpartID {
	return types.CounterpartID(chi.URLParam(r, "counterpart"))
}

// statusOf maps use case errors to HTTP status codes
func statusOf(err error) int {
	switch {
	case errors.Is(err, model.ErrTenantNotFound), errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, types.ErrUnknownField),
		errors.Is(err, usecase.ErrEmptyEventTag),
		errors.Is(err, usecase.ErrInvalidLookback):
		return http.StatusBadRequest
	case errors.Is(err, usecase.ErrEnrichmentInFlight), errors.Is(err, usecase.ErrContactLocked):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
