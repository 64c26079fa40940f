package usecase_test

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/usecase"
)

const (
	tenant1 = types.TenantID("t1")
	tenant2 = types.TenantID("t2")
)

var baseTime = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fastPolicy keeps the shape of the production policy with tiny intervals
func fastPolicy() usecase.RetryPolicy {
	return usecase.RetryPolicy{
		Timeout:         50 * time.Millisecond,
		InitialInterval: time.Millisecond,
		Multiplier:      2,
		MaxAttempts:     5,
	}
}

func newRegistry(autoExport bool) *model.TenantRegistry {
	registry := model.NewTenantRegistry()
	registry.Register(&model.Tenant{
		ID:            tenant1,
		Name:          "Tenant One",
		SlackTeamID:   "T111",
		SlackUserID:   "UOWNER",
		SpreadsheetID: "sheet-1",
		SheetName:     "Contacts",
		AutoExport:    autoExport,
	})
	registry.Register(&model.Tenant{
		ID:          tenant2,
		Name:        "Tenant Two",
		SlackTeamID: "T222",
		AutoExport:  autoExport,
	})
	return registry
}

func newEvent(tenantID types.TenantID, counterpartID, messageID, text string, at time.Time) *model.MessageEvent {
	return &model.MessageEvent{
		TenantID:      tenantID,
		CounterpartID: types.CounterpartID(counterpartID),
		MessageID:     messageID,
		Text:          text,
		Timestamp:     at,
	}
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func strPtr(s string) *string {
	return &s
}

type mockExtractor struct {
	ExtractFn func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply
	calls     atomic.Int32
}

func (m *mockExtractor) Extract(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
	m.calls.Add(1)
	if m.ExtractFn != nil {
		return m.ExtractFn(ctx, input)
	}
	return model.ExtractionSucceeded(&model.ExtractionResult{})
}

func (m *mockExtractor) Calls() int {
	return int(m.calls.Load())
}

// acmeExtractor recognizes Jane from Acme and returns nothing for others
func acmeExtractor() *mockExtractor {
	return &mockExtractor{
		ExtractFn: func(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
			if strings.Contains(input.Bio, "Acme") || strings.Contains(strings.Join(input.Messages, " "), "Acme") {
				return model.ExtractionSucceeded(&model.ExtractionResult{
					Company: strPtr("Acme"),
					Role:    strPtr("VP Eng"),
					Topics:  []string{"intro"},
				})
			}
			return model.ExtractionSucceeded(&model.ExtractionResult{})
		},
	}
}

type sheetRow struct {
	key string
	row model.ExportRow
}

// mockTarget is an in-memory keyed sheet. Row n of the sheet is rows[n-2];
// row 1 holds headers.
type mockTarget struct {
	// UpsertFn may override the reply of an upsert; nil falls through to the sheet
	UpsertFn func(ctx context.Context, row model.ExportRow, rowRef string) *model.ExportReply

	mu       sync.Mutex
	rows     []sheetRow
	appends  int
	upserts  int
	deletes  int
	acquired int
}

var _ interfaces.ExportTarget = (*mockTarget)(nil)

func (m *mockTarget) Acquire(ctx context.Context, tenant *model.Tenant) (interfaces.ExportSession, func(), error) {
	m.mu.Lock()
	m.acquired++
	m.mu.Unlock()
	return &mockSession{target: m}, func() {}, nil
}

func (m *mockTarget) Appends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appends
}

func (m *mockTarget) Upserts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.upserts
}

// Keys returns the keys of non-cleared rows in sheet order
func (m *mockTarget) Keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := []string{}
	for _, r := range m.rows {
		if r.key != "" {
			keys = append(keys, r.key)
		}
	}
	return keys
}

func (m *mockTarget) Row(key string) (model.ExportRow, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.key == key {
			return r.row, true
		}
	}
	return model.ExportRow{}, false
}

type mockSession struct {
	target *mockTarget
}

func (s *mockSession) Upsert(ctx context.Context, row model.ExportRow, rowRef string) model.ExportReply {
	m := s.target
	if m.UpsertFn != nil {
		if reply := m.UpsertFn(ctx, row, rowRef); reply != nil {
			return *reply
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts++

	idx := m.locate(row.Key, rowRef)
	if idx < 0 {
		m.rows = append(m.rows, sheetRow{key: row.Key, row: row})
		m.appends++
		idx = len(m.rows) - 1
	} else {
		m.rows[idx].row = row
	}
	return model.ExportSucceeded(fmt.Sprintf("Contacts!A%d", idx+2))
}

func (s *mockSession) Delete(ctx context.Context, key string, rowRef string) model.ExportReply {
	m := s.target
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx := m.locate(key, rowRef); idx >= 0 {
		m.rows[idx] = sheetRow{}
		m.deletes++
	}
	return model.ExportSucceeded("")
}

func (m *mockTarget) locate(key, rowRef string) int {
	if n, err := strconv.Atoi(strings.TrimPrefix(rowRef, "Contacts!A")); err == nil {
		if idx := n - 2; idx >= 0 && idx < len(m.rows) && m.rows[idx].key == key {
			return idx
		}
	}
	for i, r := range m.rows {
		if r.key == key {
			return i
		}
	}
	return -1
}

type mockProfileLookup struct {
	LookupProfileFn func(ctx context.Context, userID string) (*model.Profile, error)
}

func (m *mockProfileLookup) LookupProfile(ctx context.Context, userID string) (*model.Profile, error) {
	return m.LookupProfileFn(ctx, userID)
}
