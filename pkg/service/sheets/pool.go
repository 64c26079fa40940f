package sheets

import (
	"context"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
)

// sessionPool keeps a fixed number of sessions per tenant. Sessions are
// created lazily on the first borrow for a tenant.
type sessionPool struct {
	mu      sync.Mutex
	size    int
	create  func(*model.Tenant) *session
	tenants map[types.TenantID]chan *session
}

func newSessionPool(size int, create func(*model.Tenant) *session) *sessionPool {
	return &sessionPool{
		size:    size,
		create:  create,
		tenants: make(map[types.TenantID]chan *session),
	}
}

func (p *sessionPool) slots(tenant *model.Tenant) chan *session {
	p.mu.Lock()
	defer p.mu.Unlock()

	ch, ok := p.tenants[tenant.ID]
	if !ok {
		ch = make(chan *session, p.size)
		for i := 0; i < p.size; i++ {
			ch <- p.create(tenant)
		}
		p.tenants[tenant.ID] = ch
	}
	return ch
}

func (p *sessionPool) acquire(ctx context.Context, tenant *model.Tenant) (*session, error) {
	ch := p.slots(tenant)
	select {
	case s := <-ch:
		// Spreadsheet settings may change between borrows
		s.spreadsheetID = tenant.SpreadsheetID
		if tenant.SheetName != "" && tenant.SheetName != s.sheetName {
			s.sheetName = tenant.SheetName
			s.headerReady = false
		}
		return s, nil
	case <-ctx.Done():
		return nil, goerr.Wrap(ctx.Err(), "waiting for export session",
			goerr.V("tenant_id", tenant.ID))
	}
}

func (p *sessionPool) release(tenantID types.TenantID, s *session) {
	p.mu.Lock()
	ch, ok := p.tenants[tenantID]
	p.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- s:
	default:
		// Released more often than borrowed; drop the extra session
	}
}
