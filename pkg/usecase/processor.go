package usecase

import (
	"context"
	"errors"
	"sync"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// DefaultLaneBuffer is the number of events queued per tenant before Submit blocks
const DefaultLaneBuffer = 256

// Processor drives inbound message events through dedup, enrichment and sync.
// Every tenant has one lane that records its events in arrival order.
// Enrichment and sync run as separate tasks so a slow external call never
// holds up the lane.
type Processor struct {
	registry   *model.TenantRegistry
	dedup      *Deduplicator
	enricher   *Enricher
	syncer     *SyncEngine
	laneBuffer int

	baseCtx context.Context
	cancel  context.CancelFunc

	stateMu sync.RWMutex
	stopped bool

	lanesMu sync.Mutex
	lanes   map[types.TenantID]chan *laneItem
	laneWG  sync.WaitGroup
	tasks   sync.WaitGroup

	syncMu    sync.Mutex
	syncState map[types.TenantID]*syncFlag
}

type laneItem struct {
	ctx    context.Context
	event  *model.MessageEvent
	result chan laneResult
}

type laneResult struct {
	state types.EventState
	err   error
}

type syncFlag struct {
	running bool
	pending bool
}

// ProcessorOption configures a Processor
type ProcessorOption func(*Processor)

// WithLaneBuffer sets the per-tenant queue length
func WithLaneBuffer(n int) ProcessorOption {
	return func(p *Processor) {
		if n > 0 {
			p.laneBuffer = n
		}
	}
}

// NewProcessor creates a new Processor
func NewProcessor(registry *model.TenantRegistry, dedup *Deduplicator, enricher *Enricher, syncer *SyncEngine, opts ...ProcessorOption) *Processor {
	baseCtx, cancel := context.WithCancel(context.Background())
	p := &Processor{
		registry:   registry,
		dedup:      dedup,
		enricher:   enricher,
		syncer:     syncer,
		laneBuffer: DefaultLaneBuffer,
		baseCtx:    baseCtx,
		cancel:     cancel,
		lanes:      make(map[types.TenantID]chan *laneItem),
		syncState:  make(map[types.TenantID]*syncFlag),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start recovers contacts left unfinished by a previous run: leases are
// released and contacts still NEW or ENRICHING are enriched again. Tenants
// with unsynced contacts get a sync pass.
func (p *Processor) Start(ctx context.Context) error {
	logger := logging.From(ctx)

	for _, tenant := range p.registry.List() {
		pending, err := p.dedup.repo.Contact().ListByStatus(ctx, tenant.ID,
			types.ContactStatusNew, types.ContactStatusEnriching)
		if err != nil {
			return goerr.Wrap(err, "failed to list contacts pending enrichment", goerr.V(TenantIDKey, tenant.ID))
		}

		for _, c := range pending {
			if err := p.enricher.ReleaseLease(ctx, c.TenantID, c.CounterpartID); err != nil {
				return err
			}
			p.dispatchEnrich(tenant, c.CounterpartID, false)
		}

		if len(pending) > 0 {
			logger.Info("resubmitted contacts pending enrichment",
				TenantIDKey, tenant.ID,
				"count", len(pending),
			)
		}

		if tenant.AutoExport && p.syncer.Configured(tenant) {
			p.RequestSync(tenant.ID)
		}
	}

	return nil
}

// Stop closes every lane, lets queued events finish and waits for running
// tasks. When ctx ends first the remaining tasks are cancelled; interrupted
// enrichments release their lease and are picked up by the next Start.
func (p *Processor) Stop(ctx context.Context) error {
	p.stateMu.Lock()
	if p.stopped {
		p.stateMu.Unlock()
		return nil
	}
	p.stopped = true
	p.lanesMu.Lock()
	for _, ch := range p.lanes {
		close(ch)
	}
	p.lanesMu.Unlock()
	p.stateMu.Unlock()

	done := make(chan struct{})
	go func() {
		p.laneWG.Wait()
		p.tasks.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return goerr.Wrap(ctx.Err(), "processor stop deadline exceeded")
	}
}

// Submit queues ev on its tenant's lane and returns without waiting for it to
// be recorded. Malformed events and events of unknown tenants are dropped.
func (p *Processor) Submit(ctx context.Context, ev *model.MessageEvent) (types.EventState, error) {
	if state, ok := p.admit(ctx, ev); !ok {
		return state, nil
	}
	if err := p.enqueue(ctx, &laneItem{ctx: p.baseCtx, event: ev}); err != nil {
		return types.EventStateReceived, err
	}
	return types.EventStateReceived, nil
}

// Handle queues ev and waits until it is recorded. It returns STORED once the
// contact row reflects the message, or DROPPED for events that can never be
// processed.
func (p *Processor) Handle(ctx context.Context, ev *model.MessageEvent) (types.EventState, error) {
	if state, ok := p.admit(ctx, ev); !ok {
		return state, nil
	}

	item := &laneItem{ctx: ctx, event: ev, result: make(chan laneResult, 1)}
	if err := p.enqueue(ctx, item); err != nil {
		return types.EventStateReceived, err
	}

	select {
	case res := <-item.result:
		return res.state, res.err
	case <-ctx.Done():
		return types.EventStateReceived, ctx.Err()
	}
}

// RequestSync schedules a sync pass for the tenant. Requests made while a
// pass is running collapse into one follow-up pass.
func (p *Processor) RequestSync(tenantID types.TenantID) {
	p.syncMu.Lock()
	flag, ok := p.syncState[tenantID]
	if !ok {
		flag = &syncFlag{}
		p.syncState[tenantID] = flag
	}
	if flag.running {
		flag.pending = true
		p.syncMu.Unlock()
		return
	}
	flag.running = true
	p.syncMu.Unlock()

	p.dispatch(func(ctx context.Context) {
		for {
			if _, err := p.syncer.SyncPending(ctx, tenantID); err != nil {
				_ = errutil.Handle(ctx, err, "sync pass failed")
			}

			p.syncMu.Lock()
			if !flag.pending || ctx.Err() != nil {
				flag.running = false
				flag.pending = false
				p.syncMu.Unlock()
				return
			}
			flag.pending = false
			p.syncMu.Unlock()
		}
	})
}

// Wait blocks until every dispatched task has finished. Lanes stay open.
func (p *Processor) Wait() {
	p.tasks.Wait()
}

func (p *Processor) admit(ctx context.Context, ev *model.MessageEvent) (types.EventState, bool) {
	if err := ev.Validate(); err != nil {
		logging.From(ctx).Warn("dropping malformed event", "error", err.Error())
		return types.EventStateDropped, false
	}
	if _, err := p.registry.Get(ev.TenantID); err != nil {
		logging.From(ctx).Warn("dropping event of unknown tenant", TenantIDKey, ev.TenantID)
		return types.EventStateDropped, false
	}
	return types.EventStateReceived, true
}

func (p *Processor) enqueue(ctx context.Context, item *laneItem) error {
	p.stateMu.RLock()
	defer p.stateMu.RUnlock()
	if p.stopped {
		return goerr.Wrap(ErrProcessorStopped, "cannot accept event",
			goerr.V(TenantIDKey, item.event.TenantID))
	}

	ch := p.lane(item.event.TenantID)
	select {
	case ch <- item:
		return nil
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "event queue full",
			goerr.V(TenantIDKey, item.event.TenantID))
	}
}

func (p *Processor) lane(tenantID types.TenantID) chan *laneItem {
	p.lanesMu.Lock()
	defer p.lanesMu.Unlock()

	ch, ok := p.lanes[tenantID]
	if ok {
		return ch
	}

	ch = make(chan *laneItem, p.laneBuffer)
	p.lanes[tenantID] = ch
	p.laneWG.Add(1)
	go p.runLane(ch)
	return ch
}

func (p *Processor) runLane(ch chan *laneItem) {
	defer p.laneWG.Done()
	for item := range ch {
		state, err := p.record(item.ctx, item.event)
		if err != nil && item.result == nil {
			_ = errutil.Handle(p.baseCtx, err, "failed to record message event")
		}
		if item.result != nil {
			item.result <- laneResult{state: state, err: err}
		}
	}
}

func (p *Processor) record(ctx context.Context, ev *model.MessageEvent) (types.EventState, error) {
	tenant, err := p.registry.Get(ev.TenantID)
	if err != nil {
		return types.EventStateDropped, nil
	}

	obs, err := p.dedup.Observe(ctx, ev, tenant.EffectiveExcerptCap())
	if errors.Is(err, model.ErrMalformedEvent) {
		return types.EventStateDropped, nil
	}
	if err != nil {
		return types.EventStateDeduplicated, err
	}

	if obs.IsNew {
		p.dispatchEnrich(tenant, ev.CounterpartID, false)
	}
	return types.EventStateStored, nil
}

func (p *Processor) dispatchEnrich(tenant *model.Tenant, counterpartID types.CounterpartID, force bool) {
	p.dispatch(func(ctx context.Context) {
		_, err := p.enricher.Enrich(ctx, tenant.ID, counterpartID, force)
		switch {
		case errors.Is(err, ErrEnrichmentInFlight), errors.Is(err, ErrContactLocked):
			logging.From(ctx).Debug("enrichment already running",
				TenantIDKey, tenant.ID,
				CounterpartIDKey, counterpartID,
			)
			return
		case err != nil:
			if ctx.Err() == nil {
				_ = errutil.Handle(ctx, err, "enrichment failed")
			}
			return
		}

		if tenant.AutoExport {
			p.RequestSync(tenant.ID)
		}
	})
}

func (p *Processor) dispatch(task func(ctx context.Context)) {
	ctx := p.baseCtx
	p.tasks.Add(1)
	go func() {
		defer p.tasks.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.From(ctx).Error("panic in processor task", "panic", r)
			}
		}()
		task(ctx)
	}()
}
