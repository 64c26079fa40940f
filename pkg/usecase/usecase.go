package usecase

import (
	"context"

	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
)

// UseCases wires the contact pipeline together
type UseCases struct {
	repo      interfaces.Repository
	registry  *model.TenantRegistry
	extractor interfaces.Extractor
	target    interfaces.ExportTarget

	enricherOpts  []EnricherOption
	syncOpts      []SyncOption
	processorOpts []ProcessorOption

	Dedup     *Deduplicator
	Enricher  *Enricher
	Sync      *SyncEngine
	Processor *Processor
	Command   *CommandUseCase
	Slack     *SlackUseCases
}

type Option func(*UseCases)

// WithExtractor sets the extraction service. Without one, contacts are
// marked enriched with empty fields.
func WithExtractor(extractor interfaces.Extractor) Option {
	return func(uc *UseCases) {
		uc.extractor = extractor
	}
}

// WithExportTarget sets the export target. Without one, no tenant is
// configured for export.
func WithExportTarget(target interfaces.ExportTarget) Option {
	return func(uc *UseCases) {
		uc.target = target
	}
}

func WithEnricherOptions(opts ...EnricherOption) Option {
	return func(uc *UseCases) {
		uc.enricherOpts = append(uc.enricherOpts, opts...)
	}
}

func WithSyncOptions(opts ...SyncOption) Option {
	return func(uc *UseCases) {
		uc.syncOpts = append(uc.syncOpts, opts...)
	}
}

func WithProcessorOptions(opts ...ProcessorOption) Option {
	return func(uc *UseCases) {
		uc.processorOpts = append(uc.processorOpts, opts...)
	}
}

func New(repo interfaces.Repository, registry *model.TenantRegistry, opts ...Option) *UseCases {
	uc := &UseCases{
		repo:     repo,
		registry: registry,
	}

	for _, opt := range opts {
		opt(uc)
	}

	extractor := uc.extractor
	if extractor == nil {
		extractor = nopExtractor{}
	}

	uc.Dedup = NewDeduplicator(repo)
	uc.Enricher = NewEnricher(repo, extractor, uc.enricherOpts...)
	uc.Sync = NewSyncEngine(repo, registry, uc.target, uc.syncOpts...)
	uc.Processor = NewProcessor(registry, uc.Dedup, uc.Enricher, uc.Sync, uc.processorOpts...)
	uc.Command = NewCommandUseCase(repo, registry, uc.Enricher, uc.Sync)
	uc.Slack = NewSlackUseCases(registry, uc.Processor)

	return uc
}

// Registry returns the tenant registry
func (uc *UseCases) Registry() *model.TenantRegistry {
	return uc.registry
}

type nopExtractor struct{}

func (nopExtractor) Extract(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
	return model.ExtractionSucceeded(&model.ExtractionResult{})
}
