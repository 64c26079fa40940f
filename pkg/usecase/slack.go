package usecase

import (
	"context"

	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/domain/model/slack"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
	"github.com/slack-go/slack/slackevents"
)

// SlackUseCases turns Slack Events API callbacks into message events
type SlackUseCases struct {
	registry  *model.TenantRegistry
	processor *Processor
}

// NewSlackUseCases creates a new SlackUseCases instance
func NewSlackUseCases(registry *model.TenantRegistry, processor *Processor) *SlackUseCases {
	return &SlackUseCases{
		registry:  registry,
		processor: processor,
	}
}

// HandleSlackEvent routes a direct message to the tenant monitoring the Slack
// team and queues it. Everything else is ignored. Redeliveries are queued as
// well; the deduplicator recognizes them by message ID.
func (uc *SlackUseCases) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	logger := logging.From(ctx)

	msg := slack.NewMessage(event)
	if msg == nil {
		logger.Debug("ignoring unsupported slack event", "type", event.Type, "innerType", event.InnerEvent.Type)
		return nil
	}

	tenant, err := uc.registry.FindBySlackTeam(msg.TeamID())
	if err != nil {
		logger.Warn("dropping slack event of unknown team", "team_id", msg.TeamID())
		return nil
	}

	if !msg.IsInbound(tenant.SlackUserID) {
		return nil
	}

	ev, err := msg.ToMessageEvent(tenant.ID)
	if err != nil {
		logger.Warn("dropping malformed slack message",
			TenantIDKey, tenant.ID,
			MessageIDKey, msg.ID(),
			"error", err.Error(),
		)
		return nil
	}

	if _, err := uc.processor.Submit(ctx, ev); err != nil {
		return err
	}
	return nil
}
