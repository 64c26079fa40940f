package config

import (
	"log/slog"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/types"
	"github.com/secmon-lab/contrack/pkg/service/slack"
	"github.com/secmon-lab/contrack/pkg/usecase"
	"github.com/urfave/cli/v3"
)

type Slack struct {
	botToken      string
	signingSecret string
	profileTTL    time.Duration
}

func (x *Slack) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "slack-bot-token",
			Usage:       "Slack Bot User OAuth Token used to fetch counterpart profiles. Tenants may override it.",
			Category:    "Slack",
			Destination: &x.botToken,
			Sources:     cli.EnvVars("CONTRACK_SLACK_BOT_TOKEN"),
		},
		&cli.StringFlag{
			Name:        "slack-signing-secret",
			Usage:       "Slack Signing Secret (for webhook verification)",
			Category:    "Slack",
			Destination: &x.signingSecret,
			Sources:     cli.EnvVars("CONTRACK_SLACK_SIGNING_SECRET"),
		},
		&cli.DurationFlag{
			Name:        "slack-profile-ttl",
			Usage:       "How long a fetched Slack profile is reused",
			Category:    "Slack",
			Value:       slack.DefaultCacheTTL,
			Destination: &x.profileTTL,
			Sources:     cli.EnvVars("CONTRACK_SLACK_PROFILE_TTL"),
		},
	}
}

func (x Slack) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("bot-token.len", len(x.botToken)),
		slog.Int("signing-secret.len", len(x.signingSecret)),
		slog.Duration("profile-ttl", x.profileTTL),
	)
}

// IsWebhookConfigured checks if Slack webhook is configured
func (x *Slack) IsWebhookConfigured() bool {
	return x.signingSecret != ""
}

// SigningSecret returns the Slack signing secret
func (x *Slack) SigningSecret() string {
	return x.signingSecret
}

// BotToken returns the default Slack bot token
func (x *Slack) BotToken() string {
	return x.botToken
}

// ProfileLookups builds one profile client per Slack tenant. A tenant's own
// bot token wins over the default one; tenants without any token get none and
// keep the profile carried by the event.
func (x *Slack) ProfileLookups(tenants []TenantConfig) ([]usecase.EnricherOption, error) {
	var opts []usecase.EnricherOption
	for _, t := range tenants {
		if t.SlackTeamID == "" {
			continue
		}
		token := t.SlackBotToken
		if token == "" {
			token = x.botToken
		}
		if token == "" {
			continue
		}

		client, err := slack.New(token, slack.WithCacheTTL(x.profileTTL))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create slack client", goerr.V(TenantIDKey, t.ID))
		}
		opts = append(opts, usecase.WithProfileLookup(types.TenantID(t.ID), client))
	}
	return opts, nil
}
