package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/service/extractor"
	"github.com/urfave/cli/v3"
)

// Gemini holds configuration for the Gemini LLM client used for extraction
type Gemini struct {
	projectID string
	location  string
}

// Flags returns CLI flags for Gemini configuration
func (g *Gemini) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API. Extraction is disabled when empty.",
			Category:    "Gemini",
			Sources:     cli.EnvVars("CONTRACK_GEMINI_PROJECT"),
			Destination: &g.projectID,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("CONTRACK_GEMINI_LOCATION"),
			Destination: &g.location,
		},
	}
}

func (g Gemini) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("project_id", g.projectID),
		slog.String("location", g.location),
	)
}

// Configure creates a new Gemini LLM client from the configured flags.
// Returns nil if projectID is not configured.
func (g *Gemini) Configure(ctx context.Context) (gollem.LLMClient, error) {
	if g.projectID == "" {
		return nil, nil
	}

	client, err := gemini.New(ctx, g.projectID, g.location)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create Gemini client")
	}

	return client, nil
}

// Extractor builds the contact extractor. It returns nil when Gemini is not
// configured; contacts are then enriched with empty fields.
func (g *Gemini) Extractor(ctx context.Context) (interfaces.Extractor, error) {
	llmClient, err := g.Configure(ctx)
	if err != nil || llmClient == nil {
		return nil, err
	}
	return extractor.New(llmClient)
}
