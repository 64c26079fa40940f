package extractor

import (
	"strings"

	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/contrack/pkg/domain/model"
)

const systemPrompt = "You are a professional information extraction assistant. " +
	"Extract company names, job titles, and discussion topics from chat profiles and messages. " +
	"Always return valid JSON."

// buildUserPrompt creates the prompt with the profile and the initial messages
func buildUserPrompt(input *model.ExtractionInput) string {
	var sb strings.Builder

	sb.WriteString("You are analyzing a chat profile and the first messages of a conversation to extract professional information.\n\n")

	if input.DisplayName != "" {
		sb.WriteString("Name: ")
		sb.WriteString(input.DisplayName)
		sb.WriteString("\n\n")
	}
	if bio := strings.TrimSpace(input.Bio); bio != "" {
		sb.WriteString("Bio: ")
		sb.WriteString(bio)
		sb.WriteString("\n\n")
	}
	if messages := nonEmpty(input.Messages); len(messages) > 0 {
		sb.WriteString("Initial messages:\n")
		for _, msg := range messages {
			sb.WriteString("- ")
			sb.WriteString(msg)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	sb.WriteString("## Guidelines:\n\n")
	sb.WriteString("- Be concise and specific\n")
	sb.WriteString("- If information isn't clearly stated, use null\n")
	sb.WriteString("- For topics, extract 1-3 key subjects discussed or mentioned\n")
	sb.WriteString("- Company names should be official names, not abbreviations (unless that's all that's provided)\n")
	sb.WriteString("- Job titles should be formal (e.g., \"Software Engineer\" not just \"engineer\")\n")

	return sb.String()
}

// buildResponseSchema creates the JSON schema for structured output
func buildResponseSchema() *gollem.Parameter {
	return &gollem.Parameter{
		Title:       "ContactExtractionResponse",
		Description: "Professional information extracted from a contact's profile and messages",
		Type:        gollem.TypeObject,
		Properties: map[string]*gollem.Parameter{
			"company": {
				Type:        gollem.TypeString,
				Description: "Company name, or null if unknown",
			},
			"role": {
				Type:        gollem.TypeString,
				Description: "Job title, or null if unknown",
			},
			"topics": {
				Type:        gollem.TypeArray,
				Description: "1-3 key subjects discussed or mentioned",
				Items: &gollem.Parameter{
					Type: gollem.TypeString,
				},
			},
		},
		Required: []string{"company", "role", "topics"},
	}
}
