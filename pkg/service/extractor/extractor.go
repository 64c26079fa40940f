package extractor

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/secmon-lab/contrack/pkg/domain/interfaces"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/utils/logging"
)

// ErrMalformedResponse is returned when the LLM output carries no usable fields
var ErrMalformedResponse = goerr.New("malformed extraction response")

// client implements interfaces.Extractor on top of a gollem LLM client
type client struct {
	llmClient gollem.LLMClient
}

var _ interfaces.Extractor = &client{}

// Option is a functional option for client configuration
type Option func(*client)

// New creates a new extractor with the provided LLM client
func New(llmClient gollem.LLMClient, opts ...Option) (interfaces.Extractor, error) {
	if llmClient == nil {
		return nil, goerr.New("LLM client is required")
	}

	c := &client{
		llmClient: llmClient,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// llmResponse is the structured output from the LLM
type llmResponse struct {
	Company *string  `json:"company"`
	Role    *string  `json:"role"`
	Topics  []string `json:"topics"`
}

// Extract performs a single extraction call. It never retries.
func (c *client) Extract(ctx context.Context, input *model.ExtractionInput) model.ExtractionReply {
	if input == nil || (strings.TrimSpace(input.Bio) == "" && len(nonEmpty(input.Messages)) == 0) {
		// Nothing to extract from; an empty result is a valid answer
		return model.ExtractionSucceeded(&model.ExtractionResult{})
	}

	session, err := c.llmClient.NewSession(ctx,
		gollem.WithSessionContentType(gollem.ContentTypeJSON),
		gollem.WithSessionResponseSchema(buildResponseSchema()),
		gollem.WithSessionSystemPrompt(systemPrompt),
	)
	if err != nil {
		return classify(goerr.Wrap(err, "failed to create LLM session"))
	}

	resp, err := session.GenerateContent(ctx, gollem.Text(buildUserPrompt(input)))
	if err != nil {
		return classify(goerr.Wrap(err, "failed to generate content from LLM"))
	}
	if resp == nil || len(resp.Texts) == 0 {
		return model.ExtractionPermanent(goerr.Wrap(ErrMalformedResponse, "empty LLM response"))
	}

	text := strings.Join(resp.Texts, "")
	result, err := parseResponse(text)
	if err != nil {
		logging.From(ctx).Warn("failed to parse extraction response",
			"error", err,
			"response", truncate(text, 200),
		)
		return model.ExtractionPermanent(err)
	}

	return model.ExtractionSucceeded(result)
}

// parseResponse decodes the JSON output and falls back to keyword scanning
// when the output is not JSON
func parseResponse(text string) (*model.ExtractionResult, error) {
	var resp llmResponse
	if err := json.Unmarshal([]byte(stripCodeFence(text)), &resp); err == nil {
		return &model.ExtractionResult{
			Company: normalize(resp.Company),
			Role:    normalize(resp.Role),
			Topics:  normalizeTopics(resp.Topics),
		}, nil
	}

	if result := fallbackExtraction(text); result != nil {
		return result, nil
	}

	return nil, goerr.Wrap(ErrMalformedResponse, "response is neither JSON nor recoverable text",
		goerr.V("response", truncate(text, 200)))
}

func stripCodeFence(text string) string {
	s := strings.TrimSpace(text)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// normalize maps empty and placeholder answers to nil
func normalize(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	switch strings.ToLower(v) {
	case "", "unknown", "n/a", "none", "null":
		return nil
	}
	return &v
}

const maxTopics = 3

func normalizeTopics(topics []string) []string {
	result := make([]string, 0, len(topics))
	for _, t := range topics {
		if v := normalize(&t); v != nil {
			result = append(result, *v)
		}
		if len(result) == maxTopics {
			break
		}
	}
	return result
}

var (
	companyKeywords = keywordPatterns("company:", "works at", "working at", "employed by")
	roleKeywords    = keywordPatterns("role:", "title:", "position:", "job:")
)

// keywordPatterns compiles case-insensitive matchers so match offsets index the
// original text rather than a lowercased copy of it
func keywordPatterns(keywords ...string) []*regexp.Regexp {
	patterns := make([]*regexp.Regexp, 0, len(keywords))
	for _, kw := range keywords {
		patterns = append(patterns, regexp.MustCompile("(?i)"+regexp.QuoteMeta(kw)))
	}
	return patterns
}

// fallbackExtraction scans unstructured text for company and role markers.
// It returns nil when neither is found.
func fallbackExtraction(text string) *model.ExtractionResult {
	company := scanKeyword(text, companyKeywords)
	role := scanKeyword(text, roleKeywords)
	if company == nil && role == nil {
		return nil
	}
	return &model.ExtractionResult{Company: company, Role: role, Topics: []string{}}
}

const maxKeywordValue = 50

func scanKeyword(text string, patterns []*regexp.Regexp) *string {
	text = strings.ToValidUTF8(text, "")
	for _, p := range patterns {
		loc := p.FindStringIndex(text)
		if loc == nil {
			continue
		}
		rest := headRunes(text[loc[1]:], maxKeywordValue)
		rest = strings.SplitN(rest, "\n", 2)[0]
		rest = strings.SplitN(rest, ",", 2)[0]
		rest = strings.Trim(strings.TrimSpace(rest), `"'.`)
		if utf8.RuneCountInString(rest) > 2 {
			return normalize(&rest)
		}
	}
	return nil
}

// headRunes returns at most n leading runes of s
func headRunes(s string, n int) string {
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func nonEmpty(messages []string) []string {
	result := make([]string, 0, len(messages))
	for _, m := range messages {
		if strings.TrimSpace(m) != "" {
			result = append(result, m)
		}
	}
	return result
}

func truncate(s string, n int) string {
	head := headRunes(s, n)
	if len(head) == len(s) {
		return s
	}
	return head + "..."
}
