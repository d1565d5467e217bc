// Package genai provides the OpenAI-backed sentiment scorer capability.
package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/outreachlab/leadpulse/internal/models"
)

const scoringSystemPrompt = `You analyze sales-call excerpts spoken by a prospective customer.
Respond with a single JSON object and nothing else:
{"sentiment": <float -1..1>, "confidence": <float 0..1>, "dominant_emotion": "<one word>", "key_phrases": ["..."]}
Sentiment reflects the prospect's attitude toward moving forward. Key phrases
are short verbatim quotes that justify the score.`

// Opts holds configuration options for the GenAI client.
type Opts struct {
	APIKey string
	Model  string
}

// Option defines a configuration option for the GenAI client.
type Option func(*Opts)

// WithAPIKey sets the OpenAI API key, overriding $OPENAI_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithModel sets the chat model used for scoring.
func WithModel(model string) Option {
	return func(o *Opts) { o.Model = model }
}

// Client wraps the OpenAI chat completion API as a sentiment scorer.
type Client struct {
	client openai.Client
	model  string
}

// NewClient initializes a new GenAI client. The API key falls back to the
// OPENAI_API_KEY environment variable.
func NewClient(opts ...Option) (*Client, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if cfg.Model == "" {
		cfg.Model = openai.ChatModelGPT4oMini
	}
	slog.Debug("Creating GenAI client", "model", cfg.Model)
	return &Client{
		client: openai.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:  cfg.Model,
	}, nil
}

// Score rates one segment of lead speech. It implements the sentiment.Scorer
// capability.
func (c *Client) Score(ctx context.Context, segmentText string, lead models.LeadContext) (models.SegmentScore, error) {
	userPrompt := buildUserPrompt(segmentText, lead)
	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(scoringSystemPrompt),
			openai.UserMessage(userPrompt),
		},
	})
	if err != nil {
		slog.Error("GenAI scoring request failed", "error", err, "leadID", lead.LeadID)
		return models.SegmentScore{}, fmt.Errorf("%w: %v", models.ErrScorerUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return models.SegmentScore{}, fmt.Errorf("%w: no choices returned", models.ErrScorerBadResponse)
	}
	score, err := parseScore(resp.Choices[0].Message.Content)
	if err != nil {
		slog.Error("GenAI scoring response unparsable", "error", err, "leadID", lead.LeadID)
		return models.SegmentScore{}, err
	}
	slog.Debug("GenAI segment scored", "leadID", lead.LeadID, "sentiment", score.Sentiment, "confidence", score.Confidence)
	return score, nil
}

// buildUserPrompt renders the scoring request, including lead context when
// available so the model can resolve references in the excerpt.
func buildUserPrompt(segmentText string, lead models.LeadContext) string {
	var b strings.Builder
	if lead.Name != "" {
		fmt.Fprintf(&b, "Prospect: %s", lead.Name)
		if lead.Company != "" {
			fmt.Fprintf(&b, " (%s)", lead.Company)
		}
		if lead.Status != "" {
			fmt.Fprintf(&b, ", pipeline stage: %s", lead.Status)
		}
		b.WriteString("\n\n")
	}
	b.WriteString("Excerpt:\n")
	b.WriteString(segmentText)
	return b.String()
}

// parseScore decodes the model's JSON reply, tolerating markdown code fences.
func parseScore(content string) (models.SegmentScore, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var score models.SegmentScore
	if err := json.Unmarshal([]byte(content), &score); err != nil {
		return models.SegmentScore{}, fmt.Errorf("%w: %v", models.ErrScorerBadResponse, err)
	}
	if score.Sentiment < -1 || score.Sentiment > 1 || score.Confidence < 0 || score.Confidence > 1 {
		return models.SegmentScore{}, fmt.Errorf("%w: values out of range", models.ErrScorerBadResponse)
	}
	if score.DominantEmotion == "" {
		score.DominantEmotion = "neutral"
	}
	return score, nil
}
