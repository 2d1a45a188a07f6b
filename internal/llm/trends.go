package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// TrendScorer scores current platform trends for relevance to a persona.
type TrendScorer interface {
	Scan(ctx context.Context, input TrendInput) ([]Trend, error)
}

// TrendInput names the platform and the pillars to score trends against.
type TrendInput struct {
	Platform string
	Pillars  []string
}

// Trend is one scored trend.
type Trend struct {
	Topic     string `json:"topic"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale"`
	Momentum  string `json:"momentum"`
}

// Momentum labels accepted from the model; anything else normalizes to rising.
const (
	MomentumRising  = "rising"
	MomentumPeaking = "peaking"
	MomentumFading  = "fading"
)

// TrendScorerOptions configures the trend scanning component.
type TrendScorerOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type trendScorer struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultTrendSystemPrompt = "You are a social-media trend analyst. List conversations currently gaining traction on the given platform, score each from 0 to 100 for relevance to the given content pillars, explain the score in one line, and label the momentum as rising, peaking, or fading. Return JSON matching the provided schema, nothing else."
	defaultTrendTemperature  = 0.5
	maxTrends                = 10
)

// NewTrendScorer constructs a TrendScorer backed by the shared client.
func NewTrendScorer(opts TrendScorerOptions) (TrendScorer, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("trend model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultTrendTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultTrendSystemPrompt
	}

	return &trendScorer{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildTrendsResponseFormat(),
	}, nil
}

func (t *trendScorer) Scan(ctx context.Context, input TrendInput) ([]Trend, error) {
	platform := strings.TrimSpace(input.Platform)
	if platform == "" {
		return nil, eris.New("platform is required for trend scanning")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Platform: %s\n", platform)
	if len(input.Pillars) > 0 {
		fmt.Fprintf(&prompt, "Content pillars: %s\n", strings.Join(input.Pillars, "; "))
	}
	fmt.Fprintf(&prompt, "\nList up to %d relevant trends. Return JSON matching the schema.", maxTrends)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(t.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: t.responseFormat,
		Temperature:    openai.Float(t.temperature),
	}

	fields := logrus.Fields{"platform": platform}

	trends, err := t.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			t.client.logError(fields, err, "trend scan failed")
			return nil, err
		}

		t.client.logRetry(fields, err, "retrying trend scan after malformed payload")
		trends, err = t.attempt(ctx, params)
		if err != nil {
			t.client.logError(fields, err, "trend scan failed after retry")
			return nil, err
		}
	}

	return trends, nil
}

type trendsPayload struct {
	Trends []Trend `json:"trends"`
}

func (t *trendScorer) attempt(ctx context.Context, params openai.ChatCompletionNewParams) ([]Trend, error) {
	content, err := t.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload trendsPayload
	if err := decodePayload(content, &payload); err != nil {
		return nil, err
	}

	if len(payload.Trends) == 0 {
		return nil, eris.Wrap(ErrMalformedPayload, "trend scan returned no trends")
	}

	if len(payload.Trends) > maxTrends {
		payload.Trends = payload.Trends[:maxTrends]
	}

	for i := range payload.Trends {
		trend := &payload.Trends[i]
		trend.Topic = strings.TrimSpace(trend.Topic)
		trend.Rationale = strings.TrimSpace(trend.Rationale)
		if trend.Topic == "" {
			return nil, eris.Wrapf(ErrMalformedPayload, "trend %d has empty topic", i+1)
		}

		trend.Score = clampScore(trend.Score)
		trend.Momentum = normalizeMomentum(trend.Momentum)
	}

	return payload.Trends, nil
}

func normalizeMomentum(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case MomentumPeaking:
		return MomentumPeaking
	case MomentumFading:
		return MomentumFading
	default:
		return MomentumRising
	}
}

func buildTrendsResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"trends"},
		"properties": map[string]any{
			"trends": map[string]any{
				"type":        "array",
				"description": "Scored trends, at most ten.",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"topic", "score", "rationale", "momentum"},
					"properties": map[string]any{
						"topic":     map[string]any{"type": "string", "description": "The trending conversation."},
						"score":     map[string]any{"type": "integer", "description": "Relevance to the pillars, 0-100."},
						"rationale": map[string]any{"type": "string", "description": "One line explaining the score."},
						"momentum":  map[string]any{"type": "string", "enum": []string{MomentumRising, MomentumPeaking, MomentumFading}},
					},
				},
			},
		},
	}

	return jsonSchemaFormat("platform_trends", "Scored platform trends for a persona", schema)
}
