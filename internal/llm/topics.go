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

// TopicSuggester proposes concrete post topics grounded in a persona's pillars.
type TopicSuggester interface {
	Suggest(ctx context.Context, input TopicInput) ([]Topic, error)
}

// TopicInput carries the pillar names and voice summary to ground suggestions in.
type TopicInput struct {
	Platform       string
	ProfileSummary string
	Pillars        []string
	Focus          string
}

// Topic is one suggested post topic.
type Topic struct {
	Title     string `json:"title"`
	Pillar    string `json:"pillar"`
	Rationale string `json:"rationale"`
}

// TopicSuggesterOptions configures the topic suggestion component.
type TopicSuggesterOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type topicSuggester struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultTopicSystemPrompt = "You are a content strategist who turns content pillars into specific, postable topics. Each topic must be concrete enough to write a single post about, name the pillar it serves, and carry a one-line rationale. Return JSON matching the provided schema, nothing else."
	defaultTopicTemperature  = 0.6
	minTopics                = 5
	maxTopics                = 10
)

// NewTopicSuggester constructs a TopicSuggester backed by the shared client.
func NewTopicSuggester(opts TopicSuggesterOptions) (TopicSuggester, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("topic model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultTopicTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultTopicSystemPrompt
	}

	return &topicSuggester{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildTopicsResponseFormat(),
	}, nil
}

func (t *topicSuggester) Suggest(ctx context.Context, input TopicInput) ([]Topic, error) {
	if len(input.Pillars) == 0 {
		return nil, eris.New("at least one pillar is required for topic suggestions")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Platform: %s\nContent pillars: %s\n", input.Platform, strings.Join(input.Pillars, "; "))
	if summary := strings.TrimSpace(input.ProfileSummary); summary != "" {
		fmt.Fprintf(&prompt, "Voice summary: %s\n", summary)
	}
	if focus := strings.TrimSpace(input.Focus); focus != "" {
		fmt.Fprintf(&prompt, "Focus only on the pillar: %s\n", focus)
	}
	fmt.Fprintf(&prompt, "\nSuggest between %d and %d post topics. Return JSON matching the schema.", minTopics, maxTopics)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(t.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: t.responseFormat,
		Temperature:    openai.Float(t.temperature),
	}

	fields := logrus.Fields{"platform": input.Platform, "pillars": len(input.Pillars)}

	topics, err := t.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			t.client.logError(fields, err, "topic suggestion failed")
			return nil, err
		}

		t.client.logRetry(fields, err, "retrying topic suggestion after malformed payload")
		topics, err = t.attempt(ctx, params)
		if err != nil {
			t.client.logError(fields, err, "topic suggestion failed after retry")
			return nil, err
		}
	}

	return topics, nil
}

type topicsPayload struct {
	Topics []Topic `json:"topics"`
}

func (t *topicSuggester) attempt(ctx context.Context, params openai.ChatCompletionNewParams) ([]Topic, error) {
	content, err := t.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload topicsPayload
	if err := decodePayload(content, &payload); err != nil {
		return nil, err
	}

	if len(payload.Topics) < minTopics {
		return nil, eris.Wrapf(ErrMalformedPayload, "expected at least %d topics, got %d", minTopics, len(payload.Topics))
	}

	if len(payload.Topics) > maxTopics {
		payload.Topics = payload.Topics[:maxTopics]
	}

	for i := range payload.Topics {
		topic := &payload.Topics[i]
		topic.Title = strings.TrimSpace(topic.Title)
		topic.Pillar = strings.TrimSpace(topic.Pillar)
		topic.Rationale = strings.TrimSpace(topic.Rationale)
		if topic.Title == "" {
			return nil, eris.Wrapf(ErrMalformedPayload, "topic %d has empty title", i+1)
		}
	}

	return payload.Topics, nil
}

func buildTopicsResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"topics"},
		"properties": map[string]any{
			"topics": map[string]any{
				"type":        "array",
				"description": "Concrete post topics, between five and ten.",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"title", "pillar", "rationale"},
					"properties": map[string]any{
						"title":     map[string]any{"type": "string", "description": "Topic specific enough for a single post."},
						"pillar":    map[string]any{"type": "string", "description": "Name of the pillar this topic serves."},
						"rationale": map[string]any{"type": "string", "description": "One line on why this topic fits the persona."},
					},
				},
			},
		},
	}

	return jsonSchemaFormat("topic_suggestions", "Post topic suggestions grounded in content pillars", schema)
}
