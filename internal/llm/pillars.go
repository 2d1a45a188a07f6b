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

// PillarFinder identifies recurring content themes across a persona's posts.
type PillarFinder interface {
	Discover(ctx context.Context, input PillarInput) ([]Pillar, error)
}

// PillarInput carries the persona context and post bodies to cluster.
type PillarInput struct {
	PersonaName string
	Platform    string
	Posts       []string
}

// Pillar is one recurring theme with supporting keywords.
type Pillar struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Confidence  float64  `json:"confidence"`
}

// PillarFinderOptions configures the pillar discovery component.
type PillarFinderOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type pillarFinder struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultPillarSystemPrompt = "You are a content strategist. Cluster the provided posts into the recurring themes the author keeps returning to. Name each theme the way the author would, describe it in one sentence, list the keywords that signal it, and rate your confidence from 0 to 1. Return between three and five themes as JSON matching the provided schema, nothing else."
	defaultPillarTemperature  = 0.3
	minPillars                = 3
	maxPillars                = 5
	maxPillarPosts            = 50
)

// NewPillarFinder constructs a PillarFinder backed by the shared client.
func NewPillarFinder(opts PillarFinderOptions) (PillarFinder, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("pillar model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultPillarTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultPillarSystemPrompt
	}

	return &pillarFinder{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildPillarsResponseFormat(),
	}, nil
}

func (p *pillarFinder) Discover(ctx context.Context, input PillarInput) ([]Pillar, error) {
	posts := input.Posts
	if len(posts) == 0 {
		return nil, eris.New("at least one post is required for pillar discovery")
	}
	if len(posts) > maxPillarPosts {
		posts = posts[:maxPillarPosts]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Persona: %s\nPlatform: %s\nPosts (%d):\n", input.PersonaName, input.Platform, len(posts))
	for i, post := range posts {
		fmt.Fprintf(&prompt, "\n--- Post %d ---\n%s\n", i+1, post)
	}
	fmt.Fprintf(&prompt, "\nIdentify %d to %d recurring content pillars. Return JSON matching the schema.", minPillars, maxPillars)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(p.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: p.responseFormat,
		Temperature:    openai.Float(p.temperature),
	}

	fields := logrus.Fields{"persona": input.PersonaName, "posts": len(posts)}

	pillars, err := p.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			p.client.logError(fields, err, "pillar discovery failed")
			return nil, err
		}

		p.client.logRetry(fields, err, "retrying pillar discovery after malformed payload")
		pillars, err = p.attempt(ctx, params)
		if err != nil {
			p.client.logError(fields, err, "pillar discovery failed after retry")
			return nil, err
		}
	}

	return pillars, nil
}

type pillarsPayload struct {
	Pillars []Pillar `json:"pillars"`
}

func (p *pillarFinder) attempt(ctx context.Context, params openai.ChatCompletionNewParams) ([]Pillar, error) {
	content, err := p.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload pillarsPayload
	if err := decodePayload(content, &payload); err != nil {
		return nil, err
	}

	if len(payload.Pillars) < minPillars || len(payload.Pillars) > maxPillars {
		return nil, eris.Wrapf(ErrMalformedPayload, "expected %d-%d pillars, got %d", minPillars, maxPillars, len(payload.Pillars))
	}

	for i := range payload.Pillars {
		pillar := &payload.Pillars[i]
		pillar.Name = strings.TrimSpace(pillar.Name)
		pillar.Description = strings.TrimSpace(pillar.Description)
		if pillar.Name == "" {
			return nil, eris.Wrapf(ErrMalformedPayload, "pillar %d has empty name", i+1)
		}

		pillar.Confidence = clampConfidence(pillar.Confidence)
		if pillar.Keywords == nil {
			pillar.Keywords = []string{}
		}
	}

	return payload.Pillars, nil
}

func buildPillarsResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"pillars"},
		"properties": map[string]any{
			"pillars": map[string]any{
				"type":        "array",
				"description": "Between three and five recurring themes.",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name", "description", "keywords", "confidence"},
					"properties": map[string]any{
						"name":        map[string]any{"type": "string", "description": "Short theme name in the author's vocabulary."},
						"description": map[string]any{"type": "string", "description": "One sentence describing the theme."},
						"keywords": map[string]any{
							"type":  "array",
							"items": map[string]any{"type": "string"},
						},
						"confidence": map[string]any{"type": "number", "description": "Confidence that the theme recurs, 0-1."},
					},
				},
			},
		},
	}

	return jsonSchemaFormat("content_pillars", "Recurring content themes for a persona", schema)
}
