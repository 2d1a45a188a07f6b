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

// Generator produces candidate post variations in a persona's voice.
type Generator interface {
	Generate(ctx context.Context, input GenerateInput) ([]Variation, error)
}

// GenerateInput carries the persona context, voice profile, and requested topic.
type GenerateInput struct {
	PersonaName string
	Platform    string
	Topic       string
	Pillar      string
	Angle       string
	Profile     *Profile
}

// VariationMatch breaks a voice-match score down by dimension.
type VariationMatch struct {
	Structure  int `json:"structure"`
	Tone       int `json:"tone"`
	Vocabulary int `json:"vocabulary"`
}

// Variation is one candidate post with its voice-match scoring.
type Variation struct {
	Text  string         `json:"text"`
	Hook  string         `json:"hook"`
	Score int            `json:"score"`
	Match VariationMatch `json:"match"`
}

// VariationCount is the number of candidates every generation returns.
const VariationCount = 3

// GeneratorOptions configures the OpenRouter-backed content generator.
type GeneratorOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type contentGenerator struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultGeneratorSystemPrompt = "You are a ghostwriter who reproduces a creator's voice exactly. Write social-media posts that the creator could have written themselves, then score how closely each candidate matches the supplied voice profile. Scores are integers from 0 to 100. Return JSON matching the provided schema, nothing else."
	defaultGeneratorTemperature  = 0.7
)

// NewGenerator constructs a Generator implementation backed by the shared client.
func NewGenerator(opts GeneratorOptions) (Generator, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("generator model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultGeneratorTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultGeneratorSystemPrompt
	}

	return &contentGenerator{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildVariationsResponseFormat(),
	}, nil
}

func (g *contentGenerator) Generate(ctx context.Context, input GenerateInput) ([]Variation, error) {
	topic := strings.TrimSpace(input.Topic)
	if topic == "" {
		return nil, eris.New("topic is required")
	}
	if input.Profile == nil {
		return nil, eris.New("voice profile is required")
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Persona: %s\nPlatform: %s\nTopic: %s\n", input.PersonaName, input.Platform, topic)
	if pillar := strings.TrimSpace(input.Pillar); pillar != "" {
		fmt.Fprintf(&prompt, "Content pillar: %s\n", pillar)
	}
	if angle := strings.TrimSpace(input.Angle); angle != "" {
		fmt.Fprintf(&prompt, "Angle: %s\n", angle)
	}
	fmt.Fprintf(&prompt, "\nVoice profile:\nSummary: %s\nStructure: %s\nTone: %s\nVocabulary: %s\n",
		input.Profile.Summary, input.Profile.Structure, input.Profile.Tone, input.Profile.Vocabulary)
	if len(input.Profile.SignaturePhrases) > 0 {
		fmt.Fprintf(&prompt, "Signature phrases: %s\n", strings.Join(input.Profile.SignaturePhrases, "; "))
	}
	fmt.Fprintf(&prompt, "\nWrite exactly %d distinct post variations for this topic in this voice. Return JSON matching the schema.", VariationCount)

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(g.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: g.responseFormat,
		Temperature:    openai.Float(g.temperature),
	}

	fields := logrus.Fields{"persona": input.PersonaName, "topic": topic}

	variations, err := g.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			g.client.logError(fields, err, "content generation failed")
			return nil, err
		}

		g.client.logRetry(fields, err, "retrying content generation after malformed payload")
		variations, err = g.attempt(ctx, params)
		if err != nil {
			g.client.logError(fields, err, "content generation failed after retry")
			return nil, err
		}
	}

	return variations, nil
}

type variationsPayload struct {
	Variations []Variation `json:"variations"`
}

func (g *contentGenerator) attempt(ctx context.Context, params openai.ChatCompletionNewParams) ([]Variation, error) {
	content, err := g.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var payload variationsPayload
	if err := decodePayload(content, &payload); err != nil {
		return nil, err
	}

	if len(payload.Variations) != VariationCount {
		return nil, eris.Wrapf(ErrMalformedPayload, "expected %d variations, got %d", VariationCount, len(payload.Variations))
	}

	for i := range payload.Variations {
		v := &payload.Variations[i]
		v.Text = strings.TrimSpace(v.Text)
		v.Hook = strings.TrimSpace(v.Hook)
		if v.Text == "" {
			return nil, eris.Wrapf(ErrMalformedPayload, "variation %d has empty text", i+1)
		}

		v.Score = clampScore(v.Score)
		v.Match.Structure = clampScore(v.Match.Structure)
		v.Match.Tone = clampScore(v.Match.Tone)
		v.Match.Vocabulary = clampScore(v.Match.Vocabulary)
	}

	return payload.Variations, nil
}

func buildVariationsResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	matchSchema := map[string]any{
		"type":     "object",
		"required": []string{"structure", "tone", "vocabulary"},
		"properties": map[string]any{
			"structure":  map[string]any{"type": "integer", "description": "How closely the post structure matches, 0-100."},
			"tone":       map[string]any{"type": "integer", "description": "How closely the tone matches, 0-100."},
			"vocabulary": map[string]any{"type": "integer", "description": "How closely the word choice matches, 0-100."},
		},
	}

	schema := map[string]any{
		"type":     "object",
		"required": []string{"variations"},
		"properties": map[string]any{
			"variations": map[string]any{
				"type":        "array",
				"description": "Exactly three candidate posts.",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"text", "hook", "score", "match"},
					"properties": map[string]any{
						"text":  map[string]any{"type": "string", "description": "Full body of the candidate post."},
						"hook":  map[string]any{"type": "string", "description": "Opening line designed to stop the scroll."},
						"score": map[string]any{"type": "integer", "description": "Overall voice-match score, 0-100."},
						"match": matchSchema,
					},
				},
			},
		},
	}

	return jsonSchemaFormat("post_variations", "Three candidate posts with voice-match scores", schema)
}
