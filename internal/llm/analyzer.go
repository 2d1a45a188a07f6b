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

// Analyzer extracts a voice profile from a persona's past posts.
type Analyzer interface {
	Analyze(ctx context.Context, input AnalyzeInput) (*Profile, error)
}

// AnalyzeInput carries the persona context and qualifying post bodies.
type AnalyzeInput struct {
	PersonaName string
	Platform    string
	Posts       []string
}

// Profile is the AI-extracted summary of a persona's writing patterns.
type Profile struct {
	Summary          string   `json:"summary"`
	Structure        string   `json:"structure"`
	Tone             string   `json:"tone"`
	Vocabulary       string   `json:"vocabulary"`
	SignaturePhrases []string `json:"signature_phrases"`
}

// AnalyzerOptions configures the OpenRouter-backed voice analyzer.
type AnalyzerOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type voiceAnalyzer struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultAnalyzerSystemPrompt = "You are a writing-style analyst for social-media creators. Study the provided posts and describe the author's voice precisely: how they structure posts, the tone they strike, and the vocabulary they reach for. Quote signature phrases verbatim. Return JSON matching the provided schema, nothing else."
	defaultAnalyzerTemperature  = 0.3
	maxAnalyzerPosts            = 30
)

// NewAnalyzer constructs an Analyzer implementation backed by the shared client.
func NewAnalyzer(opts AnalyzerOptions) (Analyzer, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("analyzer model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultAnalyzerTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultAnalyzerSystemPrompt
	}

	return &voiceAnalyzer{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildProfileResponseFormat(),
	}, nil
}

func (a *voiceAnalyzer) Analyze(ctx context.Context, input AnalyzeInput) (*Profile, error) {
	posts := input.Posts
	if len(posts) == 0 {
		return nil, eris.New("at least one post is required for analysis")
	}
	if len(posts) > maxAnalyzerPosts {
		posts = posts[:maxAnalyzerPosts]
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Persona: %s\nPlatform: %s\nPosts to analyze (%d):\n", input.PersonaName, input.Platform, len(posts))
	for i, post := range posts {
		fmt.Fprintf(&prompt, "\n--- Post %d ---\n%s\n", i+1, post)
	}
	prompt.WriteString("\nDescribe this author's voice. Return JSON matching the schema.")

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(a.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(a.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: a.responseFormat,
		Temperature:    openai.Float(a.temperature),
	}

	fields := logrus.Fields{"persona": input.PersonaName, "posts": len(posts)}

	profile, err := a.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			a.client.logError(fields, err, "voice analysis failed")
			return nil, err
		}

		a.client.logRetry(fields, err, "retrying voice analysis after malformed payload")
		profile, err = a.attempt(ctx, params)
		if err != nil {
			a.client.logError(fields, err, "voice analysis failed after retry")
			return nil, err
		}
	}

	return profile, nil
}

func (a *voiceAnalyzer) attempt(ctx context.Context, params openai.ChatCompletionNewParams) (*Profile, error) {
	content, err := a.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := decodePayload(content, &profile); err != nil {
		return nil, err
	}

	profile.Summary = strings.TrimSpace(profile.Summary)
	profile.Structure = strings.TrimSpace(profile.Structure)
	profile.Tone = strings.TrimSpace(profile.Tone)
	profile.Vocabulary = strings.TrimSpace(profile.Vocabulary)

	if profile.Summary == "" || profile.Structure == "" || profile.Tone == "" || profile.Vocabulary == "" {
		return nil, eris.Wrap(ErrMalformedPayload, "voice profile missing required fields")
	}

	if profile.SignaturePhrases == nil {
		profile.SignaturePhrases = []string{}
	}

	return &profile, nil
}

func buildProfileResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"summary", "structure", "tone", "vocabulary", "signature_phrases"},
		"properties": map[string]any{
			"summary": map[string]any{
				"type":        "string",
				"description": "Two or three sentences characterising the author's overall voice.",
			},
			"structure": map[string]any{
				"type":        "string",
				"description": "How the author typically structures a post: hooks, line breaks, lists, closers.",
			},
			"tone": map[string]any{
				"type":        "string",
				"description": "The emotional register and attitude of the writing.",
			},
			"vocabulary": map[string]any{
				"type":        "string",
				"description": "Word choice patterns: jargon level, favourite constructions, emoji usage.",
			},
			"signature_phrases": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "string",
				},
				"description": "Phrases the author uses repeatedly, quoted verbatim.",
			},
		},
	}

	return jsonSchemaFormat("voice_profile", "Structured voice profile for a persona", schema)
}
