package llm

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
)

// DeckAnalyzer extracts content themes and voice hints from pasted slide-deck text.
type DeckAnalyzer interface {
	AnalyzeDeck(ctx context.Context, input DeckInput) (*DeckInsights, error)
}

// DeckInput carries the persona context and the raw deck text.
type DeckInput struct {
	PersonaName string
	Text        string
}

// DeckTheme is one theme extracted from a deck.
type DeckTheme struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

// DeckInsights is the analyzer output for one deck.
type DeckInsights struct {
	Themes     []DeckTheme `json:"themes"`
	VoiceHints []string    `json:"voice_hints"`
}

// DeckAnalyzerOptions configures the deck analysis component.
type DeckAnalyzerOptions struct {
	Client       *Client
	Model        string
	Temperature  float64
	SystemPrompt string
}

type deckAnalyzer struct {
	client         *Client
	model          string
	temperature    float64
	systemPrompt   string
	responseFormat openai.ChatCompletionNewParamsResponseFormatUnion
}

const (
	defaultDeckSystemPrompt = "You analyze presentation decks for social-media creators. Extract the themes the deck argues for and any hints about how the author naturally phrases things. Return JSON matching the provided schema, nothing else."
	defaultDeckTemperature  = 0.3
	maxDeckTextLength       = 20000
)

// NewDeckAnalyzer constructs a DeckAnalyzer backed by the shared client.
func NewDeckAnalyzer(opts DeckAnalyzerOptions) (DeckAnalyzer, error) {
	if opts.Client == nil {
		return nil, eris.New("llm client is required")
	}

	model := strings.TrimSpace(opts.Model)
	if model == "" {
		return nil, eris.New("deck model is required")
	}

	temperature := opts.Temperature
	if temperature <= 0 {
		temperature = defaultDeckTemperature
	}

	systemPrompt := strings.TrimSpace(opts.SystemPrompt)
	if systemPrompt == "" {
		systemPrompt = defaultDeckSystemPrompt
	}

	return &deckAnalyzer{
		client:         opts.Client,
		model:          model,
		temperature:    temperature,
		systemPrompt:   systemPrompt,
		responseFormat: buildDeckResponseFormat(),
	}, nil
}

func (d *deckAnalyzer) AnalyzeDeck(ctx context.Context, input DeckInput) (*DeckInsights, error) {
	text := strings.TrimSpace(input.Text)
	if text == "" {
		return nil, eris.New("deck text is required")
	}
	if len(text) > maxDeckTextLength {
		text = truncateAtRune(text, maxDeckTextLength)
	}

	var prompt strings.Builder
	fmt.Fprintf(&prompt, "Persona: %s\nDeck text:\n%s\n", input.PersonaName, text)
	prompt.WriteString("\nExtract themes and voice hints. Return JSON matching the schema.")

	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(d.systemPrompt),
			openai.UserMessage(prompt.String()),
		},
		ResponseFormat: d.responseFormat,
		Temperature:    openai.Float(d.temperature),
	}

	fields := logrus.Fields{"persona": input.PersonaName, "deck_length": len(text)}

	insights, err := d.attempt(ctx, params)
	if err != nil {
		if !eris.Is(err, ErrMalformedPayload) {
			d.client.logError(fields, err, "deck analysis failed")
			return nil, err
		}

		d.client.logRetry(fields, err, "retrying deck analysis after malformed payload")
		insights, err = d.attempt(ctx, params)
		if err != nil {
			d.client.logError(fields, err, "deck analysis failed after retry")
			return nil, err
		}
	}

	return insights, nil
}

func (d *deckAnalyzer) attempt(ctx context.Context, params openai.ChatCompletionNewParams) (*DeckInsights, error) {
	content, err := d.client.complete(ctx, params)
	if err != nil {
		return nil, err
	}

	var insights DeckInsights
	if err := decodePayload(content, &insights); err != nil {
		return nil, err
	}

	if len(insights.Themes) == 0 {
		return nil, eris.Wrap(ErrMalformedPayload, "deck analysis returned no themes")
	}

	for i := range insights.Themes {
		theme := &insights.Themes[i]
		theme.Name = strings.TrimSpace(theme.Name)
		theme.Summary = strings.TrimSpace(theme.Summary)
		if theme.Name == "" {
			return nil, eris.Wrapf(ErrMalformedPayload, "deck theme %d has empty name", i+1)
		}
	}

	if insights.VoiceHints == nil {
		insights.VoiceHints = []string{}
	}

	return &insights, nil
}

// truncateAtRune cuts text to at most max bytes without splitting a rune.
func truncateAtRune(text string, max int) string {
	if len(text) <= max {
		return text
	}

	cut := max
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}

	return text[:cut]
}

func buildDeckResponseFormat() openai.ChatCompletionNewParamsResponseFormatUnion {
	schema := map[string]any{
		"type":     "object",
		"required": []string{"themes", "voice_hints"},
		"properties": map[string]any{
			"themes": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "object",
					"required": []string{"name", "summary"},
					"properties": map[string]any{
						"name":    map[string]any{"type": "string", "description": "Short theme name."},
						"summary": map[string]any{"type": "string", "description": "One sentence on what the deck says about this theme."},
					},
				},
			},
			"voice_hints": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Phrasings or framings characteristic of the author.",
			},
		},
	}

	return jsonSchemaFormat("deck_insights", "Themes and voice hints extracted from a slide deck", schema)
}
