package llm

import (
	"encoding/json"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/shared/constant"
	"github.com/rotisserie/eris"
)

// ErrMalformedPayload marks model replies that failed JSON or shape validation.
// Callers retry the completion exactly once for these failures; transport
// errors pass through untouched.
var ErrMalformedPayload = eris.New("llm payload failed validation")

// decodePayload strips markdown code fences from the raw model reply and
// unmarshals the remaining JSON into target.
func decodePayload(raw string, target any) error {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return eris.Wrap(ErrMalformedPayload, "llm response content is empty")
	}

	if err := json.Unmarshal([]byte(cleaned), target); err != nil {
		return eris.Wrapf(ErrMalformedPayload, "decoding llm response json: %v", err)
	}

	return nil
}

// stripCodeFence removes a surrounding ``` fence, with or without a language
// tag, and returns the inner content.
func stripCodeFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}

	body := strings.TrimPrefix(raw, "```")
	if newline := strings.IndexByte(body, '\n'); newline >= 0 {
		// Drop the language tag line (```json or bare ```).
		tag := strings.TrimSpace(body[:newline])
		if tag == "" || !strings.ContainsAny(tag, "{[") {
			body = body[newline+1:]
		}
	}

	body = strings.TrimSpace(body)
	body = strings.TrimSuffix(body, "```")

	return strings.TrimSpace(body)
}

func clampScore(value int) int {
	if value < 0 {
		return 0
	}
	if value > 100 {
		return 100
	}
	return value
}

func clampConfidence(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

func jsonSchemaFormat(name, description string, schema map[string]any) openai.ChatCompletionNewParamsResponseFormatUnion {
	return openai.ChatCompletionNewParamsResponseFormatUnion{
		OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
			JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
				Name:        name,
				Description: openai.String(description),
				Strict:      openai.Bool(true),
				Schema:      schema,
			},
			Type: constant.ValueOf[constant.JSONSchema](),
		},
	}
}
