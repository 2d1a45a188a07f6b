package llm

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/openai/openai-go/v2"
	"github.com/rotisserie/eris"
)

const validVariationsJSON = `{
	"variations": [
		{"text": "First take on shipping small.", "hook": "Ship small.", "score": 88, "match": {"structure": 90, "tone": 85, "vocabulary": 89}},
		{"text": "Second take on shipping small.", "hook": "Small ships win.", "score": releaseScore, "match": {"structure": 80, "tone": 82, "vocabulary": 78}},
		{"text": "Third take on shipping small.", "hook": "Why small beats big.", "score": 74, "match": {"structure": 70, "tone": 75, "vocabulary": 72}}
	]
}`

func sampleProfile() *Profile {
	return &Profile{
		Summary:          "Direct, practical voice with short sentences.",
		Structure:        "Hook, three short paragraphs, one-line closer.",
		Tone:             "Confident and encouraging.",
		Vocabulary:       "Plain words, no jargon, occasional rhetorical question.",
		SignaturePhrases: []string{"ship it", "here's the thing"},
	}
}

func validVariations(score string) string {
	return strings.Replace(validVariationsJSON, "releaseScore", score, 1)
}

func TestGeneratorReturnsThreeScoredVariations(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validVariations("81"))}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	variations, err := generator.Generate(context.Background(), GenerateInput{
		PersonaName: "Avery",
		Platform:    "linkedin",
		Topic:       "shipping small",
		Profile:     sampleProfile(),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if len(variations) != VariationCount {
		t.Fatalf("expected %d variations, got %d", VariationCount, len(variations))
	}

	for i, v := range variations {
		if v.Text == "" {
			t.Fatalf("variation %d has empty text", i+1)
		}
		if v.Score < 0 || v.Score > 100 {
			t.Fatalf("variation %d score %d out of range", i+1, v.Score)
		}
		if v.Match.Structure < 0 || v.Match.Structure > 100 {
			t.Fatalf("variation %d structure match out of range", i+1)
		}
	}

	if chat.lastParams().Model != "stub-model" {
		t.Fatalf("expected model stub-model, got %s", chat.lastParams().Model)
	}

	if len(chat.lastParams().Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(chat.lastParams().Messages))
	}
}

func TestGeneratorClampsOutOfRangeScores(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validVariations("140"))}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	variations, err := generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if variations[1].Score != 100 {
		t.Fatalf("expected score clamped to 100, got %d", variations[1].Score)
	}
}

func TestGeneratorParsesCodeFencedPayload(t *testing.T) {
	t.Parallel()

	fenced := "```json\n" + validVariations("55") + "\n```"
	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(fenced)}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	variations, err := generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err != nil {
		t.Fatalf("Generate returned error for fenced payload: %v", err)
	}

	if len(variations) != VariationCount {
		t.Fatalf("expected %d variations, got %d", VariationCount, len(variations))
	}
}

func TestGeneratorRetriesOnceOnMalformedPayload(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{
		completionWithContent(`{"variations": [{"text": "only one", "hook": "", "score": 10, "match": {"structure": 1, "tone": 1, "vocabulary": 1}}]}`),
		completionWithContent(validVariations("66")),
	}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	variations, err := generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err != nil {
		t.Fatalf("Generate returned error after retry: %v", err)
	}

	if chat.calls != 2 {
		t.Fatalf("expected 2 completion calls, got %d", chat.calls)
	}

	if len(variations) != VariationCount {
		t.Fatalf("expected %d variations, got %d", VariationCount, len(variations))
	}
}

func TestGeneratorFailsAfterSecondMalformedPayload(t *testing.T) {
	t.Parallel()

	malformed := completionWithContent("not json at all")
	chat := &fakeChatService{responses: []*openai.ChatCompletion{malformed, malformed}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	_, err = generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err == nil {
		t.Fatalf("expected error after two malformed payloads")
	}

	if chat.calls != 2 {
		t.Fatalf("expected 2 completion calls, got %d", chat.calls)
	}

	if !eris.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}

func TestGeneratorDoesNotRetryTransportErrors(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{errs: []error{eris.New("connection reset")}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	_, err = generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err == nil {
		t.Fatalf("expected transport error to surface")
	}

	if chat.calls != 1 {
		t.Fatalf("expected a single completion call, got %d", chat.calls)
	}
}

func TestGeneratorSurfacesRefusal(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithRefusal("cannot impersonate")}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	_, err = generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if err == nil {
		t.Fatalf("expected refusal to surface as error")
	}

	if !strings.Contains(err.Error(), "refused") {
		t.Fatalf("expected refusal error, got %v", err)
	}
}

func TestGeneratorSurfacesContentFilterBlock(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionBlocked()}}
	client := newTestClient(chat)

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	_, err = generator.Generate(context.Background(), GenerateInput{
		Topic:   "shipping small",
		Profile: sampleProfile(),
	})
	if !eris.Is(err, ErrBlocked) {
		t.Fatalf("expected ErrBlocked, got %v", err)
	}
}

func TestGeneratorRequiresTopicAndProfile(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validVariations("50"))}}
	generator, err := NewGenerator(GeneratorOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewGenerator returned error: %v", err)
	}

	if _, err := generator.Generate(context.Background(), GenerateInput{Profile: sampleProfile()}); err == nil {
		t.Fatalf("expected error when topic is missing")
	}

	if _, err := generator.Generate(context.Background(), GenerateInput{Topic: "x"}); err == nil {
		t.Fatalf("expected error when profile is missing")
	}

	if chat.calls != 0 {
		t.Fatalf("expected no completion calls for invalid input, got %d", chat.calls)
	}
}

func TestGeneratorLive(t *testing.T) {
	// THIS TEST NEEDS AN .env FILE ON SAME LEVEL AS THIS TEST FILE. SEE .env.example
	if err := godotenv.Load(); err != nil {
		t.Logf("%v", eris.Wrap(err, "loading .env file"))
	}

	if os.Getenv("LLM_LIVE_TEST") != "1" {
		t.Skip("live generator test disabled; set LLM_LIVE_TEST=1 to enable")
	}

	apiKey := strings.TrimSpace(os.Getenv("LLM_API_KEY"))
	if apiKey == "" {
		t.Skip("LLM_API_KEY is required for the live generator test")
	}

	baseURL := strings.TrimSpace(os.Getenv("LLM_ENDPOINT"))
	if baseURL == "" {
		t.Skip("LLM_ENDPOINT is required for the live generator test")
	}

	model := strings.TrimSpace(os.Getenv("LLM_LIVE_MODEL"))
	if model == "" {
		t.Skip("LLM_LIVE_MODEL is required for the live generator test")
	}

	client, err := NewClient(ClientOptions{APIKey: apiKey, BaseURL: baseURL})
	if err != nil {
		t.Fatalf("failed to build live client: %v", err)
	}

	generator, err := NewGenerator(GeneratorOptions{Client: client, Model: model})
	if err != nil {
		t.Fatalf("failed to create live generator: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	start := time.Now()
	variations, err := generator.Generate(ctx, GenerateInput{
		PersonaName: "Avery",
		Platform:    "linkedin",
		Topic:       "lessons from shipping a side project",
		Profile:     sampleProfile(),
	})
	if err != nil {
		t.Fatalf("live generator call failed: %v", err)
	}

	t.Logf("LLM model %q responded in %s with %d variations", model, time.Since(start), len(variations))
	for i, v := range variations {
		preview := v.Text
		if len(preview) > 200 {
			preview = preview[:200]
		}
		t.Logf("variation %d (score %d): %s", i+1, v.Score, preview)
	}
}
