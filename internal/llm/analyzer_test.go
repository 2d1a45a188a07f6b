package llm

import (
	"context"
	"testing"

	"github.com/openai/openai-go/v2"
	"github.com/rotisserie/eris"
)

const validProfileJSON = `{
	"summary": "Direct and practical, writes like a builder talking to builders.",
	"structure": "One-line hook, short paragraphs, ends with a question.",
	"tone": "Confident, occasionally self-deprecating.",
	"vocabulary": "Plain language, product jargon kept minimal.",
	"signature_phrases": ["ship it", "here's the thing"]
}`

func TestAnalyzerExtractsProfile(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validProfileJSON)}}
	analyzer, err := NewAnalyzer(AnalyzerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewAnalyzer returned error: %v", err)
	}

	profile, err := analyzer.Analyze(context.Background(), AnalyzeInput{
		PersonaName: "Avery",
		Platform:    "linkedin",
		Posts:       []string{"First post body long enough to matter.", "Second post body.", "Third post body."},
	})
	if err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if profile.Summary == "" || profile.Structure == "" || profile.Tone == "" || profile.Vocabulary == "" {
		t.Fatalf("expected all profile fields populated, got %+v", profile)
	}

	if len(profile.SignaturePhrases) != 2 {
		t.Fatalf("expected 2 signature phrases, got %d", len(profile.SignaturePhrases))
	}

	if len(chat.lastParams().Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(chat.lastParams().Messages))
	}

	if chat.lastParams().Model != "stub-model" {
		t.Fatalf("expected model stub-model, got %s", chat.lastParams().Model)
	}
}

func TestAnalyzerTruncatesPostList(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validProfileJSON)}}
	analyzer, err := NewAnalyzer(AnalyzerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewAnalyzer returned error: %v", err)
	}

	posts := make([]string, maxAnalyzerPosts+10)
	for i := range posts {
		posts[i] = "post body"
	}

	if _, err := analyzer.Analyze(context.Background(), AnalyzeInput{Posts: posts}); err != nil {
		t.Fatalf("Analyze returned error: %v", err)
	}

	if chat.calls != 1 {
		t.Fatalf("expected a single completion call, got %d", chat.calls)
	}
}

func TestAnalyzerRejectsIncompleteProfile(t *testing.T) {
	t.Parallel()

	incomplete := completionWithContent(`{"summary": "Something", "structure": "", "tone": "x", "vocabulary": "y", "signature_phrases": []}`)
	chat := &fakeChatService{responses: []*openai.ChatCompletion{incomplete, incomplete}}
	analyzer, err := NewAnalyzer(AnalyzerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewAnalyzer returned error: %v", err)
	}

	_, err = analyzer.Analyze(context.Background(), AnalyzeInput{Posts: []string{"post"}})
	if err == nil {
		t.Fatalf("expected error for incomplete profile")
	}

	if !eris.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}

	if chat.calls != 2 {
		t.Fatalf("expected retry before failing, got %d calls", chat.calls)
	}
}

func TestAnalyzerRequiresPosts(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validProfileJSON)}}
	analyzer, err := NewAnalyzer(AnalyzerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewAnalyzer returned error: %v", err)
	}

	if _, err := analyzer.Analyze(context.Background(), AnalyzeInput{}); err == nil {
		t.Fatalf("expected error when no posts supplied")
	}

	if chat.calls != 0 {
		t.Fatalf("expected no completion calls, got %d", chat.calls)
	}
}
