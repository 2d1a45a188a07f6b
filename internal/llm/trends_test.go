package llm

import (
	"context"
	"testing"

	"github.com/openai/openai-go/v2"
	"github.com/rotisserie/eris"
)

const validTrendsJSON = `{
	"trends": [
		{"topic": "AI agents in production", "score": 92, "rationale": "Overlaps the building-in-public pillar.", "momentum": "rising"},
		{"topic": "Return-to-office debates", "score": 130, "rationale": "Touches hiring.", "momentum": "peaking"},
		{"topic": "Quiet quitting redux", "score": 40, "rationale": "Weak overlap.", "momentum": "sideways"}
	]
}`

func TestTrendScorerScoresAndNormalizes(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validTrendsJSON)}}
	scorer, err := NewTrendScorer(TrendScorerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewTrendScorer returned error: %v", err)
	}

	trends, err := scorer.Scan(context.Background(), TrendInput{
		Platform: "linkedin",
		Pillars:  []string{"Building in public", "Hiring lessons"},
	})
	if err != nil {
		t.Fatalf("Scan returned error: %v", err)
	}

	if len(trends) != 3 {
		t.Fatalf("expected 3 trends, got %d", len(trends))
	}

	if trends[1].Score != 100 {
		t.Fatalf("expected out-of-range score clamped to 100, got %d", trends[1].Score)
	}

	if trends[0].Momentum != MomentumRising {
		t.Fatalf("expected momentum rising, got %q", trends[0].Momentum)
	}

	if trends[2].Momentum != MomentumRising {
		t.Fatalf("expected unknown momentum normalized to rising, got %q", trends[2].Momentum)
	}
}

func TestTrendScorerRequiresPlatform(t *testing.T) {
	t.Parallel()

	chat := &fakeChatService{responses: []*openai.ChatCompletion{completionWithContent(validTrendsJSON)}}
	scorer, err := NewTrendScorer(TrendScorerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewTrendScorer returned error: %v", err)
	}

	if _, err := scorer.Scan(context.Background(), TrendInput{}); err == nil {
		t.Fatalf("expected error when platform is missing")
	}

	if chat.calls != 0 {
		t.Fatalf("expected no completion calls, got %d", chat.calls)
	}
}

func TestTrendScorerRejectsEmptyTrendList(t *testing.T) {
	t.Parallel()

	empty := completionWithContent(`{"trends": []}`)
	chat := &fakeChatService{responses: []*openai.ChatCompletion{empty, empty}}
	scorer, err := NewTrendScorer(TrendScorerOptions{Client: newTestClient(chat), Model: "stub-model"})
	if err != nil {
		t.Fatalf("NewTrendScorer returned error: %v", err)
	}

	_, err = scorer.Scan(context.Background(), TrendInput{Platform: "linkedin"})
	if err == nil {
		t.Fatalf("expected error for empty trend list")
	}

	if !eris.Is(err, ErrMalformedPayload) {
		t.Fatalf("expected ErrMalformedPayload, got %v", err)
	}
}
