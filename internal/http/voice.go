package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/llm"
	"quillcast/app/internal/voice"
)

type postView struct {
	ID        uint   `json:"id"`
	Body      string `json:"body"`
	CharCount int    `json:"char_count"`
	Source    string `json:"source"`
	CreatedAt string `json:"created_at"`
}

type importView struct {
	Stored     int `json:"stored"`
	Skipped    int `json:"skipped"`
	Qualifying int `json:"qualifying"`
}

type profileView struct {
	Version          int      `json:"version"`
	SourcePostCount  int      `json:"source_post_count"`
	Summary          string   `json:"summary"`
	Structure        string   `json:"structure"`
	Tone             string   `json:"tone"`
	Vocabulary       string   `json:"vocabulary"`
	SignaturePhrases []string `json:"signature_phrases,omitempty"`
	CreatedAt        string   `json:"created_at"`
}

type deckThemeView struct {
	Name    string `json:"name"`
	Summary string `json:"summary"`
}

type deckView struct {
	Themes     []deckThemeView `json:"themes"`
	VoiceHints []string        `json:"voice_hints,omitempty"`
}

type importPostsInput struct {
	ID   uint `path:"id"`
	Body struct {
		Posts  []string `json:"posts"`
		Source string   `json:"source,omitempty"`
	}
}

type analyzeDeckInput struct {
	Body struct {
		PersonaID uint   `json:"persona_id"`
		Text      string `json:"text"`
	}
}

func (s *Server) registerVoiceRoutes() {
	huma.Post(s.api, "/api/personas/{id}/posts", s.importPostsHandler, func(op *huma.Operation) {
		op.Summary = "Import past posts"
	})
	huma.Get(s.api, "/api/personas/{id}/posts", s.listPostsHandler, func(op *huma.Operation) {
		op.Summary = "List stored posts"
	})
	huma.Post(s.api, "/api/personas/{id}/voice", s.analyzeVoiceHandler, func(op *huma.Operation) {
		op.Summary = "Analyze writing voice"
	})
	huma.Get(s.api, "/api/personas/{id}/voice", s.latestProfileHandler, func(op *huma.Operation) {
		op.Summary = "Fetch latest voice profile"
	})
	huma.Post(s.api, "/api/analyze/deck", s.analyzeDeckHandler, func(op *huma.Operation) {
		op.Summary = "Extract themes from deck text"
	})
}

func (s *Server) importPostsHandler(ctx context.Context, input *importPostsInput) (*response[*importView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*importView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	result, err := s.voice.ImportPosts(ctx, acct.ID, input.ID, input.Body.Posts, input.Body.Source)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "importing posts", logrus.Fields{"persona_id": input.ID})
		return fail[*importView](status, message), nil
	}

	return ok(&importView{
		Stored:     result.Stored,
		Skipped:    result.Skipped,
		Qualifying: result.Qualifying,
	}), nil
}

func (s *Server) listPostsHandler(ctx context.Context, input *personaIDInput) (*response[[]postView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]postView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	posts, err := s.voice.ListPosts(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing posts", logrus.Fields{"persona_id": input.ID})
		return fail[[]postView](status, message), nil
	}

	views := make([]postView, 0, len(posts))
	for _, post := range posts {
		views = append(views, postView{
			ID:        post.ID,
			Body:      post.Body,
			CharCount: post.CharCount,
			Source:    post.Source,
			CreatedAt: formatTime(post.CreatedAt),
		})
	}

	return ok(views), nil
}

func (s *Server) analyzeVoiceHandler(ctx context.Context, input *personaIDInput) (*response[*profileView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*profileView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	stored, profile, err := s.voice.AnalyzeVoice(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "analyzing voice", logrus.Fields{"persona_id": input.ID})
		return fail[*profileView](status, message), nil
	}

	return ok(newProfileView(stored, profile)), nil
}

func (s *Server) latestProfileHandler(ctx context.Context, input *personaIDInput) (*response[*profileView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*profileView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	stored, profile, err := s.voice.LatestProfile(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "fetching latest profile", logrus.Fields{"persona_id": input.ID})
		return fail[*profileView](status, message), nil
	}

	return ok(newProfileView(stored, profile)), nil
}

func (s *Server) analyzeDeckHandler(ctx context.Context, input *analyzeDeckInput) (*response[*deckView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*deckView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	insights, err := s.voice.AnalyzeDeck(ctx, acct.ID, input.Body.PersonaID, input.Body.Text)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "analyzing deck", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[*deckView](status, message), nil
	}

	view := &deckView{
		Themes:     make([]deckThemeView, 0, len(insights.Themes)),
		VoiceHints: insights.VoiceHints,
	}
	for _, theme := range insights.Themes {
		view.Themes = append(view.Themes, deckThemeView{Name: theme.Name, Summary: theme.Summary})
	}

	return ok(view), nil
}

func newProfileView(stored *voice.VoiceProfile, profile *llm.Profile) *profileView {
	return &profileView{
		Version:          stored.Version,
		SourcePostCount:  stored.SourcePostCount,
		Summary:          profile.Summary,
		Structure:        profile.Structure,
		Tone:             profile.Tone,
		Vocabulary:       profile.Vocabulary,
		SignaturePhrases: profile.SignaturePhrases,
		CreatedAt:        formatTime(stored.CreatedAt),
	}
}
