package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/discover"
	"quillcast/app/internal/llm"
)

type pillarView struct {
	ID          uint     `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Keywords    []string `json:"keywords"`
	Confidence  float64  `json:"confidence"`
}

type topicView struct {
	Title     string `json:"title"`
	Pillar    string `json:"pillar"`
	Rationale string `json:"rationale"`
}

type trendView struct {
	Topic     string `json:"topic"`
	Score     int    `json:"score"`
	Rationale string `json:"rationale,omitempty"`
	Momentum  string `json:"momentum"`
	ScannedAt string `json:"scanned_at"`
}

type personaBodyInput struct {
	Body struct {
		PersonaID uint `json:"persona_id"`
	}
}

type suggestTopicsInput struct {
	Body struct {
		PersonaID uint `json:"persona_id"`
		PillarID  uint `json:"pillar_id,omitempty"`
	}
}

func (s *Server) registerDiscoverRoutes() {
	huma.Post(s.api, "/api/discover/pillars", s.discoverPillarsHandler, func(op *huma.Operation) {
		op.Summary = "Discover content pillars"
	})
	huma.Get(s.api, "/api/personas/{id}/pillars", s.listPillarsHandler, func(op *huma.Operation) {
		op.Summary = "List content pillars"
	})
	huma.Post(s.api, "/api/discover/topics", s.suggestTopicsHandler, func(op *huma.Operation) {
		op.Summary = "Suggest post topics"
	})
	huma.Post(s.api, "/api/discover/trends", s.scanTrendsHandler, func(op *huma.Operation) {
		op.Summary = "Scan platform trends"
	})
	huma.Get(s.api, "/api/personas/{id}/trends", s.listTrendsHandler, func(op *huma.Operation) {
		op.Summary = "List latest scanned trends"
	})
}

func (s *Server) discoverPillarsHandler(ctx context.Context, input *personaBodyInput) (*response[[]pillarView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]pillarView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	pillars, err := s.discover.DiscoverPillars(ctx, acct.ID, input.Body.PersonaID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "discovering pillars", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[[]pillarView](status, message), nil
	}

	return s.pillarViews(ctx, pillars)
}

func (s *Server) listPillarsHandler(ctx context.Context, input *personaIDInput) (*response[[]pillarView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]pillarView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	pillars, err := s.discover.ListPillars(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing pillars", logrus.Fields{"persona_id": input.ID})
		return fail[[]pillarView](status, message), nil
	}

	return s.pillarViews(ctx, pillars)
}

func (s *Server) suggestTopicsHandler(ctx context.Context, input *suggestTopicsInput) (*response[[]topicView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]topicView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	topics, err := s.discover.SuggestTopics(ctx, acct.ID, input.Body.PersonaID, input.Body.PillarID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "suggesting topics", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[[]topicView](status, message), nil
	}

	return ok(topicViews(topics)), nil
}

func (s *Server) scanTrendsHandler(ctx context.Context, input *personaBodyInput) (*response[[]trendView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]trendView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	trends, err := s.discover.ScanTrends(ctx, acct.ID, input.Body.PersonaID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "scanning trends", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[[]trendView](status, message), nil
	}

	return ok(trendViews(trends)), nil
}

func (s *Server) listTrendsHandler(ctx context.Context, input *personaIDInput) (*response[[]trendView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]trendView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	trends, err := s.discover.ListTrends(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing trends", logrus.Fields{"persona_id": input.ID})
		return fail[[]trendView](status, message), nil
	}

	return ok(trendViews(trends)), nil
}

func (s *Server) pillarViews(ctx context.Context, pillars []discover.ContentPillar) (*response[[]pillarView], error) {
	views := make([]pillarView, 0, len(pillars))
	for i := range pillars {
		pillar := &pillars[i]
		keywords, err := pillar.DecodedKeywords()
		if err != nil {
			s.recordError(ctx, err, "decoding pillar keywords", logrus.Fields{"pillar_id": pillar.ID})
			return fail[[]pillarView](stdhttp.StatusInternalServerError, errorFallbackMessage), nil
		}
		views = append(views, pillarView{
			ID:          pillar.ID,
			Name:        pillar.Name,
			Description: pillar.Description,
			Keywords:    keywords,
			Confidence:  pillar.Confidence,
		})
	}

	return ok(views), nil
}

func topicViews(topics []llm.Topic) []topicView {
	views := make([]topicView, 0, len(topics))
	for _, topic := range topics {
		views = append(views, topicView{
			Title:     topic.Title,
			Pillar:    topic.Pillar,
			Rationale: topic.Rationale,
		})
	}
	return views
}

func trendViews(trends []discover.Trend) []trendView {
	views := make([]trendView, 0, len(trends))
	for _, trend := range trends {
		views = append(views, trendView{
			Topic:     trend.Topic,
			Score:     trend.Score,
			Rationale: trend.Rationale,
			Momentum:  trend.Momentum,
			ScannedAt: formatTime(trend.CreatedAt),
		})
	}
	return views
}
