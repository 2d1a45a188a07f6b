package http

import (
	"context"
	stdhttp "net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/llm"
	"quillcast/app/internal/studio"
)

type generationView struct {
	ID             uint            `json:"id"`
	PersonaID      uint            `json:"persona_id"`
	Topic          string          `json:"topic"`
	Angle          string          `json:"angle,omitempty"`
	Pillar         string          `json:"pillar,omitempty"`
	ProfileVersion int             `json:"profile_version"`
	Variations     []llm.Variation `json:"variations"`
	CreatedAt      string          `json:"created_at"`
}

type calendarView struct {
	ID           uint   `json:"id"`
	PersonaID    uint   `json:"persona_id"`
	GenerationID *uint  `json:"generation_id,omitempty"`
	Body         string `json:"body"`
	ScheduledFor string `json:"scheduled_for"`
	Status       string `json:"status"`
}

type generateInput struct {
	Body struct {
		PersonaID uint   `json:"persona_id"`
		Topic     string `json:"topic"`
		PillarID  uint   `json:"pillar_id,omitempty"`
		Angle     string `json:"angle,omitempty"`
	}
}

type generationIDInput struct {
	ID uint `path:"id"`
}

type scheduleItemInput struct {
	Body struct {
		PersonaID    uint   `json:"persona_id"`
		GenerationID uint   `json:"generation_id,omitempty"`
		Body         string `json:"body"`
		ScheduledFor string `json:"scheduled_for"`
		Status       string `json:"status,omitempty"`
	}
}

type listCalendarInput struct {
	Persona uint   `query:"persona"`
	From    string `query:"from"`
	To      string `query:"to"`
}

type calendarItemIDInput struct {
	ID uint `path:"id"`
}

type updateItemInput struct {
	ID   uint `path:"id"`
	Body struct {
		Body         *string `json:"body,omitempty"`
		ScheduledFor *string `json:"scheduled_for,omitempty"`
		Status       *string `json:"status,omitempty"`
	}
}

func (s *Server) registerStudioRoutes() {
	huma.Post(s.api, "/api/generate", s.generateHandler, func(op *huma.Operation) {
		op.Summary = "Generate post variations"
	})
	huma.Get(s.api, "/api/generations/{id}", s.getGenerationHandler, func(op *huma.Operation) {
		op.Summary = "Fetch generation"
	})
	huma.Get(s.api, "/api/personas/{id}/generations", s.listGenerationsHandler, func(op *huma.Operation) {
		op.Summary = "List generations"
	})
	huma.Post(s.api, "/api/calendar", s.scheduleItemHandler, func(op *huma.Operation) {
		op.Summary = "Plan calendar item"
	})
	huma.Get(s.api, "/api/calendar", s.listCalendarHandler, func(op *huma.Operation) {
		op.Summary = "List calendar items"
	})
	huma.Patch(s.api, "/api/calendar/{id}", s.updateItemHandler, func(op *huma.Operation) {
		op.Summary = "Update calendar item"
	})
	huma.Delete(s.api, "/api/calendar/{id}", s.deleteItemHandler, func(op *huma.Operation) {
		op.Summary = "Delete calendar item"
	})
}

func (s *Server) generateHandler(ctx context.Context, input *generateInput) (*response[*generationView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*generationView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	generation, variations, err := s.studio.Generate(ctx, acct.ID, studio.GenerateParams{
		PersonaID: input.Body.PersonaID,
		Topic:     input.Body.Topic,
		PillarID:  input.Body.PillarID,
		Angle:     input.Body.Angle,
	})
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "generating content", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[*generationView](status, message), nil
	}

	return ok(newGenerationView(generation, variations)), nil
}

func (s *Server) getGenerationHandler(ctx context.Context, input *generationIDInput) (*response[*generationView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*generationView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	generation, variations, err := s.studio.GetGeneration(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "fetching generation", logrus.Fields{"generation_id": input.ID})
		return fail[*generationView](status, message), nil
	}

	return ok(newGenerationView(generation, variations)), nil
}

func (s *Server) listGenerationsHandler(ctx context.Context, input *personaIDInput) (*response[[]generationView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]generationView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	generations, err := s.studio.ListGenerations(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing generations", logrus.Fields{"persona_id": input.ID})
		return fail[[]generationView](status, message), nil
	}

	views := make([]generationView, 0, len(generations))
	for i := range generations {
		generation := &generations[i]
		variations, err := generation.DecodedVariations()
		if err != nil {
			s.recordError(ctx, err, "decoding stored variations", logrus.Fields{"generation_id": generation.ID})
			return fail[[]generationView](stdhttp.StatusInternalServerError, errorFallbackMessage), nil
		}
		views = append(views, *newGenerationView(generation, variations))
	}

	return ok(views), nil
}

func (s *Server) scheduleItemHandler(ctx context.Context, input *scheduleItemInput) (*response[*calendarView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*calendarView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	scheduledFor, err := parseTimeField(input.Body.ScheduledFor)
	if err != nil {
		return fail[*calendarView](stdhttp.StatusBadRequest, "scheduled_for must be an RFC 3339 timestamp"), nil
	}

	item, err := s.studio.ScheduleItem(ctx, acct.ID, studio.CalendarInput{
		PersonaID:    input.Body.PersonaID,
		GenerationID: input.Body.GenerationID,
		Body:         input.Body.Body,
		ScheduledFor: scheduledFor,
		Status:       input.Body.Status,
	})
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "planning calendar item", logrus.Fields{"persona_id": input.Body.PersonaID})
		return fail[*calendarView](status, message), nil
	}

	return ok(newCalendarView(item)), nil
}

func (s *Server) listCalendarHandler(ctx context.Context, input *listCalendarInput) (*response[[]calendarView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]calendarView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	from, err := parseTimeField(input.From)
	if err != nil {
		return fail[[]calendarView](stdhttp.StatusBadRequest, "from must be an RFC 3339 timestamp"), nil
	}
	to, err := parseTimeField(input.To)
	if err != nil {
		return fail[[]calendarView](stdhttp.StatusBadRequest, "to must be an RFC 3339 timestamp"), nil
	}

	items, err := s.studio.ListCalendar(ctx, acct.ID, input.Persona, from, to)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing calendar items", logrus.Fields{"persona_id": input.Persona})
		return fail[[]calendarView](status, message), nil
	}

	views := make([]calendarView, 0, len(items))
	for i := range items {
		views = append(views, *newCalendarView(&items[i]))
	}

	return ok(views), nil
}

func (s *Server) updateItemHandler(ctx context.Context, input *updateItemInput) (*response[*calendarView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*calendarView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	update := studio.CalendarUpdate{
		Body:   input.Body.Body,
		Status: input.Body.Status,
	}
	if input.Body.ScheduledFor != nil {
		parsed, err := parseTimeField(*input.Body.ScheduledFor)
		if err != nil || parsed.IsZero() {
			return fail[*calendarView](stdhttp.StatusBadRequest, "scheduled_for must be an RFC 3339 timestamp"), nil
		}
		update.ScheduledFor = &parsed
	}

	item, err := s.studio.UpdateItem(ctx, acct.ID, input.ID, update)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "updating calendar item", logrus.Fields{"item_id": input.ID})
		return fail[*calendarView](status, message), nil
	}

	return ok(newCalendarView(item)), nil
}

func (s *Server) deleteItemHandler(ctx context.Context, input *calendarItemIDInput) (*response[*confirmView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*confirmView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	if err := s.studio.DeleteItem(ctx, acct.ID, input.ID); err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "deleting calendar item", logrus.Fields{"item_id": input.ID})
		return fail[*confirmView](status, message), nil
	}

	return ok(&confirmView{Deleted: true}), nil
}

func newGenerationView(generation *studio.Generation, variations []llm.Variation) *generationView {
	return &generationView{
		ID:             generation.ID,
		PersonaID:      generation.PersonaID,
		Topic:          generation.Topic,
		Angle:          generation.Angle,
		Pillar:         generation.PillarName,
		ProfileVersion: generation.ProfileVersion,
		Variations:     variations,
		CreatedAt:      formatTime(generation.CreatedAt),
	}
}

func newCalendarView(item *studio.CalendarItem) *calendarView {
	return &calendarView{
		ID:           item.ID,
		PersonaID:    item.PersonaID,
		GenerationID: item.GenerationID,
		Body:         item.Body,
		ScheduledFor: formatTime(item.ScheduledFor),
		Status:       item.Status,
	}
}

// parseTimeField parses an optional RFC 3339 timestamp; empty means unset.
func parseTimeField(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}
