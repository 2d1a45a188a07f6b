package http

import (
	"context"
	stdhttp "net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/voice"
)

type personaView struct {
	ID        uint   `json:"id"`
	Name      string `json:"name"`
	Platform  string `json:"platform"`
	Headline  string `json:"headline,omitempty"`
	Audience  string `json:"audience,omitempty"`
	Goals     string `json:"goals,omitempty"`
	CreatedAt string `json:"created_at"`
}

type createPersonaInput struct {
	Body struct {
		Name     string `json:"name"`
		Platform string `json:"platform"`
		Headline string `json:"headline,omitempty"`
		Audience string `json:"audience,omitempty"`
		Goals    string `json:"goals,omitempty"`
	}
}

type personaIDInput struct {
	ID uint `path:"id"`
}

func (s *Server) registerPersonaRoutes() {
	huma.Post(s.api, "/api/personas", s.createPersonaHandler, func(op *huma.Operation) {
		op.Summary = "Create persona"
	})
	huma.Get(s.api, "/api/personas", s.listPersonasHandler, func(op *huma.Operation) {
		op.Summary = "List personas"
	})
	huma.Get(s.api, "/api/personas/{id}", s.getPersonaHandler, func(op *huma.Operation) {
		op.Summary = "Fetch persona"
	})
	huma.Delete(s.api, "/api/personas/{id}", s.deletePersonaHandler, func(op *huma.Operation) {
		op.Summary = "Delete persona and its posts"
	})
}

func (s *Server) createPersonaHandler(ctx context.Context, input *createPersonaInput) (*response[*personaView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*personaView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	persona, err := s.voice.CreatePersona(ctx, acct.ID, voice.PersonaInput{
		Name:     input.Body.Name,
		Platform: input.Body.Platform,
		Headline: input.Body.Headline,
		Audience: input.Body.Audience,
		Goals:    input.Body.Goals,
	})
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "creating persona", logrus.Fields{"name": input.Body.Name})
		return fail[*personaView](status, message), nil
	}

	return ok(newPersonaView(persona)), nil
}

func (s *Server) listPersonasHandler(ctx context.Context, _ *struct{}) (*response[[]personaView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[[]personaView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	personas, err := s.voice.ListPersonas(ctx, acct.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "listing personas", nil)
		return fail[[]personaView](status, message), nil
	}

	views := make([]personaView, 0, len(personas))
	for i := range personas {
		views = append(views, *newPersonaView(&personas[i]))
	}

	return ok(views), nil
}

func (s *Server) getPersonaHandler(ctx context.Context, input *personaIDInput) (*response[*personaView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*personaView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	persona, err := s.voice.GetPersona(ctx, acct.ID, input.ID)
	if err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "fetching persona", logrus.Fields{"persona_id": input.ID})
		return fail[*personaView](status, message), nil
	}

	return ok(newPersonaView(persona)), nil
}

func (s *Server) deletePersonaHandler(ctx context.Context, input *personaIDInput) (*response[*confirmView], error) {
	acct, okAcct := requireAccount(ctx)
	if !okAcct {
		return fail[*confirmView](stdhttp.StatusUnauthorized, unauthorizedMessage), nil
	}

	if err := s.voice.DeletePersona(ctx, acct.ID, input.ID); err != nil {
		status, message := classifyError(err)
		s.recordError(ctx, err, "deleting persona", logrus.Fields{"persona_id": input.ID})
		return fail[*confirmView](status, message), nil
	}

	return ok(&confirmView{Deleted: true}), nil
}

func newPersonaView(persona *voice.Persona) *personaView {
	return &personaView{
		ID:        persona.ID,
		Name:      persona.Name,
		Platform:  persona.Platform,
		Headline:  persona.Headline,
		Audience:  persona.Audience,
		Goals:     persona.Goals,
		CreatedAt: formatTime(persona.CreatedAt),
	}
}
