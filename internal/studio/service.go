package studio

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quillcast/app/internal/discover"
	"quillcast/app/internal/llm"
	"quillcast/app/internal/voice"
)

// Service defines content generation and calendar planning built on top of
// the repositories and the LLM generator.
type Service interface {
	Generate(ctx context.Context, accountID uint, params GenerateParams) (*Generation, []llm.Variation, error)
	GetGeneration(ctx context.Context, accountID, generationID uint) (*Generation, []llm.Variation, error)
	ListGenerations(ctx context.Context, accountID, personaID uint) ([]Generation, error)

	ScheduleItem(ctx context.Context, accountID uint, input CalendarInput) (*CalendarItem, error)
	ListCalendar(ctx context.Context, accountID, personaID uint, from, to time.Time) ([]CalendarItem, error)
	UpdateItem(ctx context.Context, accountID, itemID uint, input CalendarUpdate) (*CalendarItem, error)
	DeleteItem(ctx context.Context, accountID, itemID uint) error
}

// GenerateParams carries one generation request.
type GenerateParams struct {
	PersonaID uint
	Topic     string
	Angle     string
	PillarID  uint
}

// CalendarInput carries the fields accepted when planning a calendar item.
type CalendarInput struct {
	PersonaID    uint
	GenerationID uint
	Body         string
	ScheduledFor time.Time
	Status       string
}

// CalendarUpdate carries optional changes to an existing calendar item.
// Nil fields are left untouched.
type CalendarUpdate struct {
	Body         *string
	ScheduledFor *time.Time
	Status       *string
}

// Sentinel errors surfaced to the transport layer.
var (
	ErrProfileRequired      = eris.New("run voice analysis before generating content")
	ErrGenerationNotFound   = eris.New("generation not found")
	ErrCalendarItemNotFound = eris.New("calendar item not found")
	ErrInvalidStatus        = eris.New("status must be one of draft, scheduled, published")
)

var allowedStatuses = map[string]struct{}{
	StatusDraft:     {},
	StatusScheduled: {},
	StatusPublished: {},
}

type service struct {
	repo      Repository
	voices    voice.Repository
	pillars   discover.Repository
	generator llm.Generator
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// ServiceOptions carries the dependencies of the studio service.
type ServiceOptions struct {
	Repo      Repository
	Voices    voice.Repository
	Pillars   discover.Repository
	Generator llm.Generator
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

// NewService wires the studio service with its dependencies.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Repo == nil {
		return nil, eris.New("studio repository is required")
	}
	if opts.Voices == nil {
		return nil, eris.New("voice repository is required")
	}
	if opts.Pillars == nil {
		return nil, eris.New("discover repository is required")
	}
	if opts.Generator == nil {
		return nil, eris.New("llm generator is required")
	}

	return &service{
		repo:      opts.Repo,
		voices:    opts.Voices,
		pillars:   opts.Pillars,
		generator: opts.Generator,
		logger:    opts.Logger,
		sentryHub: opts.SentryHub,
	}, nil
}

// Generate produces three scored variations for the topic in the persona's
// voice and records the run.
func (s *service) Generate(ctx context.Context, accountID uint, params GenerateParams) (*Generation, []llm.Variation, error) {
	persona, err := s.persona(ctx, accountID, params.PersonaID)
	if err != nil {
		return nil, nil, err
	}

	topic := strings.TrimSpace(params.Topic)
	if topic == "" {
		return nil, nil, eris.New("topic is required")
	}

	stored, err := s.voices.LatestProfile(ctx, params.PersonaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": params.PersonaID}, err, "loading voice profile for generation")
		return nil, nil, eris.Wrap(err, "loading voice profile for generation")
	}
	if stored == nil {
		return nil, nil, ErrProfileRequired
	}

	profile, err := voice.DecodeProfile(stored)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": params.PersonaID}, err, "decoding voice profile")
		return nil, nil, err
	}

	pillarName := ""
	if params.PillarID != 0 {
		pillar, err := s.pillars.GetPillar(ctx, accountID, params.PersonaID, params.PillarID)
		if err != nil {
			s.recordError(logrus.Fields{"pillar_id": params.PillarID}, err, "fetching pillar for generation")
			return nil, nil, eris.Wrapf(err, "fetching pillar for generation: %d", params.PillarID)
		}
		if pillar == nil {
			return nil, nil, discover.ErrPillarNotFound
		}
		pillarName = pillar.Name
	}

	variations, err := s.generator.Generate(ctx, llm.GenerateInput{
		PersonaName: persona.Name,
		Platform:    persona.Platform,
		Topic:       topic,
		Pillar:      pillarName,
		Angle:       strings.TrimSpace(params.Angle),
		Profile:     profile,
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": params.PersonaID}, err, "running content generation")
		return nil, nil, eris.Wrapf(err, "running content generation for persona: %d", params.PersonaID)
	}

	encoded, err := json.Marshal(variations)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": params.PersonaID}, err, "encoding variations")
		return nil, nil, eris.Wrap(err, "encoding variations")
	}

	generation := &Generation{
		AccountID:      accountID,
		PersonaID:      params.PersonaID,
		Topic:          topic,
		Angle:          strings.TrimSpace(params.Angle),
		PillarName:     pillarName,
		ProfileVersion: stored.Version,
		Variations:     datatypes.JSON(encoded),
	}

	if err := s.repo.CreateGeneration(ctx, generation); err != nil {
		s.recordError(logrus.Fields{"persona_id": params.PersonaID}, err, "persisting generation")
		return nil, nil, eris.Wrap(err, "persisting generation")
	}

	return generation, variations, nil
}

func (s *service) GetGeneration(ctx context.Context, accountID, generationID uint) (*Generation, []llm.Variation, error) {
	generation, err := s.repo.GetGeneration(ctx, accountID, generationID)
	if err != nil {
		s.recordError(logrus.Fields{"generation_id": generationID}, err, "retrieving generation")
		return nil, nil, eris.Wrapf(err, "retrieving generation: %d", generationID)
	}
	if generation == nil {
		return nil, nil, ErrGenerationNotFound
	}

	variations, err := generation.DecodedVariations()
	if err != nil {
		s.recordError(logrus.Fields{"generation_id": generationID}, err, "decoding stored variations")
		return nil, nil, err
	}

	return generation, variations, nil
}

func (s *service) ListGenerations(ctx context.Context, accountID, personaID uint) ([]Generation, error) {
	if _, err := s.persona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	generations, err := s.repo.ListGenerations(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing generations")
		return nil, eris.Wrap(err, "listing generations")
	}

	return generations, nil
}

// ScheduleItem plans one calendar item, optionally linked to the generation
// its body came from.
func (s *service) ScheduleItem(ctx context.Context, accountID uint, input CalendarInput) (*CalendarItem, error) {
	if _, err := s.persona(ctx, accountID, input.PersonaID); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, eris.New("calendar item body is required")
	}
	if input.ScheduledFor.IsZero() {
		return nil, eris.New("scheduled time is required")
	}

	status := strings.ToLower(strings.TrimSpace(input.Status))
	if status == "" {
		status = StatusDraft
	}
	if _, ok := allowedStatuses[status]; !ok {
		return nil, ErrInvalidStatus
	}

	item := &CalendarItem{
		AccountID:    accountID,
		PersonaID:    input.PersonaID,
		Body:         body,
		ScheduledFor: input.ScheduledFor,
		Status:       status,
	}

	if input.GenerationID != 0 {
		generation, err := s.repo.GetGeneration(ctx, accountID, input.GenerationID)
		if err != nil {
			s.recordError(logrus.Fields{"generation_id": input.GenerationID}, err, "fetching generation for calendar item")
			return nil, eris.Wrapf(err, "fetching generation for calendar item: %d", input.GenerationID)
		}
		if generation == nil {
			return nil, ErrGenerationNotFound
		}
		item.GenerationID = &generation.ID
	}

	if err := s.repo.CreateCalendarItem(ctx, item); err != nil {
		s.recordError(logrus.Fields{"persona_id": input.PersonaID}, err, "persisting calendar item")
		return nil, eris.Wrap(err, "persisting calendar item")
	}

	return item, nil
}

func (s *service) ListCalendar(ctx context.Context, accountID, personaID uint, from, to time.Time) ([]CalendarItem, error) {
	if _, err := s.persona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	items, err := s.repo.ListCalendar(ctx, accountID, personaID, from, to)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing calendar items")
		return nil, eris.Wrap(err, "listing calendar items")
	}

	return items, nil
}

func (s *service) UpdateItem(ctx context.Context, accountID, itemID uint, input CalendarUpdate) (*CalendarItem, error) {
	item, err := s.repo.GetCalendarItem(ctx, accountID, itemID)
	if err != nil {
		s.recordError(logrus.Fields{"item_id": itemID}, err, "retrieving calendar item")
		return nil, eris.Wrapf(err, "retrieving calendar item: %d", itemID)
	}
	if item == nil {
		return nil, ErrCalendarItemNotFound
	}

	if input.Body != nil {
		body := strings.TrimSpace(*input.Body)
		if body == "" {
			return nil, eris.New("calendar item body is required")
		}
		item.Body = body
	}
	if input.ScheduledFor != nil {
		if input.ScheduledFor.IsZero() {
			return nil, eris.New("scheduled time is required")
		}
		item.ScheduledFor = *input.ScheduledFor
	}
	if input.Status != nil {
		status := strings.ToLower(strings.TrimSpace(*input.Status))
		if _, ok := allowedStatuses[status]; !ok {
			return nil, ErrInvalidStatus
		}
		item.Status = status
	}

	if err := s.repo.UpdateCalendarItem(ctx, item); err != nil {
		s.recordError(logrus.Fields{"item_id": itemID}, err, "updating calendar item")
		return nil, eris.Wrapf(err, "updating calendar item: %d", itemID)
	}

	return item, nil
}

func (s *service) DeleteItem(ctx context.Context, accountID, itemID uint) error {
	item, err := s.repo.GetCalendarItem(ctx, accountID, itemID)
	if err != nil {
		s.recordError(logrus.Fields{"item_id": itemID}, err, "retrieving calendar item")
		return eris.Wrapf(err, "retrieving calendar item: %d", itemID)
	}
	if item == nil {
		return ErrCalendarItemNotFound
	}

	if err := s.repo.DeleteCalendarItem(ctx, accountID, itemID); err != nil {
		s.recordError(logrus.Fields{"item_id": itemID}, err, "deleting calendar item")
		return eris.Wrapf(err, "deleting calendar item: %d", itemID)
	}

	return nil
}

func (s *service) persona(ctx context.Context, accountID, personaID uint) (*voice.Persona, error) {
	persona, err := s.voices.GetPersona(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "retrieving persona")
		return nil, eris.Wrapf(err, "retrieving persona: %d", personaID)
	}
	if persona == nil {
		return nil, voice.ErrPersonaNotFound
	}

	return persona, nil
}

func (s *service) recordError(fields logrus.Fields, err error, message string) {
	if err == nil {
		return
	}

	if s.logger != nil {
		entry := s.logger.WithField("error", err.Error())
		if len(fields) > 0 {
			entry = entry.WithFields(fields)
		}
		entry.Error(message)
	}

	if s.sentryHub != nil {
		s.sentryHub.CaptureException(err)
	}
}
