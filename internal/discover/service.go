package discover

import (
	"context"
	"encoding/json"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quillcast/app/internal/llm"
	"quillcast/app/internal/voice"
)

// Service defines pillar discovery, topic suggestion, and trend scanning
// built on top of the repository and the LLM components.
type Service interface {
	DiscoverPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error)
	ListPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error)

	SuggestTopics(ctx context.Context, accountID, personaID, pillarID uint) ([]llm.Topic, error)

	ScanTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error)
	ListTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error)
}

// Sentinel errors surfaced to the transport layer.
var (
	ErrNoPillars      = eris.New("no content pillars available, run pillar discovery first")
	ErrPillarNotFound = eris.New("content pillar not found")
)

type service struct {
	repo      Repository
	voices    voice.Repository
	finder    llm.PillarFinder
	topics    llm.TopicSuggester
	trends    llm.TrendScorer
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// ServiceOptions carries the dependencies of the discovery service.
type ServiceOptions struct {
	Repo      Repository
	Voices    voice.Repository
	Finder    llm.PillarFinder
	Topics    llm.TopicSuggester
	Trends    llm.TrendScorer
	Logger    *logrus.Logger
	SentryHub *sentry.Hub
}

// NewService wires the discovery service with its dependencies.
func NewService(opts ServiceOptions) (Service, error) {
	if opts.Repo == nil {
		return nil, eris.New("discover repository is required")
	}
	if opts.Voices == nil {
		return nil, eris.New("voice repository is required")
	}
	if opts.Finder == nil {
		return nil, eris.New("llm pillar finder is required")
	}
	if opts.Topics == nil {
		return nil, eris.New("llm topic suggester is required")
	}
	if opts.Trends == nil {
		return nil, eris.New("llm trend scorer is required")
	}

	return &service{
		repo:      opts.Repo,
		voices:    opts.Voices,
		finder:    opts.Finder,
		topics:    opts.Topics,
		trends:    opts.Trends,
		logger:    opts.Logger,
		sentryHub: opts.SentryHub,
	}, nil
}

// DiscoverPillars clusters the persona's qualifying posts into pillars and
// replaces the stored set with the new one.
func (s *service) DiscoverPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error) {
	persona, err := s.persona(ctx, accountID, personaID)
	if err != nil {
		return nil, err
	}

	posts, err := s.voices.ListPosts(ctx, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing posts for pillar discovery")
		return nil, eris.Wrap(err, "listing posts for pillar discovery")
	}

	bodies := voice.QualifyingBodies(posts)
	if len(bodies) < voice.MinAnalysisPosts {
		return nil, voice.ErrInsufficientPosts
	}

	found, err := s.finder.Discover(ctx, llm.PillarInput{
		PersonaName: persona.Name,
		Platform:    persona.Platform,
		Posts:       bodies,
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "running pillar discovery")
		return nil, eris.Wrapf(err, "running pillar discovery for persona: %d", personaID)
	}

	pillars := make([]ContentPillar, 0, len(found))
	for _, pillar := range found {
		keywords, err := json.Marshal(pillar.Keywords)
		if err != nil {
			s.recordError(logrus.Fields{"pillar": pillar.Name}, err, "encoding pillar keywords")
			return nil, eris.Wrap(err, "encoding pillar keywords")
		}

		pillars = append(pillars, ContentPillar{
			AccountID:   accountID,
			PersonaID:   personaID,
			Name:        pillar.Name,
			Description: pillar.Description,
			Keywords:    datatypes.JSON(keywords),
			Confidence:  pillar.Confidence,
		})
	}

	if err := s.repo.ReplacePillars(ctx, accountID, personaID, pillars); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "persisting pillars")
		return nil, eris.Wrap(err, "persisting pillars")
	}

	return s.ListPillars(ctx, accountID, personaID)
}

func (s *service) ListPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error) {
	if _, err := s.persona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	pillars, err := s.repo.ListPillars(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing pillars")
		return nil, eris.Wrap(err, "listing pillars")
	}

	return pillars, nil
}

// SuggestTopics proposes post topics from the stored pillars. A non-zero
// pillarID narrows the suggestions to that pillar.
func (s *service) SuggestTopics(ctx context.Context, accountID, personaID, pillarID uint) ([]llm.Topic, error) {
	persona, err := s.persona(ctx, accountID, personaID)
	if err != nil {
		return nil, err
	}

	pillars, err := s.repo.ListPillars(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing pillars for topics")
		return nil, eris.Wrap(err, "listing pillars for topics")
	}
	if len(pillars) == 0 {
		return nil, ErrNoPillars
	}

	focus := ""
	if pillarID != 0 {
		pillar, err := s.repo.GetPillar(ctx, accountID, personaID, pillarID)
		if err != nil {
			s.recordError(logrus.Fields{"pillar_id": pillarID}, err, "fetching focus pillar")
			return nil, eris.Wrapf(err, "fetching focus pillar: %d", pillarID)
		}
		if pillar == nil {
			return nil, ErrPillarNotFound
		}
		focus = pillar.Name
	}

	summary := ""
	if stored, err := s.voices.LatestProfile(ctx, personaID); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "loading profile summary for topics")
		return nil, eris.Wrap(err, "loading profile summary for topics")
	} else if stored != nil {
		profile, err := voice.DecodeProfile(stored)
		if err != nil {
			s.recordError(logrus.Fields{"persona_id": personaID}, err, "decoding profile for topics")
			return nil, err
		}
		summary = profile.Summary
	}

	topics, err := s.topics.Suggest(ctx, llm.TopicInput{
		Platform:       persona.Platform,
		ProfileSummary: summary,
		Pillars:        pillarNames(pillars),
		Focus:          focus,
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "running topic suggestion")
		return nil, eris.Wrapf(err, "running topic suggestion for persona: %d", personaID)
	}

	return topics, nil
}

// ScanTrends scores current platform trends against the stored pillars and
// persists the result as a new batch.
func (s *service) ScanTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error) {
	persona, err := s.persona(ctx, accountID, personaID)
	if err != nil {
		return nil, err
	}

	pillars, err := s.repo.ListPillars(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing pillars for trend scan")
		return nil, eris.Wrap(err, "listing pillars for trend scan")
	}
	if len(pillars) == 0 {
		return nil, ErrNoPillars
	}

	scored, err := s.trends.Scan(ctx, llm.TrendInput{
		Platform: persona.Platform,
		Pillars:  pillarNames(pillars),
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "running trend scan")
		return nil, eris.Wrapf(err, "running trend scan for persona: %d", personaID)
	}

	batchID := uuid.NewString()
	trends := make([]Trend, 0, len(scored))
	for _, trend := range scored {
		trends = append(trends, Trend{
			AccountID: accountID,
			PersonaID: personaID,
			BatchID:   batchID,
			Topic:     trend.Topic,
			Score:     trend.Score,
			Rationale: trend.Rationale,
			Momentum:  trend.Momentum,
		})
	}

	if err := s.repo.SaveTrends(ctx, trends); err != nil {
		s.recordError(logrus.Fields{"batch_id": batchID}, err, "persisting trend batch")
		return nil, eris.Wrap(err, "persisting trend batch")
	}

	return s.repo.LatestTrends(ctx, accountID, personaID)
}

func (s *service) ListTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error) {
	if _, err := s.persona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	trends, err := s.repo.LatestTrends(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing trends")
		return nil, eris.Wrap(err, "listing trends")
	}

	return trends, nil
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

func pillarNames(pillars []ContentPillar) []string {
	names := make([]string, 0, len(pillars))
	for _, pillar := range pillars {
		names = append(names, pillar.Name)
	}
	return names
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
