package voice

import (
	"context"
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/getsentry/sentry-go"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quillcast/app/internal/llm"
)

// Service defines higher-level persona and voice operations built on top of
// the repository and the LLM components.
type Service interface {
	CreatePersona(ctx context.Context, accountID uint, input PersonaInput) (*Persona, error)
	GetPersona(ctx context.Context, accountID, personaID uint) (*Persona, error)
	ListPersonas(ctx context.Context, accountID uint) ([]Persona, error)
	DeletePersona(ctx context.Context, accountID, personaID uint) error

	ImportPosts(ctx context.Context, accountID, personaID uint, bodies []string, source string) (*ImportResult, error)
	ListPosts(ctx context.Context, accountID, personaID uint) ([]Post, error)

	AnalyzeVoice(ctx context.Context, accountID, personaID uint) (*VoiceProfile, *llm.Profile, error)
	LatestProfile(ctx context.Context, accountID, personaID uint) (*VoiceProfile, *llm.Profile, error)

	AnalyzeDeck(ctx context.Context, accountID, personaID uint, deckText string) (*llm.DeckInsights, error)
}

// PersonaInput carries the fields accepted when creating a persona.
type PersonaInput struct {
	Name     string
	Platform string
	Headline string
	Audience string
	Goals    string
}

// ImportResult summarises one bulk post import.
type ImportResult struct {
	Stored     int
	Skipped    int
	Qualifying int
}

// MinAnalysisPosts is how many qualifying posts voice analysis requires.
const MinAnalysisPosts = 3

// Sentinel errors surfaced to the transport layer.
var (
	ErrPersonaNotFound   = eris.New("persona not found")
	ErrInsufficientPosts = eris.New("at least 3 posts of 50 or more characters are required for voice analysis")
	ErrNoProfile         = eris.New("no voice profile available")
	ErrInvalidPlatform   = eris.New("platform must be one of linkedin, x, threads, instagram")
)

var allowedPlatforms = map[string]struct{}{
	PlatformLinkedIn:  {},
	PlatformX:         {},
	PlatformThreads:   {},
	PlatformInstagram: {},
}

// PersonaPurger removes rows another package keeps for a persona. Registered
// purgers run before the persona itself is deleted.
type PersonaPurger interface {
	PurgePersona(ctx context.Context, accountID, personaID uint) error
}

type service struct {
	repo      Repository
	analyzer  llm.Analyzer
	deck      llm.DeckAnalyzer
	purgers   []PersonaPurger
	logger    *logrus.Logger
	sentryHub *sentry.Hub
}

var _ Service = (*service)(nil)

// NewService wires the voice service with its dependencies.
func NewService(repo Repository, analyzer llm.Analyzer, deck llm.DeckAnalyzer, logger *logrus.Logger, hub *sentry.Hub, purgers ...PersonaPurger) (Service, error) {
	if repo == nil {
		return nil, eris.New("voice repository is required")
	}
	if analyzer == nil {
		return nil, eris.New("llm analyzer is required")
	}
	if deck == nil {
		return nil, eris.New("llm deck analyzer is required")
	}

	return &service{
		repo:      repo,
		analyzer:  analyzer,
		deck:      deck,
		purgers:   purgers,
		logger:    logger,
		sentryHub: hub,
	}, nil
}

func (s *service) CreatePersona(ctx context.Context, accountID uint, input PersonaInput) (*Persona, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, eris.New("persona name is required")
	}

	platform := strings.ToLower(strings.TrimSpace(input.Platform))
	if _, ok := allowedPlatforms[platform]; !ok {
		return nil, ErrInvalidPlatform
	}

	persona := &Persona{
		AccountID: accountID,
		Name:      name,
		Platform:  platform,
		Headline:  strings.TrimSpace(input.Headline),
		Audience:  strings.TrimSpace(input.Audience),
		Goals:     strings.TrimSpace(input.Goals),
	}

	if err := s.repo.CreatePersona(ctx, persona); err != nil {
		s.recordError(logrus.Fields{"persona": name}, err, "creating persona")
		return nil, eris.Wrapf(err, "creating persona: %s", name)
	}

	return persona, nil
}

func (s *service) GetPersona(ctx context.Context, accountID, personaID uint) (*Persona, error) {
	persona, err := s.repo.GetPersona(ctx, accountID, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "retrieving persona")
		return nil, eris.Wrapf(err, "retrieving persona: %d", personaID)
	}
	if persona == nil {
		return nil, ErrPersonaNotFound
	}

	return persona, nil
}

func (s *service) ListPersonas(ctx context.Context, accountID uint) ([]Persona, error) {
	personas, err := s.repo.ListPersonas(ctx, accountID)
	if err != nil {
		s.recordError(logrus.Fields{"account_id": accountID}, err, "listing personas")
		return nil, eris.Wrap(err, "listing personas")
	}

	return personas, nil
}

func (s *service) DeletePersona(ctx context.Context, accountID, personaID uint) error {
	if _, err := s.GetPersona(ctx, accountID, personaID); err != nil {
		return err
	}

	// Dependent rows go first so a failed purge leaves the persona intact
	// and the delete retryable.
	for _, purger := range s.purgers {
		if err := purger.PurgePersona(ctx, accountID, personaID); err != nil {
			s.recordError(logrus.Fields{"persona_id": personaID}, err, "purging persona data")
			return eris.Wrapf(err, "purging persona data: %d", personaID)
		}
	}

	if err := s.repo.DeletePersona(ctx, accountID, personaID); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "deleting persona")
		return eris.Wrapf(err, "deleting persona: %d", personaID)
	}

	return nil
}

func (s *service) ImportPosts(ctx context.Context, accountID, personaID uint, bodies []string, source string) (*ImportResult, error) {
	if len(bodies) == 0 {
		return nil, eris.New("at least one post body is required")
	}

	if _, err := s.GetPersona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	source = strings.TrimSpace(source)
	if source == "" {
		source = SourceImported
	}

	result := &ImportResult{}
	posts := make([]Post, 0, len(bodies))

	for _, body := range bodies {
		text, err := StripHTML(body)
		if err != nil {
			s.recordError(logrus.Fields{"persona_id": personaID}, err, "stripping post html")
			return nil, eris.Wrap(err, "stripping post html")
		}

		if text == "" {
			result.Skipped++
			continue
		}

		posts = append(posts, Post{
			PersonaID: personaID,
			Body:      text,
			CharCount: utf8.RuneCountInString(text),
			Source:    source,
		})
		result.Stored++
		if qualifies(text) {
			result.Qualifying++
		}
	}

	if len(posts) == 0 {
		return nil, eris.New("all post bodies were empty after cleaning")
	}

	if err := s.repo.AddPosts(ctx, posts); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "persisting imported posts")
		return nil, eris.Wrap(err, "persisting imported posts")
	}

	return result, nil
}

func (s *service) ListPosts(ctx context.Context, accountID, personaID uint) ([]Post, error) {
	if _, err := s.GetPersona(ctx, accountID, personaID); err != nil {
		return nil, err
	}

	posts, err := s.repo.ListPosts(ctx, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing posts")
		return nil, eris.Wrap(err, "listing posts")
	}

	return posts, nil
}

func (s *service) AnalyzeVoice(ctx context.Context, accountID, personaID uint) (*VoiceProfile, *llm.Profile, error) {
	persona, err := s.GetPersona(ctx, accountID, personaID)
	if err != nil {
		return nil, nil, err
	}

	posts, err := s.repo.ListPosts(ctx, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "listing posts for analysis")
		return nil, nil, eris.Wrap(err, "listing posts for analysis")
	}

	bodies := QualifyingBodies(posts)
	if len(bodies) < MinAnalysisPosts {
		return nil, nil, ErrInsufficientPosts
	}

	profile, err := s.analyzer.Analyze(ctx, llm.AnalyzeInput{
		PersonaName: persona.Name,
		Platform:    persona.Platform,
		Posts:       bodies,
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "running voice analysis")
		return nil, nil, eris.Wrapf(err, "running voice analysis for persona: %d", personaID)
	}

	patterns, err := json.Marshal(profile)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "encoding voice profile")
		return nil, nil, eris.Wrap(err, "encoding voice profile")
	}

	version := 1
	if latest, err := s.repo.LatestProfile(ctx, personaID); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "checking latest profile version")
		return nil, nil, eris.Wrap(err, "checking latest profile version")
	} else if latest != nil {
		version = latest.Version + 1
	}

	stored := &VoiceProfile{
		PersonaID:       personaID,
		Version:         version,
		Patterns:        datatypes.JSON(patterns),
		SourcePostCount: len(bodies),
	}

	if err := s.repo.CreateProfile(ctx, stored); err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "persisting voice profile")
		return nil, nil, eris.Wrap(err, "persisting voice profile")
	}

	return stored, profile, nil
}

func (s *service) LatestProfile(ctx context.Context, accountID, personaID uint) (*VoiceProfile, *llm.Profile, error) {
	if _, err := s.GetPersona(ctx, accountID, personaID); err != nil {
		return nil, nil, err
	}

	stored, err := s.repo.LatestProfile(ctx, personaID)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "retrieving latest profile")
		return nil, nil, eris.Wrap(err, "retrieving latest profile")
	}
	if stored == nil {
		return nil, nil, ErrNoProfile
	}

	profile, err := DecodeProfile(stored)
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID, "version": stored.Version}, err, "decoding stored profile")
		return nil, nil, err
	}

	return stored, profile, nil
}

func (s *service) AnalyzeDeck(ctx context.Context, accountID, personaID uint, deckText string) (*llm.DeckInsights, error) {
	persona, err := s.GetPersona(ctx, accountID, personaID)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(deckText) == "" {
		return nil, eris.New("deck text is required")
	}

	insights, err := s.deck.AnalyzeDeck(ctx, llm.DeckInput{
		PersonaName: persona.Name,
		Text:        deckText,
	})
	if err != nil {
		s.recordError(logrus.Fields{"persona_id": personaID}, err, "running deck analysis")
		return nil, eris.Wrapf(err, "running deck analysis for persona: %d", personaID)
	}

	return insights, nil
}

// QualifyingBodies returns the bodies of posts long enough for analysis,
// preserving the repository's ordering.
func QualifyingBodies(posts []Post) []string {
	bodies := make([]string, 0, len(posts))
	for _, post := range posts {
		if qualifies(post.Body) {
			bodies = append(bodies, post.Body)
		}
	}
	return bodies
}

// DecodeProfile unpacks the stored JSON patterns back into an llm.Profile.
func DecodeProfile(stored *VoiceProfile) (*llm.Profile, error) {
	if stored == nil {
		return nil, eris.New("stored profile is nil")
	}

	var profile llm.Profile
	if err := json.Unmarshal(stored.Patterns, &profile); err != nil {
		return nil, eris.Wrapf(err, "decoding voice profile version %d", stored.Version)
	}

	return &profile, nil
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
