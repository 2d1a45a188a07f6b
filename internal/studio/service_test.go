package studio

import (
	"context"
	"encoding/json"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"quillcast/app/internal/db"
	"quillcast/app/internal/discover"
	"quillcast/app/internal/llm"
	"quillcast/app/internal/voice"
)

type fakeGenerator struct {
	variations []llm.Variation
	err        error
	lastInput  llm.GenerateInput
	calls      int
}

func (f *fakeGenerator) Generate(ctx context.Context, input llm.GenerateInput) ([]llm.Variation, error) {
	f.calls++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.variations, nil
}

func testVariations() []llm.Variation {
	return []llm.Variation{
		{Text: "First take on the topic.", Hook: "First take", Score: 88, Match: llm.VariationMatch{Structure: 90, Tone: 85, Vocabulary: 89}},
		{Text: "Second take on the topic.", Hook: "Second take", Score: 76, Match: llm.VariationMatch{Structure: 74, Tone: 80, Vocabulary: 75}},
		{Text: "Third take on the topic.", Hook: "Third take", Score: 71, Match: llm.VariationMatch{Structure: 70, Tone: 72, Vocabulary: 71}},
	}
}

func TestGenerateRequiresVoiceProfile(t *testing.T) {
	t.Parallel()

	env := setupService(t)
	ctx := context.Background()

	persona := env.seedPersona(t, 1)

	_, _, err := env.svc.Generate(ctx, 1, GenerateParams{PersonaID: persona.ID, Topic: "Why we ship on Fridays"})
	if !eris.Is(err, ErrProfileRequired) {
		t.Fatalf("expected ErrProfileRequired, got %v", err)
	}
	if env.generator.calls != 0 {
		t.Fatalf("expected generator untouched, got %d calls", env.generator.calls)
	}
}

func TestGeneratePersistsRun(t *testing.T) {
	t.Parallel()

	env := setupService(t)
	ctx := context.Background()

	persona := env.seedPersona(t, 1)
	env.seedProfile(t, persona.ID, 2)
	pillarID := env.seedPillar(t, 1, persona.ID, "Build in public")

	generation, variations, err := env.svc.Generate(ctx, 1, GenerateParams{
		PersonaID: persona.ID,
		Topic:     "Why we ship on Fridays",
		Angle:     "contrarian",
		PillarID:  pillarID,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}

	if len(variations) != llm.VariationCount {
		t.Fatalf("expected %d variations, got %d", llm.VariationCount, len(variations))
	}
	if generation.ProfileVersion != 2 {
		t.Fatalf("expected profile version 2 recorded, got %d", generation.ProfileVersion)
	}
	if generation.PillarName != "Build in public" {
		t.Fatalf("expected pillar name resolved, got %q", generation.PillarName)
	}

	if env.generator.lastInput.Pillar != "Build in public" {
		t.Fatalf("expected pillar passed to generator, got %q", env.generator.lastInput.Pillar)
	}
	if env.generator.lastInput.Profile == nil || env.generator.lastInput.Profile.Summary == "" {
		t.Fatalf("expected decoded profile passed to generator, got %#v", env.generator.lastInput.Profile)
	}

	stored, decoded, err := env.svc.GetGeneration(ctx, 1, generation.ID)
	if err != nil {
		t.Fatalf("GetGeneration returned error: %v", err)
	}
	if stored.Topic != "Why we ship on Fridays" {
		t.Fatalf("expected topic stored, got %q", stored.Topic)
	}
	if len(decoded) != llm.VariationCount || decoded[0].Hook != "First take" {
		t.Fatalf("expected stored variations to round-trip, got %#v", decoded)
	}
}

func TestGenerateRejectsUnknownPillar(t *testing.T) {
	t.Parallel()

	env := setupService(t)
	ctx := context.Background()

	persona := env.seedPersona(t, 1)
	env.seedProfile(t, persona.ID, 1)

	_, _, err := env.svc.Generate(ctx, 1, GenerateParams{PersonaID: persona.ID, Topic: "Topic", PillarID: 9999})
	if !eris.Is(err, discover.ErrPillarNotFound) {
		t.Fatalf("expected ErrPillarNotFound, got %v", err)
	}
	if env.generator.calls != 0 {
		t.Fatalf("expected generator untouched, got %d calls", env.generator.calls)
	}
}

func TestScheduleItemValidatesStatusAndGeneration(t *testing.T) {
	t.Parallel()

	env := setupService(t)
	ctx := context.Background()

	persona := env.seedPersona(t, 1)
	when := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)

	if _, err := env.svc.ScheduleItem(ctx, 1, CalendarInput{
		PersonaID:    persona.ID,
		Body:         "planned post",
		ScheduledFor: when,
		Status:       "someday",
	}); !eris.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}

	if _, err := env.svc.ScheduleItem(ctx, 1, CalendarInput{
		PersonaID:    persona.ID,
		GenerationID: 9999,
		Body:         "planned post",
		ScheduledFor: when,
	}); !eris.Is(err, ErrGenerationNotFound) {
		t.Fatalf("expected ErrGenerationNotFound, got %v", err)
	}

	item, err := env.svc.ScheduleItem(ctx, 1, CalendarInput{
		PersonaID:    persona.ID,
		Body:         "planned post",
		ScheduledFor: when,
	})
	if err != nil {
		t.Fatalf("ScheduleItem returned error: %v", err)
	}
	if item.Status != StatusDraft {
		t.Fatalf("expected default status %q, got %q", StatusDraft, item.Status)
	}
}

func TestCalendarLifecycle(t *testing.T) {
	t.Parallel()

	env := setupService(t)
	ctx := context.Background()

	persona := env.seedPersona(t, 1)
	when := time.Date(2026, time.September, 10, 9, 0, 0, 0, time.UTC)

	item, err := env.svc.ScheduleItem(ctx, 1, CalendarInput{
		PersonaID:    persona.ID,
		Body:         "planned post",
		ScheduledFor: when,
		Status:       StatusScheduled,
	})
	if err != nil {
		t.Fatalf("ScheduleItem returned error: %v", err)
	}

	items, err := env.svc.ListCalendar(ctx, 1, persona.ID, when.Add(-time.Hour), when.Add(time.Hour))
	if err != nil {
		t.Fatalf("ListCalendar returned error: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item in window, got %d", len(items))
	}

	published := StatusPublished
	updated, err := env.svc.UpdateItem(ctx, 1, item.ID, CalendarUpdate{Status: &published})
	if err != nil {
		t.Fatalf("UpdateItem returned error: %v", err)
	}
	if updated.Status != StatusPublished {
		t.Fatalf("expected status updated, got %q", updated.Status)
	}

	if _, err := env.svc.UpdateItem(ctx, 2, item.ID, CalendarUpdate{Status: &published}); !eris.Is(err, ErrCalendarItemNotFound) {
		t.Fatalf("expected ErrCalendarItemNotFound for foreign account, got %v", err)
	}

	if err := env.svc.DeleteItem(ctx, 1, item.ID); err != nil {
		t.Fatalf("DeleteItem returned error: %v", err)
	}
	if err := env.svc.DeleteItem(ctx, 1, item.ID); !eris.Is(err, ErrCalendarItemNotFound) {
		t.Fatalf("expected ErrCalendarItemNotFound after delete, got %v", err)
	}
}

type serviceEnv struct {
	svc       Service
	repo      *GormRepository
	voices    *voice.GormRepository
	pillars   *discover.GormRepository
	generator *fakeGenerator
}

func (e *serviceEnv) seedPersona(t *testing.T, accountID uint) *voice.Persona {
	t.Helper()

	persona := &voice.Persona{AccountID: accountID, Name: "Avery", Platform: voice.PlatformLinkedIn}
	if err := e.voices.CreatePersona(context.Background(), persona); err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}
	return persona
}

func (e *serviceEnv) seedProfile(t *testing.T, personaID uint, version int) {
	t.Helper()

	patterns, err := json.Marshal(&llm.Profile{
		Summary:    "Direct, practical voice.",
		Structure:  "Hook then short paragraphs.",
		Tone:       "Confident.",
		Vocabulary: "Plain words.",
	})
	if err != nil {
		t.Fatalf("marshalling profile failed: %v", err)
	}

	profile := &voice.VoiceProfile{
		PersonaID:       personaID,
		Version:         version,
		Patterns:        datatypes.JSON(patterns),
		SourcePostCount: 3,
	}
	if err := e.voices.CreateProfile(context.Background(), profile); err != nil {
		t.Fatalf("CreateProfile returned error: %v", err)
	}
}

func (e *serviceEnv) seedPillar(t *testing.T, accountID, personaID uint, name string) uint {
	t.Helper()

	ctx := context.Background()
	err := e.pillars.ReplacePillars(ctx, accountID, personaID, []discover.ContentPillar{
		{Name: name, Keywords: datatypes.JSON(`[]`), Confidence: 0.9},
	})
	if err != nil {
		t.Fatalf("ReplacePillars returned error: %v", err)
	}

	pillars, err := e.pillars.ListPillars(ctx, accountID, personaID)
	if err != nil {
		t.Fatalf("ListPillars returned error: %v", err)
	}
	if len(pillars) != 1 {
		t.Fatalf("expected 1 seeded pillar, got %d", len(pillars))
	}
	return pillars[0].ID
}

func setupService(t *testing.T) *serviceEnv {
	t.Helper()

	path := filepath.Join(t.TempDir(), "studio_service.db")
	gormDB, err := db.Open(db.Options{Path: path})
	if err != nil {
		t.Fatalf("db.Open returned error: %v", err)
	}

	t.Cleanup(func() {
		if closeErr := db.Close(gormDB); closeErr != nil {
			t.Fatalf("closing database failed: %v", closeErr)
		}
	})

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	ctx := context.Background()
	if err := voice.Migrate(ctx, gormDB, logger); err != nil {
		t.Fatalf("voice.Migrate returned error: %v", err)
	}
	if err := discover.Migrate(ctx, gormDB, logger); err != nil {
		t.Fatalf("discover.Migrate returned error: %v", err)
	}
	if err := Migrate(ctx, gormDB, logger); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	voices, err := voice.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("voice.NewRepository returned error: %v", err)
	}
	pillars, err := discover.NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("discover.NewRepository returned error: %v", err)
	}
	repo, err := NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}

	generator := &fakeGenerator{variations: testVariations()}

	svc, err := NewService(ServiceOptions{
		Repo:      repo,
		Voices:    voices,
		Pillars:   pillars,
		Generator: generator,
		Logger:    logger,
	})
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	return &serviceEnv{svc: svc, repo: repo, voices: voices, pillars: pillars, generator: generator}
}
