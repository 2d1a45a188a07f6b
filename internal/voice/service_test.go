package voice

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"

	"quillcast/app/internal/db"
	"quillcast/app/internal/llm"
)

type fakeAnalyzer struct {
	profile   *llm.Profile
	err       error
	lastInput llm.AnalyzeInput
	calls     int
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, input llm.AnalyzeInput) (*llm.Profile, error) {
	f.calls++
	f.lastInput = input
	if f.err != nil {
		return nil, f.err
	}
	return f.profile, nil
}

type fakeDeckAnalyzer struct {
	insights *llm.DeckInsights
	err      error
	calls    int
}

func (f *fakeDeckAnalyzer) AnalyzeDeck(ctx context.Context, input llm.DeckInput) (*llm.DeckInsights, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.insights, nil
}

func testProfile() *llm.Profile {
	return &llm.Profile{
		Summary:          "Direct, practical voice.",
		Structure:        "Hook then short paragraphs.",
		Tone:             "Confident.",
		Vocabulary:       "Plain words.",
		SignaturePhrases: []string{"ship it"},
	}
}

func longPost(seed string) string {
	return seed + ": " + strings.Repeat("solid insight ", 6)
}

func TestCreatePersonaValidatesPlatform(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := setupService(t)

	if _, err := svc.CreatePersona(context.Background(), 1, PersonaInput{Name: "Avery", Platform: "myspace"}); !eris.Is(err, ErrInvalidPlatform) {
		t.Fatalf("expected ErrInvalidPlatform, got %v", err)
	}

	persona, err := svc.CreatePersona(context.Background(), 1, PersonaInput{Name: "Avery", Platform: "LinkedIn"})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}
	if persona.Platform != PlatformLinkedIn {
		t.Fatalf("expected platform normalized to %q, got %q", PlatformLinkedIn, persona.Platform)
	}
}

func TestImportPostsStripsHTMLAndCountsQualifying(t *testing.T) {
	t.Parallel()

	svc, repo, _, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	result, err := svc.ImportPosts(ctx, 1, persona.ID, []string{
		"<p>" + longPost("first") + "</p>",
		"short one",
		"   ",
	}, "")
	if err != nil {
		t.Fatalf("ImportPosts returned error: %v", err)
	}

	if result.Stored != 2 {
		t.Fatalf("expected 2 stored posts, got %d", result.Stored)
	}
	if result.Skipped != 1 {
		t.Fatalf("expected 1 skipped post, got %d", result.Skipped)
	}
	if result.Qualifying != 1 {
		t.Fatalf("expected 1 qualifying post, got %d", result.Qualifying)
	}

	posts, err := repo.ListPosts(ctx, persona.ID)
	if err != nil {
		t.Fatalf("ListPosts returned error: %v", err)
	}
	for _, post := range posts {
		if strings.Contains(post.Body, "<p>") {
			t.Fatalf("expected html stripped from stored post, got %q", post.Body)
		}
		if post.Source != SourceImported {
			t.Fatalf("expected default source %q, got %q", SourceImported, post.Source)
		}
	}
}

func TestImportPostsRecordsRuneCount(t *testing.T) {
	t.Parallel()

	svc, repo, _, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	body := strings.Repeat("é", 30)
	if _, err := svc.ImportPosts(ctx, 1, persona.ID, []string{body}, ""); err != nil {
		t.Fatalf("ImportPosts returned error: %v", err)
	}

	posts, err := repo.ListPosts(ctx, persona.ID)
	if err != nil {
		t.Fatalf("ListPosts returned error: %v", err)
	}
	if len(posts) != 1 {
		t.Fatalf("expected 1 stored post, got %d", len(posts))
	}
	if posts[0].CharCount != 30 {
		t.Fatalf("expected char count 30 for multi-byte body, got %d", posts[0].CharCount)
	}
}

func TestAnalyzeVoiceRequiresThreeQualifyingPosts(t *testing.T) {
	t.Parallel()

	svc, _, analyzer, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	// Two qualifying posts plus short filler is not enough.
	if _, err := svc.ImportPosts(ctx, 1, persona.ID, []string{
		longPost("first"), longPost("second"), "short", "also short",
	}, ""); err != nil {
		t.Fatalf("ImportPosts returned error: %v", err)
	}

	_, _, err = svc.AnalyzeVoice(ctx, 1, persona.ID)
	if !eris.Is(err, ErrInsufficientPosts) {
		t.Fatalf("expected ErrInsufficientPosts, got %v", err)
	}

	if analyzer.calls != 0 {
		t.Fatalf("expected analyzer untouched, got %d calls", analyzer.calls)
	}
}

func TestAnalyzeVoicePersistsVersionedProfile(t *testing.T) {
	t.Parallel()

	svc, _, analyzer, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	if _, err := svc.ImportPosts(ctx, 1, persona.ID, []string{
		longPost("first"), longPost("second"), longPost("third"), "short filler",
	}, ""); err != nil {
		t.Fatalf("ImportPosts returned error: %v", err)
	}

	stored, profile, err := svc.AnalyzeVoice(ctx, 1, persona.ID)
	if err != nil {
		t.Fatalf("AnalyzeVoice returned error: %v", err)
	}

	if stored.Version != 1 {
		t.Fatalf("expected first profile version 1, got %d", stored.Version)
	}
	if stored.SourcePostCount != 3 {
		t.Fatalf("expected 3 source posts, got %d", stored.SourcePostCount)
	}
	if profile.Summary != testProfile().Summary {
		t.Fatalf("expected analyzer profile returned, got %+v", profile)
	}

	if len(analyzer.lastInput.Posts) != 3 {
		t.Fatalf("expected 3 qualifying posts sent to analyzer, got %d", len(analyzer.lastInput.Posts))
	}
	for _, body := range analyzer.lastInput.Posts {
		if len(body) < MinPostLength {
			t.Fatalf("short post leaked into analysis: %q", body)
		}
	}

	second, _, err := svc.AnalyzeVoice(ctx, 1, persona.ID)
	if err != nil {
		t.Fatalf("second AnalyzeVoice returned error: %v", err)
	}
	if second.Version != 2 {
		t.Fatalf("expected version incremented to 2, got %d", second.Version)
	}

	_, latest, err := svc.LatestProfile(ctx, 1, persona.ID)
	if err != nil {
		t.Fatalf("LatestProfile returned error: %v", err)
	}
	if latest.Summary != testProfile().Summary {
		t.Fatalf("expected stored profile round-trip, got %+v", latest)
	}
}

func TestLatestProfileWithoutAnalysis(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	_, _, err = svc.LatestProfile(ctx, 1, persona.ID)
	if !eris.Is(err, ErrNoProfile) {
		t.Fatalf("expected ErrNoProfile, got %v", err)
	}
}

type fakePurger struct {
	calls         int
	lastAccountID uint
	lastPersonaID uint
	err           error
}

func (f *fakePurger) PurgePersona(ctx context.Context, accountID, personaID uint) error {
	f.calls++
	f.lastAccountID = accountID
	f.lastPersonaID = personaID
	return f.err
}

func TestDeletePersonaRunsRegisteredPurgers(t *testing.T) {
	t.Parallel()

	_, repo, analyzer, deck := setupService(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	purger := &fakePurger{}
	svc, err := NewService(repo, analyzer, deck, logger, nil, purger)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	ctx := context.Background()
	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	if err := svc.DeletePersona(ctx, 1, persona.ID); err != nil {
		t.Fatalf("DeletePersona returned error: %v", err)
	}

	if purger.calls != 1 {
		t.Fatalf("expected purger to run once, got %d calls", purger.calls)
	}
	if purger.lastAccountID != 1 || purger.lastPersonaID != persona.ID {
		t.Fatalf("expected purge of persona %d, got account %d persona %d",
			persona.ID, purger.lastAccountID, purger.lastPersonaID)
	}
}

func TestDeletePersonaAbortsWhenPurgeFails(t *testing.T) {
	t.Parallel()

	_, repo, analyzer, deck := setupService(t)
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	purger := &fakePurger{err: eris.New("purge failed")}
	svc, err := NewService(repo, analyzer, deck, logger, nil, purger)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	ctx := context.Background()
	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	if err := svc.DeletePersona(ctx, 1, persona.ID); err == nil {
		t.Fatalf("expected error when a purger fails")
	}

	// The persona stays so the delete can be retried.
	remaining, err := svc.GetPersona(ctx, 1, persona.ID)
	if err != nil {
		t.Fatalf("GetPersona returned error: %v", err)
	}
	if remaining == nil {
		t.Fatalf("expected persona to survive a failed purge")
	}
}

func TestPersonaOperationsAreTenantScoped(t *testing.T) {
	t.Parallel()

	svc, _, _, _ := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	if _, err := svc.GetPersona(ctx, 2, persona.ID); !eris.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound for foreign account, got %v", err)
	}

	if err := svc.DeletePersona(ctx, 2, persona.ID); !eris.Is(err, ErrPersonaNotFound) {
		t.Fatalf("expected ErrPersonaNotFound on foreign delete, got %v", err)
	}
}

func TestAnalyzeDeckValidatesInput(t *testing.T) {
	t.Parallel()

	svc, _, _, deck := setupService(t)
	ctx := context.Background()

	persona, err := svc.CreatePersona(ctx, 1, PersonaInput{Name: "Avery", Platform: PlatformLinkedIn})
	if err != nil {
		t.Fatalf("CreatePersona returned error: %v", err)
	}

	if _, err := svc.AnalyzeDeck(ctx, 1, persona.ID, "  "); err == nil {
		t.Fatalf("expected error for blank deck text")
	}
	if deck.calls != 0 {
		t.Fatalf("expected deck analyzer untouched, got %d calls", deck.calls)
	}

	insights, err := svc.AnalyzeDeck(ctx, 1, persona.ID, "Slide 1: own distribution")
	if err != nil {
		t.Fatalf("AnalyzeDeck returned error: %v", err)
	}
	if len(insights.Themes) != 1 {
		t.Fatalf("expected 1 theme, got %d", len(insights.Themes))
	}
}

func setupService(t *testing.T) (Service, *GormRepository, *fakeAnalyzer, *fakeDeckAnalyzer) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voice_service.db")
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

	if err := Migrate(context.Background(), gormDB, logger); err != nil {
		t.Fatalf("Migrate returned error: %v", err)
	}

	repo, err := NewRepository(gormDB, logger)
	if err != nil {
		t.Fatalf("NewRepository returned error: %v", err)
	}

	analyzer := &fakeAnalyzer{profile: testProfile()}
	deck := &fakeDeckAnalyzer{insights: &llm.DeckInsights{
		Themes:     []llm.DeckTheme{{Name: "Distribution", Summary: "Own the channel."}},
		VoiceHints: []string{"calls users builders"},
	}}

	svc, err := NewService(repo, analyzer, deck, logger, nil)
	if err != nil {
		t.Fatalf("NewService returned error: %v", err)
	}

	return svc, repo, analyzer, deck
}
