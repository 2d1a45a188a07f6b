package voice

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for personas, posts, and profiles.
// Persona lookups are always scoped by account ID; a persona belonging to a
// different account behaves as missing.
type Repository interface {
	CreatePersona(ctx context.Context, persona *Persona) error
	GetPersona(ctx context.Context, accountID, personaID uint) (*Persona, error)
	ListPersonas(ctx context.Context, accountID uint) ([]Persona, error)
	DeletePersona(ctx context.Context, accountID, personaID uint) error

	AddPosts(ctx context.Context, posts []Post) error
	ListPosts(ctx context.Context, personaID uint) ([]Post, error)

	CreateProfile(ctx context.Context, profile *VoiceProfile) error
	LatestProfile(ctx context.Context, personaID uint) (*VoiceProfile, error)
}

// GormRepository persists voice entities using a Gorm database connection.
type GormRepository struct {
	db     *gorm.DB
	logger *logrus.Logger
}

// NewRepository constructs a Gorm-backed repository implementation.
func NewRepository(db *gorm.DB, logger *logrus.Logger) (*GormRepository, error) {
	if db == nil {
		return nil, eris.New("gorm DB is required")
	}

	return &GormRepository{db: db, logger: logger}, nil
}

var _ Repository = (*GormRepository)(nil)

// CreatePersona stores a new persona row.
func (r *GormRepository) CreatePersona(ctx context.Context, persona *Persona) error {
	if persona == nil {
		return eris.New("persona is nil")
	}

	persona.Name = strings.TrimSpace(persona.Name)
	if persona.Name == "" {
		return eris.New("persona name is required")
	}
	if persona.AccountID == 0 {
		return eris.New("persona account ID is required")
	}

	if err := r.db.WithContext(ctx).Create(persona).Error; err != nil {
		r.logError(logrus.Fields{"persona": persona.Name}, err, "creating persona")
		return eris.Wrapf(err, "creating persona: %s", persona.Name)
	}

	return nil
}

// GetPersona returns the persona for the account or nil when not found.
func (r *GormRepository) GetPersona(ctx context.Context, accountID, personaID uint) (*Persona, error) {
	var persona Persona
	err := r.db.WithContext(ctx).First(&persona, "id = ? AND account_id = ?", personaID, accountID).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"persona_id": personaID}, err, "fetching persona")
		return nil, eris.Wrapf(err, "fetching persona: %d", personaID)
	}

	return &persona, nil
}

// ListPersonas returns every persona for the account ordered by creation time.
func (r *GormRepository) ListPersonas(ctx context.Context, accountID uint) ([]Persona, error) {
	var personas []Persona

	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&personas).Error
	if err != nil {
		r.logError(logrus.Fields{"account_id": accountID}, err, "listing personas")
		return nil, eris.Wrap(err, "listing personas")
	}

	return personas, nil
}

// DeletePersona removes the persona and its dependent rows.
func (r *GormRepository) DeletePersona(ctx context.Context, accountID, personaID uint) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id = ? AND account_id = ?", personaID, accountID).Delete(&Persona{})
		if result.Error != nil {
			r.logError(logrus.Fields{"persona_id": personaID}, result.Error, "deleting persona")
			return eris.Wrapf(result.Error, "deleting persona: %d", personaID)
		}
		if result.RowsAffected == 0 {
			return eris.Wrap(gorm.ErrRecordNotFound, "persona not found")
		}

		if err := tx.Where("persona_id = ?", personaID).Delete(&Post{}).Error; err != nil {
			return eris.Wrapf(err, "deleting posts for persona: %d", personaID)
		}
		if err := tx.Where("persona_id = ?", personaID).Delete(&VoiceProfile{}).Error; err != nil {
			return eris.Wrapf(err, "deleting profiles for persona: %d", personaID)
		}

		return nil
	})
}

// AddPosts stores a batch of posts.
func (r *GormRepository) AddPosts(ctx context.Context, posts []Post) error {
	if len(posts) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(&posts).Error; err != nil {
		r.logError(logrus.Fields{"count": len(posts)}, err, "adding posts")
		return eris.Wrap(err, "adding posts")
	}

	return nil
}

// ListPosts returns the persona's posts, most recent first.
func (r *GormRepository) ListPosts(ctx context.Context, personaID uint) ([]Post, error) {
	var posts []Post

	err := r.db.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("created_at DESC").
		Find(&posts).Error
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "listing posts")
		return nil, eris.Wrap(err, "listing posts")
	}

	return posts, nil
}

// CreateProfile stores a new voice profile version.
func (r *GormRepository) CreateProfile(ctx context.Context, profile *VoiceProfile) error {
	if profile == nil {
		return eris.New("profile is nil")
	}
	if profile.PersonaID == 0 {
		return eris.New("profile persona ID is required")
	}

	if err := r.db.WithContext(ctx).Create(profile).Error; err != nil {
		r.logError(logrus.Fields{"persona_id": profile.PersonaID}, err, "creating voice profile")
		return eris.Wrapf(err, "creating voice profile for persona: %d", profile.PersonaID)
	}

	return nil
}

// LatestProfile returns the highest-version profile for the persona or nil.
func (r *GormRepository) LatestProfile(ctx context.Context, personaID uint) (*VoiceProfile, error) {
	var profile VoiceProfile

	err := r.db.WithContext(ctx).
		Where("persona_id = ?", personaID).
		Order("version DESC").
		First(&profile).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"persona_id": personaID}, err, "fetching latest voice profile")
		return nil, eris.Wrapf(err, "fetching latest voice profile for persona: %d", personaID)
	}

	return &profile, nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}

	entry := r.logger.WithField("error", err.Error())
	if len(fields) > 0 {
		entry = entry.WithFields(fields)
	}
	entry.Error(message)
}
