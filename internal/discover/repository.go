package discover

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence for content pillars and trends.
type Repository interface {
	ReplacePillars(ctx context.Context, accountID, personaID uint, pillars []ContentPillar) error
	ListPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error)
	GetPillar(ctx context.Context, accountID, personaID, pillarID uint) (*ContentPillar, error)
	SaveTrends(ctx context.Context, trends []Trend) error
	LatestTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error)
	PurgePersona(ctx context.Context, accountID, personaID uint) error
}

// GormRepository persists pillars and trends through Gorm.
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

// ReplacePillars swaps a persona's pillar set for a new one in a single
// transaction so a failed refresh never leaves a partial set behind.
func (r *GormRepository) ReplacePillars(ctx context.Context, accountID, personaID uint, pillars []ContentPillar) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND persona_id = ?", accountID, personaID).
			Unscoped().
			Delete(&ContentPillar{}).Error; err != nil {
			return eris.Wrap(err, "deleting previous pillars")
		}

		if len(pillars) == 0 {
			return nil
		}

		for i := range pillars {
			pillars[i].AccountID = accountID
			pillars[i].PersonaID = personaID
		}
		if err := tx.Create(&pillars).Error; err != nil {
			return eris.Wrap(err, "inserting pillars")
		}

		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "replacing pillars")
		return eris.Wrapf(err, "replacing pillars for persona: %d", personaID)
	}

	return nil
}

// ListPillars returns a persona's pillars ordered by confidence.
func (r *GormRepository) ListPillars(ctx context.Context, accountID, personaID uint) ([]ContentPillar, error) {
	var pillars []ContentPillar

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND persona_id = ?", accountID, personaID).
		Order("confidence DESC").
		Find(&pillars).Error
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "listing pillars")
		return nil, eris.Wrapf(err, "listing pillars for persona: %d", personaID)
	}

	return pillars, nil
}

// GetPillar returns the pillar for the account and persona or nil when not found.
func (r *GormRepository) GetPillar(ctx context.Context, accountID, personaID, pillarID uint) (*ContentPillar, error) {
	var pillar ContentPillar
	err := r.db.WithContext(ctx).
		First(&pillar, "id = ? AND account_id = ? AND persona_id = ?", pillarID, accountID, personaID).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"pillar_id": pillarID}, err, "fetching pillar")
		return nil, eris.Wrapf(err, "fetching pillar: %d", pillarID)
	}

	return &pillar, nil
}

// SaveTrends appends a batch of scored trends.
func (r *GormRepository) SaveTrends(ctx context.Context, trends []Trend) error {
	if len(trends) == 0 {
		return nil
	}

	if err := r.db.WithContext(ctx).Create(&trends).Error; err != nil {
		r.logError(logrus.Fields{"count": len(trends)}, err, "saving trends")
		return eris.Wrap(err, "saving trends")
	}

	return nil
}

// LatestTrends returns the trends of the most recent scan batch, highest score first.
func (r *GormRepository) LatestTrends(ctx context.Context, accountID, personaID uint) ([]Trend, error) {
	var newest Trend
	err := r.db.WithContext(ctx).
		Where("account_id = ? AND persona_id = ?", accountID, personaID).
		Order("id DESC").
		First(&newest).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return []Trend{}, nil
		}
		r.logError(logrus.Fields{"persona_id": personaID}, err, "fetching newest trend batch")
		return nil, eris.Wrapf(err, "fetching newest trend batch for persona: %d", personaID)
	}

	var trends []Trend
	err = r.db.WithContext(ctx).
		Where("account_id = ? AND persona_id = ? AND batch_id = ?", accountID, personaID, newest.BatchID).
		Order("score DESC").
		Find(&trends).Error
	if err != nil {
		r.logError(logrus.Fields{"batch_id": newest.BatchID}, err, "listing trends")
		return nil, eris.Wrapf(err, "listing trends for batch: %s", newest.BatchID)
	}

	return trends, nil
}

// PurgePersona removes a persona's pillars and trend history. It runs when the
// persona itself is deleted.
func (r *GormRepository) PurgePersona(ctx context.Context, accountID, personaID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND persona_id = ?", accountID, personaID).
			Unscoped().
			Delete(&ContentPillar{}).Error; err != nil {
			return eris.Wrap(err, "deleting pillars")
		}

		if err := tx.Where("account_id = ? AND persona_id = ?", accountID, personaID).
			Unscoped().
			Delete(&Trend{}).Error; err != nil {
			return eris.Wrap(err, "deleting trends")
		}

		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "purging persona discovery data")
		return eris.Wrapf(err, "purging discovery data for persona: %d", personaID)
	}

	return nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(fields).WithField("error", err.Error()).Error(message)
}
