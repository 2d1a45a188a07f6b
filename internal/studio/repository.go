package studio

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence for generations and calendar items.
type Repository interface {
	CreateGeneration(ctx context.Context, generation *Generation) error
	GetGeneration(ctx context.Context, accountID, generationID uint) (*Generation, error)
	ListGenerations(ctx context.Context, accountID, personaID uint) ([]Generation, error)

	CreateCalendarItem(ctx context.Context, item *CalendarItem) error
	GetCalendarItem(ctx context.Context, accountID, itemID uint) (*CalendarItem, error)
	ListCalendar(ctx context.Context, accountID, personaID uint, from, to time.Time) ([]CalendarItem, error)
	UpdateCalendarItem(ctx context.Context, item *CalendarItem) error
	DeleteCalendarItem(ctx context.Context, accountID, itemID uint) error

	PurgePersona(ctx context.Context, accountID, personaID uint) error
}

// GormRepository persists generations and calendar items through Gorm.
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

// CreateGeneration stores one generation run.
func (r *GormRepository) CreateGeneration(ctx context.Context, generation *Generation) error {
	if generation == nil {
		return eris.New("generation is nil")
	}

	if err := r.db.WithContext(ctx).Create(generation).Error; err != nil {
		r.logError(logrus.Fields{"persona_id": generation.PersonaID}, err, "creating generation")
		return eris.Wrap(err, "creating generation")
	}

	return nil
}

// GetGeneration returns the generation for the account or nil when not found.
func (r *GormRepository) GetGeneration(ctx context.Context, accountID, generationID uint) (*Generation, error) {
	var generation Generation
	err := r.db.WithContext(ctx).First(&generation, "id = ? AND account_id = ?", generationID, accountID).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"generation_id": generationID}, err, "fetching generation")
		return nil, eris.Wrapf(err, "fetching generation: %d", generationID)
	}

	return &generation, nil
}

// ListGenerations returns a persona's generations, newest first.
func (r *GormRepository) ListGenerations(ctx context.Context, accountID, personaID uint) ([]Generation, error) {
	var generations []Generation

	err := r.db.WithContext(ctx).
		Where("account_id = ? AND persona_id = ?", accountID, personaID).
		Order("created_at DESC").
		Find(&generations).Error
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "listing generations")
		return nil, eris.Wrapf(err, "listing generations for persona: %d", personaID)
	}

	return generations, nil
}

// CreateCalendarItem stores one calendar item.
func (r *GormRepository) CreateCalendarItem(ctx context.Context, item *CalendarItem) error {
	if item == nil {
		return eris.New("calendar item is nil")
	}

	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		r.logError(logrus.Fields{"persona_id": item.PersonaID}, err, "creating calendar item")
		return eris.Wrap(err, "creating calendar item")
	}

	return nil
}

// GetCalendarItem returns the item for the account or nil when not found.
func (r *GormRepository) GetCalendarItem(ctx context.Context, accountID, itemID uint) (*CalendarItem, error) {
	var item CalendarItem
	err := r.db.WithContext(ctx).First(&item, "id = ? AND account_id = ?", itemID, accountID).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"item_id": itemID}, err, "fetching calendar item")
		return nil, eris.Wrapf(err, "fetching calendar item: %d", itemID)
	}

	return &item, nil
}

// ListCalendar returns a persona's calendar items inside the window ordered by
// scheduled time. Zero bounds leave that side of the window open.
func (r *GormRepository) ListCalendar(ctx context.Context, accountID, personaID uint, from, to time.Time) ([]CalendarItem, error) {
	query := r.db.WithContext(ctx).
		Where("account_id = ? AND persona_id = ?", accountID, personaID)
	if !from.IsZero() {
		query = query.Where("scheduled_for >= ?", from)
	}
	if !to.IsZero() {
		query = query.Where("scheduled_for < ?", to)
	}

	var items []CalendarItem
	if err := query.Order("scheduled_for ASC").Find(&items).Error; err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "listing calendar items")
		return nil, eris.Wrapf(err, "listing calendar items for persona: %d", personaID)
	}

	return items, nil
}

// UpdateCalendarItem persists changes to an existing item.
func (r *GormRepository) UpdateCalendarItem(ctx context.Context, item *CalendarItem) error {
	if item == nil || item.ID == 0 {
		return eris.New("calendar item with ID is required")
	}

	if err := r.db.WithContext(ctx).Save(item).Error; err != nil {
		r.logError(logrus.Fields{"item_id": item.ID}, err, "updating calendar item")
		return eris.Wrapf(err, "updating calendar item: %d", item.ID)
	}

	return nil
}

// DeleteCalendarItem removes the item belonging to the account.
func (r *GormRepository) DeleteCalendarItem(ctx context.Context, accountID, itemID uint) error {
	err := r.db.WithContext(ctx).
		Where("id = ? AND account_id = ?", itemID, accountID).
		Delete(&CalendarItem{}).Error
	if err != nil {
		r.logError(logrus.Fields{"item_id": itemID}, err, "deleting calendar item")
		return eris.Wrapf(err, "deleting calendar item: %d", itemID)
	}

	return nil
}

// PurgePersona removes a persona's calendar items and generations. Calendar
// items go first because they reference generations.
func (r *GormRepository) PurgePersona(ctx context.Context, accountID, personaID uint) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("account_id = ? AND persona_id = ?", accountID, personaID).
			Unscoped().
			Delete(&CalendarItem{}).Error; err != nil {
			return eris.Wrap(err, "deleting calendar items")
		}

		if err := tx.Where("account_id = ? AND persona_id = ?", accountID, personaID).
			Unscoped().
			Delete(&Generation{}).Error; err != nil {
			return eris.Wrap(err, "deleting generations")
		}

		return nil
	})
	if err != nil {
		r.logError(logrus.Fields{"persona_id": personaID}, err, "purging persona studio data")
		return eris.Wrapf(err, "purging studio data for persona: %d", personaID)
	}

	return nil
}

func (r *GormRepository) logError(fields logrus.Fields, err error, message string) {
	if r.logger == nil {
		return
	}
	r.logger.WithFields(fields).WithField("error", err.Error()).Error(message)
}
