package account

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	FindByAPIKey(ctx context.Context, rawKey string) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	Create(ctx context.Context, name, email string) (*Account, string, error)
}

// GormRepository persists accounts using a Gorm database connection.
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

// FindByAPIKey resolves a raw API key to its account, or nil when unknown.
func (r *GormRepository) FindByAPIKey(ctx context.Context, rawKey string) (*Account, error) {
	trimmed := strings.TrimSpace(rawKey)
	if trimmed == "" {
		return nil, eris.New("api key is required")
	}

	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "api_key_hash = ?", HashAPIKey(trimmed)).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(nil, err, "fetching account by api key")
		return nil, eris.Wrap(err, "fetching account by api key")
	}

	return &acct, nil
}

// FindByEmail resolves an email address to its account, or nil when unknown.
func (r *GormRepository) FindByEmail(ctx context.Context, email string) (*Account, error) {
	trimmed := strings.TrimSpace(email)
	if trimmed == "" {
		return nil, eris.New("account email is required")
	}

	var acct Account
	err := r.db.WithContext(ctx).First(&acct, "email = ?", trimmed).Error
	if err != nil {
		if eris.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		r.logError(logrus.Fields{"email": trimmed}, err, "fetching account by email")
		return nil, eris.Wrapf(err, "fetching account by email: %s", trimmed)
	}

	return &acct, nil
}

// Create stores a new account and returns the freshly minted raw API key.
// The raw key is only available at creation time.
func (r *GormRepository) Create(ctx context.Context, name, email string) (*Account, string, error) {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)
	if name == "" {
		return nil, "", eris.New("account name is required")
	}
	if email == "" {
		return nil, "", eris.New("account email is required")
	}

	rawKey := "qc_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	acct := &Account{
		Name:       name,
		Email:      email,
		APIKeyHash: HashAPIKey(rawKey),
	}

	if err := r.db.WithContext(ctx).Create(acct).Error; err != nil {
		r.logError(logrus.Fields{"email": email}, err, "creating account")
		return nil, "", eris.Wrapf(err, "creating account: %s", email)
	}

	return acct, rawKey, nil
}

// Migrate applies the account schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Account{}); err != nil {
		if logger != nil {
			logger.WithField("error", err.Error()).Error("account schema migration failed")
		}
		return eris.Wrap(err, "auto migrating account schema")
	}

	return nil
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
