package discover

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the content pillar and trend schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "discover.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying discover schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&ContentPillar{}, &Trend{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("discover schema migration failed")
		}
		return eris.Wrap(err, "auto migrating discover schema")
	}

	return nil
}
