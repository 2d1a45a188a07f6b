package studio

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the generation and calendar schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "studio.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying studio schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Generation{}, &CalendarItem{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("studio schema migration failed")
		}
		return eris.Wrap(err, "auto migrating studio schema")
	}

	return nil
}
