package voice

import (
	"context"

	"github.com/rotisserie/eris"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Migrate applies the persona, post, and voice profile schema using Gorm's AutoMigrate.
func Migrate(ctx context.Context, db *gorm.DB, logger *logrus.Logger) error {
	if db == nil {
		return eris.New("gorm DB is required")
	}

	logFields := logrus.Fields{"component": "voice.migrate"}
	if logger != nil {
		logger.WithFields(logFields).Info("applying voice schema")
	}

	if err := db.WithContext(ctx).AutoMigrate(&Persona{}, &Post{}, &VoiceProfile{}); err != nil {
		if logger != nil {
			logger.WithFields(logFields).WithField("error", err.Error()).Error("voice schema migration failed")
		}
		return eris.Wrap(err, "auto migrating voice schema")
	}

	return nil
}
