package studio

import (
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"quillcast/app/internal/llm"
)

// Calendar item statuses.
const (
	StatusDraft     = "draft"
	StatusScheduled = "scheduled"
	StatusPublished = "published"
)

// Generation records one generation run with its three stored variations.
type Generation struct {
	gorm.Model
	AccountID      uint           `gorm:"index;not null"`
	PersonaID      uint           `gorm:"index;not null"`
	Topic          string         `gorm:"size:255;not null"`
	Angle          string         `gorm:"size:255"`
	PillarName     string         `gorm:"size:120"`
	ProfileVersion int            `gorm:"not null"`
	Variations     datatypes.JSON `gorm:"not null"`
}

// TableName defines the table name for the Generation model.
func (Generation) TableName() string {
	return "generations"
}

// DecodedVariations unpacks the stored variations.
func (g *Generation) DecodedVariations() ([]llm.Variation, error) {
	var variations []llm.Variation
	if err := json.Unmarshal(g.Variations, &variations); err != nil {
		return nil, eris.Wrapf(err, "decoding variations for generation: %d", g.ID)
	}
	return variations, nil
}

// CalendarItem is one planned post on the content calendar. It may reference
// the generation its body came from.
type CalendarItem struct {
	gorm.Model
	AccountID    uint      `gorm:"index;not null"`
	PersonaID    uint      `gorm:"index;not null"`
	GenerationID *uint     `gorm:"index"`
	Body         string    `gorm:"type:text;not null"`
	ScheduledFor time.Time `gorm:"index;not null"`
	Status       string    `gorm:"size:16;not null;default:draft"`
}

// TableName defines the table name for the CalendarItem model.
func (CalendarItem) TableName() string {
	return "calendar_items"
}
