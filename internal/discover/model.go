package discover

import (
	"encoding/json"

	"github.com/rotisserie/eris"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ContentPillar is a recurring theme identified across a persona's past posts.
type ContentPillar struct {
	gorm.Model
	AccountID   uint           `gorm:"index;not null"`
	PersonaID   uint           `gorm:"index;not null"`
	Name        string         `gorm:"size:120;not null"`
	Description string         `gorm:"type:text"`
	Keywords    datatypes.JSON `gorm:"not null"`
	Confidence  float64        `gorm:"not null"`
}

// TableName defines the table name for the ContentPillar model.
func (ContentPillar) TableName() string {
	return "content_pillars"
}

// DecodedKeywords unpacks a pillar's stored keyword list.
func (p *ContentPillar) DecodedKeywords() ([]string, error) {
	var keywords []string
	if len(p.Keywords) == 0 {
		return keywords, nil
	}
	if err := json.Unmarshal(p.Keywords, &keywords); err != nil {
		return nil, eris.Wrapf(err, "decoding keywords for pillar: %s", p.Name)
	}
	return keywords, nil
}

// Trend is one scored trend persisted from a scan. Trends from the same scan
// share a batch ID; listings return the latest batch.
type Trend struct {
	gorm.Model
	AccountID uint   `gorm:"index;not null"`
	PersonaID uint   `gorm:"index;not null"`
	BatchID   string `gorm:"size:36;index;not null"`
	Topic     string `gorm:"size:255;not null"`
	Score     int    `gorm:"not null"`
	Rationale string `gorm:"type:text"`
	Momentum  string `gorm:"size:16;not null"`
}

// TableName defines the table name for the Trend model.
func (Trend) TableName() string {
	return "trends"
}
