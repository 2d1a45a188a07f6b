package voice

import (
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Platforms a persona can target.
const (
	PlatformLinkedIn  = "linkedin"
	PlatformX         = "x"
	PlatformThreads   = "threads"
	PlatformInstagram = "instagram"
)

// Post sources.
const (
	SourceImported  = "imported"
	SourceManual    = "manual"
	SourceGenerated = "generated"
)

// Persona is a user-defined voice/content profile scoped to one platform.
type Persona struct {
	gorm.Model
	AccountID uint   `gorm:"index;not null"`
	Name      string `gorm:"size:120;not null"`
	Platform  string `gorm:"size:32;not null"`
	Headline  string `gorm:"size:255"`
	Audience  string `gorm:"size:255"`
	Goals     string `gorm:"type:text"`
}

// TableName defines the table name for the Persona model.
func (Persona) TableName() string {
	return "personas"
}

// VoiceProfile is one versioned, AI-extracted summary of a persona's writing
// patterns. Patterns holds the llm.Profile payload as JSON.
type VoiceProfile struct {
	gorm.Model
	PersonaID       uint           `gorm:"index;not null"`
	Version         int            `gorm:"not null"`
	Patterns        datatypes.JSON `gorm:"not null"`
	SourcePostCount int            `gorm:"not null"`
}

// TableName defines the table name for the VoiceProfile model.
func (VoiceProfile) TableName() string {
	return "voice_profiles"
}

// Post is one past post belonging to a persona, used as analysis input.
type Post struct {
	gorm.Model
	PersonaID uint   `gorm:"index;not null"`
	Body      string `gorm:"type:text;not null"`
	CharCount int    `gorm:"not null"`
	Source    string `gorm:"size:16;not null;default:manual"`
}

// TableName defines the table name for the Post model.
func (Post) TableName() string {
	return "posts"
}
