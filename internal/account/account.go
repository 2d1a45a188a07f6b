package account

import (
	"crypto/sha256"
	"encoding/hex"

	"gorm.io/gorm"
)

// Account is the tenant root. Every persona-scoped row carries an account ID
// and repositories filter on it, which stands in for the managed database's
// row-level security.
type Account struct {
	gorm.Model
	Name       string `gorm:"size:120;not null"`
	Email      string `gorm:"size:255;uniqueIndex:idx_accounts_email;not null"`
	APIKeyHash string `gorm:"size:64;uniqueIndex:idx_accounts_api_key_hash;not null"`
}

// TableName defines the table name for the Account model.
func (Account) TableName() string {
	return "accounts"
}

// HashAPIKey derives the stored digest for a raw API key. Only the digest is
// persisted.
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
