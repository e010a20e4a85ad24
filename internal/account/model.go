package account

import (
	"time"
)

// Account is one OAuth-linked mailbox.
//
// RefreshToken and AccessToken hold encrypted envelopes (or, for rows written
// before encryption at rest, legacy plaintext). Use Store.DecryptedRefreshToken
// and Store.DecryptedAccessToken to read them.
type Account struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Email        string    `gorm:"size:320;not null;uniqueIndex" json:"email"`
	RefreshToken string    `gorm:"type:text;not null" json:"-"`
	AccessToken  *string   `gorm:"type:text" json:"-"`
	TokenExpiry  *int64    `json:"token_expiry,omitempty"`
	APIKeyHash   string    `gorm:"size:255;not null;uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName pins the table name independent of gorm naming strategy.
func (Account) TableName() string {
	return "accounts"
}

// HasAccessToken reports whether a cached access token and its expiry are stored.
func (a *Account) HasAccessToken() bool {
	return a.AccessToken != nil && a.TokenExpiry != nil
}

// Expiry returns the access token expiry, if any.
func (a *Account) Expiry() (time.Time, bool) {
	if a.TokenExpiry == nil {
		return time.Time{}, false
	}
	return time.Unix(*a.TokenExpiry, 0), true
}
