package models

import "time"

// Session is one login. Both tokens of a pair carry the session id; RefreshHash is the
// SHA-256 of the id of the only refresh token that may still be exchanged.
type Session struct {
	ID          string     `gorm:"primaryKey;size:36"`
	UserID      string     `gorm:"size:36;index;not null"`
	RefreshHash string     `gorm:"size:64;not null"`
	ExpiresAt   time.Time  `gorm:"index;not null"`
	RevokedAt   *time.Time `gorm:"index"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Active reports whether the session can still mint access tokens at t.
func (s *Session) Active(t time.Time) bool {
	return s.RevokedAt == nil && t.Before(s.ExpiresAt)
}
