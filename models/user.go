package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Roles a user can hold. Board mutation is limited to RoleAdmin and RoleModerator.
const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

// User is an anonymous identity. The backing email is only kept as a keyed hash and
// the password only as a bcrypt hash; neither is ever serialised.
type User struct {
	ID           string    `gorm:"primaryKey;size:36" json:"_id"`
	Username     string    `gorm:"size:64;uniqueIndex;not null" json:"username"`
	Role         string    `gorm:"size:16;not null;default:user" json:"role"`
	EmailHash    string    `gorm:"size:64;index;not null" json:"-"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"-"`
	UpdatedAt    time.Time `json:"-"`
}

// BeforeCreate assigns the id and timestamps when they are missing.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = RoleUser
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	return nil
}

// CanManageBoards reports whether the role may create or edit boards.
func CanManageBoards(role string) bool {
	return role == RoleAdmin || role == RoleModerator
}

// ValidRole reports whether role is one of the known roles.
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleModerator, RoleAdmin:
		return true
	}
	return false
}
