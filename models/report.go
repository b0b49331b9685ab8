package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Report is an append-only abuse report awaiting moderator review.
type Report struct {
	ID        string    `gorm:"primaryKey;size:36" json:"_id"`
	PostID    string    `gorm:"size:36;index;not null" json:"postId"`
	UserID    string    `gorm:"size:36;index;not null" json:"userId"`
	Reason    string    `gorm:"type:text;not null" json:"reason"`
	CreatedAt time.Time `gorm:"index" json:"createdAt"`
}

func (r *Report) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	return nil
}

// All lists every model for migration.
func All() []interface{} {
	return []interface{}{
		&User{}, &Session{}, &Board{}, &BoardFollow{}, &Post{}, &Vote{}, &Bookmark{}, &Report{},
	}
}
