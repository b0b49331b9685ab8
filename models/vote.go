package models

import "time"

// Vote directions.
const (
	VoteUp   = "up"
	VoteDown = "down"
)

// Vote is the single active vote a user holds on a post.
type Vote struct {
	UserID    string    `gorm:"primaryKey;size:36"`
	PostID    string    `gorm:"primaryKey;size:36;index"`
	Direction string    `gorm:"size:4;not null"`
	CreatedAt time.Time `gorm:"index"`
	UpdatedAt time.Time
}

// Bookmark is a user's saved reference to a post.
type Bookmark struct {
	UserID    string    `gorm:"primaryKey;size:36"`
	PostID    string    `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time `gorm:"index"`
}
