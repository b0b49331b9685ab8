package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RootPath is the path of every root post. A reply's path is its parent's path followed
// by the parent id and a comma, so all descendants of X match "%,X,%".
const RootPath = ","

// Post is a root post or, when ParentPostID is set, a reply inheriting its parent's board.
type Post struct {
	ID            string    `gorm:"primaryKey;size:36" json:"_id"`
	Title         string    `gorm:"size:255;not null" json:"title"`
	Content       string    `gorm:"type:text;not null" json:"content"`
	UserID        string    `gorm:"size:36;index;not null" json:"-"`
	User          User      `gorm:"foreignKey:UserID" json:"user"`
	Username      string    `gorm:"size:64;not null" json:"username"`
	ParentPostID  *string   `gorm:"column:parent_post;size:36;index" json:"parentPost"`
	Path          string    `gorm:"size:1024;not null" json:"path"`
	BoardID       string    `gorm:"size:36;index;not null" json:"-"`
	Board         Board     `gorm:"foreignKey:BoardID" json:"board"`
	UpvoteCount   int64     `gorm:"not null;default:0" json:"upvoteCount"`
	DownvoteCount int64     `gorm:"not null;default:0" json:"downvoteCount"`
	CommentCount  int64     `gorm:"not null;default:0" json:"commentCount"`
	ViewCount     int64     `gorm:"not null;default:0" json:"viewCount"`
	Image         *string   `gorm:"size:1024" json:"image"`
	CreatedAt     time.Time `gorm:"index" json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func (p *Post) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Path == "" {
		p.Path = RootPath
	}
	return nil
}

// IsReply reports whether the post answers another post.
func (p *Post) IsReply() bool {
	return p.ParentPostID != nil
}

// ChildPath is the path a direct reply to p receives.
func (p *Post) ChildPath() string {
	return p.Path + p.ID + ","
}

// MarshalJSON writes timestamps with fixed millisecond precision in UTC.
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	return json.Marshal(struct {
		alias
		CreatedAt string `json:"createdAt"`
		UpdatedAt string `json:"updatedAt"`
	}{alias(p), FormatTime(p.CreatedAt), FormatTime(p.UpdatedAt)})
}

// FormatTime renders t the way every API timestamp is written.
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z07:00")
}
