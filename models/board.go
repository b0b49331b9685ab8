package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Board is a topical forum grouping root posts. System boards have no creator.
type Board struct {
	ID              string    `gorm:"primaryKey;size:36" json:"_id"`
	Title           string    `gorm:"size:80;not null" json:"title"`
	Description     string    `gorm:"size:500;not null" json:"description"`
	SymbolColor     string    `gorm:"size:7;not null" json:"symbolColor"`
	SystemImageName string    `gorm:"size:64;not null" json:"systemImageName"`
	UserID          *string   `gorm:"size:36;index" json:"-"`
	User            *User     `gorm:"foreignKey:UserID" json:"user"`
	CreatedAt       time.Time `json:"-"`
	UpdatedAt       time.Time `json:"-"`
}

func (b *Board) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}

// BoardFollow records that a user follows a board. The pair is the primary key.
type BoardFollow struct {
	UserID    string    `gorm:"primaryKey;size:36"`
	BoardID   string    `gorm:"primaryKey;size:36;index"`
	CreatedAt time.Time
}
