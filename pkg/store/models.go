package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID          string `gorm:"primaryKey"`
	Email       string `gorm:"index"`
	Name        string
	AccessLevel string    `gorm:"not null;default:free"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time
}

type ConversationModel struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"not null;index:idx_conversation_user_mode"`
	Mode      string `gorm:"not null;index:idx_conversation_user_mode"`
	Title     string `gorm:"not null"`
	Artifacts datatypes.JSON
	CreatedAt time.Time `gorm:"not null;index"`
	UpdatedAt time.Time `gorm:"not null"`
}

type MessageModel struct {
	ID             string `gorm:"primaryKey"`
	ConversationID string `gorm:"not null;index"`
	UserID         string `gorm:"not null"`
	Role           string `gorm:"not null"`
	Mode           string `gorm:"not null"`
	Content        string `gorm:"type:text;not null"`
	Artifacts      datatypes.JSON
	CreatedAt      time.Time `gorm:"not null;index"`
}
