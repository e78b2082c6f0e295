package chat

import (
	"time"

	"github.com/google/uuid"
	"github.com/suPer8Hu/lexchat/internal/attachment"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	RoleHuman     = "human"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Chat is a durable conversation. A nil UserID means nobody owns it yet.
type Chat struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	UserID    *string   `gorm:"type:char(36);index" json:"user_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	IsShared  bool      `gorm:"not null;default:false" json:"is_shared"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

func (c *Chat) BeforeCreate(*gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return nil
}

func (c *Chat) OwnedBy(userID string) bool {
	return c.UserID != nil && *c.UserID == userID
}

type Source struct {
	URL string `json:"url"`
}

// Message is immutable once written.
type Message struct {
	ID          string                      `gorm:"type:char(36);primaryKey" json:"id"`
	ChatID      string                      `gorm:"type:char(36);not null;index:idx_messages_chat_created,priority:1" json:"chat_id"`
	Role        string                      `gorm:"type:varchar(16);not null" json:"role"`
	Content     string                      `gorm:"type:text;not null" json:"content"`
	Sources     datatypes.JSONSlice[Source] `json:"sources"`
	Attachments []attachment.Attachment     `gorm:"foreignKey:MessageID" json:"attachments,omitempty"`
	CreatedAt   time.Time                   `gorm:"index:idx_messages_chat_created,priority:2" json:"created_at"`
}

func (Message) TableName() string { return "messages" }

func (m *Message) BeforeCreate(*gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}
