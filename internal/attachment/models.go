package attachment

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Attachment is an uploaded file. MessageID stays nil until the chat turn
// that references the file has been persisted.
type Attachment struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	MessageID *string   `gorm:"type:char(36);index" json:"message_id"`
	OwnerID   *string   `gorm:"type:char(36);index" json:"-"`
	FileName  string    `gorm:"type:varchar(255);not null" json:"file_name"`
	FileType  string    `gorm:"type:varchar(128);not null" json:"file_type"`
	FileSize  int64     `gorm:"not null" json:"file_size"`
	FilePath  string    `gorm:"type:varchar(512);not null" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (Attachment) TableName() string { return "attachments" }

func (a *Attachment) BeforeCreate(*gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}

// AccessibleBy reports whether userID may read the file. Files uploaded
// anonymously are readable by anyone holding the id.
func (a *Attachment) AccessibleBy(userID string) bool {
	return a.OwnerID == nil || *a.OwnerID == userID
}
