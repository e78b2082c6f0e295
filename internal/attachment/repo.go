package attachment

import (
	"context"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, a *Attachment) error {
	return r.db.WithContext(ctx).Create(a).Error
}

func (r *Repo) Get(ctx context.Context, id string) (*Attachment, error) {
	var a Attachment
	if err := r.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// LinkToMessage sets message_id on attachments that are not linked yet.
// Already linked attachments keep their first message.
func LinkToMessage(tx *gorm.DB, ids []string, messageID string) error {
	if len(ids) == 0 {
		return nil
	}
	return tx.Model(&Attachment{}).
		Where("id IN ? AND message_id IS NULL", ids).
		Update("message_id", messageID).Error
}
