package chat

import (
	"context"
	"time"

	"github.com/suPer8Hu/lexchat/internal/attachment"
	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChat(ctx context.Context, id string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetOwnedChat hides chats of other users behind gorm.ErrRecordNotFound.
func (r *Repo) GetOwnedChat(ctx context.Context, id, userID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChats returns the user's chats, most recently active first.
func (r *Repo) ListChats(ctx context.Context, userID string) ([]Chat, error) {
	var out []Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *Repo) AddMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base, err := nextTimestamp(tx, m.ChatID)
		if err != nil {
			return err
		}
		m.CreatedAt = base
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return touchChat(tx, m.ChatID)
	})
}

// ListMessages returns messages in creation order with their attachments.
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var out []Message
	if err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("chat_id = ?", chatID).
		Order("created_at ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// MarkShared flags the chat as public. An empty userID skips the owner check.
func (r *Repo) MarkShared(ctx context.Context, chatID, userID string) (*Chat, error) {
	q := r.db.WithContext(ctx).Where("id = ?", chatID)
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var c Chat
	if err := q.First(&c).Error; err != nil {
		return nil, err
	}
	if c.IsShared {
		return &c, nil
	}
	if err := r.db.WithContext(ctx).Model(&c).Update("is_shared", true).Error; err != nil {
		return nil, err
	}
	c.IsShared = true
	return &c, nil
}

func (r *Repo) GetShared(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("id = ? AND is_shared = ?", chatID, true).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ImportChat creates c and replays msgs into it, in order, as one unit.
func (r *Repo) ImportChat(ctx context.Context, c *Chat, msgs []Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(c).Error; err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		base := time.Now().Truncate(time.Millisecond)
		for i := range msgs {
			msgs[i].ID = ""
			msgs[i].ChatID = c.ID
			msgs[i].CreatedAt = base.Add(time.Duration(i) * time.Millisecond)
		}
		return tx.Create(&msgs).Error
	})
}

// AppendExchange writes one human/assistant pair and links the human turn's
// attachments in a single transaction.
func (r *Repo) AppendExchange(ctx context.Context, human, assistant *Message, attachmentIDs []string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		base, err := nextTimestamp(tx, human.ChatID)
		if err != nil {
			return err
		}
		human.CreatedAt = base
		assistant.ChatID = human.ChatID
		assistant.CreatedAt = base.Add(time.Millisecond)

		if err := tx.Create(human).Error; err != nil {
			return err
		}
		if err := tx.Create(assistant).Error; err != nil {
			return err
		}
		if err := attachment.LinkToMessage(tx, attachmentIDs, human.ID); err != nil {
			return err
		}
		return touchChat(tx, human.ChatID)
	})
}

// nextTimestamp returns a millisecond timestamp strictly after the chat's
// latest message so that creation order survives datetime(3) columns.
func nextTimestamp(tx *gorm.DB, chatID string) (time.Time, error) {
	now := time.Now().Truncate(time.Millisecond)
	var last []Message
	if err := tx.Select("created_at").
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Limit(1).
		Find(&last).Error; err != nil {
		return time.Time{}, err
	}
	if len(last) > 0 && !now.After(last[0].CreatedAt) {
		return last[0].CreatedAt.Add(time.Millisecond), nil
	}
	return now, nil
}

func touchChat(tx *gorm.DB, chatID string) error {
	return tx.Model(&Chat{}).Where("id = ?", chatID).Update("updated_at", time.Now()).Error
}
