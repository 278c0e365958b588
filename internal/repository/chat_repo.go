package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/qs3c/iris_server/internal/model"
)

type ChatRepository struct {
	db *gorm.DB
}

func NewChatRepository(db *gorm.DB) *ChatRepository {
	return &ChatRepository{db: db}
}

func (r *ChatRepository) Create(chat *model.ChatHistory) error {
	return r.db.Create(chat).Error
}

// GetByID 查询会话，不加载消息
func (r *ChatRepository) GetByID(id int64) (*model.ChatHistory, error) {
	var chat model.ChatHistory
	err := r.db.Where("id = ?", id).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetWithMessages 查询会话及其消息，消息按时间升序
func (r *ChatRepository) GetWithMessages(id int64) (*model.ChatHistory, error) {
	var chat model.ChatHistory
	err := r.db.Preload("Messages", func(db *gorm.DB) *gorm.DB {
		return db.Order("timestamp ASC, id ASC")
	}).Where("id = ?", id).First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// ListByUserID 用户的会话列表，最近活跃的在前
func (r *ChatRepository) ListByUserID(userID int64, page, pageSize int) ([]*model.ChatHistory, int64, error) {
	var chats []*model.ChatHistory
	var total int64

	query := r.db.Model(&model.ChatHistory{}).Where("user_id = ?", userID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	err := query.Order("updated_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&chats).Error
	return chats, total, err
}

// Delete 删除会话及其全部消息
func (r *ChatRepository) Delete(id int64) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("chat_id = ?", id).Delete(&model.Message{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.ChatHistory{}).Error
	})
}

func (r *ChatRepository) AddMessage(msg *model.Message) error {
	return r.db.Create(msg).Error
}

// Touch 刷新会话的最近活跃时间
func (r *ChatRepository) Touch(id int64, at time.Time) error {
	return r.db.Model(&model.ChatHistory{}).Where("id = ?", id).Update("updated_at", at).Error
}

func (r *ChatRepository) CountMessages(chatID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).Where("chat_id = ?", chatID).Count(&count).Error
	return count, err
}
