package repository

import (
	"github.com/cydxin/pulse-sdk/models"
	"gorm.io/gorm"
)

type ChatMessageDAO struct {
	db *gorm.DB
}

func NewChatMessageDAO(db *gorm.DB) *ChatMessageDAO {
	return &ChatMessageDAO{db: db}
}

func (dao *ChatMessageDAO) Create(m *models.ChatMessage) error {
	return dao.db.Create(m).Error
}
