package service

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/cydxin/pulse-sdk/models"
	"github.com/cydxin/pulse-sdk/repository"
)

// MessageStore 聊天消息持久化
type MessageStore interface {
	SaveMessage(ctx context.Context, roomKey string, senderID uint64, body json.RawMessage, packetID string) error
}

// MessageService 把 send_message 的消息体原样落库（实时层不解析消息结构）
type MessageService struct {
	*Service
	now func() time.Time
}

func NewMessageService(s *Service) *MessageService {
	return &MessageService{Service: s, now: time.Now}
}

// SaveMessage DB 为空时直接跳过
func (s *MessageService) SaveMessage(ctx context.Context, roomKey string, senderID uint64, body json.RawMessage, packetID string) error {
	if s.DB == nil {
		return nil
	}
	m := &models.ChatMessage{
		RoomKey:   roomKey,
		SenderID:  senderID,
		Body:      datatypes.JSON(body),
		PacketID:  packetID,
		CreatedAt: s.now(),
	}
	return repository.NewChatMessageDAO(s.DB.WithContext(ctx)).Create(m)
}
