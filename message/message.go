package message

import (
	"encoding/json"
	"time"
)

// Encode 生成下行帧
func Encode(eventType string, payload any) ([]byte, error) {
	return EncodeWithPacket(eventType, payload, "")
}

// EncodeWithPacket 带 packet_id 的帧：上行请求由客户端生成，服务端在对应的回包里原样带回
func EncodeWithPacket(eventType string, payload any, packetID string) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		data = b
	}
	return json.Marshal(Envelope{Type: eventType, Data: data, PacketID: packetID})
}

// -------------------- 下行 payload --------------------

type Authenticated struct {
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type AuthenticationFailed struct {
	Reason string `json:"reason"`
}

type ChatJoined struct {
	RoomID    string    `json:"room_id"`
	UserID    uint64    `json:"user_id"`
	Timestamp time.Time `json:"timestamp"`
}

type UserJoinedChat struct {
	RoomID      string `json:"room_id"`
	UserID      uint64 `json:"user_id"`
	DisplayName string `json:"display_name"`
}

type NewMessage struct {
	RoomID    string          `json:"room_id"`
	SenderID  uint64          `json:"sender_id"`
	Message   json.RawMessage `json:"message"`
	Timestamp time.Time       `json:"timestamp"`
}

type TypingNotice struct {
	RoomID   string `json:"room_id"`
	UserID   uint64 `json:"user_id"`
	IsTyping bool   `json:"is_typing"`
}

type ReactionNotice struct {
	RoomID    string    `json:"room_id"`
	SubjectID string    `json:"subject_id"`
	UserID    uint64    `json:"user_id"`
	Emoji     string    `json:"emoji"`
	Timestamp time.Time `json:"timestamp"`
}

type ReactionAck struct {
	Success   bool   `json:"success"`
	SubjectID string `json:"subject_id"`
	Emoji     string `json:"emoji"`
}

// Notification 推送给 user:<target_id> 房间
type Notification struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	ActorID   uint64    `json:"actor_id"`
	SubjectID string    `json:"subject_id,omitempty"`
	Text      string    `json:"text,omitempty"` // 评论内容
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

type StatusChange struct {
	UserID uint64 `json:"user_id"`
	Status string `json:"status"`
}
