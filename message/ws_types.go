package message

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/cydxin/pulse-sdk/cons"
)

// Envelope WS 帧（上下行通用）：{"type": "...", "data": {...}, "packet_id": "..."}
type Envelope struct {
	Type     string          `json:"type"`
	Data     json.RawMessage `json:"data,omitempty"`
	PacketID string          `json:"packet_id,omitempty"` // 可选：请求带上后，authenticated / authentication_failed / chat_joined / reaction ack 原样回带
}

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrUnknownEvent   = errors.New("unknown event type")
	ErrInvalidPayload = errors.New("invalid payload")
)

// roomIDPattern 房间/动态 ID：字母数字下划线中划线，最长 64
var roomIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// ValidID 校验 room_id / subject_id 格式
func ValidID(id string) bool {
	return roomIDPattern.MatchString(id)
}

// Event 上行事件集合。实现方只有本包内的结构体，dispatcher 用 type switch 穷举处理。
type Event interface {
	EventType() string
}

type Authenticate struct {
	Token string `json:"token"`
}

type JoinChat struct {
	RoomID string `json:"room_id"`
}

type LeaveChat struct {
	RoomID string `json:"room_id"`
}

type SendMessage struct {
	RoomID  string          `json:"room_id"`
	Message json.RawMessage `json:"message"` // 必须是 JSON 对象
}

// Typing typing_start / typing_stop
type Typing struct {
	RoomID string `json:"room_id"`
	Start  bool   `json:"-"`
}

// Reaction add_reaction / remove_reaction
type Reaction struct {
	RoomID    string `json:"room_id"`
	SubjectID string `json:"subject_id"`
	UserID    uint64 `json:"user_id"`             // 声明的操作者，必须等于连接身份
	Emoji     string `json:"emoji"`               //
	TargetID  uint64 `json:"target_id,omitempty"` // 可选：被回应内容的作者，用于生成通知
	Remove    bool   `json:"-"`
}

// SocialAction like_post / comment_post / follow_user
type SocialAction struct {
	Action    string `json:"-"` // cons.NotifyLike / NotifyComment / NotifyFollow
	ActorID   uint64 `json:"actor_id"`
	TargetID  uint64 `json:"target_id"`
	SubjectID string `json:"subject_id,omitempty"` // 动态 ID；follow 时为空
	Text      string `json:"text,omitempty"`       // 评论内容
}

type SetStatus struct {
	Status string `json:"status"` // online / away
}

// Subscribe subscribe_post / subscribe_user
type Subscribe struct {
	Kind string `json:"-"` // post / user
	ID   string `json:"id"`
}

func (Authenticate) EventType() string { return cons.EventAuthenticate }
func (JoinChat) EventType() string     { return cons.EventJoinChat }
func (LeaveChat) EventType() string    { return cons.EventLeaveChat }
func (SendMessage) EventType() string  { return cons.EventSendMessage }
func (SetStatus) EventType() string    { return cons.EventSetStatus }

func (t Typing) EventType() string {
	if t.Start {
		return cons.EventTypingStart
	}
	return cons.EventTypingStop
}

func (r Reaction) EventType() string {
	if r.Remove {
		return cons.EventRemoveReaction
	}
	return cons.EventAddReaction
}

func (a SocialAction) EventType() string {
	switch a.Action {
	case cons.NotifyComment:
		return cons.EventCommentPost
	case cons.NotifyFollow:
		return cons.EventFollowUser
	default:
		return cons.EventLikePost
	}
}

func (s Subscribe) EventType() string {
	if s.Kind == "user" {
		return cons.EventSubscribeUser
	}
	return cons.EventSubscribePost
}

// Decode 解析上行帧并做结构校验。身份校验（user_id 是否等于连接身份）由 dispatcher 负责。
func Decode(raw []byte) (Event, string, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}
	if env.Type == "" {
		return nil, env.PacketID, fmt.Errorf("%w: missing type", ErrMalformedFrame)
	}

	var (
		evt Event
		err error
	)
	switch env.Type {
	case cons.EventAuthenticate:
		evt, err = decodeAuthenticate(env.Data)
	case cons.EventJoinChat:
		var e JoinChat
		if err = decodeObject(env.Data, &e); err == nil {
			err = requireID("room_id", e.RoomID)
		}
		evt = e
	case cons.EventLeaveChat:
		var e LeaveChat
		if err = decodeObject(env.Data, &e); err == nil {
			err = requireID("room_id", e.RoomID)
		}
		evt = e
	case cons.EventSendMessage:
		var e SendMessage
		if err = decodeObject(env.Data, &e); err == nil {
			err = requireID("room_id", e.RoomID)
		}
		if err == nil && !isObject(e.Message) {
			err = fmt.Errorf("%w: message must be an object", ErrInvalidPayload)
		}
		evt = e
	case cons.EventTypingStart, cons.EventTypingStop:
		var e Typing
		if err = decodeObject(env.Data, &e); err == nil {
			err = requireID("room_id", e.RoomID)
		}
		e.Start = env.Type == cons.EventTypingStart
		evt = e
	case cons.EventAddReaction, cons.EventRemoveReaction:
		var e Reaction
		if err = decodeObject(env.Data, &e); err == nil {
			err = validateReaction(e)
		}
		e.Remove = env.Type == cons.EventRemoveReaction
		evt = e
	case cons.EventLikePost, cons.EventCommentPost, cons.EventFollowUser:
		var e SocialAction
		if err = decodeObject(env.Data, &e); err == nil {
			e.Action = actionOf(env.Type)
			err = validateSocial(e)
		}
		evt = e
	case cons.EventSetStatus:
		var e SetStatus
		if err = decodeObject(env.Data, &e); err == nil && e.Status != cons.StatusOnline && e.Status != cons.StatusAway {
			err = fmt.Errorf("%w: status must be online or away", ErrInvalidPayload)
		}
		evt = e
	case cons.EventSubscribePost, cons.EventSubscribeUser:
		var e Subscribe
		if err = decodeObject(env.Data, &e); err == nil {
			err = requireID("id", e.ID)
		}
		e.Kind = "post"
		if env.Type == cons.EventSubscribeUser {
			e.Kind = "user"
		}
		evt = e
	default:
		return nil, env.PacketID, fmt.Errorf("%w: %s", ErrUnknownEvent, env.Type)
	}
	if err != nil {
		return nil, env.PacketID, err
	}
	return evt, env.PacketID, nil
}

// decodeAuthenticate 兼容两种写法："data": "<token>" 或 "data": {"token": "<token>"}
func decodeAuthenticate(data json.RawMessage) (Event, error) {
	var token string
	if err := json.Unmarshal(data, &token); err != nil {
		var obj Authenticate
		if err := decodeObject(data, &obj); err != nil {
			return nil, err
		}
		token = obj.Token
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("%w: missing token", ErrInvalidPayload)
	}
	return Authenticate{Token: token}, nil
}

func decodeObject(data json.RawMessage, v any) error {
	if !isObject(data) {
		return fmt.Errorf("%w: data must be an object", ErrInvalidPayload)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return nil
}

func isObject(data json.RawMessage) bool {
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 1 && trimmed[0] == '{' && json.Valid(trimmed)
}

func requireID(field, id string) error {
	if !ValidID(id) {
		return fmt.Errorf("%w: bad %s %q", ErrInvalidPayload, field, id)
	}
	return nil
}

func validateReaction(r Reaction) error {
	if err := requireID("room_id", r.RoomID); err != nil {
		return err
	}
	if err := requireID("subject_id", r.SubjectID); err != nil {
		return err
	}
	if r.UserID == 0 {
		return fmt.Errorf("%w: user_id is required", ErrInvalidPayload)
	}
	if e := strings.TrimSpace(r.Emoji); e == "" || len(e) > 32 {
		return fmt.Errorf("%w: bad emoji", ErrInvalidPayload)
	}
	return nil
}

func validateSocial(a SocialAction) error {
	if a.ActorID == 0 || a.TargetID == 0 {
		return fmt.Errorf("%w: actor_id and target_id are required", ErrInvalidPayload)
	}
	if a.Action == cons.NotifyFollow {
		return nil
	}
	if err := requireID("subject_id", a.SubjectID); err != nil {
		return err
	}
	if a.Action == cons.NotifyComment && strings.TrimSpace(a.Text) == "" {
		return fmt.Errorf("%w: comment text is required", ErrInvalidPayload)
	}
	return nil
}

func actionOf(eventType string) string {
	switch eventType {
	case cons.EventCommentPost:
		return cons.NotifyComment
	case cons.EventFollowUser:
		return cons.NotifyFollow
	default:
		return cons.NotifyLike
	}
}
