package pulse_sdk

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/hub"
	"github.com/cydxin/pulse-sdk/message"
	"github.com/cydxin/pulse-sdk/models"
	"github.com/cydxin/pulse-sdk/service"
)

// JoinAuthorizer 加入房间前的授权判断。路由层本身不做权限校验，
// 具体规则（例如“必须是会话成员”）由了解业务关系的一方提供。
type JoinAuthorizer func(ctx context.Context, id service.Identity, roomKey string) (bool, error)

// DefaultJoinAuthorizer chat/post 房间放行；user:<id> 房间会收到该用户的通知，只允许本人加入。
// 需要“关注者订阅在线状态”时请自行提供 JoinAuthorizer。
func DefaultJoinAuthorizer(_ context.Context, id service.Identity, roomKey string) (bool, error) {
	kind, rid, ok := hub.ParseRoomKey(roomKey)
	if !ok {
		return false, nil
	}
	if kind == hub.KindUser {
		return rid == strconv.FormatUint(id.UserID, 10), nil
	}
	return true, nil
}

// Authenticator 凭证校验（默认 *service.AuthService）
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Identity, error)
}

// Notifier 社交通知物化（默认 *service.NotificationService）
type Notifier interface {
	Notify(ctx context.Context, in service.NotifyInput) (*models.Notification, error)
}

// Session 单条连接的会话状态。只由该连接的读协程访问，不加锁。
type Session struct {
	Conn     *hub.Conn
	Identity *service.Identity // 未鉴权时为 nil
}

func (s *Session) Authenticated() bool { return s.Identity != nil }

// Dispatcher 上行事件分发。每条连接的事件在其读协程内顺序处理。
type Dispatcher struct {
	router    *hub.Router
	presence  *hub.Tracker
	auth      Authenticator
	notifier  Notifier
	messages  service.MessageStore
	authorize JoinAuthorizer
	log       *zap.Logger
	timeout   time.Duration
	now       func() time.Time
}

// DispatcherDeps 依赖；Notifier/Messages/Authorize 可为空。
type DispatcherDeps struct {
	Router    *hub.Router
	Presence  *hub.Tracker
	Auth      Authenticator
	Notifier  Notifier
	Messages  service.MessageStore
	Authorize JoinAuthorizer
	Logger    *zap.Logger
	Timeout   time.Duration
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	d := &Dispatcher{
		router:    deps.Router,
		presence:  deps.Presence,
		auth:      deps.Auth,
		notifier:  deps.Notifier,
		messages:  deps.Messages,
		authorize: deps.Authorize,
		log:       deps.Logger,
		timeout:   deps.Timeout,
		now:       time.Now,
	}
	if d.authorize == nil {
		d.authorize = DefaultJoinAuthorizer
	}
	if d.log == nil {
		d.log = zap.NewNop()
	}
	if d.timeout <= 0 {
		d.timeout = 5 * time.Second
	}
	return d
}

// Dispatch 处理一帧。任何格式错误、身份不符、未鉴权的事件都只记日志并丢弃。
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, raw []byte) {
	evt, packetID, err := message.Decode(raw)
	if err != nil {
		d.log.Warn("drop malformed frame", zap.String("conn_id", s.Conn.ID), zap.String("packet_id", packetID), zap.Error(err))
		return
	}

	log := d.log.With(zap.String("conn_id", s.Conn.ID), zap.String("event", evt.EventType()))
	if s.Identity != nil {
		log = log.With(zap.Uint64("user_id", s.Identity.UserID))
	}

	if auth, ok := evt.(message.Authenticate); ok {
		d.Authenticate(ctx, s, auth.Token, packetID)
		return
	}
	if !s.Authenticated() {
		log.Warn("drop event from unauthenticated connection")
		return
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	switch e := evt.(type) {
	case message.JoinChat:
		d.joinChat(ctx, log, s, e, packetID)
	case message.LeaveChat:
		d.router.Leave(s.Conn.ID, hub.ChatRoom(e.RoomID))
	case message.SendMessage:
		d.sendMessage(ctx, log, s, e, packetID)
	case message.Typing:
		d.typing(log, s, e)
	case message.Reaction:
		d.reaction(ctx, log, s, e, packetID)
	case message.SocialAction:
		d.social(ctx, log, s, e)
	case message.SetStatus:
		// 以在线表里的归属为准；已摘除的连接（断开中）不能再改用户状态
		if uid, ok := d.presence.UserOf(s.Conn.ID); ok {
			d.presence.SetAway(uid, e.Status == cons.StatusAway)
		}
	case message.Subscribe:
		d.subscribe(ctx, log, s, e)
	default:
		log.Warn("drop unhandled event")
	}
}

// Authenticate 校验凭证并绑定身份；失败时回 authentication_failed，连接保持未鉴权（客户端可刷新后重试）。
// 回包带上请求的 packetID（握手里的 token 没有请求，传空串）。
func (d *Dispatcher) Authenticate(ctx context.Context, s *Session, token, packetID string) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	log := d.log.With(zap.String("conn_id", s.Conn.ID))
	id, err := d.auth.Authenticate(ctx, token)
	if err != nil {
		reason := service.ReasonOf(err)
		log.Info("authentication failed", zap.String("reason", reason), zap.Error(err))
		d.reply(log, s, cons.EventAuthenticationFailed, message.AuthenticationFailed{Reason: reason}, packetID)
		return
	}

	if s.Identity != nil && s.Identity.UserID != id.UserID {
		// 一条连接只绑定一个用户
		log.Warn("re-authentication as a different user rejected",
			zap.Uint64("user_id", s.Identity.UserID), zap.Uint64("new_user_id", id.UserID))
		d.reply(log, s, cons.EventAuthenticationFailed, message.AuthenticationFailed{Reason: cons.ReasonTokenInvalid}, packetID)
		return
	}

	if err := d.router.Join(s.Conn.ID, hub.UserRoom(id.UserID)); err != nil {
		// 连接已在断开中
		log.Debug("join own room failed", zap.Error(err))
		return
	}
	s.Identity = id
	// 先回 ack 再上线：authenticated 必须是该连接收到的第一个鉴权后事件
	d.reply(log, s, cons.EventAuthenticated, message.Authenticated{UserID: id.UserID, DisplayName: id.DisplayName}, packetID)
	d.presence.Register(s.Conn.ID, id.UserID)
}

// Disconnect 连接断开：先摘在线状态，再退出所有房间。
func (d *Dispatcher) Disconnect(s *Session) {
	d.presence.Unregister(s.Conn.ID)
	d.router.Teardown(s.Conn.ID)
}

func (d *Dispatcher) joinChat(ctx context.Context, log *zap.Logger, s *Session, e message.JoinChat, packetID string) {
	key := hub.ChatRoom(e.RoomID)
	if !d.join(ctx, log, s, key) {
		return
	}
	d.reply(log, s, cons.EventChatJoined, message.ChatJoined{RoomID: e.RoomID, UserID: s.Identity.UserID, Timestamp: d.now()}, packetID)
	d.broadcast(log, key, cons.EventUserJoinedChat, message.UserJoinedChat{
		RoomID:      e.RoomID,
		UserID:      s.Identity.UserID,
		DisplayName: s.Identity.DisplayName,
	}, s.Conn.ID)
}

func (d *Dispatcher) subscribe(ctx context.Context, log *zap.Logger, s *Session, e message.Subscribe) {
	key := hub.PostRoom(e.ID)
	if e.Kind == hub.KindUser {
		uid, err := strconv.ParseUint(e.ID, 10, 64)
		if err != nil || uid == 0 {
			log.Warn("drop subscribe: bad user id", zap.String("id", e.ID))
			return
		}
		key = hub.UserRoom(uid)
	}
	d.join(ctx, log, s, key)
}

func (d *Dispatcher) join(ctx context.Context, log *zap.Logger, s *Session, key string) bool {
	ok, err := d.authorize(ctx, *s.Identity, key)
	if err != nil {
		log.Warn("join authorization failed", zap.String("room", key), zap.Error(err))
		return false
	}
	if !ok {
		log.Info("join denied", zap.String("room", key))
		return false
	}
	if err := d.router.Join(s.Conn.ID, key); err != nil {
		log.Debug("join failed", zap.String("room", key), zap.Error(err))
		return false
	}
	return true
}

func (d *Dispatcher) sendMessage(ctx context.Context, log *zap.Logger, s *Session, e message.SendMessage, packetID string) {
	if s.Identity.Muted() {
		log.Info("drop message from muted user", zap.String("room", e.RoomID))
		return
	}
	key := hub.ChatRoom(e.RoomID)
	if d.messages != nil {
		if err := d.messages.SaveMessage(ctx, key, s.Identity.UserID, e.Message, packetID); err != nil {
			// 落库失败不影响实时投递
			log.Error("persist message failed", zap.String("room", key), zap.Error(err))
		}
	}
	d.broadcast(log, key, cons.EventNewMessage, message.NewMessage{
		RoomID:    e.RoomID,
		SenderID:  s.Identity.UserID,
		Message:   e.Message,
		Timestamp: d.now(),
	}, s.Conn.ID)
}

func (d *Dispatcher) typing(log *zap.Logger, s *Session, e message.Typing) {
	d.broadcast(log, hub.ChatRoom(e.RoomID), e.EventType(), message.TypingNotice{
		RoomID:   e.RoomID,
		UserID:   s.Identity.UserID,
		IsTyping: e.Start,
	}, s.Conn.ID)
}

func (d *Dispatcher) reaction(ctx context.Context, log *zap.Logger, s *Session, e message.Reaction, packetID string) {
	if e.UserID != s.Identity.UserID {
		log.Warn("drop reaction: actor mismatch", zap.Uint64("claimed_user_id", e.UserID))
		return
	}

	event, ackEvent := cons.EventReactionAdded, cons.EventReactionAddedAck
	if e.Remove {
		event, ackEvent = cons.EventReactionRemoved, cons.EventReactionRemovedAck
	}
	// 不排除操作者：客户端以广播为准对齐本地状态
	d.broadcast(log, hub.ChatRoom(e.RoomID), event, message.ReactionNotice{
		RoomID:    e.RoomID,
		SubjectID: e.SubjectID,
		UserID:    e.UserID,
		Emoji:     e.Emoji,
		Timestamp: d.now(),
	}, "")
	d.reply(log, s, ackEvent, message.ReactionAck{Success: true, SubjectID: e.SubjectID, Emoji: e.Emoji}, packetID)

	if !e.Remove && e.TargetID != 0 {
		d.notify(ctx, log, service.NotifyInput{
			Type:      cons.NotifyReaction,
			ActorID:   e.UserID,
			TargetID:  e.TargetID,
			SubjectID: e.SubjectID,
		})
	}
}

func (d *Dispatcher) social(ctx context.Context, log *zap.Logger, s *Session, e message.SocialAction) {
	if e.ActorID != s.Identity.UserID {
		log.Warn("drop social action: actor mismatch", zap.Uint64("claimed_user_id", e.ActorID))
		return
	}
	d.notify(ctx, log, service.NotifyInput{
		Type:      e.Action,
		ActorID:   e.ActorID,
		TargetID:  e.TargetID,
		SubjectID: e.SubjectID,
		Text:      e.Text,
	})
}

func (d *Dispatcher) notify(ctx context.Context, log *zap.Logger, in service.NotifyInput) {
	if d.notifier == nil {
		return
	}
	if _, err := d.notifier.Notify(ctx, in); err != nil {
		log.Warn("notify failed", zap.Error(err))
	}
}

// reply 单发给请求方，packet_id 原样带回
func (d *Dispatcher) reply(log *zap.Logger, s *Session, event string, payload any, packetID string) {
	frame, err := message.EncodeWithPacket(event, payload, packetID)
	if err == nil {
		err = d.router.UnicastFrame(s.Conn.ID, frame)
	}
	if err != nil && !errors.Is(err, hub.ErrConnNotFound) {
		log.Warn("reply failed", zap.String("event", event), zap.Error(err))
	}
}

func (d *Dispatcher) broadcast(log *zap.Logger, key, event string, payload any, exclude string) {
	if _, err := d.router.Broadcast(key, event, payload, exclude); err != nil {
		log.Warn("broadcast failed", zap.String("room", key), zap.String("event", event), zap.Error(err))
	}
}
