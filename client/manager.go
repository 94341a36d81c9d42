// Package client 是 WS 网关的客户端：断线重连、鉴权、房间重放、事件监听。
//
// 一个 App 会话创建一个 Manager，显式传给需要它的组件（不使用包级单例）。
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/hub"
	"github.com/cydxin/pulse-sdk/message"
)

// State 连接状态
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticated
	StateGaveUp // 终态：超过最大重试次数或凭证不可用，需要用户手动重试
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateGaveUp:
		return "gave_up"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	ErrNotConnected   = errors.New("client: not connected")
	ErrAuthTimeout    = errors.New("client: authentication timed out")
	ErrAlreadyRunning = errors.New("client: already running")
)

// AuthFailedError 服务端返回 authentication_failed
type AuthFailedError struct {
	Reason string
}

func (e *AuthFailedError) Error() string {
	return "client: authentication failed: " + e.Reason
}

// Terminal 重试也不会成功的原因（需要重新登录）
func (e *AuthFailedError) Terminal() bool {
	return e.Reason == cons.ReasonTokenInvalid || e.Reason == cons.ReasonAccountRestricted
}

// CredentialFunc 每次连接前调用，便于接入 token 刷新
type CredentialFunc func(ctx context.Context) (string, error)

// Listener 事件回调，data 为下行帧的 data 字段
type Listener func(data json.RawMessage)

// Options Manager 配置
type Options struct {
	Dialer     Dialer
	Credential CredentialFunc

	BaseDelay   time.Duration // 默认 1s
	MaxDelay    time.Duration // 默认 30s
	MaxAttempts int           // 连续失败上限，默认 5
	AuthTimeout time.Duration // 发出 authenticate 后等待结果的时间，默认 10s

	Logger        *zap.Logger
	OnStateChange func(State)
}

// Manager 客户端重连管理器
//
// 状态机：disconnected -> connecting -> authenticated，传输断开后回到 disconnected 并按退避重连；
// 连续失败 MaxAttempts 次后进入 gave_up。只有“鉴权成功”才会清零失败计数。
type Manager struct {
	opts  Options
	log   *zap.Logger
	bo    *backoff.ExponentialBackOff
	after func(time.Duration) <-chan time.Time

	mu        sync.Mutex
	state     State
	rooms     map[string]struct{} // 房间 key：chat:<id> / post:<id> / user:<id>
	listeners map[string]map[uint64]Listener
	nextID    uint64
	tr        Transport // 仅在 authenticated 时非空
	lastErr   error
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	gaveUp    chan struct{}
}

func New(opts Options) *Manager {
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = time.Second
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = 30 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// min(base * 2^attempt, cap)，不加抖动，不限总时长（由 MaxAttempts 兜底）
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = opts.BaseDelay
	bo.MaxInterval = opts.MaxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0
	bo.Reset()

	return &Manager{
		opts:      opts,
		log:       opts.Logger,
		bo:        bo,
		after:     time.After,
		rooms:     make(map[string]struct{}),
		listeners: make(map[string]map[uint64]Listener),
		gaveUp:    make(chan struct{}),
	}
}

// Start 开始连接；gave_up 之后可再次调用以手动重试。
func (m *Manager) Start(ctx context.Context) error {
	if m.opts.Dialer == nil || m.opts.Credential == nil {
		return errors.New("client: dialer and credential are required")
	}
	m.mu.Lock()
	for m.running && m.state == StateGaveUp {
		// 后台协程正在退出
		done := m.done
		m.mu.Unlock()
		<-done
		m.mu.Lock()
	}
	if m.running {
		m.mu.Unlock()
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.lastErr = nil
	if m.state == StateGaveUp {
		m.gaveUp = make(chan struct{})
	}
	done := m.done
	m.mu.Unlock()

	m.bo.Reset()
	go m.run(ctx, done)
	return nil
}

// Stop 断开并等待后台协程退出
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// GaveUp 进入 gave_up 时关闭
func (m *Manager) GaveUp() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gaveUp
}

// Err 导致 gave_up 的最后一个错误
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// On 注册监听；重连后依然有效。返回取消函数。
func (m *Manager) On(event string, fn Listener) (off func()) {
	m.mu.Lock()
	m.nextID++
	id := m.nextID
	if m.listeners[event] == nil {
		m.listeners[event] = make(map[uint64]Listener)
	}
	m.listeners[event][id] = fn
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.listeners[event], id)
			if len(m.listeners[event]) == 0 {
				delete(m.listeners, event)
			}
		})
	}
}

// Rooms 当前记住的房间 key（排序后返回）
func (m *Manager) Rooms() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.rooms))
	for k := range m.rooms {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// JoinChat 记住房间；已鉴权时立即发送，否则等下次鉴权成功后重放。
func (m *Manager) JoinChat(roomID string) error {
	return m.remember(hub.ChatRoom(roomID))
}

// LeaveChat 忘记房间；已鉴权时通知服务端。
func (m *Manager) LeaveChat(roomID string) error {
	key := hub.ChatRoom(roomID)
	m.mu.Lock()
	delete(m.rooms, key)
	tr := m.tr
	m.mu.Unlock()
	if tr == nil {
		return nil
	}
	return m.send(tr, cons.EventLeaveChat, message.LeaveChat{RoomID: roomID})
}

// SubscribePost 订阅动态的实时互动（post:<id>）
func (m *Manager) SubscribePost(postID string) error {
	return m.remember(hub.PostRoom(postID))
}

// SubscribeUser 订阅某用户的在线状态（user:<id>）。
// user:<id> 房间同时承载该用户的通知，服务端默认只允许订阅自己；
// 订阅他人需要服务端配置自定义 JoinAuthorizer（例如按关注关系放行），否则该订阅会被静默拒绝。
func (m *Manager) SubscribeUser(userID string) error {
	return m.remember(hub.KindUser + ":" + userID)
}

func (m *Manager) remember(key string) error {
	if _, id, ok := hub.ParseRoomKey(key); !ok || !message.ValidID(id) {
		return fmt.Errorf("client: invalid room %q", key)
	}
	m.mu.Lock()
	m.rooms[key] = struct{}{}
	tr := m.tr
	m.mu.Unlock()
	if tr == nil {
		return nil
	}
	return m.sendJoin(tr, key)
}

// Emit 发送上行事件；未鉴权时返回 ErrNotConnected（不做离线队列）。
func (m *Manager) Emit(event string, data any) error {
	m.mu.Lock()
	tr := m.tr
	m.mu.Unlock()
	if tr == nil {
		return ErrNotConnected
	}
	return m.send(tr, event, data)
}

func (m *Manager) send(tr Transport, event string, data any) error {
	frame, err := message.Encode(event, data)
	if err != nil {
		return err
	}
	return tr.Send(frame)
}

func (m *Manager) sendJoin(tr Transport, key string) error {
	kind, id, _ := hub.ParseRoomKey(key)
	switch kind {
	case hub.KindPost:
		return m.send(tr, cons.EventSubscribePost, message.Subscribe{ID: id})
	case hub.KindUser:
		return m.send(tr, cons.EventSubscribeUser, message.Subscribe{ID: id})
	default:
		return m.send(tr, cons.EventJoinChat, message.JoinChat{RoomID: id})
	}
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	if m.state == s {
		m.mu.Unlock()
		return
	}
	m.state = s
	m.mu.Unlock()

	m.log.Debug("client state", zap.Stringer("state", s))
	if m.opts.OnStateChange != nil {
		m.opts.OnStateChange(s)
	}
}

func (m *Manager) run(ctx context.Context, done chan struct{}) {
	defer func() {
		m.mu.Lock()
		m.running = false
		m.cancel = nil
		m.mu.Unlock()
		close(done)
	}()

	retries := 0
	for {
		authed, err := m.session(ctx)
		if ctx.Err() != nil {
			m.setState(StateDisconnected)
			return
		}
		if authed {
			retries = 0
			m.bo.Reset()
		}

		var af *AuthFailedError
		if errors.As(err, &af) && af.Terminal() {
			m.giveUp(err)
			return
		}
		if retries >= m.opts.MaxAttempts {
			m.giveUp(err)
			return
		}

		delay := m.bo.NextBackOff()
		retries++
		m.setState(StateDisconnected)
		m.log.Info("connection lost, reconnecting",
			zap.Int("attempt", retries),
			zap.Duration("delay", delay),
			zap.Error(err))

		select {
		case <-ctx.Done():
			return
		case <-m.after(delay):
		}
	}
}

func (m *Manager) giveUp(err error) {
	m.mu.Lock()
	m.lastErr = err
	ch := m.gaveUp
	m.mu.Unlock()

	m.log.Warn("giving up reconnecting", zap.Error(err))
	m.setState(StateGaveUp)
	close(ch)
}

// session 一次完整的连接：拨号 -> 鉴权 -> 重放房间 -> 读循环，直到断开。
// authed 表示本次连接是否到达过 authenticated。
func (m *Manager) session(ctx context.Context) (authed bool, err error) {
	m.setState(StateConnecting)

	tr, err := m.opts.Dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer func() {
		m.mu.Lock()
		if m.tr == tr {
			m.tr = nil
		}
		m.mu.Unlock()
		_ = tr.Close()
	}()

	token, err := m.opts.Credential(ctx)
	if err != nil {
		return false, fmt.Errorf("credential: %w", err)
	}
	// 握手 URL 里带 token 时服务端也会回一次鉴权结果（不带 packet_id），只认自己这次请求的回包
	authID := uuid.NewString()
	frame, err := message.EncodeWithPacket(cons.EventAuthenticate, message.Authenticate{Token: token}, authID)
	if err != nil {
		return false, err
	}
	if err := tr.Send(frame); err != nil {
		return false, err
	}

	frames := make(chan []byte)
	errc := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			b, err := tr.Receive()
			if err != nil {
				errc <- err
				return
			}
			select {
			case frames <- b:
			case <-stop:
				return
			}
		}
	}()

	authTimer := time.NewTimer(m.opts.AuthTimeout)
	defer authTimer.Stop()
	authC := authTimer.C

	for {
		select {
		case <-ctx.Done():
			return authed, ctx.Err()
		case <-authC:
			return false, ErrAuthTimeout
		case err := <-errc:
			return authed, err
		case b := <-frames:
			var env message.Envelope
			if err := json.Unmarshal(b, &env); err != nil {
				m.log.Debug("drop malformed frame", zap.Error(err))
				continue
			}
			if isAuthReply(env.Type) && env.PacketID != authID {
				m.log.Debug("ignore auth reply for another request", zap.String("event", env.Type), zap.String("packet_id", env.PacketID))
				continue
			}
			if !authed {
				switch env.Type {
				case cons.EventAuthenticated:
					authed = true
					authC = nil
					m.onAuthenticated(tr)
				case cons.EventAuthenticationFailed:
					var p message.AuthenticationFailed
					_ = json.Unmarshal(env.Data, &p)
					m.dispatch(env.Type, env.Data)
					return false, &AuthFailedError{Reason: p.Reason}
				}
			}
			m.dispatch(env.Type, env.Data)
		}
	}
}

func isAuthReply(event string) bool {
	return event == cons.EventAuthenticated || event == cons.EventAuthenticationFailed
}

func (m *Manager) onAuthenticated(tr Transport) {
	m.mu.Lock()
	m.tr = tr
	keys := make([]string, 0, len(m.rooms))
	for k := range m.rooms {
		keys = append(keys, k)
	}
	m.mu.Unlock()

	m.setState(StateAuthenticated)
	for _, k := range keys {
		if err := m.sendJoin(tr, k); err != nil {
			m.log.Warn("replay room failed", zap.String("room", k), zap.Error(err))
		}
	}
}

func (m *Manager) dispatch(event string, data json.RawMessage) {
	m.mu.Lock()
	fns := make([]Listener, 0, len(m.listeners[event]))
	for _, fn := range m.listeners[event] {
		fns = append(fns, fn)
	}
	m.mu.Unlock()

	for _, fn := range fns {
		fn(data)
	}
}
