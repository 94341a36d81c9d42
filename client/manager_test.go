package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/message"
)

var errDial = errors.New("connection refused")

// fakeServer 内存里的“网关”：按需拒绝拨号，收到 authenticate 后立即回包。
type fakeServer struct {
	mu         sync.Mutex
	dials      int
	failDials  int
	authReplys []string // 依次使用；空串或用完后回 authenticated
	handshake  string   // 非空时每次拨号先下发一条握手鉴权结果：authenticated 或失败原因
	conns      []*fakeTransport
}

func (s *fakeServer) Dial(context.Context) (Transport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dials++
	if s.failDials > 0 {
		s.failDials--
		return nil, errDial
	}
	t := &fakeTransport{srv: s, in: make(chan []byte, 64), closed: make(chan struct{})}
	s.conns = append(s.conns, t)
	if s.handshake != "" {
		// 握手 token 的鉴权结果先于客户端自己的 authenticate 到达
		if s.handshake == cons.EventAuthenticated {
			t.push(cons.EventAuthenticated, message.Authenticated{UserID: 1, DisplayName: "alice"})
		} else {
			t.push(cons.EventAuthenticationFailed, message.AuthenticationFailed{Reason: s.handshake})
		}
	}
	return t, nil
}

func (s *fakeServer) setFailDials(n int) {
	s.mu.Lock()
	s.failDials = n
	s.mu.Unlock()
}

func (s *fakeServer) dialCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dials
}

func (s *fakeServer) conn(i int) *fakeTransport {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i >= len(s.conns) {
		return nil
	}
	return s.conns[i]
}

func (s *fakeServer) nextAuthReply() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.authReplys) == 0 {
		return ""
	}
	r := s.authReplys[0]
	s.authReplys = s.authReplys[1:]
	return r
}

type fakeTransport struct {
	srv    *fakeServer
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu   sync.Mutex
	sent []message.Envelope
}

func (t *fakeTransport) Send(frame []byte) error {
	select {
	case <-t.closed:
		return io.ErrClosedPipe
	default:
	}
	var env message.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return err
	}
	t.mu.Lock()
	t.sent = append(t.sent, env)
	t.mu.Unlock()

	if env.Type == cons.EventAuthenticate {
		if reason := t.srv.nextAuthReply(); reason != "" {
			t.reply(cons.EventAuthenticationFailed, message.AuthenticationFailed{Reason: reason}, env.PacketID)
		} else {
			t.reply(cons.EventAuthenticated, message.Authenticated{UserID: 1, DisplayName: "alice"}, env.PacketID)
		}
	}
	return nil
}

// reply 回包带回请求的 packet_id
func (t *fakeTransport) reply(event string, payload any, packetID string) {
	b, _ := message.EncodeWithPacket(event, payload, packetID)
	t.in <- b
}

func (t *fakeTransport) Receive() ([]byte, error) {
	select {
	case b := <-t.in:
		return b, nil
	case <-t.closed:
		return nil, io.EOF
	}
}

func (t *fakeTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return nil
}

// push 服务端下发
func (t *fakeTransport) push(event string, payload any) {
	b, _ := message.Encode(event, payload)
	t.in <- b
}

func (t *fakeTransport) sentTypes() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, 0, len(t.sent))
	for _, e := range t.sent {
		out = append(out, e.Type)
	}
	return out
}

func (t *fakeTransport) sentData(event string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []string
	for _, e := range t.sent {
		if e.Type == event {
			out = append(out, string(e.Data))
		}
	}
	return out
}

type delayRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

// after 立即触发并记录请求的延迟
func (r *delayRecorder) after(d time.Duration) <-chan time.Time {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (r *delayRecorder) get() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.delays...)
}

func staticToken(token string) CredentialFunc {
	return func(context.Context) (string, error) { return token, nil }
}

func newTestManager(t *testing.T, srv *fakeServer, cred CredentialFunc) (*Manager, *delayRecorder) {
	t.Helper()
	if cred == nil {
		cred = staticToken("tok")
	}
	m := New(Options{
		Dialer:      srv,
		Credential:  cred,
		BaseDelay:   time.Second,
		MaxDelay:    time.Minute,
		MaxAttempts: 5,
		Logger:      zaptest.NewLogger(t),
	})
	rec := &delayRecorder{}
	m.after = rec.after
	t.Cleanup(m.Stop)
	return m, rec
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 2*time.Second, 5*time.Millisecond)
}

func TestManager_ReconnectReplaysRoomsAndKeepsListeners(t *testing.T) {
	srv := &fakeServer{}
	m, _ := newTestManager(t, srv, nil)

	var fired int32
	m.On(cons.EventNewMessage, func(json.RawMessage) { atomic.AddInt32(&fired, 1) })

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })

	require.NoError(t, m.JoinChat("42"))
	require.NoError(t, m.SubscribePost("7"))
	first := srv.conn(0)
	waitFor(t, func() bool { return len(first.sentData(cons.EventJoinChat)) == 1 })

	// 传输层断开
	require.NoError(t, first.Close())
	waitFor(t, func() bool { return srv.dialCount() == 2 && m.State() == StateAuthenticated })

	second := srv.conn(1)
	require.NotNil(t, second)
	waitFor(t, func() bool {
		return len(second.sentData(cons.EventJoinChat)) == 1 && len(second.sentData(cons.EventSubscribePost)) == 1
	})
	assert.JSONEq(t, `{"room_id":"42"}`, second.sentData(cons.EventJoinChat)[0])
	assert.JSONEq(t, `{"id":"7"}`, second.sentData(cons.EventSubscribePost)[0])
	assert.Equal(t, []string{"chat:42", "post:7"}, m.Rooms())
	assert.Equal(t, cons.EventAuthenticate, second.sentTypes()[0])

	second.push(cons.EventNewMessage, message.NewMessage{RoomID: "42", SenderID: 2, Message: json.RawMessage(`{"text":"hi"}`)})
	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	assert.Never(t, func() bool { return atomic.LoadInt32(&fired) > 1 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestManager_GiveUpAfterMaxAttempts(t *testing.T) {
	srv := &fakeServer{failDials: 100}
	m, rec := newTestManager(t, srv, nil)

	var states []State
	var mu sync.Mutex
	m.opts.OnStateChange = func(s State) {
		mu.Lock()
		states = append(states, s)
		mu.Unlock()
	}

	require.NoError(t, m.Start(context.Background()))
	select {
	case <-m.GaveUp():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not give up")
	}

	assert.Equal(t, StateGaveUp, m.State())
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}, rec.get())
	// 首次拨号 + 5 次重试，第 5 次重试失败后不再安排第 6 次
	assert.Equal(t, 6, srv.dialCount())
	assert.ErrorIs(t, m.Err(), errDial)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, StateGaveUp, states[len(states)-1])
}

func TestManager_AttemptsResetOnlyAfterAuthentication(t *testing.T) {
	srv := &fakeServer{failDials: 4}
	m, rec := newTestManager(t, srv, nil)

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })
	require.Equal(t, 5, srv.dialCount())

	srv.setFailDials(4)
	require.NoError(t, srv.conn(0).Close())
	waitFor(t, func() bool { return srv.dialCount() == 10 && m.State() == StateAuthenticated })

	s := time.Second
	assert.Equal(t, []time.Duration{s, 2 * s, 4 * s, 8 * s, s, 2 * s, 4 * s, 8 * s, 16 * s}, rec.get())
}

func TestManager_TerminalAuthFailure(t *testing.T) {
	srv := &fakeServer{authReplys: []string{cons.ReasonTokenInvalid}}
	m, _ := newTestManager(t, srv, nil)

	var reasons []string
	var mu sync.Mutex
	m.On(cons.EventAuthenticationFailed, func(data json.RawMessage) {
		var p message.AuthenticationFailed
		_ = json.Unmarshal(data, &p)
		mu.Lock()
		reasons = append(reasons, p.Reason)
		mu.Unlock()
	})

	require.NoError(t, m.Start(context.Background()))
	select {
	case <-m.GaveUp():
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not give up")
	}

	var af *AuthFailedError
	require.ErrorAs(t, m.Err(), &af)
	assert.Equal(t, cons.ReasonTokenInvalid, af.Reason)
	assert.Equal(t, 1, srv.dialCount())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{cons.ReasonTokenInvalid}, reasons)
}

func TestManager_ExpiredTokenRefreshedOnRetry(t *testing.T) {
	srv := &fakeServer{authReplys: []string{cons.ReasonTokenExpired}}
	var calls int32
	cred := func(context.Context) (string, error) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			return "stale", nil
		}
		return "fresh", nil
	}
	m, _ := newTestManager(t, srv, cred)

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })

	assert.Equal(t, 2, srv.dialCount())
	assert.JSONEq(t, `{"token":"fresh"}`, srv.conn(1).sentData(cons.EventAuthenticate)[0])
}

func TestManager_EmitRequiresAuthentication(t *testing.T) {
	srv := &fakeServer{}
	m, _ := newTestManager(t, srv, nil)

	assert.ErrorIs(t, m.Emit(cons.EventTypingStart, message.Typing{RoomID: "1"}), ErrNotConnected)

	// 未连接时 JoinChat 只记住房间
	require.NoError(t, m.JoinChat("9"))
	assert.Equal(t, []string{"chat:9"}, m.Rooms())
	assert.Error(t, m.JoinChat("bad id"))

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })
	require.NoError(t, m.Emit(cons.EventTypingStart, message.Typing{RoomID: "9"}))

	conn := srv.conn(0)
	waitFor(t, func() bool { return len(conn.sentData(cons.EventTypingStart)) == 1 })
	waitFor(t, func() bool { return len(conn.sentData(cons.EventJoinChat)) == 1 })

	require.NoError(t, m.LeaveChat("9"))
	assert.Empty(t, m.Rooms())
	assert.Len(t, conn.sentData(cons.EventLeaveChat), 1)
}

func TestManager_ListenerOff(t *testing.T) {
	srv := &fakeServer{}
	m, _ := newTestManager(t, srv, nil)

	var a, b int32
	offA := m.On(cons.EventNotification, func(json.RawMessage) { atomic.AddInt32(&a, 1) })
	m.On(cons.EventNotification, func(json.RawMessage) { atomic.AddInt32(&b, 1) })
	offA()
	offA()

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })
	srv.conn(0).push(cons.EventNotification, message.Notification{ID: "n1", Type: cons.NotifyLike})

	waitFor(t, func() bool { return atomic.LoadInt32(&b) == 1 })
	assert.Equal(t, int32(0), atomic.LoadInt32(&a))
}

func TestManager_StopIsIdempotent(t *testing.T) {
	srv := &fakeServer{}
	m, _ := newTestManager(t, srv, nil)
	require.NoError(t, m.Start(context.Background()))
	assert.ErrorIs(t, m.Start(context.Background()), ErrAlreadyRunning)
	m.Stop()
	m.Stop()
	assert.Equal(t, StateDisconnected, m.State())
}

func TestManager_StaleHandshakeTokenDoesNotFailOwnAuth(t *testing.T) {
	srv := &fakeServer{handshake: cons.ReasonTokenExpired}
	m, _ := newTestManager(t, srv, staticToken("fresh"))

	var failed int32
	m.On(cons.EventAuthenticationFailed, func(json.RawMessage) { atomic.AddInt32(&failed, 1) })

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })

	// 同一条连接上完成鉴权，没有因为握手结果而重连
	assert.Equal(t, 1, srv.dialCount())
	assert.Equal(t, int32(0), atomic.LoadInt32(&failed))
	assert.JSONEq(t, `{"token":"fresh"}`, srv.conn(0).sentData(cons.EventAuthenticate)[0])
}

func TestManager_HandshakeAckDispatchedOnce(t *testing.T) {
	srv := &fakeServer{handshake: cons.EventAuthenticated}
	m, _ := newTestManager(t, srv, nil)

	var acks int32
	m.On(cons.EventAuthenticated, func(json.RawMessage) { atomic.AddInt32(&acks, 1) })

	require.NoError(t, m.Start(context.Background()))
	waitFor(t, func() bool { return m.State() == StateAuthenticated })
	waitFor(t, func() bool { return atomic.LoadInt32(&acks) == 1 })

	// 推一条业务事件作为屏障：它被处理时前面的帧都已处理完
	var barrier int32
	m.On(cons.EventNotification, func(json.RawMessage) { atomic.AddInt32(&barrier, 1) })
	srv.conn(0).push(cons.EventNotification, message.Notification{ID: "n1", Type: cons.NotifyLike})
	waitFor(t, func() bool { return atomic.LoadInt32(&barrier) == 1 })
	assert.Equal(t, int32(1), atomic.LoadInt32(&acks))
}
