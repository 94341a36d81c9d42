package pulse_sdk

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/hub"
)

const (
	// Time 写入超时时间
	writeWait = 10 * time.Second

	// Time pong超时时间
	pongWait = 60 * time.Second

	// Send 对应的ping 必须小于pong
	pingPeriod = (pongWait * 9) / 10

	// Maximum 对等端允许消息大小
	maxMessageSize = 16 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for SDK
	},
}

// Client 一条 websocket 连接，实现 hub.Transport。
// send 从不关闭：断开时关闭 done，Send 看到 done 后直接返回 false。
type Client struct {
	engine  *Engine
	conn    *websocket.Conn
	session *Session

	// 消息缓冲区
	send chan []byte

	done      chan struct{}
	closeOnce sync.Once
}

// Send 非阻塞入队；队列满或连接已断开时丢弃
func (c *Client) Send(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *Client) shutdown() {
	c.closeOnce.Do(func() { close(c.done) })
}

// readPump 将消息从client (websocket 连接) 交给 dispatcher，同一连接的事件严格按序处理。
func (c *Client) readPump(ctx context.Context) {
	log := c.engine.log.With(zap.String("conn_id", c.session.Conn.ID))
	defer func() {
		c.shutdown()
		c.engine.disconnect(c.session)
		_ = c.conn.Close()
		log.Debug("connection closed")
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		c.session.Conn.Touch(time.Now())
		return nil
	})
	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				log.Info("readPump error", zap.Error(err))
			}
			return
		}
		c.session.Conn.Touch(time.Now())
		c.engine.Dispatcher.Dispatch(ctx, c.session, msg)
	}
}

// writePump 将消息写到具体的 websocket 连接。
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			// 每帧一条 JSON，客户端按帧解析，不能像纯文本那样拼接
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.shutdown()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.engine.log.Debug("writePump 写入ping失败", zap.Error(err))
				c.shutdown()
				return
			}
		}
	}
}

// ServeWS 处理 ws 请求。握手里带了 token（Bearer 或 ?token=）时直接鉴权，
// 否则连接以未鉴权状态建立，等待 authenticate 事件。
func (e *Engine) ServeWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		engine: e,
		conn:   ws,
		send:   make(chan []byte, e.config.SendQueueSize),
		done:   make(chan struct{}),
	}
	conn := hub.NewConn(uuid.NewString(), client)
	client.session = &Session{Conn: conn}
	e.Conns.Add(conn)
	e.log.Debug("connection opened", zap.String("conn_id", conn.ID), zap.String("remote", r.RemoteAddr))

	go client.writePump()

	// 不用 r.Context()：handler 返回后它就会被取消
	ctx := e.ctx
	if token := e.AuthService.ExtractToken(r); token != "" {
		e.Dispatcher.Authenticate(ctx, client.session, token, "")
	}
	go client.readPump(ctx)
}

// disconnect 断开清理：在线状态 -> 房间 -> 连接表
func (e *Engine) disconnect(s *Session) {
	e.Dispatcher.Disconnect(s)
	e.Conns.Remove(s.Conn.ID)
}
