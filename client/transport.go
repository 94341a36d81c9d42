package client

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport 一条已建立的双向连接
type Transport interface {
	// Send 写一帧
	Send(frame []byte) error
	// Receive 阻塞读一帧；连接断开返回 error
	Receive() ([]byte, error)
	Close() error
}

// Dialer 建立传输连接
type Dialer interface {
	Dial(ctx context.Context) (Transport, error)
}

// WebsocketDialer 基于 gorilla/websocket 的默认实现
type WebsocketDialer struct {
	URL              string
	Header           http.Header
	HandshakeTimeout time.Duration
	WriteWait        time.Duration
}

func (d *WebsocketDialer) Dial(ctx context.Context) (Transport, error) {
	if d.URL == "" {
		return nil, errors.New("websocket url is empty")
	}
	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
	}
	if dialer.HandshakeTimeout == 0 {
		dialer.HandshakeTimeout = 10 * time.Second
	}
	conn, _, err := dialer.DialContext(ctx, d.URL, d.Header)
	if err != nil {
		return nil, err
	}
	wait := d.WriteWait
	if wait == 0 {
		wait = 10 * time.Second
	}
	return &wsTransport{conn: conn, writeWait: wait}, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	writeWait time.Duration
	// gorilla 只允许一个并发写
	wmu sync.Mutex
}

func (t *wsTransport) Send(frame []byte) error {
	t.wmu.Lock()
	defer t.wmu.Unlock()
	_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeWait))
	return t.conn.WriteMessage(websocket.TextMessage, frame)
}

func (t *wsTransport) Receive() ([]byte, error) {
	for {
		mt, data, err := t.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt == websocket.TextMessage || mt == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (t *wsTransport) Close() error {
	t.wmu.Lock()
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.wmu.Unlock()
	return t.conn.Close()
}
