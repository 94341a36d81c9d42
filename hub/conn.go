package hub

import (
	"sync"
	"time"
)

// Transport 连接的下行通道。Send 不能阻塞：发送队列满时直接返回 false（丢弃）。
type Transport interface {
	Send(frame []byte) bool
}

// Conn 一条物理连接在路由层的状态。
// mu 保护 rooms/closed；加锁顺序固定为 conn.mu -> 房间分片锁。
type Conn struct {
	ID        string
	transport Transport

	mu         sync.Mutex
	rooms      map[string]struct{}
	closed     bool
	lastActive time.Time
}

func NewConn(id string, t Transport) *Conn {
	return &Conn{
		ID:         id,
		transport:  t,
		rooms:      make(map[string]struct{}),
		lastActive: time.Now(),
	}
}

// Touch 更新最后活跃时间（每收到一帧调用一次）
func (c *Conn) Touch(at time.Time) {
	c.mu.Lock()
	c.lastActive = at
	c.mu.Unlock()
}

func (c *Conn) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Rooms 当前加入的房间快照
func (c *Conn) Rooms() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		out = append(out, k)
	}
	return out
}

func (c *Conn) send(frame []byte) bool {
	if c.transport == nil {
		return false
	}
	return c.transport.Send(frame)
}

type connShard struct {
	mu sync.RWMutex
	m  map[string]*Conn
}

// Registry connID -> *Conn，分片存储
type Registry struct {
	shards [shardCount]connShard
}

func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].m = make(map[string]*Conn)
	}
	return r
}

func (r *Registry) shard(id string) *connShard {
	return &r.shards[shardIndex(id)]
}

func (r *Registry) Add(c *Conn) {
	sh := r.shard(c.ID)
	sh.mu.Lock()
	sh.m[c.ID] = c
	sh.mu.Unlock()
}

func (r *Registry) Get(id string) (*Conn, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	c, ok := sh.m[id]
	sh.mu.RUnlock()
	return c, ok
}

func (r *Registry) Remove(id string) (*Conn, bool) {
	sh := r.shard(id)
	sh.mu.Lock()
	c, ok := sh.m[id]
	delete(sh.m, id)
	sh.mu.Unlock()
	return c, ok
}

func (r *Registry) Len() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}
