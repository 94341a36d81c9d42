package hub

import (
	"errors"
	"sync"

	"github.com/cydxin/pulse-sdk/message"
	"go.uber.org/zap"
)

var (
	ErrConnNotFound = errors.New("connection not found")
	ErrConnClosed   = errors.New("connection closed")
)

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[string]*Conn // roomKey -> connID -> conn
}

// Router 房间路由：join/leave/broadcast/teardown。
// 这一层不做权限判断（谁能进哪个房间由 dispatcher 的 JoinAuthorizer 决定）。
type Router struct {
	conns  *Registry
	shards [shardCount]roomShard
	log    *zap.Logger
}

func NewRouter(conns *Registry, log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	r := &Router{conns: conns, log: log}
	for i := range r.shards {
		r.shards[i].rooms = make(map[string]map[string]*Conn)
	}
	return r
}

func (r *Router) shard(key string) *roomShard {
	return &r.shards[shardIndex(key)]
}

// Join 加入房间，房间不存在时创建。重复加入是 no-op。
func (r *Router) Join(connID, key string) error {
	c, ok := r.conns.Get(connID)
	if !ok {
		return ErrConnNotFound
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	if _, ok := c.rooms[key]; ok {
		return nil
	}

	sh := r.shard(key)
	sh.mu.Lock()
	members := sh.rooms[key]
	if members == nil {
		members = make(map[string]*Conn)
		sh.rooms[key] = members
	}
	members[connID] = c
	sh.mu.Unlock()

	c.rooms[key] = struct{}{}
	return nil
}

// Leave 离开房间；房间空了就删掉。
func (r *Router) Leave(connID, key string) {
	if c, ok := r.conns.Get(connID); ok {
		c.mu.Lock()
		delete(c.rooms, key)
		r.removeMember(key, connID)
		c.mu.Unlock()
		return
	}
	r.removeMember(key, connID)
}

func (r *Router) removeMember(key, connID string) {
	sh := r.shard(key)
	sh.mu.Lock()
	if members := sh.rooms[key]; members != nil {
		delete(members, connID)
		if len(members) == 0 {
			delete(sh.rooms, key)
		}
	}
	sh.mu.Unlock()
}

// Teardown 断开时调用一次：标记连接关闭（之后的 Join 全部拒绝），并从所有房间移除。
// 返回移除的房间数。
func (r *Router) Teardown(connID string) int {
	c, ok := r.conns.Get(connID)
	if !ok {
		return 0
	}
	c.mu.Lock()
	c.closed = true
	keys := make([]string, 0, len(c.rooms))
	for k := range c.rooms {
		keys = append(keys, k)
	}
	c.rooms = make(map[string]struct{})
	c.mu.Unlock()

	for _, k := range keys {
		r.removeMember(k, connID)
	}
	return len(keys)
}

// Broadcast 编码一次，投递给房间内除 exclude 以外的所有连接。返回成功入队的连接数。
func (r *Router) Broadcast(key, event string, payload any, exclude string) (int, error) {
	frame, err := message.Encode(event, payload)
	if err != nil {
		return 0, err
	}
	return r.BroadcastFrame(key, frame, exclude), nil
}

func (r *Router) BroadcastFrame(key string, frame []byte, exclude string) int {
	sh := r.shard(key)
	sh.mu.RLock()
	targets := make([]*Conn, 0, len(sh.rooms[key]))
	for id, c := range sh.rooms[key] {
		if id == exclude {
			continue
		}
		targets = append(targets, c)
	}
	sh.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.send(frame) {
			delivered++
			continue
		}
		r.log.Debug("drop frame: send queue full", zap.String("room", key), zap.String("conn_id", c.ID))
	}
	return delivered
}

// Unicast 只发给一条连接
func (r *Router) Unicast(connID, event string, payload any) error {
	frame, err := message.Encode(event, payload)
	if err != nil {
		return err
	}
	return r.UnicastFrame(connID, frame)
}

// UnicastFrame 发送已编码的帧（例如带 packet_id 的回包）
func (r *Router) UnicastFrame(connID string, frame []byte) error {
	c, ok := r.conns.Get(connID)
	if !ok {
		return ErrConnNotFound
	}
	if !c.send(frame) {
		r.log.Debug("drop unicast: send queue full", zap.String("conn_id", connID))
	}
	return nil
}

// Members 房间成员连接 ID 快照
func (r *Router) Members(key string) []string {
	sh := r.shard(key)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	out := make([]string, 0, len(sh.rooms[key]))
	for id := range sh.rooms[key] {
		out = append(out, id)
	}
	return out
}

// RoomsOf 某连接当前所在房间
func (r *Router) RoomsOf(connID string) []string {
	c, ok := r.conns.Get(connID)
	if !ok {
		return nil
	}
	return c.Rooms()
}

// RoomCount 当前存活房间数（空房间会被立即回收）
func (r *Router) RoomCount() int {
	n := 0
	for i := range r.shards {
		sh := &r.shards[i]
		sh.mu.RLock()
		n += len(sh.rooms)
		sh.mu.RUnlock()
	}
	return n
}
