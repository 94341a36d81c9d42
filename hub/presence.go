package hub

import (
	"strconv"
	"sync"
	"time"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/message"
	"go.uber.org/zap"
)

// PresenceEntry 用户级在线状态（多设备共享）
type PresenceEntry struct {
	UserID   uint64
	Conns    map[string]struct{}
	Status   string
	LastSeen time.Time
}

// StatusChange 状态变更事件，交给 OnChange 钩子（落库/Redis）
type StatusChange struct {
	UserID uint64
	Status string
	At     time.Time
}

type ownerShard struct {
	mu sync.Mutex
	m  map[string]uint64 // connID -> userID
}

type userShard struct {
	mu sync.Mutex
	m  map[uint64]*PresenceEntry
}

// Tracker 维护 user -> 连接集合。一个 connID 同一时刻只属于一个用户。
// 加锁顺序：owner 分片 -> user 分片 -> 房间分片（广播）。
type Tracker struct {
	router *Router
	clock  func() time.Time
	log    *zap.Logger

	owners [shardCount]ownerShard
	users  [shardCount]userShard

	// OnChange 在用户锁内同步调用，实现方不要做阻塞 IO（自己起 goroutine）。
	OnChange func(StatusChange)
}

func NewTracker(router *Router, log *zap.Logger) *Tracker {
	if log == nil {
		log = zap.NewNop()
	}
	t := &Tracker{router: router, clock: time.Now, log: log}
	for i := range t.owners {
		t.owners[i].m = make(map[string]uint64)
		t.users[i].m = make(map[uint64]*PresenceEntry)
	}
	return t
}

// SetClock 单测注入时钟
func (t *Tracker) SetClock(clock func() time.Time) {
	if clock != nil {
		t.clock = clock
	}
}

func (t *Tracker) ownerShard(connID string) *ownerShard {
	return &t.owners[shardIndex(connID)]
}

func (t *Tracker) userShard(userID uint64) *userShard {
	return &t.users[shardIndex(strconv.FormatUint(userID, 10))]
}

// Register 把连接挂到用户下。连接已注册过时是 no-op，返回 false。
// 集合从空变为非空时向 user:<id> 广播 online；触发的连接自己不收（它已经拿到 authenticated）。
func (t *Tracker) Register(connID string, userID uint64) bool {
	os := t.ownerShard(connID)
	os.mu.Lock()
	defer os.mu.Unlock()
	if _, ok := os.m[connID]; ok {
		return false
	}

	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()

	os.m[connID] = userID
	e := us.m[userID]
	if e == nil {
		e = &PresenceEntry{UserID: userID, Conns: make(map[string]struct{}), Status: cons.StatusOffline}
		us.m[userID] = e
	}
	wasEmpty := len(e.Conns) == 0
	e.Conns[connID] = struct{}{}
	if wasEmpty {
		now := t.clock()
		e.Status = cons.StatusOnline
		e.LastSeen = now
		t.emit(userID, cons.StatusOnline, now, connID)
	}
	return true
}

// Unregister 从所属用户移除连接。连接不存在时是 no-op（断开与强制下线可能并发）。
// 集合变空时写 last-seen 并广播 offline（不发给正在断开的连接）。
func (t *Tracker) Unregister(connID string) (uint64, bool) {
	os := t.ownerShard(connID)
	os.mu.Lock()
	defer os.mu.Unlock()
	userID, ok := os.m[connID]
	if !ok {
		return 0, false
	}
	delete(os.m, connID)

	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	e := us.m[userID]
	if e == nil {
		return userID, true
	}
	delete(e.Conns, connID)
	if len(e.Conns) == 0 {
		now := t.clock()
		e.Status = cons.StatusOffline
		e.LastSeen = now
		t.emit(userID, cons.StatusOffline, now, connID)
	}
	return userID, true
}

// SetAway 在线用户切换 away/online；离线用户忽略。
func (t *Tracker) SetAway(userID uint64, away bool) bool {
	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	e := us.m[userID]
	if e == nil || len(e.Conns) == 0 {
		return false
	}
	want := cons.StatusOnline
	if away {
		want = cons.StatusAway
	}
	if e.Status == want {
		return false
	}
	now := t.clock()
	e.Status = want
	e.LastSeen = now
	t.emit(userID, want, now, "")
	return true
}

// UserOf 连接所属用户
func (t *Tracker) UserOf(connID string) (uint64, bool) {
	os := t.ownerShard(connID)
	os.mu.Lock()
	defer os.mu.Unlock()
	uid, ok := os.m[connID]
	return uid, ok
}

// Status 返回当前状态与 last-seen；从未见过的用户为 offline + 零值。
func (t *Tracker) Status(userID uint64) (string, time.Time) {
	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	e := us.m[userID]
	if e == nil {
		return cons.StatusOffline, time.Time{}
	}
	return e.Status, e.LastSeen
}

// Connections 用户当前所有连接 ID
func (t *Tracker) Connections(userID uint64) []string {
	us := t.userShard(userID)
	us.mu.Lock()
	defer us.mu.Unlock()
	e := us.m[userID]
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.Conns))
	for id := range e.Conns {
		out = append(out, id)
	}
	return out
}

// Prune 回收离线超过 idleFor 的条目（last-seen 已由 OnChange 落库）。
func (t *Tracker) Prune(idleFor time.Duration) int {
	cutoff := t.clock().Add(-idleFor)
	n := 0
	for i := range t.users {
		us := &t.users[i]
		us.mu.Lock()
		for uid, e := range us.m {
			if len(e.Conns) == 0 && e.LastSeen.Before(cutoff) {
				delete(us.m, uid)
				n++
			}
		}
		us.mu.Unlock()
	}
	return n
}

func (t *Tracker) emit(userID uint64, status string, at time.Time, exclude string) {
	if t.router != nil {
		payload := message.StatusChange{UserID: userID, Status: status}
		if _, err := t.router.Broadcast(UserRoom(userID), cons.EventUserStatusChange, payload, exclude); err != nil {
			t.log.Warn("broadcast status change failed", zap.Uint64("user_id", userID), zap.Error(err))
		}
	}
	if t.OnChange != nil {
		t.OnChange(StatusChange{UserID: userID, Status: status, At: at})
	}
}
