package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultDedupTTL 同一 (actor, target, action, subject) 在窗口内只产生一条通知
const DefaultDedupTTL = 5 * time.Minute

// DedupKey 通知去重键
type DedupKey struct {
	ActorID   uint64
	TargetID  uint64
	Action    string
	SubjectID string
}

func (k DedupKey) String() string {
	return fmt.Sprintf("%d:%d:%s:%s", k.ActorID, k.TargetID, k.Action, k.SubjectID)
}

// DedupGuard 时间窗口幂等过滤。并发下允许极少量重复，不追求严格线性一致。
type DedupGuard interface {
	// ShouldCreate 窗口内首次出现返回 true，并记录该键
	ShouldCreate(ctx context.Context, key DedupKey) (bool, error)
}

// -------------------- 内存实现 --------------------

// MemoryDedup 单进程去重；过期条目在 ShouldCreate 时惰性判断，Run 定期清理。
type MemoryDedup struct {
	mu  sync.Mutex
	m   map[string]time.Time // key -> 过期时间
	ttl time.Duration
	now func() time.Time
}

func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &MemoryDedup{m: make(map[string]time.Time), ttl: ttl, now: time.Now}
}

// SetClock 测试用
func (d *MemoryDedup) SetClock(now func() time.Time) {
	d.mu.Lock()
	d.now = now
	d.mu.Unlock()
}

func (d *MemoryDedup) ShouldCreate(_ context.Context, key DedupKey) (bool, error) {
	k := key.String()
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	if exp, ok := d.m[k]; ok && now.Before(exp) {
		return false, nil // 已见过
	}
	d.m[k] = now.Add(d.ttl)
	return true, nil
}

// Sweep 删除已过期条目，返回删除数
func (d *MemoryDedup) Sweep() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	n := 0
	for k, exp := range d.m {
		if !now.Before(exp) {
			delete(d.m, k)
			n++
		}
	}
	return n
}

func (d *MemoryDedup) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.m)
}

// Run 清理协程，ctx 取消后退出
func (d *MemoryDedup) Run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			d.Sweep()
		}
	}
}

// -------------------- Redis 实现 --------------------

// RedisDedup 多实例共享的去重（SETNX + TTL）
type RedisDedup struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisDedup(rdb *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &RedisDedup{rdb: rdb, ttl: ttl}
}

func (d *RedisDedup) redisKey(key DedupKey) string {
	return "im:notify_dedup:" + key.String()
}

func (d *RedisDedup) ShouldCreate(ctx context.Context, key DedupKey) (bool, error) {
	if d == nil || d.rdb == nil {
		return true, ErrRedisNil
	}
	return d.rdb.SetNX(ctx, d.redisKey(key), 1, d.ttl).Result()
}
