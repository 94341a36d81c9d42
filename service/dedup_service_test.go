package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func TestMemoryDedup_Window(t *testing.T) {
	d := NewMemoryDedup(5 * time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d.SetClock(func() time.Time { return now })
	ctx := context.Background()
	key := DedupKey{ActorID: 1, TargetID: 2, Action: "like", SubjectID: "p1"}

	if ok, _ := d.ShouldCreate(ctx, key); !ok {
		t.Fatalf("first call should create")
	}
	now = now.Add(time.Second)
	if ok, _ := d.ShouldCreate(ctx, key); ok {
		t.Fatalf("second call inside window should be suppressed")
	}

	// 其他维度不同则互不影响
	other := key
	other.SubjectID = "p2"
	if ok, _ := d.ShouldCreate(ctx, other); !ok {
		t.Fatalf("different subject should create")
	}

	now = now.Add(5 * time.Minute)
	if ok, _ := d.ShouldCreate(ctx, key); !ok {
		t.Fatalf("call after window should create again")
	}
}

func TestMemoryDedup_Sweep(t *testing.T) {
	d := NewMemoryDedup(time.Minute)
	now := time.Now()
	d.SetClock(func() time.Time { return now })
	ctx := context.Background()

	_, _ = d.ShouldCreate(ctx, DedupKey{ActorID: 1, TargetID: 2, Action: "like"})
	_, _ = d.ShouldCreate(ctx, DedupKey{ActorID: 1, TargetID: 3, Action: "like"})
	if d.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", d.Len())
	}

	now = now.Add(2 * time.Minute)
	if n := d.Sweep(); n != 2 {
		t.Fatalf("expected 2 swept, got %d", n)
	}
	if d.Len() != 0 {
		t.Fatalf("expected empty after sweep, got %d", d.Len())
	}
}

func TestMemoryDedup_Concurrent(t *testing.T) {
	d := NewMemoryDedup(time.Minute)
	key := DedupKey{ActorID: 1, TargetID: 2, Action: "like", SubjectID: "p"}

	var created int32
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := d.ShouldCreate(context.Background(), key); ok {
				atomic.AddInt32(&created, 1)
			}
		}()
	}
	wg.Wait()
	if created != 1 {
		t.Fatalf("expected exactly one create, got %d", created)
	}
}

func TestRedisDedup_Window(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	d := NewRedisDedup(rdb, 5*time.Minute)
	ctx := context.Background()
	key := DedupKey{ActorID: 1, TargetID: 2, Action: "follow"}

	ok, err := d.ShouldCreate(ctx, key)
	if err != nil || !ok {
		t.Fatalf("first call: ok=%v err=%v", ok, err)
	}
	ok, err = d.ShouldCreate(ctx, key)
	if err != nil || ok {
		t.Fatalf("second call: ok=%v err=%v", ok, err)
	}
	if ttl := mr.TTL("im:notify_dedup:1:2:follow:"); ttl != 5*time.Minute {
		t.Fatalf("unexpected ttl %v", ttl)
	}

	mr.FastForward(5*time.Minute + time.Second)
	ok, err = d.ShouldCreate(ctx, key)
	if err != nil || !ok {
		t.Fatalf("after window: ok=%v err=%v", ok, err)
	}
}
