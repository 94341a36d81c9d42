package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/cydxin/pulse-sdk/cons"
)

func TestPresenceService_PersistAndLookup(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()
	mock.ExpectExec("UPDATE `im_user` SET `online_status`=\\?").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `im_user` SET").WillReturnResult(sqlmock.NewResult(0, 1))

	ps := NewPresenceService(&Service{DB: db, RDB: rdb})
	ctx := context.Background()
	at := time.Unix(1_700_000_000, 0)

	if err := ps.Persist(ctx, 7, cons.StatusOnline, at); err != nil {
		t.Fatalf("Persist online: %v", err)
	}
	status, lastSeen, err := ps.Lookup(ctx, 7)
	if err != nil || status != cons.StatusOnline || !lastSeen.Equal(at) {
		t.Fatalf("Lookup online: %s %v %v", status, lastSeen, err)
	}
	if ttl := mr.TTL("im:presence:7"); ttl != 0 {
		t.Fatalf("online presence must not expire, ttl=%v", ttl)
	}

	off := at.Add(time.Hour)
	if err := ps.Persist(ctx, 7, cons.StatusOffline, off); err != nil {
		t.Fatalf("Persist offline: %v", err)
	}
	status, lastSeen, _ = ps.Lookup(ctx, 7)
	if status != cons.StatusOffline || !lastSeen.Equal(off) {
		t.Fatalf("Lookup offline: %s %v", status, lastSeen)
	}
	if ttl := mr.TTL("im:presence:7"); ttl <= 0 {
		t.Fatalf("offline presence should expire")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestPresenceService_LookupUnknown(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	ps := NewPresenceService(&Service{RDB: rdb})
	status, lastSeen, err := ps.Lookup(context.Background(), 42)
	if err != nil || status != cons.StatusOffline || !lastSeen.IsZero() {
		t.Fatalf("unexpected: %s %v %v", status, lastSeen, err)
	}
}
