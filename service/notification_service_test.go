package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/message"
	"github.com/cydxin/pulse-sdk/models"
)

type sentEvent struct {
	userID  uint64
	event   string
	payload any
}

type notifierRecorder struct {
	mu     sync.Mutex
	events []sentEvent
}

func (r *notifierRecorder) notify(userID uint64, event string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, sentEvent{userID: userID, event: event, payload: payload})
}

func (r *notifierRecorder) all() []sentEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]sentEvent(nil), r.events...)
}

type memStore struct {
	mu   sync.Mutex
	rows []*models.Notification
	err  error
}

func (m *memStore) CreateNotification(_ context.Context, n *models.Notification) error {
	if m.err != nil {
		return m.err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, n)
	return nil
}

type fakePusher struct {
	mu  sync.Mutex
	got []*models.Notification
}

func (p *fakePusher) Deliver(_ context.Context, n *models.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, n)
	return nil
}

type failingGuard struct{}

func (failingGuard) ShouldCreate(context.Context, DedupKey) (bool, error) {
	return false, errors.New("guard down")
}

func newTestNotificationService(guard DedupGuard) (*NotificationService, *notifierRecorder, *memStore, *fakePusher) {
	rec := &notifierRecorder{}
	store := &memStore{}
	pusher := &fakePusher{}
	s := &Service{UserNotifier: rec.notify}
	return NewNotificationService(s, guard, pusher).WithStore(store), rec, store, pusher
}

func TestNotificationService_LikeTwiceWithinWindow(t *testing.T) {
	ns, rec, store, pusher := newTestNotificationService(NewMemoryDedup(DefaultDedupTTL))
	ctx := context.Background()
	in := NotifyInput{Type: cons.NotifyLike, ActorID: 1, TargetID: 2, SubjectID: "post-9"}

	first, err := ns.Notify(ctx, in)
	if err != nil || first == nil {
		t.Fatalf("first Notify: n=%v err=%v", first, err)
	}
	second, err := ns.Notify(ctx, in)
	if err != nil || second != nil {
		t.Fatalf("second Notify should be suppressed: n=%v err=%v", second, err)
	}

	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected 1 live notification, got %d", len(events))
	}
	ev := events[0]
	if ev.userID != 2 || ev.event != cons.EventNotification {
		t.Fatalf("unexpected event %+v", ev)
	}
	payload, ok := ev.payload.(message.Notification)
	if !ok || payload.Type != cons.NotifyLike || payload.ID != first.ID || payload.Read {
		t.Fatalf("unexpected payload %+v", ev.payload)
	}
	if len(store.rows) != 1 || len(pusher.got) != 1 {
		t.Fatalf("expected 1 stored and 1 pushed, got %d/%d", len(store.rows), len(pusher.got))
	}
}

func TestNotificationService_GapExceedsWindow(t *testing.T) {
	guard := NewMemoryDedup(DefaultDedupTTL)
	now := time.Now()
	guard.SetClock(func() time.Time { return now })
	ns, rec, store, _ := newTestNotificationService(guard)
	ctx := context.Background()
	in := NotifyInput{Type: cons.NotifyReaction, ActorID: 1, TargetID: 2, SubjectID: "m1"}

	if n, _ := ns.Notify(ctx, in); n == nil {
		t.Fatalf("first Notify suppressed")
	}
	now = now.Add(DefaultDedupTTL + time.Second)
	if n, _ := ns.Notify(ctx, in); n == nil {
		t.Fatalf("Notify after window suppressed")
	}
	if len(store.rows) != 2 || len(rec.all()) != 2 {
		t.Fatalf("expected 2 records, got %d stored / %d emitted", len(store.rows), len(rec.all()))
	}
}

func TestNotificationService_SelfActionSuppressed(t *testing.T) {
	ns, rec, store, pusher := newTestNotificationService(nil)

	n, err := ns.Notify(context.Background(), NotifyInput{Type: cons.NotifyFollow, ActorID: 5, TargetID: 5})
	if err != nil || n != nil {
		t.Fatalf("expected suppression, got n=%v err=%v", n, err)
	}
	if len(rec.all()) != 0 || len(store.rows) != 0 || len(pusher.got) != 0 {
		t.Fatalf("self action must have no side effects")
	}
}

func TestNotificationService_StoreFailureStillEmits(t *testing.T) {
	ns, rec, store, _ := newTestNotificationService(nil)
	store.err = errors.New("insert failed")

	n, err := ns.Notify(context.Background(), NotifyInput{Type: cons.NotifyComment, ActorID: 1, TargetID: 2, SubjectID: "p", Text: "nice"})
	if err != nil || n == nil {
		t.Fatalf("Notify: n=%v err=%v", n, err)
	}
	events := rec.all()
	if len(events) != 1 {
		t.Fatalf("expected live delivery despite store failure, got %d", len(events))
	}
	if p := events[0].payload.(message.Notification); p.Text != "nice" {
		t.Fatalf("expected comment text, got %q", p.Text)
	}
}

func TestNotificationService_GuardFailureCreates(t *testing.T) {
	ns, rec, _, _ := newTestNotificationService(failingGuard{})

	n, err := ns.Notify(context.Background(), NotifyInput{Type: cons.NotifyLike, ActorID: 1, TargetID: 2, SubjectID: "p"})
	if err != nil || n == nil {
		t.Fatalf("expected create on guard failure: n=%v err=%v", n, err)
	}
	if len(rec.all()) != 1 {
		t.Fatalf("expected 1 emitted")
	}
}

func TestNotificationService_GormStore(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	mock.ExpectExec("INSERT INTO `im_notification`").WillReturnResult(sqlmock.NewResult(0, 1))

	ns := NewNotificationService(&Service{DB: db}, nil, nil)
	n, err := ns.Notify(context.Background(), NotifyInput{Type: cons.NotifyLike, ActorID: 1, TargetID: 2, SubjectID: "p"})
	if err != nil || n == nil {
		t.Fatalf("Notify: n=%v err=%v", n, err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}

func TestNotificationService_ListAndMarkRead(t *testing.T) {
	db, mock, sqldb := newMockDB(t)
	defer sqldb.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "type", "actor_id", "target_id", "subject_id", "payload", "is_read", "read_at", "created_at"}).
		AddRow("n1", "like", 1, 2, "p1", nil, false, nil, now).
		AddRow("n2", "follow", 3, 2, "", nil, true, now, now.Add(-time.Minute))
	mock.ExpectQuery("SELECT \\* FROM `im_notification` WHERE target_id = \\?").WillReturnRows(rows)
	mock.ExpectExec("UPDATE `im_notification` SET").WillReturnResult(sqlmock.NewResult(0, 2))

	ns := NewNotificationService(&Service{DB: db}, nil, nil)
	list, err := ns.ListNotifications(context.Background(), 2, ListNotificationsReq{})
	if err != nil {
		t.Fatalf("ListNotifications: %v", err)
	}
	if len(list) != 2 || list[0].ID != "n1" || !list[1].Read {
		t.Fatalf("unexpected list %+v", list)
	}

	if err := ns.MarkRead(context.Background(), 2, []string{"n1", "n2"}); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sql expectations: %v", err)
	}
}
