package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/message"
	"github.com/cydxin/pulse-sdk/models"
	"github.com/cydxin/pulse-sdk/repository"
)

// NotificationStore 通知持久化
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *models.Notification) error
}

type gormNotificationStore struct {
	dao *repository.NotificationDAO
}

func (g *gormNotificationStore) CreateNotification(ctx context.Context, n *models.Notification) error {
	return g.dao.WithContext(ctx).Create(n)
}

// NotifyInput 一次社交操作
type NotifyInput struct {
	Type      string // cons.Notify*
	ActorID   uint64
	TargetID  uint64
	SubjectID string
	Text      string // 评论内容
}

// NotificationService 社交操作通知
// 约定：去重 -> 落库 -> 推到 user:<target> 房间 -> 交给离线推送。
// 落库失败只记日志，实时推送照常进行。
type NotificationService struct {
	*Service
	guard  DedupGuard
	store  NotificationStore
	pusher PushDeliverer
	now    func() time.Time
}

// NewNotificationService guard 为空时使用内存去重；pusher 可为空。
func NewNotificationService(s *Service, guard DedupGuard, pusher PushDeliverer) *NotificationService {
	if guard == nil {
		guard = NewMemoryDedup(DefaultDedupTTL)
	}
	ns := &NotificationService{Service: s, guard: guard, pusher: pusher, now: time.Now}
	if s.DB != nil {
		ns.store = &gormNotificationStore{dao: repository.NewNotificationDAO(s.DB)}
	}
	return ns
}

// WithStore 替换持久化实现
func (s *NotificationService) WithStore(store NotificationStore) *NotificationService {
	s.store = store
	return s
}

// Notify 物化一条通知。被抑制（给自己 / 窗口内重复）时返回 nil, nil。
func (s *NotificationService) Notify(ctx context.Context, in NotifyInput) (*models.Notification, error) {
	if in.ActorID == 0 || in.TargetID == 0 {
		return nil, errors.New("actor_id and target_id are required")
	}
	if in.Type == "" {
		return nil, errors.New("type is required")
	}
	if in.ActorID == in.TargetID {
		return nil, nil
	}

	log := s.logger().With(
		zap.String("type", in.Type),
		zap.Uint64("actor_id", in.ActorID),
		zap.Uint64("target_id", in.TargetID),
		zap.String("subject_id", in.SubjectID),
	)

	key := DedupKey{ActorID: in.ActorID, TargetID: in.TargetID, Action: in.Type, SubjectID: in.SubjectID}
	ok, err := s.guard.ShouldCreate(ctx, key)
	if err != nil {
		// 去重不可用时宁可多发一条，也不丢通知
		log.Warn("dedup guard failed, creating anyway", zap.Error(err))
		ok = true
	}
	if !ok {
		log.Debug("notification suppressed by dedup window")
		return nil, nil
	}

	n := &models.Notification{
		ID:        uuid.NewString(),
		Type:      in.Type,
		ActorID:   in.ActorID,
		TargetID:  in.TargetID,
		SubjectID: in.SubjectID,
		CreatedAt: s.now(),
	}
	if in.Type == cons.NotifyComment && in.Text != "" {
		b, _ := json.Marshal(map[string]string{"text": in.Text})
		n.Payload = datatypes.JSON(b)
	}

	if s.store != nil {
		if err := s.store.CreateNotification(ctx, n); err != nil {
			log.Error("persist notification failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}

	if s.UserNotifier != nil {
		s.UserNotifier(in.TargetID, cons.EventNotification, message.Notification{
			ID:        n.ID,
			Type:      n.Type,
			ActorID:   n.ActorID,
			SubjectID: n.SubjectID,
			Text:      in.Text,
			Timestamp: n.CreatedAt,
			Read:      false,
		})
	}

	if s.pusher != nil {
		if err := s.pusher.Deliver(ctx, n); err != nil {
			log.Warn("push hand-off failed", zap.String("notification_id", n.ID), zap.Error(err))
		}
	}
	return n, nil
}

// -------------------- 拉取 / 已读 --------------------

// NotificationDTO HTTP 返回
type NotificationDTO struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ActorID   uint64         `json:"actor_id"`
	SubjectID string         `json:"subject_id,omitempty"`
	Payload   datatypes.JSON `json:"payload,omitempty" swaggertype:"object"`
	Read      bool           `json:"read"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListNotificationsReq 拉取参数
type ListNotificationsReq struct {
	Before     int64 `form:"before"`      // 游标：上一页最后一条 created_at（毫秒）
	Limit      int   `form:"limit"`       // 默认 20，最大 100
	UnreadOnly bool  `form:"unread_only"` // 只看未读
}

// ListNotifications 近 30 天通知，按时间倒序
func (s *NotificationService) ListNotifications(ctx context.Context, userID uint64, req ListNotificationsReq) ([]NotificationDTO, error) {
	if s.DB == nil {
		return nil, errors.New("db is nil")
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	var before time.Time
	if req.Before > 0 {
		before = time.UnixMilli(req.Before)
	}
	since := s.now().Add(-30 * 24 * time.Hour)

	rows, err := repository.NewNotificationDAO(s.DB.WithContext(ctx)).ListByTarget(userID, since, before, limit, req.UnreadOnly)
	if err != nil {
		return nil, err
	}
	out := make([]NotificationDTO, 0, len(rows))
	for _, r := range rows {
		out = append(out, NotificationDTO{
			ID:        r.ID,
			Type:      r.Type,
			ActorID:   r.ActorID,
			SubjectID: r.SubjectID,
			Payload:   r.Payload,
			Read:      r.IsRead,
			CreatedAt: r.CreatedAt,
		})
	}
	return out, nil
}

// MarkRead 标记已读（只能标记自己的）
func (s *NotificationService) MarkRead(ctx context.Context, userID uint64, ids []string) error {
	if s.DB == nil {
		return errors.New("db is nil")
	}
	if len(ids) == 0 {
		return nil
	}
	return repository.NewNotificationDAO(s.DB.WithContext(ctx)).MarkRead(userID, ids, s.now())
}
