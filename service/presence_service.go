package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/models"
)

// PresenceService 在线状态的外部可见副本
// Redis Key 设计：
// - im:presence:{userID} -> Hash{status, last_seen}
//   在线时不过期；离线后保留 offlineTTL，供其他服务/REST 查询 last seen。
// 用户表的 online_status / last_seen_at 同步回写。
type PresenceService struct {
	*Service
	offlineTTL time.Duration
}

func NewPresenceService(s *Service) *PresenceService {
	return &PresenceService{Service: s, offlineTTL: 7 * 24 * time.Hour}
}

func (s *PresenceService) presenceKey(userID uint64) string {
	return fmt.Sprintf("im:presence:%d", userID)
}

// Persist 记录一次状态变化（Redis 与 DB 任一为空则跳过对应步骤）
func (s *PresenceService) Persist(ctx context.Context, userID uint64, status string, at time.Time) error {
	var errs []error
	if s.RDB != nil {
		key := s.presenceKey(userID)
		pipe := s.RDB.TxPipeline()
		pipe.HSet(ctx, key, "status", status, "last_seen", at.Unix())
		if status == cons.StatusOffline {
			pipe.Expire(ctx, key, s.offlineTTL)
		} else {
			pipe.Persist(ctx, key)
		}
		if _, err := pipe.Exec(ctx); err != nil {
			errs = append(errs, fmt.Errorf("redis presence: %w", err))
		}
	}
	// away 只是在线的子状态，DB 不区分
	if s.DB != nil {
		online := status != cons.StatusOffline
		if err := models.NewUserDAO(s.DB.WithContext(ctx)).UpdatePresence(userID, online, at); err != nil {
			errs = append(errs, fmt.Errorf("db presence: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger().Warn("persist presence failed", zap.Uint64("user_id", userID), zap.String("status", status), zap.Error(err))
		return err
	}
	return nil
}

// Lookup 查询持久化的状态；没有记录时返回 offline + 零值时间
func (s *PresenceService) Lookup(ctx context.Context, userID uint64) (string, time.Time, error) {
	if s.RDB == nil {
		return cons.StatusOffline, time.Time{}, ErrRedisNil
	}
	vals, err := s.RDB.HGetAll(ctx, s.presenceKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", time.Time{}, err
	}
	status := vals["status"]
	if status == "" {
		status = cons.StatusOffline
	}
	var lastSeen time.Time
	if v := vals["last_seen"]; v != "" {
		if sec, err := strconv.ParseInt(v, 10, 64); err == nil {
			lastSeen = time.Unix(sec, 0)
		}
	}
	return status, lastSeen, nil
}
