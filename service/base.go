package service

import (
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Service 基础服务，包含数据库和配置
// DB/RDB 均可为空：为空时对应的落库/缓存步骤跳过（便于单机调试与测试）。
type Service struct {
	DB  *gorm.DB
	RDB *redis.Client
	Log *zap.Logger

	// UserNotifier 向 user:<id> 房间推送事件
	// 避免循环依赖，通过函数注入的方式（service 不直接引用 hub）
	UserNotifier func(userID uint64, event string, payload any)
}

func (s *Service) logger() *zap.Logger {
	if s == nil || s.Log == nil {
		return zap.NewNop()
	}
	return s.Log
}
