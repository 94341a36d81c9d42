package pulse_sdk

import (
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/cydxin/pulse-sdk/service"
)

type ServiceConfig struct {
	// Debug 接口内部错误返回详情；未传 Logger 时使用开发模式日志
	Debug bool
}

type Config struct {
	DB     *gorm.DB
	RDB    *redis.Client
	Logger *zap.Logger

	// JWTSecret 校验访问令牌的 HMAC 密钥（令牌由登录服务签发）
	JWTSecret []byte

	// DedupTTL 通知去重窗口，默认 5 分钟
	DedupTTL time.Duration
	// RedisDedup 配置了 RDB 时使用 Redis 去重（多实例共享），否则用内存
	RedisDedup bool

	// JoinAuthorizer 加入房间前的授权判断；为空时使用 DefaultJoinAuthorizer
	JoinAuthorizer JoinAuthorizer

	// PushPublisher 离线推送任务发布（通常是 *nats.Conn）
	PushPublisher service.MsgPublisher
	PushSubject   string
	// PushDeliverer 自定义推送交接，优先于 PushPublisher
	PushDeliverer service.PushDeliverer

	// EventTimeout 单个上行事件内存储调用的超时，默认 5s
	EventTimeout time.Duration
	// PresenceRetention 离线用户在内存中保留多久，默认 10 分钟
	PresenceRetention time.Duration
	// SendQueueSize 每个连接的下行缓冲，默认 256；满了直接丢弃
	SendQueueSize int

	AutoMigrate bool
	Service     ServiceConfig
}

type Option func(*Config)

func WithDB(db *gorm.DB) Option {
	return func(c *Config) {
		c.DB = db
	}
}

func WithRDB(rdb *redis.Client) Option {
	return func(c *Config) {
		c.RDB = rdb
	}
}

func WithLogger(log *zap.Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithJWTSecret(secret string) Option {
	return func(c *Config) {
		c.JWTSecret = []byte(secret)
	}
}

// WithDedupTTL 设置通知去重窗口；useRedis 为 true 且配置了 RDB 时使用 Redis 去重
func WithDedupTTL(ttl time.Duration, useRedis bool) Option {
	return func(c *Config) {
		c.DedupTTL = ttl
		c.RedisDedup = useRedis
	}
}

func WithJoinAuthorizer(fn JoinAuthorizer) Option {
	return func(c *Config) {
		c.JoinAuthorizer = fn
	}
}

// WithPushPublisher 通过 NATS 发布离线推送任务，subject 为空时使用 push.deliver
func WithPushPublisher(pub service.MsgPublisher, subject string) Option {
	return func(c *Config) {
		c.PushPublisher = pub
		c.PushSubject = subject
	}
}

func WithPushDeliverer(p service.PushDeliverer) Option {
	return func(c *Config) {
		c.PushDeliverer = p
	}
}

func WithEventTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.EventTimeout = d
	}
}

func WithPresenceRetention(d time.Duration) Option {
	return func(c *Config) {
		c.PresenceRetention = d
	}
}

func WithSendQueueSize(n int) Option {
	return func(c *Config) {
		c.SendQueueSize = n
	}
}

func WithAutoMigrate(on bool) Option {
	return func(c *Config) {
		c.AutoMigrate = on
	}
}

func WithDebug(debug bool) Option {
	return func(c *Config) {
		c.Service.Debug = debug
	}
}
