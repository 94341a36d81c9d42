package pulse_sdk

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/hub"
	"github.com/cydxin/pulse-sdk/middleware"
	"github.com/cydxin/pulse-sdk/response"
	"github.com/cydxin/pulse-sdk/service"

	"github.com/gin-gonic/gin"
)

// Engine 实时网关。每个进程显式创建一个，传给需要它的地方（不使用包级单例）。
type Engine struct {
	config *Config
	log    *zap.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	presenceQ chan hub.StatusChange

	Conns    *hub.Registry
	Router   *hub.Router
	Presence *hub.Tracker

	AuthService         *service.AuthService // 鉴权服务
	UserService         *service.UserService
	MsgService          *service.MessageService
	NotificationService *service.NotificationService
	PresenceService     *service.PresenceService
	Dedup               service.DedupGuard

	Dispatcher *Dispatcher
}

// NewEngine 创建实例
// 使用选项模式传入配置，Option回调
func NewEngine(opts ...Option) (*Engine, error) {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	if len(c.JWTSecret) == 0 {
		return nil, errors.New("jwt secret is required")
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
		// 调试模式下没给 logger 就用开发配置输出到 stderr
		if c.Service.Debug {
			if dev, err := zap.NewDevelopment(); err == nil {
				c.Logger = dev
			}
		}
	}
	if c.DedupTTL <= 0 {
		c.DedupTTL = service.DefaultDedupTTL
	}
	if c.EventTimeout <= 0 {
		c.EventTimeout = 5 * time.Second
	}
	if c.PresenceRetention <= 0 {
		c.PresenceRetention = 10 * time.Minute
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}

	e := &Engine{config: c, log: c.Logger}
	e.ctx, e.cancel = context.WithCancel(context.Background())

	e.Conns = hub.NewRegistry()
	e.Router = hub.NewRouter(e.Conns, c.Logger.Named("router"))
	e.Presence = hub.NewTracker(e.Router, c.Logger.Named("presence"))

	// 初始化基础 Service，注入 UserNotifier 回调
	baseService := &service.Service{
		DB:           c.DB,
		RDB:          c.RDB,
		Log:          c.Logger.Named("service"),
		UserNotifier: e.NotifyUser,
	}

	var accounts service.AccountStore
	if c.DB != nil {
		e.UserService = service.NewUserService(baseService)
		accounts = e.UserService
	}
	var tokens *service.TokenService
	if c.RDB != nil {
		tokens = service.NewTokenService(c.RDB)
	}
	e.AuthService = service.NewAuthService(c.JWTSecret, tokens, accounts, c.Logger.Named("auth"))

	if c.RedisDedup && c.RDB != nil {
		e.Dedup = service.NewRedisDedup(c.RDB, c.DedupTTL)
	} else {
		e.Dedup = service.NewMemoryDedup(c.DedupTTL)
	}

	pusher := c.PushDeliverer
	if pusher == nil && c.PushPublisher != nil {
		pusher = service.NewNatsPushService(baseService, c.PushPublisher, c.PushSubject)
	}

	e.MsgService = service.NewMessageService(baseService)
	e.NotificationService = service.NewNotificationService(baseService, e.Dedup, pusher)
	e.PresenceService = service.NewPresenceService(baseService)
	e.Presence.OnChange = e.persistPresence
	if c.DB != nil || c.RDB != nil {
		e.presenceQ = make(chan hub.StatusChange, 1024)
		go e.presenceWorker()
	}

	e.Dispatcher = NewDispatcher(DispatcherDeps{
		Router:    e.Router,
		Presence:  e.Presence,
		Auth:      e.AuthService,
		Notifier:  e.NotificationService,
		Messages:  e.MsgService,
		Authorize: c.JoinAuthorizer,
		Logger:    c.Logger.Named("dispatch"),
		Timeout:   c.EventTimeout,
	})

	// 迁移表
	if c.AutoMigrate && c.DB != nil {
		if err := e.AutoMigrate(); err != nil {
			e.cancel()
			return nil, err
		}
	}
	return e, nil
}

// Run 后台维护：回收离线用户、清理内存去重表。阻塞到 ctx 取消或 Close。
func (e *Engine) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	mem, _ := e.Dedup.(*service.MemoryDedup)
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.ctx.Done():
			return
		case <-ticker.C:
			if n := e.Presence.Prune(e.config.PresenceRetention); n > 0 {
				e.log.Debug("pruned offline presence entries", zap.Int("count", n))
			}
			if mem != nil {
				mem.Sweep()
			}
		}
	}
}

// Close 取消所有连接上的进行中操作并停止 Run
func (e *Engine) Close() {
	e.cancel()
}

// NotifyUser 推送给 user:<id> 房间（该用户所有已鉴权连接）
func (e *Engine) NotifyUser(userID uint64, event string, payload any) {
	if _, err := e.Router.Broadcast(hub.UserRoom(userID), event, payload, ""); err != nil {
		e.log.Warn("notify user failed", zap.Uint64("user_id", userID), zap.String("event", event), zap.Error(err))
	}
}

// persistPresence 在用户锁内被调用，只入队；由单个 worker 顺序落库，保证同一用户的变化按序写入。
func (e *Engine) persistPresence(ch hub.StatusChange) {
	if e.presenceQ == nil {
		return
	}
	select {
	case e.presenceQ <- ch:
	default:
		e.log.Warn("presence queue full, dropping update", zap.Uint64("user_id", ch.UserID), zap.String("status", ch.Status))
	}
}

func (e *Engine) presenceWorker() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case ch := <-e.presenceQ:
			ctx, cancel := context.WithTimeout(e.ctx, e.config.EventTimeout)
			_ = e.PresenceService.Persist(ctx, ch.UserID, ch.Status, ch.At)
			cancel()
		}
	}
}

// GinAuthMiddleware 返回配置好的 Gin 鉴权中间件
// 使用 Engine 内部的 AuthService
//
// 使用示例:
//
//	engine, _ := pulse_sdk.NewEngine(...)
//	r := gin.Default()
//	r.Use(engine.GinAuthMiddleware(nil)) // 使用默认配置
func (e *Engine) GinAuthMiddleware(opt *middleware.AuthOptions) gin.HandlerFunc {
	return middleware.GinAuthMiddleware(e.AuthService, opt)
}

// internalError 记录存储层错误并回包；只有调试模式才把错误详情返回给调用方
func (e *Engine) internalError(ctx *gin.Context, op string, err error) {
	e.log.Error(op+" failed", zap.String("path", ctx.FullPath()), zap.Error(err))
	msg := "internal error"
	if e.config.Service.Debug {
		msg = err.Error()
	}
	ctx.JSON(http.StatusOK, response.Error(response.CodeInternalError, msg))
}
