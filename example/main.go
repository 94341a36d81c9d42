package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	pulse "github.com/cydxin/pulse-sdk"
	"github.com/cydxin/pulse-sdk/service"
)

func loadConfig(log *zap.Logger) {
	// .env 不存在时只用环境变量
	if err := godotenv.Load(); err != nil {
		log.Info("no .env file, using environment only")
	}

	viper.SetEnvPrefix("PULSE")
	viper.AutomaticEnv()

	viper.SetDefault("ADDR", ":6789")
	viper.SetDefault("MYSQL_DSN", "root:password@tcp(127.0.0.1:3306)/pulse?charset=utf8mb4&parseTime=True&loc=Local")
	viper.SetDefault("REDIS_ADDR", "127.0.0.1:6379")
	viper.SetDefault("REDIS_PASSWORD", "")
	viper.SetDefault("REDIS_DB", 0)
	viper.SetDefault("JWT_SECRET", "secret")
	viper.SetDefault("NATS_URL", "")
	viper.SetDefault("PUSH_SUBJECT", service.DefaultPushSubject)
	viper.SetDefault("DEDUP_TTL", "5m")
	viper.SetDefault("DEBUG", false)
}

func main() {
	log, _ := zap.NewProduction()
	defer func() { _ = log.Sync() }()

	loadConfig(log)
	if viper.GetBool("DEBUG") {
		log, _ = zap.NewDevelopment()
	}

	// 1. 初始化数据库连接
	db, err := gorm.Open(mysql.Open(viper.GetString("MYSQL_DSN")), &gorm.Config{})
	if err != nil {
		log.Fatal("数据库连接失败", zap.Error(err))
	}

	// 2. Redis：token 注销、在线状态、通知去重
	rdb := redis.NewClient(&redis.Options{
		Addr:     viper.GetString("REDIS_ADDR"),
		Password: viper.GetString("REDIS_PASSWORD"),
		DB:       viper.GetInt("REDIS_DB"),
	})

	opts := []pulse.Option{
		pulse.WithDB(db),
		pulse.WithRDB(rdb),
		pulse.WithLogger(log),
		pulse.WithJWTSecret(viper.GetString("JWT_SECRET")),
		pulse.WithDedupTTL(viper.GetDuration("DEDUP_TTL"), true),
		pulse.WithAutoMigrate(true),
		pulse.WithDebug(viper.GetBool("DEBUG")),
	}

	// 3. 可选：离线推送走 NATS
	if url := viper.GetString("NATS_URL"); url != "" {
		nc, err := service.DialNATS(service.NatsConfig{Servers: strings.Split(url, ",")}, log)
		if err != nil {
			log.Fatal("nats 连接失败", zap.Error(err))
		}
		defer func() { _ = nc.Drain() }()
		opts = append(opts, pulse.WithPushPublisher(nc, viper.GetString("PUSH_SUBJECT")))
	}

	engine, err := pulse.NewEngine(opts...)
	if err != nil {
		log.Fatal("init engine failed", zap.Error(err))
	}
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go engine.Run(ctx)

	// 4. 路由
	r := gin.Default()
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	})
	pulse.RegisterSwagger(r, "/swagger/*any")
	// 客户端连接：ws://localhost:6789/api/v1/ws?token=<jwt>
	engine.RegisterRoutes(r.Group("/api/v1"))

	srv := &http.Server{Addr: viper.GetString("ADDR"), Handler: r}
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}
