package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/models"
	"github.com/cydxin/pulse-sdk/repository"
)

// DefaultPushSubject 推送任务 subject，由独立的推送服务消费
const DefaultPushSubject = "push.deliver"

// PushDeliverer 离线推送交接。与 WS 实时通道无关：用户不在线也会收到推送。
type PushDeliverer interface {
	Deliver(ctx context.Context, n *models.Notification) error
}

// MsgPublisher *nats.Conn 满足该接口
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// PushJob 一台设备一条任务
type PushJob struct {
	NotificationID string    `json:"notification_id"`
	UserID         uint64    `json:"user_id"`
	Platform       string    `json:"platform"`
	DeviceToken    string    `json:"device_token"`
	Type           string    `json:"type"`
	ActorID        uint64    `json:"actor_id"`
	SubjectID      string    `json:"subject_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// NatsPushService 按设备 token 拆分推送任务并发布到 NATS
type NatsPushService struct {
	*Service
	pub     MsgPublisher
	subject string
}

func NewNatsPushService(s *Service, pub MsgPublisher, subject string) *NatsPushService {
	if subject == "" {
		subject = DefaultPushSubject
	}
	return &NatsPushService{Service: s, pub: pub, subject: subject}
}

// Deliver 没有设备 token 时什么也不做
func (s *NatsPushService) Deliver(ctx context.Context, n *models.Notification) error {
	if s.pub == nil || s.DB == nil || n == nil {
		return nil
	}
	tokens, err := repository.NewDeviceTokenDAO(s.DB.WithContext(ctx)).ListByUser(n.TargetID)
	if err != nil {
		return fmt.Errorf("list device tokens: %w", err)
	}

	for _, t := range tokens {
		job := PushJob{
			NotificationID: n.ID,
			UserID:         n.TargetID,
			Platform:       t.Platform,
			DeviceToken:    t.Token,
			Type:           n.Type,
			ActorID:        n.ActorID,
			SubjectID:      n.SubjectID,
			CreatedAt:      n.CreatedAt,
		}
		b, err := json.Marshal(job)
		if err != nil {
			return err
		}
		msg := nats.NewMsg(s.subject)
		msg.Data = b
		// 同一通知同一设备只推一次（JetStream 去重窗口内生效）
		msg.Header.Set(nats.MsgIdHdr, n.ID+":"+strconv.FormatUint(t.ID, 10))
		msg.Header.Set("X-Platform", t.Platform)
		if err := s.pub.PublishMsg(msg); err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
	}
	s.logger().Debug("push jobs published",
		zap.String("notification_id", n.ID),
		zap.Uint64("user_id", n.TargetID),
		zap.Int("devices", len(tokens)))
	return nil
}

// NatsConfig NATS 连接配置
type NatsConfig struct {
	Servers       []string
	Name          string
	User          string
	Password      string
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DialNATS 建立 NATS 连接（无限重连）
func DialNATS(cfg NatsConfig, log *zap.Logger) (*nats.Conn, error) {
	if len(cfg.Servers) == 0 {
		cfg.Servers = []string{nats.DefaultURL}
	}
	if cfg.Name == "" {
		cfg.Name = "pulse-gateway"
	}
	if cfg.ReconnectWait == 0 {
		cfg.ReconnectWait = 2 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts := []nats.Option{
		nats.Name(cfg.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.ReconnectJitter(100*time.Millisecond, 500*time.Millisecond),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	}
	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}
	return nats.Connect(strings.Join(cfg.Servers, ","), opts...)
}
