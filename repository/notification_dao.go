package repository

import (
	"context"
	"time"

	"github.com/cydxin/pulse-sdk/models"
	"gorm.io/gorm"
)

// NotificationDAO 封装 Notification 相关的数据库操作
//
// 约定：
// - 只做“数据访问”，去重/推送等编排在 service 层。
// - 事务边界由 service 控制；如需在事务中执行，请使用 WithDB(tx)。
type NotificationDAO struct {
	db *gorm.DB
}

func NewNotificationDAO(db *gorm.DB) *NotificationDAO {
	return &NotificationDAO{db: db}
}

// WithDB 用于在事务（tx）中复用 DAO
func (dao *NotificationDAO) WithDB(db *gorm.DB) *NotificationDAO {
	if db == nil {
		return dao
	}
	return &NotificationDAO{db: db}
}

// WithContext 绑定请求上下文（超时/取消）
func (dao *NotificationDAO) WithContext(ctx context.Context) *NotificationDAO {
	return &NotificationDAO{db: dao.db.WithContext(ctx)}
}

func (dao *NotificationDAO) Create(n *models.Notification) error {
	return dao.db.Create(n).Error
}

// ListByTarget 按时间倒序拉取某用户收到的通知
// - since: 只取该时间之后的
// - before: 游标（上一页最后一条的 created_at），零值表示从最新开始
func (dao *NotificationDAO) ListByTarget(targetID uint64, since, before time.Time, limit int, unreadOnly bool) ([]models.Notification, error) {
	q := dao.db.Model(&models.Notification{}).
		Where("target_id = ? AND created_at >= ?", targetID, since)
	if !before.IsZero() {
		q = q.Where("created_at < ?", before)
	}
	if unreadOnly {
		q = q.Where("is_read = ?", false)
	}
	var rows []models.Notification
	err := q.Order("created_at DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// MarkRead 批量标记已读（只能标记自己的）
func (dao *NotificationDAO) MarkRead(targetID uint64, ids []string, at time.Time) error {
	return dao.db.Model(&models.Notification{}).
		Where("target_id = ? AND id IN ?", targetID, ids).
		Updates(map[string]any{"is_read": true, "read_at": &at}).Error
}
