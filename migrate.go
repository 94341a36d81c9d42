package pulse_sdk

import (
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/models"
)

// AutoMigrate 建表/补字段。user 表通常由账号服务维护，这里只补实时层用到的列。
func (e *Engine) AutoMigrate() error {
	db := e.config.DB
	e.log.Info("AutoMigrate...")
	if err := db.AutoMigrate(
		&models.User{},
		&models.Notification{},
		&models.ChatMessage{},
		&models.DeviceToken{},
	); err != nil {
		e.log.Error("AutoMigrate failed", zap.Error(err))
		return err
	}
	return nil
}
