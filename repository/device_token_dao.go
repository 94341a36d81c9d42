package repository

import (
	"github.com/cydxin/pulse-sdk/models"
	"gorm.io/gorm"
)

// DeviceTokenDAO 推送 token 查询
type DeviceTokenDAO struct {
	db *gorm.DB
}

func NewDeviceTokenDAO(db *gorm.DB) *DeviceTokenDAO {
	return &DeviceTokenDAO{db: db}
}

func (dao *DeviceTokenDAO) ListByUser(userID uint64) ([]models.DeviceToken, error) {
	var rows []models.DeviceToken
	err := dao.db.Where("user_id = ?", userID).Order("id ASC").Find(&rows).Error
	return rows, err
}
