package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// UserDAO 封装 User 相关的数据库操作
type UserDAO struct {
	db *gorm.DB
}

func NewUserDAO(db *gorm.DB) *UserDAO {
	return &UserDAO{db: db}
}

// FindByID 包含软删除的记录：鉴权需要区分“不存在”和“已注销”。
func (dao *UserDAO) FindByID(id uint64) (*User, error) {
	var u User
	if err := dao.db.Unscoped().Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpdatePresence 写入在线状态；离线时同时写 last_seen_at。
func (dao *UserDAO) UpdatePresence(id uint64, online bool, at time.Time) error {
	updates := map[string]any{"online_status": 0}
	if online {
		updates["online_status"] = 1
	} else {
		updates["last_seen_at"] = at
	}
	return dao.db.Model(&User{}).Where("id = ?", id).Updates(updates).Error
}

func (dao *UserDAO) IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
