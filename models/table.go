package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	prefix = "im_"
)

// 账号状态
const (
	AccountNormal    = 0
	AccountSuspended = 1 // 临时封禁
	AccountBanned    = 2 // 永久封禁
)

// 账号限制位（可叠加）
const (
	RestrictMuted uint8 = 1 << iota // 禁言：可以连接、收消息，不能发消息
)

// User 用户表（实时层只读取展示字段与账号状态，注册/改资料走 REST 服务）
type User struct {
	ID           uint64     `gorm:"primarykey"`
	UID          string     `gorm:"size:36;uniqueIndex;not null"` // 对外用户 ID
	Username     string     `gorm:"size:50;uniqueIndex;not null"` // 用户名
	Nickname     string     `gorm:"size:100;not null"`            // 昵称
	Avatar       string     `gorm:"size:500"`                     // 头像
	Status       uint8      `gorm:"type:tinyint;default:0"`       // 账号状态: 0-正常 1-临时封禁 2-永久封禁
	Restrictions uint8      `gorm:"type:tinyint;default:0"`       // 限制位: 1-禁言
	OnlineStatus uint8      `gorm:"type:tinyint;default:0"`       // 在线状态: 0-离线 1-在线
	LastSeenAt   *time.Time // 最后在线时间（最后一个连接断开时写入）
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (User) TableName() string {
	return prefix + "user"
}

// DisplayName 昵称为空时回退到用户名
func (u *User) DisplayName() string {
	if u.Nickname != "" {
		return u.Nickname
	}
	return u.Username
}

// ChatMessage 聊天消息（消息体由客户端定义，原样存 JSON）
type ChatMessage struct {
	ID        uint64         `gorm:"primarykey"`
	RoomKey   string         `gorm:"size:80;index;not null"` // chat:<id>
	SenderID  uint64         `gorm:"index;not null"`
	Body      datatypes.JSON `gorm:"type:json"`
	PacketID  string         `gorm:"size:64"` // 客户端包 ID，便于排查重复发送
	CreatedAt time.Time      `gorm:"index"`
}

func (ChatMessage) TableName() string {
	return prefix + "chat_message"
}

// DeviceToken 移动端推送 token（一个用户可有多台设备）
type DeviceToken struct {
	ID        uint64 `gorm:"primarykey"`
	UserID    uint64 `gorm:"index;not null"`
	Platform  string `gorm:"size:16;not null"` // ios / android / web
	Token     string `gorm:"size:255;uniqueIndex;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (DeviceToken) TableName() string {
	return prefix + "device_token"
}
