package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification 社交操作通知（点赞/评论/关注/表情回应）
// ID 在落库前由调用方生成（uuid），这样落库失败时实时推送仍能带上同一个 ID。
type Notification struct {
	ID        string         `gorm:"size:36;primarykey"`
	Type      string         `gorm:"size:32;index;not null"` // like / comment / follow / reaction
	ActorID   uint64         `gorm:"index;not null"`
	TargetID  uint64         `gorm:"index:idx_target_created,priority:1;not null"` // 接收通知的用户
	SubjectID string         `gorm:"size:64"`                                     // 动态/消息 ID；follow 为空
	Payload   datatypes.JSON `gorm:"type:json"`                                   // 例如评论内容
	IsRead    bool           `gorm:"default:false;index"`
	ReadAt    *time.Time
	CreatedAt time.Time `gorm:"index:idx_target_created,priority:2"`
}

func (Notification) TableName() string { return prefix + "notification" }
