package cons

// 社交通知类型（notification.type）
const (
	NotifyLike     = "like"     // 点赞动态
	NotifyComment  = "comment"  // 评论动态
	NotifyFollow   = "follow"   // 关注用户
	NotifyReaction = "reaction" // 对消息/动态添加表情回应
)

// 在线状态（user_status_change.status）
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// 鉴权失败原因（authentication_failed.reason）
// 客户端据此决定：刷新 token 重试，还是跳转重新登录。
const (
	ReasonTokenExpired      = "TOKEN_EXPIRED"
	ReasonTokenInvalid      = "TOKEN_INVALID"
	ReasonAccountRestricted = "ACCOUNT_RESTRICTED"
	ReasonAuthUnavailable   = "AUTH_UNAVAILABLE" // 账号存储暂不可用，可重试
)
