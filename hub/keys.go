package hub

import (
	"strconv"
	"strings"
)

// 房间 key 前缀
const (
	KindChat = "chat"
	KindPost = "post"
	KindUser = "user"
)

func ChatRoom(id string) string { return KindChat + ":" + id }

func PostRoom(id string) string { return KindPost + ":" + id }

func UserRoom(userID uint64) string { return KindUser + ":" + strconv.FormatUint(userID, 10) }

// ParseRoomKey 拆分 "<kind>:<id>"，kind 只接受 chat/post/user
func ParseRoomKey(key string) (kind, id string, ok bool) {
	kind, id, found := strings.Cut(key, ":")
	if !found || id == "" {
		return "", "", false
	}
	switch kind {
	case KindChat, KindPost, KindUser:
		return kind, id, true
	}
	return "", "", false
}
