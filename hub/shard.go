package hub

import "github.com/cespare/xxhash/v2"

// shardCount 分片数。房间/用户/连接三张表各自分片加锁，互不相关的房间不会互相阻塞。
const shardCount = 64

func shardIndex(key string) int {
	return int(xxhash.Sum64String(key) % shardCount)
}
