package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// TokenService 负责 token 的注销状态。
// token 本身是无状态 JWT，这里只记录“哪些 token 不能再用”。
// Redis Key 设计：
// - im:revoked_token:{sha256(token)} -> 1 (String, TTL = token 剩余有效期)
// - im:revoked_before:{userID} -> unix 秒 (String)，早于该时间签发的 token 全部失效
//
// 这样可以：
// - 单 token 注销：SET revokedKey
// - 全端注销：SET revokedBefore（无需枚举 token）
type TokenService struct {
	rdb *redis.Client
}

func NewTokenService(rdb *redis.Client) *TokenService {
	return &TokenService{rdb: rdb}
}

func (s *TokenService) ensure() error {
	if s == nil || s.rdb == nil {
		return ErrRedisNil
	}
	return nil
}

// HashToken Redis 中不存明文 token
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (s *TokenService) revokedKey(token string) string {
	return "im:revoked_token:" + HashToken(token)
}

func (s *TokenService) revokedBeforeKey(userID uint64) string {
	return fmt.Sprintf("im:revoked_before:%d", userID)
}

// RevokeToken 注销单个 token，记录保留到 token 自身过期为止。
func (s *TokenService) RevokeToken(ctx context.Context, token string, expiresAt time.Time) error {
	if err := s.ensure(); err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		// 已经过期的 token 不需要记
		return nil
	}
	return s.rdb.Set(ctx, s.revokedKey(token), 1, ttl).Err()
}

// RevokeAllTokensByUser 注销用户在 at 之前签发的全部 token。
func (s *TokenService) RevokeAllTokensByUser(ctx context.Context, userID uint64, at time.Time) error {
	if err := s.ensure(); err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.revokedBeforeKey(userID), at.Unix(), 0).Err()
}

// IsRevoked 判断 token 是否已注销。issuedAt 为零值时只检查单 token 记录。
func (s *TokenService) IsRevoked(ctx context.Context, token string, userID uint64, issuedAt time.Time) (bool, error) {
	if err := s.ensure(); err != nil {
		return false, err
	}

	pipe := s.rdb.Pipeline()
	single := pipe.Exists(ctx, s.revokedKey(token))
	before := pipe.Get(ctx, s.revokedBeforeKey(userID))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}

	if single.Val() > 0 {
		return true, nil
	}
	if issuedAt.IsZero() {
		return false, nil
	}
	val, err := before.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	cutoff, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return false, err
	}
	return issuedAt.Unix() < cutoff, nil
}
