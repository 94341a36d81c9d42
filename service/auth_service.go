package service

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/cydxin/pulse-sdk/cons"
	"github.com/cydxin/pulse-sdk/models"
)

// AccountStore 鉴权需要的账号查询能力（默认由 UserService 实现）
type AccountStore interface {
	// FindAccount 包含已注销账号；不存在时返回 ErrAccountNotFound
	FindAccount(ctx context.Context, userID uint64) (*models.User, error)
}

// Identity 连接鉴权成功后绑定的身份
type Identity struct {
	UserID       uint64
	DisplayName  string
	Restrictions uint8
}

// Muted 禁言用户可以连接、加房间、收消息，但不能发消息
func (i *Identity) Muted() bool {
	return i != nil && i.Restrictions&models.RestrictMuted != 0
}

// Claims 访问令牌载荷。sub 为数字用户 ID。
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

var signingMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// AuthService 提供“鉴权核心能力”，供 WS 握手、Gin 中间件共用。
// 校验顺序：结构 -> 过期 -> 签名 -> 注销 -> 账号状态。
// 失败统一返回 *AuthError，Reason 为 cons.Reason*。
type AuthService struct {
	secret   []byte
	tokens   *TokenService
	accounts AccountStore
	log      *zap.Logger
	now      func() time.Time
}

// NewAuthService tokens/accounts 可为空：为空时跳过注销检查 / 账号检查。
func NewAuthService(secret []byte, tokens *TokenService, accounts AccountStore, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		secret:   secret,
		tokens:   tokens,
		accounts: accounts,
		log:      log,
		now:      time.Now,
	}
}

// SetClock 测试用
func (a *AuthService) SetClock(now func() time.Time) {
	a.now = now
}

// ExtractToken 从 HTTP 请求中提取 token：优先 Authorization: Bearer，其次 query: token。
func (a *AuthService) ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}

	// Authorization: Bearer <token>
	ah := strings.TrimSpace(r.Header.Get("Authorization"))
	if ah != "" {
		parts := strings.SplitN(ah, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}

	// query: ?token=xxx
	q := r.URL.Query().Get("token")
	return strings.TrimSpace(q)
}

// Authenticate 校验凭证并解析出身份。
func (a *AuthService) Authenticate(ctx context.Context, token string) (*Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, authErr(cons.ReasonTokenInvalid, errors.New("missing token"))
	}

	// 1. 结构：能解析出 claims 且 sub 合法
	var unverified Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &unverified); err != nil {
		return nil, authErr(cons.ReasonTokenInvalid, err)
	}
	if unverified.ExpiresAt == nil {
		return nil, authErr(cons.ReasonTokenInvalid, errors.New("missing exp"))
	}

	// 2. 过期：先于签名判断，客户端据此走刷新流程
	now := a.now()
	if !now.Before(unverified.ExpiresAt.Time) {
		return nil, authErr(cons.ReasonTokenExpired, jwt.ErrTokenExpired)
	}

	// 3. 签名
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	},
		jwt.WithValidMethods(signingMethods),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, authErr(cons.ReasonTokenExpired, err)
		}
		return nil, authErr(cons.ReasonTokenInvalid, err)
	}

	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil || userID == 0 {
		return nil, authErr(cons.ReasonTokenInvalid, errors.New("invalid subject"))
	}

	// 4. 注销
	if a.tokens != nil && a.tokens.rdb != nil {
		var issuedAt time.Time
		if claims.IssuedAt != nil {
			issuedAt = claims.IssuedAt.Time
		}
		revoked, err := a.tokens.IsRevoked(ctx, token, userID, issuedAt)
		if err != nil {
			a.log.Warn("revocation check failed", zap.Uint64("user_id", userID), zap.Error(err))
			return nil, authErr(cons.ReasonAuthUnavailable, err)
		}
		if revoked {
			return nil, authErr(cons.ReasonTokenInvalid, errors.New("token revoked"))
		}
	}

	id := &Identity{UserID: userID, DisplayName: claims.Name}
	if a.accounts == nil {
		if id.DisplayName == "" {
			id.DisplayName = claims.Subject
		}
		return id, nil
	}

	// 5. 账号状态
	u, err := a.accounts.FindAccount(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return nil, authErr(cons.ReasonTokenInvalid, err)
		}
		a.log.Warn("account lookup failed", zap.Uint64("user_id", userID), zap.Error(err))
		return nil, authErr(cons.ReasonAuthUnavailable, err)
	}
	if u.DeletedAt.Valid || u.Status != models.AccountNormal {
		return nil, authErr(cons.ReasonAccountRestricted, errors.New("account restricted"))
	}

	id.DisplayName = u.DisplayName()
	id.Restrictions = u.Restrictions
	return id, nil
}

// RevokeToken 注销单个 token（需签名有效，否则没有注销的意义）。
func (a *AuthService) RevokeToken(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods(signingMethods), jwt.WithTimeFunc(a.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil
		}
		return err
	}
	if claims.ExpiresAt == nil {
		return errors.New("missing exp")
	}
	return a.tokens.RevokeToken(ctx, token, claims.ExpiresAt.Time)
}

// RevokeAllTokensByUser 注销用户全部 token。
func (a *AuthService) RevokeAllTokensByUser(ctx context.Context, userID uint64) error {
	return a.tokens.RevokeAllTokensByUser(ctx, userID, a.now())
}
