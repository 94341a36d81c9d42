package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cydxin/pulse-sdk/response"
	"github.com/cydxin/pulse-sdk/service"
)

const (
	// ContextUserIDKey gin context 里保存 user id 的 key
	ContextUserIDKey   = "user_id"
	ContextTokenKey    = "token"
	ContextIdentityKey = "identity"
)

// TokenAuthenticator 校验 token，默认实现 *service.AuthService
type TokenAuthenticator interface {
	Authenticate(ctx context.Context, token string) (*service.Identity, error)
}

// AuthOptions 可选配置，零值字段使用默认值。
type AuthOptions struct {
	HeaderKey string // 默认 Authorization，取 Bearer 后的部分
	QueryKey  string // 默认 token；ws 握手等无法带 header 的场景
}

func (o *AuthOptions) withDefaults() AuthOptions {
	var out AuthOptions
	if o != nil {
		out = *o
	}
	if out.HeaderKey == "" {
		out.HeaderKey = "Authorization"
	}
	if out.QueryKey == "" {
		out.QueryKey = "token"
	}
	return out
}

/*
	GinAuthMiddleware Gin 鉴权中间件：

- 优先 Authorization: Bearer <token>，没有再读 query（默认 token=xxx）
- 与 ws 的 authenticate 走同一套校验（过期/签名/注销/账号状态）
- 失败按原因返回 401 / 403 / 503，成功后写入 user_id、token、identity

使用：router.Use(middleware.GinAuthMiddleware(authService, nil))
*/
func GinAuthMiddleware(auth TokenAuthenticator, opt *AuthOptions) gin.HandlerFunc {
	cfg := opt.withDefaults()

	return func(c *gin.Context) {
		if auth == nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(response.CodeInternalError, "auth service is nil"))
			return
		}

		token := bearer(c.GetHeader(cfg.HeaderKey))
		if token == "" {
			token = strings.TrimSpace(c.Query(cfg.QueryKey))
		}
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(response.CodeTokenInvalid, "missing token"))
			return
		}

		id, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(response.AuthFailure(service.ReasonOf(err)))
			return
		}

		c.Set(ContextUserIDKey, id.UserID)
		c.Set(ContextTokenKey, token)
		c.Set(ContextIdentityKey, id)
		c.Next()
	}
}

func bearer(header string) string {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(rest)
}

// UserIDFrom 读取鉴权后的用户 ID
func UserIDFrom(c *gin.Context) (uint64, bool) {
	v, ok := c.Get(ContextUserIDKey)
	if !ok {
		return 0, false
	}
	uid, ok := v.(uint64)
	return uid, ok && uid != 0
}

// IdentityFrom 读取鉴权后的身份（含禁言等限制位）
func IdentityFrom(c *gin.Context) (*service.Identity, bool) {
	v, ok := c.Get(ContextIdentityKey)
	if !ok {
		return nil, false
	}
	id, ok := v.(*service.Identity)
	return id, ok && id != nil
}
