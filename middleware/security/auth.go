package security

import (
	"net/http"
	"strings"

	"PPRealtime/tools/errs"

	"github.com/gin-gonic/gin"
)

// context key
const (
	PPCtxAuthKey = "authorization" // string, 原始 token
	PPCtxUserKey = "userId"        // string, 校验后的用户ID
)

// SubprotocolToken 浏览器 WebSocket 无法自定义头时，用
// Sec-WebSocket-Protocol: access_token, <jwt> 传递令牌
const SubprotocolToken = "access_token"

type TokenVerifier interface {
	VerifyToken(token string) (string, error)
}

type Options struct {
	HeaderToken string // 默认 "authorization"（兼容 Bearer 前缀）
	QueryToken  string // 默认 "token"
	// Optional 为 true 时允许握手不带 token，由连接建立后的鉴权帧完成认证
	Optional bool
	OnReject func(reason string)
}

func DefaultOptions() *Options {
	return &Options{
		HeaderToken: PPCtxAuthKey,
		QueryToken:  "token",
		Optional:    true,
	}
}

// BearerToken 依次读取：Authorization 头、query、子协议
func BearerToken(r *http.Request, opts *Options) string {
	if opts == nil {
		opts = DefaultOptions()
	}
	if authz := strings.TrimSpace(r.Header.Get(opts.HeaderToken)); authz != "" {
		// 兼容 Authorization: Bearer xxx
		if len(authz) > len("bearer ") && strings.EqualFold(authz[:len("bearer ")], "bearer ") {
			return strings.TrimSpace(authz[len("bearer "):])
		}
		return authz
	}
	if opts.QueryToken != "" {
		if q := strings.TrimSpace(r.URL.Query().Get(opts.QueryToken)); q != "" {
			return q
		}
	}
	protos := websocketProtocols(r)
	for i := 0; i+1 < len(protos); i++ {
		if protos[i] == SubprotocolToken {
			return protos[i+1]
		}
	}
	return ""
}

func websocketProtocols(r *http.Request) []string {
	var out []string
	for _, h := range r.Header.Values("Sec-WebSocket-Protocol") {
		for _, p := range strings.Split(h, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Middleware 握手前鉴权：有 token 则必须校验通过，否则 401；
// 校验成功写入 PPCtxUserKey。
func Middleware(v TokenVerifier, opts *Options) gin.HandlerFunc {
	if opts == nil {
		opts = DefaultOptions()
	}
	return func(c *gin.Context) {
		token := BearerToken(c.Request, opts)
		if token == "" {
			if opts.Optional {
				c.Next()
				return
			}
			reject(c, opts, "missing_token", errs.ErrAuthentication.WithDetail("missing token"))
			return
		}

		userID, err := v.VerifyToken(token)
		if err != nil {
			reject(c, opts, "invalid_token", errs.ErrAuthentication.WithDetail("invalid token"))
			return
		}
		c.Set(PPCtxAuthKey, token)
		c.Set(PPCtxUserKey, userID)
		c.Next()
	}
}

func UserID(c *gin.Context) (string, bool) {
	v, ok := c.Get(PPCtxUserKey)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

func reject(c *gin.Context, opts *Options, reason string, body *errs.CodeError) {
	if opts.OnReject != nil {
		opts.OnReject(reason)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, body)
}
