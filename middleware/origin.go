package middleware

import (
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/gin-gonic/gin"
)

type originSet struct {
	any     bool
	allowed map[string]struct{}
}

// OriginPolicy allowedOrigin 的运行时表示，可热更新（nacos）。
// 规则：逗号分隔；* 放行全部；不带 Origin 头的请求（非浏览器客户端）放行。
type OriginPolicy struct {
	v atomic.Pointer[originSet]
}

func NewOriginPolicy(allowed string) *OriginPolicy {
	p := &OriginPolicy{}
	p.Update(allowed)
	return p
}

func (p *OriginPolicy) Update(allowed string) {
	set := &originSet{allowed: make(map[string]struct{})}
	for _, o := range strings.Split(allowed, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			set.any = true
			continue
		}
		set.allowed[normalizeOrigin(o)] = struct{}{}
	}
	p.v.Store(set)
}

// Allow 可直接作为 websocket.Upgrader.CheckOrigin
func (p *OriginPolicy) Allow(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	set := p.v.Load()
	if set.any {
		return true
	}
	_, ok := set.allowed[normalizeOrigin(origin)]
	return ok
}

func normalizeOrigin(o string) string {
	u, err := url.Parse(strings.TrimSpace(o))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.ToLower(strings.TrimRight(o, "/"))
	}
	return strings.ToLower(u.Scheme + "://" + u.Host)
}

// Origin 拒绝不在白名单内的跨域握手
func Origin(p *OriginPolicy, onReject func(reason string)) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !p.Allow(c.Request) {
			if onReject != nil {
				onReject("origin")
			}
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
			return
		}
		c.Next()
	}
}
