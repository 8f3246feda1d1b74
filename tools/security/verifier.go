package security

import (
	"strings"

	"PPRealtime/tools/decode"
	"PPRealtime/tools/errs"
)

// SessionClaims 会话令牌中网关关心的字段
type SessionClaims struct {
	UserID  string   `json:"userId"`
	Subject string   `json:"sub"`
	Scope   []string `json:"scope"`
}

// Identity 优先 userId，其次 sub
func (c *SessionClaims) Identity() string {
	if id := strings.TrimSpace(c.UserID); id != "" {
		return id
	}
	return strings.TrimSpace(c.Subject)
}

// Verifier 握手阶段使用，只读、无状态，可并发调用。
type Verifier struct {
	opts Options
}

func NewVerifier(opts Options) (*Verifier, error) {
	if len(opts.Secret) == 0 {
		return nil, errs.ErrConfig.WrapMsg("token secret is empty")
	}
	if _, err := signingMethod(opts.Alg); err != nil {
		return nil, errs.ErrConfig.WrapMsg(err.Error())
	}
	return &Verifier{opts: opts}, nil
}

// VerifyToken returns the user identifier carried by a valid token.
func (v *Verifier) VerifyToken(token string) (string, error) {
	claims, err := Verify(v.opts, token, "")
	if err != nil {
		return "", err
	}
	sc, err := decode.Into[SessionClaims](claims.MapClaims)
	if err != nil {
		return "", errs.ErrAuthentication.WrapMsg("decode claims", "err", err)
	}
	id := sc.Identity()
	if id == "" {
		return "", errs.ErrAuthentication.WrapMsg("token carries no user identifier")
	}
	return id, nil
}
