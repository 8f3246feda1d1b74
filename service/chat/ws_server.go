package chat

import (
	"encoding/json"
	"net/http"
	"time"

	"PPRealtime/middleware"
	"PPRealtime/middleware/security"
	"PPRealtime/tools/errs"
	"PPRealtime/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// authFrame 握手未带 token 时，连接建立后的第一帧
type authFrame struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

const authFrameLimit = 8 << 10

func countReject(reason string) { handshakeRejected.WithLabelValues(reason).Inc() }

// Routes 挂载 GET /ws：来源检查 -> 握手限流 -> token 校验 -> 升级
func (s *Server) Routes(r gin.IRouter) {
	authOpts := security.DefaultOptions()
	authOpts.OnReject = countReject
	r.GET("/ws",
		middleware.Origin(s.origin, countReject),
		middleware.HandshakeLimiter(s.cfg.HandshakeRate, s.cfg.HandshakeBurst, countReject),
		security.Middleware(s.verifier, authOpts),
		s.HandleWS,
	)
}

func (s *Server) HandleWS(c *gin.Context) {
	if !s.acquire() {
		countReject("stopping")
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, errs.ErrUnavailable.WithDetail("gateway stopping"))
		return
	}
	defer s.connWG.Done()

	userID, authed := security.UserID(c)
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 握手失败时 upgrader 已写回 HTTP 错误
		countReject("upgrade")
		s.log.Debug("upgrade failed", zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}

	if !authed {
		userID, err = s.awaitAuth(ws)
		if err != nil {
			countReject("auth_frame")
			s.log.Info("reject connection", zap.String("remote", ws.RemoteAddr().String()), zap.Error(err))
			_ = ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"),
				time.Now().Add(s.conf.WriteWait))
			_ = ws.Close()
			return
		}
	}
	s.serveClient(userID, ws)
}

// awaitAuth 在 AuthWait 内读取 {"type":"auth","token":"..."}
func (s *Server) awaitAuth(ws *websocket.Conn) (string, error) {
	ws.SetReadLimit(authFrameLimit)
	_ = ws.SetReadDeadline(time.Now().Add(s.conf.AuthWait))

	mt, data, err := ws.ReadMessage()
	if err != nil {
		return "", errs.ErrAuthentication.WrapMsg("no auth frame", "err", err)
	}
	if mt != websocket.TextMessage {
		return "", errs.ErrAuthentication.WrapMsg("auth frame must be text")
	}
	var f authFrame
	if err := json.Unmarshal(data, &f); err != nil || f.Type != "auth" || f.Token == "" {
		return "", errs.ErrAuthentication.WrapMsg("malformed auth frame")
	}
	return s.verifier.VerifyToken(f.Token)
}

// serveClient 连接进入 Registered；任何路径退出都会注销
func (s *Server) serveClient(userID string, ws *websocket.Conn) {
	client := NewClient(s.ids.NextString(), userID, ws, s.conf.SendQueueSize)
	log := s.log.With(zap.String("user", userID), zap.String("conn", client.ConnID))

	writerDone := make(chan struct{})
	s.reg.Register(userID, client)
	// Stop 的 CloseAll 可能发生在 awaitAuth 期间
	if s.isStopped() {
		client.Close()
	}
	defer func() {
		s.reg.Unregister(userID, client)
		client.Close()
		<-writerDone
		log.Info("disconnected", zap.Duration("age", time.Since(client.CreatedAt)))
	}()
	defer safe.Recover(log, "ws-conn")

	log.Info("connected", zap.String("remote", client.Remote))
	go func() {
		defer close(writerDone)
		defer safe.Recover(log, "ws-writer")
		client.writePump(s.conf, log)
	}()
	client.readPump(s.conf, log)
}
