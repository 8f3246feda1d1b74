package chat

import (
	"errors"
	"net"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ===== 配置 =====

type ConnConf struct {
	SendQueueSize  int
	WriteWait      time.Duration // 单次写超时
	PongWait       time.Duration // 读超时，收到 pong 续期
	PingPeriod     time.Duration // 必须小于 PongWait
	MaxMessageSize int64         // 客户端只发控制帧和鉴权帧
	AuthWait       time.Duration // 握手未带 token 时，等待鉴权帧的时间
}

func (c *ConnConf) norm() {
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = (c.PongWait * 9) / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 512
	}
	if c.AuthWait <= 0 {
		c.AuthWait = 10 * time.Second
	}
}

// writePump is the only goroutine writing to c.WS.
func (c *Client) writePump(conf ConnConf, log *zap.Logger) {
	ticker := time.NewTicker(conf.PingPeriod)
	defer func() {
		ticker.Stop()
		closeQuiet(c.WS)
	}()

	for {
		select {
		case msg := <-c.send:
			if err := writeText(c.WS, msg, conf.WriteWait); err != nil {
				log.Debug("write failed", zap.String("conn", c.ConnID), zap.Error(err))
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.WS.WriteControl(websocket.PingMessage, nil, time.Now().Add(conf.WriteWait)); err != nil {
				log.Debug("ping failed", zap.String("conn", c.ConnID), zap.Error(err))
				c.Close()
				return
			}
		case <-c.done:
			_ = c.WS.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(conf.WriteWait))
			return
		}
	}
}

// readPump 只处理控制帧；客户端业务帧忽略。返回即代表连接结束。
func (c *Client) readPump(conf ConnConf, log *zap.Logger) {
	c.WS.SetReadLimit(conf.MaxMessageSize)
	_ = c.WS.SetReadDeadline(time.Now().Add(conf.PongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(conf.PongWait))
	})

	for {
		if _, _, err := c.WS.ReadMessage(); err != nil {
			logReadErr(log, c, err)
			return
		}
	}
}

func logReadErr(log *zap.Logger, c *Client, rerr error) {
	fields := []zap.Field{zap.String("user", c.UserID), zap.String("conn", c.ConnID)}
	var ne net.Error
	switch {
	case websocket.IsCloseError(rerr,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	):
		log.Debug("peer closed", fields...)
	case errors.As(rerr, &ne) && ne.Timeout():
		log.Info("read timeout", append(fields, zap.Error(rerr))...)
	case c.Closed():
		log.Debug("closed locally", fields...)
	default:
		log.Info("read error", append(fields, zap.Error(rerr))...)
	}
}

func writeText(conn *websocket.Conn, data []byte, wait time.Duration) error {
	if conn == nil {
		return errors.New("nil conn")
	}
	if err := conn.SetWriteDeadline(time.Now().Add(wait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func closeQuiet(c *websocket.Conn) {
	if c != nil {
		_ = c.Close()
	}
}
