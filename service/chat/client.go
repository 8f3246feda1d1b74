package chat

import (
	"sync"
	"time"

	"PPRealtime/tools/errs"

	"github.com/gorilla/websocket"
)

// Client represents one live connection of a user session.
// A single user may have multiple devices/connections, each maintained separately.
type Client struct {
	ConnID    string          // Unique connection ID (snowflake, unique within the local gateway)
	UserID    string          // User ID (determined by token verification before upgrade)
	WS        *websocket.Conn // nil in unit tests
	Remote    string
	CreatedAt time.Time

	send      chan []byte // Outbound queue (consumed by the single writer goroutine)
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new client connection object.
func NewClient(connID, userID string, ws *websocket.Conn, sendQueueSize int) *Client {
	if sendQueueSize <= 0 {
		sendQueueSize = 256
	}
	c := &Client{
		ConnID:    connID,
		UserID:    userID,
		WS:        ws,
		CreatedAt: time.Now(),
		send:      make(chan []byte, sendQueueSize),
		done:      make(chan struct{}),
	}
	if ws != nil {
		c.Remote = ws.RemoteAddr().String()
	}
	return c
}

// Enqueue never blocks: a full queue or a closing connection is a DeliveryError.
func (c *Client) Enqueue(payload []byte) error {
	select {
	case <-c.done:
		return errs.ErrDelivery.WrapMsg("connection closing", "conn", c.ConnID)
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return errs.ErrDelivery.WrapMsg("connection closing", "conn", c.ConnID)
	default:
		return errs.ErrDelivery.WrapMsg("send queue full", "conn", c.ConnID, "cap", cap(c.send))
	}
}

// Close 幂等；写协程收到后发送 close 帧并关闭底层连接
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}
