// internal/websocket/client.go
package websocket

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 * 1024
)

type Client struct {
	hub       *Hub
	conn      *websocket.Conn
	send      chan []byte
	accountID int64
	closed    chan struct{}
}

func NewClient(hub *Hub, conn *websocket.Conn, accountID int64) *Client {
	return &Client{
		hub:       hub,
		conn:      conn,
		send:      make(chan []byte, 64),
		accountID: accountID,
		closed:    make(chan struct{}),
	}
}

// Start registers the client and runs its pumps. Blocks until the connection
// drops.
func (c *Client) Start() {
	c.hub.register <- c
	go c.writePump()
	c.readPump()
}

// trySend queues a frame without blocking. A client that cannot drain its
// buffer loses frames rather than stalling the hub.
func (c *Client) trySend(data []byte) {
	select {
	case c.send <- data:
	default:
		c.hub.logger.Warn("dropping frame for slow websocket client",
			zap.Int64("account_id", c.accountID),
		)
	}
}

// readPump drains the connection for control frames. Any payload the client
// sends is discarded; the hub is push only.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read error",
					zap.Int64("account_id", c.accountID),
					zap.Error(err),
				)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.closed:
			c.conn.WriteControl(websocket.CloseMessage, []byte{}, time.Now().Add(writeWait))
			return

		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// close signals the write pump to shut the connection down. Safe to call
// once; the hub calls it under its own lock.
func (c *Client) close() {
	select {
	case <-c.closed:
	default:
		close(c.closed)
	}
}
