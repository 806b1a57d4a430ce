package websocket

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	ws "github.com/coder/websocket"
)

const (
	sendBufferSize = 16
	pingInterval   = 30 * time.Second
	writeTimeout   = 10 * time.Second
	readLimit      = 4096
)

// resyncFrame tells a client that it missed meal notifications and must
// refetch /api/meals instead of patching its local copy.
var resyncFrame = mustMarshal(NewMessage("meal", "resync", "", nil))

func mustMarshal(msg Message) []byte {
	data, err := json.Marshal(msg)
	if err != nil {
		panic(err)
	}
	return data
}

// Client is one subscriber to the meal feed. A client that cannot keep up
// loses notifications but never blocks the hub; once its queue drains it is
// sent a single meal_resync frame.
type Client struct {
	hub    *Hub
	conn   *ws.Conn
	send   chan []byte
	lagged atomic.Bool
}

func NewClient(hub *Hub, conn *ws.Conn) *Client {
	return &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}
}

// enqueue offers data without blocking. On overflow the client is marked
// lagged and false is returned. Callers hold the hub read lock.
func (c *Client) enqueue(data []byte) bool {
	select {
	case c.send <- data:
		return true
	default:
		c.lagged.Store(true)
		return false
	}
}

// frames returns what to write for msg. After the last queued message of a
// lagged client, a resync frame follows so the client knows its view is stale.
func (c *Client) frames(msg []byte) [][]byte {
	if len(c.send) == 0 && c.lagged.CompareAndSwap(true, false) {
		return [][]byte{msg, resyncFrame}
	}
	return [][]byte{msg}
}

// Run registers the client and pumps messages until the connection or ctx
// ends, then unregisters.
func (c *Client) Run(ctx context.Context) {
	c.hub.Register(c)
	defer c.hub.Unregister(c)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.conn.SetReadLimit(readLimit)
	go func() {
		defer cancel()
		c.writePump(ctx)
	}()
	c.readPump(ctx)
}

// readPump discards client frames; the feed is one-way.
func (c *Client) readPump(ctx context.Context) {
	for {
		if _, _, err := c.conn.Read(ctx); err != nil {
			return
		}
	}
}

// writePump gives up on a client whose socket stalls for writeTimeout so a
// dead peer does not pin its goroutine until the next ping.
func (c *Client) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				return
			}
			for _, f := range c.frames(msg) {
				if err := c.write(ctx, f); err != nil {
					c.hub.logger.Debug("websocket write", "error", err)
					return
				}
			}
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) write(ctx context.Context, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return c.conn.Write(ctx, ws.MessageText, data)
}
