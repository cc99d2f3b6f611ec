package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024
	sendBuffer     = 32
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The endpoint carries only task ids and progress numbers, nothing
	// sensitive, so cross-origin subscriptions are allowed.
	CheckOrigin: func(*http.Request) bool { return true },
}

type client struct {
	conn  *websocket.Conn
	send  chan serverMessage
	tasks map[string]struct{}

	sendMu sync.Mutex
	closed bool
}

// Handler upgrades the connection and serves the subscribe/unsubscribe
// protocol until the client goes away.
func Handler(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws_upgrade_failed", "error", err)
			return
		}

		c := &client{
			conn:  conn,
			send:  make(chan serverMessage, sendBuffer),
			tasks: make(map[string]struct{}),
		}
		hub.register(c)

		go c.writeLoop()
		c.readLoop(hub)
	}
}

// trySend queues a message without blocking. A full buffer means the reader
// on the other end is gone or hopelessly slow; report failure so the hub
// evicts the connection. The mutex keeps a concurrent closeSend from racing
// a send onto a closed channel.
func (c *client) trySend(msg serverMessage) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// readLoop parses client control messages. Malformed input gets an error
// reply; the connection stays open.
func (c *client) readLoop(hub *Hub) {
	defer func() {
		hub.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("ws_read_closed", "error", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.trySend(serverMessage{Type: msgError, Error: "malformed message"})
			continue
		}

		switch msg.Type {
		case msgSubscribe:
			if msg.TaskID == "" {
				c.trySend(serverMessage{Type: msgError, Error: "subscribe requires task_id"})
				continue
			}
			hub.subscribe(c, msg.TaskID)
			c.trySend(serverMessage{Type: msgSubscribed, TaskID: msg.TaskID, Message: "subscribed to task updates"})
		case msgUnsubscribe:
			if msg.TaskID == "" {
				c.trySend(serverMessage{Type: msgError, Error: "unsubscribe requires task_id"})
				continue
			}
			hub.unsubscribe(c, msg.TaskID)
			c.trySend(serverMessage{Type: msgUnsubscribed, TaskID: msg.TaskID, Message: "unsubscribed from task updates"})
		default:
			c.trySend(serverMessage{Type: msgError, Error: "unknown message type"})
		}
	}
}

// writeLoop owns all writes on the connection: queued messages plus
// keepalive pings. Exits when the send channel closes or a write fails.
func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
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
