package ws

import (
	"encoding/json"
	"log/slog"
	"time"

	"mission_rewards/internal/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 25 * time.Second
	sendBuffer = 64
)

type Client struct {
	Wallet string
	Conn   *websocket.Conn
	Send   chan []byte

	hub *Hub
	log *slog.Logger
}

func NewClient(wallet string, conn *websocket.Conn, hub *Hub) *Client {
	return &Client{
		Wallet: wallet,
		Conn:   conn,
		Send:   make(chan []byte, sendBuffer),
		hub:    hub,
		log:    logger.Component("ws").With("wallet", wallet),
	}
}

// Run registers the client and blocks until the connection closes.
func (c *Client) Run() {
	c.hub.register(c)
	// стартуем writer до ready, чтобы клиент сразу получил handshake
	go c.writePump()

	ready, _ := json.Marshal(Message{Type: MsgReady})
	c.Send <- ready

	c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(4096)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read error", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.reply(Message{Type: MsgError, Payload: "malformed message"})
			continue
		}
		switch msg.Type {
		case MsgPing:
			c.reply(Message{Type: MsgPong, At: time.Now().Unix()})
		default:
			c.reply(Message{Type: MsgError, Payload: "unknown message type"})
		}
	}
}

func (c *Client) reply(m Message) {
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	select {
	case c.Send <- b:
	default:
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.Send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
