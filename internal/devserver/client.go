package devserver

import (
	"context"
	"log"
	"time"

	"uniqsocial/client/internal/config"

	"github.com/gorilla/websocket"
)

// Client is one socket joined to a session room.
type Client struct {
	UserID    string
	SessionID string
	Conn      *websocket.Conn
	Hub       *Hub
	Send      chan []byte
}

func NewClient(hub *Hub, conn *websocket.Conn, userID, sessionID string) *Client {
	return &Client{
		UserID:    userID,
		SessionID: sessionID,
		Conn:      conn,
		Hub:       hub,
		Send:      make(chan []byte, 256),
	}
}

// Run registers the client and starts its pumps.
func (c *Client) Run() {
	select {
	case c.Hub.RegisterCh <- c:
	case <-c.Hub.done:
		c.Conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.UnregisterCh <- c:
		case <-c.Hub.done:
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(config.MaxFrameSize)
	c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARNING: error reading from user %s: %v", c.UserID, err)
			}
			return
		}
		c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
		c.Hub.HandleMessage(context.Background(), c, message)
	}
}

// writePump sends one frame per message; the hub closes Send to end it.
func (c *Client) writePump() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
