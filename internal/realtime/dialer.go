package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"uniqsocial/client/internal/config"

	"github.com/gorilla/websocket"
)

// Conn is one open socket. ReadMessage is only called from the
// transport's read goroutine; WriteMessage calls are serialized.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens a socket to a fully built URL.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket and keeps the connection
// alive with pings, the same read/write deadlines the server pumps use.
type GorillaDialer struct {
	Dialer *websocket.Dialer
}

func (d GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("websocket handshake: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	ws.SetReadLimit(config.MaxFrameSize)
	ws.SetReadDeadline(time.Now().Add(config.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(config.PongWait))
	})
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(config.PongWait))
		err := ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(config.WriteWait))
		if err == websocket.ErrCloseSent {
			return nil
		}
		return err
	})

	c := &gorillaConn{ws: ws, done: make(chan struct{})}
	go c.keepAlive()
	return c, nil
}

type gorillaConn struct {
	ws        *websocket.Conn
	done      chan struct{}
	closeOnce sync.Once
}

func (c *gorillaConn) ReadMessage() (int, []byte, error) {
	mt, data, err := c.ws.ReadMessage()
	if err == nil {
		c.ws.SetReadDeadline(time.Now().Add(config.PongWait))
	}
	return mt, data, err
}

func (c *gorillaConn) WriteMessage(messageType int, data []byte) error {
	c.ws.SetWriteDeadline(time.Now().Add(config.WriteWait))
	return c.ws.WriteMessage(messageType, data)
}

func (c *gorillaConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(config.WriteWait))
		err = c.ws.Close()
	})
	return err
}

func (c *gorillaConn) keepAlive() {
	ticker := time.NewTicker(config.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.WriteWait)); err != nil {
				return
			}
		}
	}
}
