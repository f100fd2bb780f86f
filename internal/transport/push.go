package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// PushConn is an open push channel. ReadMessage blocks until a frame arrives or the
// connection fails; Close unblocks a pending ReadMessage.
type PushConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Dialer opens push channel connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (PushConn, error)
}

// OpenPushChannel dials the configured push channel URL.
func (c *Client) OpenPushChannel(ctx context.Context) (PushConn, error) {
	conn, err := c.dialer.Dial(ctx, c.pushURL)
	if err != nil {
		return nil, fmt.Errorf("open push channel %s: %w", c.pushURL, err)
	}
	c.logger.Debug("push channel open", zap.String("url", c.pushURL))
	return conn, nil
}

// WebsocketDialer dials push channels over websocket.
type WebsocketDialer struct {
	dialer *websocket.Dialer
	header http.Header
}

// NewWebsocketDialer returns a dialer with a 10s handshake timeout.
func NewWebsocketDialer() *WebsocketDialer {
	return &WebsocketDialer{
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Dial implements Dialer.
func (d *WebsocketDialer) Dial(ctx context.Context, url string) (PushConn, error) {
	conn, resp, err := d.dialer.DialContext(ctx, url, d.header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("handshake failed with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn      *websocket.Conn
	closeOnce sync.Once
	closeErr  error
}

// ReadMessage returns the next text or binary frame.
func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close sends a normal closure frame and closes the socket.
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
