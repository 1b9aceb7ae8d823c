// ABOUTME: Websocket reader that turns server frames into broadcaster events
// ABOUTME: Dials with bearer auth and a userId query, no automatic reconnection

package socket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to read the next frame or pong from the server.
	defaultReadTimeout = 60 * time.Second

	// Maximum frame size accepted from the server.
	maxFrameSize = 64 * 1024

	// Time allowed to write a ping to the server.
	writeWait = 10 * time.Second
)

// Frame is one event sent by the server.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Options configures a Client.
type Options struct {
	// UserID is sent as the userId query parameter.
	UserID string
	// Token is sent as a bearer Authorization header when non-empty.
	Token string
	// ReadTimeout bounds the wait for the next frame or pong. Pings are
	// sent every 9/10 of it. Zero uses 60s.
	ReadTimeout time.Duration
	// Dialer overrides websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

// Client owns one websocket connection and republishes its frames.
type Client struct {
	*Broadcaster

	conn        *websocket.Conn
	readTimeout time.Duration
	logger      *slog.Logger

	closeOnce sync.Once
}

// Dial connects to rawURL and returns a client ready to Run.
func Dial(ctx context.Context, rawURL string, opts Options, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing socket url: %w", err)
	}
	if opts.UserID != "" {
		q := u.Query()
		q.Set("userId", opts.UserID)
		u.RawQuery = q.Encode()
	}

	header := http.Header{}
	if opts.Token != "" {
		header.Set("Authorization", "Bearer "+opts.Token)
	}

	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}

	conn, resp, err := dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing socket: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing socket: %w", err)
	}

	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = defaultReadTimeout
	}

	return &Client{
		Broadcaster: NewBroadcaster(logger),
		conn:        conn,
		readTimeout: readTimeout,
		logger:      logger.With("component", "socket"),
	}, nil
}

// Run reads frames until the connection fails or ctx is cancelled, pinging
// the server so an idle connection stays open. It closes the connection and
// every subscription before returning.
func (c *Client) Run(ctx context.Context) error {
	done := make(chan struct{})
	defer func() {
		close(done)
		c.Close()
	}()

	go c.keepalive(ctx, done)

	c.conn.SetReadLimit(maxFrameSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Info("socket closed by server")
				return nil
			}
			return fmt.Errorf("reading socket: %w", err)
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.logger.Warn("ignoring malformed frame", "error", err)
			continue
		}
		if frame.Event == "" {
			continue
		}
		c.Publish(frame.Event, frame.Data)
	}
}

// keepalive pings every 9/10 of the read timeout until done, and closes
// the connection when ctx is cancelled. Pongs extend the read deadline.
func (c *Client) keepalive(ctx context.Context, done <-chan struct{}) {
	ticker := time.NewTicker(c.readTimeout * 9 / 10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.closeConn()
			return
		case <-done:
			return
		case <-ticker.C:
			// WriteControl is safe alongside the reader and closeConn.
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.logger.Debug("ping failed", "error", err)
			}
		}
	}
}

// Close shuts the connection and removes every subscription.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closeConn()
		c.Broadcaster.Close()
	})
}

func (c *Client) closeConn() {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	if err := c.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		c.logger.Debug("closing socket", "error", err)
	}
}
