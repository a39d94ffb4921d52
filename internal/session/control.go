package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/danmuck/techread/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// controlChannel is the persistent websocket of one session. Writes are
// serialized; reads belong to the single in-flight stream.
type controlChannel struct {
	conn *websocket.Conn
	cfg  Config
	log  zerolog.Logger

	writeMu   sync.Mutex
	done      chan struct{}
	closeOnce sync.Once
}

func dialControl(ctx context.Context, dialer *websocket.Dialer, cfg Config, token string) (*controlChannel, error) {
	target := cfg.controlURL()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	header.Set("User-Agent", cfg.ClientVersion)

	conn, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			if statusErr := protocol.CheckStatus(target, resp.StatusCode); statusErr != nil {
				return nil, statusErr
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: dial %s: %v", protocol.ErrConnection, target, err)
	}

	c := &controlChannel{
		conn: conn,
		cfg:  cfg,
		log:  cfg.Logger,
		done: make(chan struct{}),
	}
	conn.SetReadLimit(cfg.MaxMessageBytes)
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})
	go c.heartbeat()
	return c, nil
}

func (c *controlChannel) heartbeat() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.Debug().Err(err).Msg("session.control heartbeat failed")
				return
			}
		}
	}
}

func (c *controlChannel) Send(ctx context.Context, cmd protocol.Command) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return c.classify(ctx, err)
	}
	if err := c.conn.WriteJSON(cmd); err != nil {
		return c.classify(ctx, err)
	}
	c.log.Debug().Str("action", string(cmd.Action)).Msg("session.control sent")
	return nil
}

// Receive blocks for the next message. Canceling ctx closes the channel.
func (c *controlChannel) Receive(ctx context.Context) (protocol.Message, error) {
	if err := ctx.Err(); err != nil {
		return protocol.Message{}, err
	}
	stop := context.AfterFunc(ctx, func() { _ = c.Close() })
	defer stop()

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout)); err != nil {
		return protocol.Message{}, c.classify(ctx, err)
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return protocol.Message{}, c.classify(ctx, err)
	}
	return protocol.DecodeMessage(data)
}

// classify maps websocket failures onto the protocol error taxonomy.
func (c *controlChannel) classify(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) && closeErr.Code == websocket.CloseMessageTooBig {
		return fmt.Errorf("%w: %v", protocol.ErrPayloadTooLarge, err)
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("%w: %v", protocol.ErrPayloadTooLarge, err)
	}
	return fmt.Errorf("%w: %v", protocol.ErrConnectionLost, err)
}

// Close sends a normal closure and drops the connection. Safe to repeat.
func (c *controlChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		err = c.conn.Close()
	})
	return err
}
