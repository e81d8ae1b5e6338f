package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jrhy/replica"
)

// Conn is a subscriber's replica.Transport, connected to a Server.
type Conn struct {
	settings *Settings
	logger   *zap.Logger
	ws       *websocket.Conn
	sub      string

	mu       sync.Mutex
	handlers map[replica.MessageKind]replica.Handler
	send     chan []byte

	startOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	group     *errgroup.Group
}

// Dial connects subscriber sub to the server at rawURL. Register handlers
// (for example with replica.NewClient) and then call Start.
func Dial(ctx context.Context, rawURL, sub string, settings *Settings, logger *zap.Logger) (*Conn, error) {
	settings = settings.orDefault()
	if logger == nil {
		logger = zap.NewNop()
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if sub != "" {
		q := u.Query()
		q.Set(SubscriberParam, sub)
		u.RawQuery = q.Encode()
	}
	dialer := websocket.Dialer{HandshakeTimeout: settings.HandshakeTimeout}
	ws, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u.Redacted(), err)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	return &Conn{
		settings: settings,
		logger:   logger.With(zap.String("subscriber", sub)),
		ws:       ws,
		sub:      sub,
		handlers: map[replica.MessageKind]replica.Handler{},
		send:     make(chan []byte, settings.SendBufferSize),
		ctx:      runCtx,
		cancel:   cancel,
	}, nil
}

// Handle implements replica.Transport.
func (c *Conn) Handle(kind replica.MessageKind, h replica.Handler) {
	c.mu.Lock()
	c.handlers[kind] = h
	c.mu.Unlock()
}

// Send implements replica.Transport; to is ignored since a Conn only
// reaches its server.
func (c *Conn) Send(_ replica.Target, msg replica.Message) error {
	b, err := replica.EncodeMessage(msg)
	if err != nil {
		return err
	}
	select {
	case c.send <- b:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		return errors.New("send buffer full")
	}
}

// Start begins reading and writing. Received messages are passed to the
// handlers through poster when it is non-nil.
func (c *Conn) Start(poster replica.Poster) {
	c.startOnce.Do(func() {
		g, ctx := errgroup.WithContext(c.ctx)
		c.group = g
		g.Go(func() error { return c.read(ctx, poster) })
		g.Go(func() error { return c.write(ctx) })
		g.Go(func() error {
			<-ctx.Done()
			c.ws.Close()
			return nil
		})
	})
}

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.ctx.Done()
}

// Close ends the connection and waits for its goroutines.
func (c *Conn) Close() error {
	c.cancel()
	if c.group == nil {
		return c.ws.Close()
	}
	c.group.Wait()
	return nil
}

func (c *Conn) read(ctx context.Context, poster replica.Poster) error {
	defer c.cancel()
	for {
		c.ws.SetReadDeadline(time.Now().Add(c.settings.ReadTimeout))
		messageType, frame, err := c.ws.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.logger.Info("read failed", zap.Error(err))
			return err
		}
		if messageType != websocket.BinaryMessage || len(frame) == 0 {
			continue
		}
		msg, err := replica.DecodeMessage(frame)
		if err != nil {
			c.logger.Warn("bad frame", zap.Error(err))
			continue
		}
		c.mu.Lock()
		h := c.handlers[msg.Kind]
		c.mu.Unlock()
		if h == nil {
			continue
		}
		if poster != nil {
			poster.Post(func() { h("", msg) })
		} else {
			h("", msg)
		}
	}
}

func (c *Conn) write(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				return err
			}
		case <-time.After(c.settings.PingTimeout):
			c.ws.SetWriteDeadline(time.Now().Add(c.settings.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, nil); err != nil {
				return err
			}
		}
	}
}
