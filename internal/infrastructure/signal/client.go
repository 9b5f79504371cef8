package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	"lexmeet/pkg/retry"

	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Disconnect reasons passed as the single argument of the local disconnect event.
const (
	ReasonClientClose    = "client close"
	ReasonTransportClose = "transport close"
)

type ClientConfig struct {
	URL          string
	Token        string
	Retry        retry.Config
	WriteTimeout time.Duration
}

type handlerEntry struct {
	id uint64
	fn ports.EventHandler
}

// Client is a signaling connection to the relay. It implements
// ports.SignalingTransport.
type Client struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeMu      sync.Mutex

	mu       sync.RWMutex
	handlers map[string][]handlerEntry
	nextID   uint64
	closed   bool

	done      chan struct{}
	closeOnce sync.Once
	logger    *zap.SugaredLogger
}

var _ ports.SignalingTransport = (*Client)(nil)

// Dial connects to the relay, retrying with backoff per cfg.Retry.
func Dial(ctx context.Context, cfg ClientConfig, logger *zap.SugaredLogger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}

	header := http.Header{}
	if cfg.Token != "" {
		header.Set("Authorization", "Bearer "+cfg.Token)
	}

	attempt := 0
	conn, err := retry.DoWithResult(ctx, cfg.Retry, func(ctx context.Context) (*websocket.Conn, error) {
		attempt++
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, cfg.URL, header)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			logger.Warnw("signaling dial failed", "url", cfg.URL, "attempt", attempt, "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("dial signaling relay: %w", err)
	}

	c := &Client{
		conn:         conn,
		writeTimeout: cfg.WriteTimeout,
		handlers:     make(map[string][]handlerEntry),
		done:         make(chan struct{}),
		logger:       logger,
	}
	go c.readLoop()

	logger.Infow("connected to signaling relay", "url", cfg.URL, "attempts", attempt)
	return c, nil
}

func (c *Client) Emit(ctx context.Context, event string, args ...any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := encodeEnvelope(event, args...)
	if err != nil {
		return err
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if closed {
		return domain.ErrTransportClosed
	}

	deadline := time.Now().Add(c.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrTransportClosed, err)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("emit %s: %w", event, err)
	}
	return nil
}

func (c *Client) On(event string, handler ports.EventHandler) func() {
	c.mu.Lock()
	c.nextID++
	id := c.nextID
	c.handlers[event] = append(c.handlers[event], handlerEntry{id: id, fn: handler})
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			remaining := lo.Reject(c.handlers[event], func(h handlerEntry, _ int) bool { return h.id == id })
			if len(remaining) == 0 {
				delete(c.handlers, event)
				return
			}
			c.handlers[event] = remaining
		})
	}
}

// Close ends the connection and waits for the read loop. Handlers still
// registered receive a disconnect event, so Close must not be called from one.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ReasonClientClose))
		c.writeMu.Unlock()

		err = c.conn.Close()
	})
	<-c.done
	return err
}

// Done is closed once the read loop has stopped.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) readLoop() {
	defer close(c.done)

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			clientClosed := c.closed
			c.closed = true
			c.mu.Unlock()

			reason := ReasonTransportClose
			if clientClosed {
				reason = ReasonClientClose
			} else {
				c.logger.Warnw("signaling connection lost", "error", err)
				_ = c.conn.Close()
			}
			c.dispatch(domain.EventDisconnect, encodeReason(reason))
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			c.logger.Warnw("dropping malformed signaling frame", "size", len(data), "error", err)
			continue
		}
		c.dispatch(env.Event, env.Args)
	}
}

func (c *Client) dispatch(event string, args []json.RawMessage) {
	c.mu.RLock()
	handlers := append([]handlerEntry(nil), c.handlers[event]...)
	c.mu.RUnlock()

	if len(handlers) == 0 {
		c.logger.Debugw("no handler for signaling event", "event", event)
		return
	}
	for _, h := range handlers {
		h.fn(args)
	}
}

func encodeReason(reason string) []json.RawMessage {
	data, _ := json.Marshal(reason)
	return []json.RawMessage{data}
}

// Registry holds one shared client per process, for callers that want the
// connect-once, get-anywhere lifecycle.
type Registry struct {
	cfg    ClientConfig
	logger *zap.SugaredLogger

	mu     sync.Mutex
	client *Client
}

func NewRegistry(cfg ClientConfig, logger *zap.SugaredLogger) *Registry {
	return &Registry{cfg: cfg, logger: logger}
}

// Connect returns the live client, dialing only when there is none.
func (r *Registry) Connect(ctx context.Context) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client != nil {
		select {
		case <-r.client.Done():
		default:
			return r.client, nil
		}
	}

	client, err := Dial(ctx, r.cfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.client = client
	return client, nil
}

// Get returns the client created by Connect or domain.ErrNotInitialized.
func (r *Registry) Get() (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.client == nil {
		return nil, domain.ErrNotInitialized
	}
	return r.client, nil
}

func (r *Registry) Disconnect() error {
	r.mu.Lock()
	client := r.client
	r.client = nil
	r.mu.Unlock()

	if client == nil {
		return nil
	}
	return client.Close()
}
