package services

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/samber/lo"
	"go.uber.org/zap"
)

// DirectChat is the one-to-one conversation between a user and a lawyer outside a call.
type DirectChat struct {
	transport ports.SignalingTransport
	selfID    string
	now       func() time.Time
	logger    *zap.SugaredLogger

	mu       sync.RWMutex
	messages []domain.DirectMessage
	unsub    func()
}

func NewDirectChat(transport ports.SignalingTransport, selfID string, logger *zap.SugaredLogger) *DirectChat {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &DirectChat{transport: transport, selfID: selfID, now: time.Now, logger: logger.With("user_id", selfID)}
}

// Register announces selfID to the relay and starts buffering incoming messages.
func (c *DirectChat) Register(ctx context.Context) error {
	c.mu.Lock()
	if c.unsub == nil {
		c.unsub = c.transport.On(domain.EventReceiveMessage, c.handleMessage)
	}
	c.mu.Unlock()
	return c.transport.Emit(ctx, domain.EventRegister, c.selfID)
}

func (c *DirectChat) handleMessage(args []json.RawMessage) {
	var msg domain.DirectMessage
	if err := decodeArg(args, 0, &msg); err != nil {
		c.logger.Warnw("Malformed direct message", "error", err)
		return
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
}

// Send delivers text to receiverID and keeps it in the local conversation.
func (c *DirectChat) Send(ctx context.Context, receiverID, text string) (domain.DirectMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.DirectMessage{}, domain.ErrEmptyMessage
	}
	msg := domain.DirectMessage{
		SenderID:   c.selfID,
		ReceiverID: receiverID,
		Message:    text,
		SentAt:     c.now().UTC().Format(time.RFC3339),
	}
	if err := c.transport.Emit(ctx, domain.EventSendMessage, msg); err != nil {
		return domain.DirectMessage{}, err
	}
	c.mu.Lock()
	c.messages = append(c.messages, msg)
	c.mu.Unlock()
	return msg, nil
}

// Conversation returns the messages exchanged with peerID in order.
func (c *DirectChat) Conversation(peerID string) []domain.DirectMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return lo.Filter(c.messages, func(m domain.DirectMessage, _ int) bool {
		return m.SenderID == peerID || m.ReceiverID == peerID
	})
}

// Close stops buffering incoming messages.
func (c *DirectChat) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.unsub != nil {
		c.unsub()
		c.unsub = nil
	}
}
