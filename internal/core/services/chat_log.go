package services

import (
	"sync"

	"lexmeet/internal/core/domain"

	"github.com/samber/lo"
)

// ChatLog is the append-only message list of one call plus the open/closed
// state of the chat panel.
type ChatLog struct {
	mu       sync.RWMutex
	messages []domain.ChatMessage
	open     bool
}

func NewChatLog() *ChatLog {
	return &ChatLog{}
}

// Append adds msg. A message that arrives while the panel is open is seen immediately.
func (l *ChatLog) Append(msg domain.ChatMessage) domain.ChatMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.open {
		msg.Seen = true
	}
	l.messages = append(l.messages, msg)
	return msg
}

// SetDelivery updates the delivery status of the message with id.
func (l *ChatLog) SetDelivery(id string, status domain.DeliveryStatus) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, idx, ok := lo.FindIndexOf(l.messages, func(m domain.ChatMessage) bool { return m.ID == id })
	if !ok {
		return false
	}
	l.messages[idx].Delivery = status
	return true
}

// Open shows the panel and marks every buffered message as seen.
func (l *ChatLog) Open() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.open = true
	for i := range l.messages {
		l.messages[i].Seen = true
	}
}

func (l *ChatLog) Close() {
	l.mu.Lock()
	l.open = false
	l.mu.Unlock()
}

// Toggle flips the panel and reports whether it is now open.
func (l *ChatLog) Toggle() bool {
	l.mu.RLock()
	open := l.open
	l.mu.RUnlock()
	if open {
		l.Close()
	} else {
		l.Open()
	}
	return !open
}

func (l *ChatLog) IsOpen() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.open
}

// Unread counts messages from the other party that have not been seen.
func (l *ChatLog) Unread() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.CountBy(l.messages, func(m domain.ChatMessage) bool {
		return m.Incoming() && !m.Seen
	})
}

// Messages returns a copy of the buffered messages in arrival order.
func (l *ChatLog) Messages() []domain.ChatMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]domain.ChatMessage, len(l.messages))
	copy(out, l.messages)
	return out
}

// Get returns the message with id.
func (l *ChatLog) Get(id string) (domain.ChatMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return lo.Find(l.messages, func(m domain.ChatMessage) bool { return m.ID == id })
}
