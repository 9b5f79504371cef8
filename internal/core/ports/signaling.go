package ports

import (
	"context"
	"encoding/json"
)

// EventHandler receives the positional arguments of one signaling event, still encoded.
type EventHandler func(args []json.RawMessage)

// SignalingTransport is a connection to the signaling relay. Events are
// delivered to handlers in arrival order.
type SignalingTransport interface {
	Emit(ctx context.Context, event string, args ...any) error
	// On registers handler for event and returns a function that removes it.
	On(event string, handler EventHandler) (unsubscribe func())
}
