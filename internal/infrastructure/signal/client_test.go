package signal

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/pkg/retry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestClient_DisconnectEventOnTransportLoss(t *testing.T) {
	relay := newTestRelay(t, testRelayConfig(), nil)
	c := relay.dial(t, "")
	disconnects := listen(c, domain.EventDisconnect)

	require.Eventually(t, func() bool { return relay.server.Connections() == 1 }, 2*time.Second, 10*time.Millisecond)
	relay.server.mu.RLock()
	for _, conn := range relay.server.conns {
		_ = conn.ws.Close()
	}
	relay.server.mu.RUnlock()

	args := receive(t, disconnects)
	assert.Equal(t, ReasonTransportClose, decodeString(t, args[0]))

	<-c.Done()
	assert.ErrorIs(t, c.Emit(context.Background(), domain.EventRegister, "u-1"), domain.ErrTransportClosed)
}

func TestClient_CloseDispatchesClientDisconnect(t *testing.T) {
	relay := newTestRelay(t, testRelayConfig(), nil)
	c := relay.dial(t, "")
	disconnects := listen(c, domain.EventDisconnect)

	require.NoError(t, c.Close())
	assert.Equal(t, ReasonClientClose, decodeString(t, receive(t, disconnects)[0]))
	assert.ErrorIs(t, c.Emit(context.Background(), domain.EventRegister, "u-1"), domain.ErrTransportClosed)
}

func TestClient_UnsubscribeRemovesOnlyThatHandler(t *testing.T) {
	relay := newTestRelay(t, testRelayConfig(), nil)
	c := relay.dial(t, "")

	var calls []string
	stopA := c.On("evt", func([]json.RawMessage) { calls = append(calls, "a") })
	c.On("evt", func([]json.RawMessage) { calls = append(calls, "b") })

	stopA()
	stopA()

	c.dispatch("evt", nil)
	assert.Equal(t, []string{"b"}, calls)
}

func TestClient_EmitHonoursCancelledContext(t *testing.T) {
	relay := newTestRelay(t, testRelayConfig(), nil)
	c := relay.dial(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, c.Emit(ctx, domain.EventRegister, "u-1"), context.Canceled)
}

func TestDial_GivesUpAfterRetries(t *testing.T) {
	_, err := Dial(context.Background(), ClientConfig{
		URL: "ws://127.0.0.1:1/ws",
		Retry: retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
			Multiplier:   1,
		},
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dial signaling relay")
}

func TestRegistry_Lifecycle(t *testing.T) {
	relay := newTestRelay(t, testRelayConfig(), nil)
	reg := NewRegistry(ClientConfig{URL: relay.wsURL}, zap.NewNop().Sugar())

	_, err := reg.Get()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)

	first, err := reg.Connect(context.Background())
	require.NoError(t, err)
	second, err := reg.Connect(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, second)

	got, err := reg.Get()
	require.NoError(t, err)
	assert.Same(t, first, got)

	require.NoError(t, reg.Disconnect())
	_, err = reg.Get()
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
	assert.NoError(t, reg.Disconnect())
}
