package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	apperrors "lexmeet/pkg/errors"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

const defaultChatTimeFormat = "3:04 PM"

type CallSessionConfig struct {
	RoomID     domain.RoomID
	Role       domain.Role
	Transport  ports.SignalingTransport
	Devices    ports.MediaDevices
	Factory    ports.PeerConnectionFactory
	LocalView  ports.LocalView
	RemoteView ports.RemoteView
	Backend    ports.ConsultationBackend
	Files      ports.FileStore
	Navigator  ports.Navigator
	Notifier   ports.Notifier
	// TimeFormat formats chat message times. Defaults to "3:04 PM".
	TimeFormat string
	Now        func() time.Time
	Logger     *zap.SugaredLogger
}

// CallSession is one video consultation from the point of view of one participant.
type CallSession struct {
	cfg    CallSessionConfig
	peer   *PeerManager
	chat   *ChatLog
	logger *zap.SugaredLogger

	mu            sync.Mutex
	state         domain.CallState
	micEnabled    bool
	cameraEnabled bool
	outcome       Outcome
	unsubs        []func()
	closed        bool
}

func NewCallSession(cfg CallSessionConfig) (*CallSession, error) {
	if _, err := domain.ParseRole(string(cfg.Role)); err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(cfg.RoomID)) == "" {
		return nil, domain.ErrInvalidRoom
	}
	if cfg.Transport == nil {
		return nil, domain.ErrNotInitialized
	}
	if cfg.Devices == nil || cfg.Factory == nil || cfg.Backend == nil {
		return nil, errors.New("incomplete call session config")
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = defaultChatTimeFormat
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if cfg.Notifier == nil {
		cfg.Notifier = nopNotifier{}
	}
	if cfg.Navigator == nil {
		cfg.Navigator = nopNavigator{}
	}

	s := &CallSession{
		cfg:           cfg,
		chat:          NewChatLog(),
		logger:        cfg.Logger.With("room_id", cfg.RoomID, "role", cfg.Role),
		micEnabled:    true,
		cameraEnabled: true,
	}
	s.peer = NewPeerManager(PeerManagerConfig{
		RoomID:            cfg.RoomID,
		Role:              cfg.Role,
		Transport:         cfg.Transport,
		Devices:           cfg.Devices,
		Factory:           cfg.Factory,
		Local:             cfg.LocalView,
		Remote:            cfg.RemoteView,
		OnConnectionState: s.handleConnectionState,
		Logger:            cfg.Logger,
	})
	return s, nil
}

// Start sets up media and the peer connection, then announces the join to the room.
func (s *CallSession) Start(ctx context.Context) error {
	if err := s.transition(domain.CallConnecting); err != nil {
		return err
	}

	s.mu.Lock()
	s.unsubs = append(s.unsubs,
		s.cfg.Transport.On(domain.EventRecvCallChat, s.handleChat),
		s.cfg.Transport.On(domain.EventPeerLeft, s.handlePeerLeft),
		s.cfg.Transport.On(domain.EventDisconnect, s.handleDisconnect),
	)
	s.mu.Unlock()

	if s.cfg.Role == domain.RoleLawyer {
		if err := s.cfg.Backend.StartMeeting(ctx, s.cfg.RoomID); err != nil {
			s.logger.Warnw("Failed to mark meeting as started", "error", err)
		}
	}

	if err := s.peer.Start(ctx); err != nil {
		return fmt.Errorf("call setup: %w", err)
	}

	if err := s.cfg.Transport.Emit(ctx, domain.EventJoinRoom, s.cfg.Role, s.cfg.RoomID); err != nil {
		return fmt.Errorf("join room: %w", err)
	}
	s.logger.Infow("Joined call room")
	return nil
}

func (s *CallSession) State() domain.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *CallSession) transition(next domain.CallState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.CanTransition(next) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, s.state, next)
	}
	s.logger.Debugw("Call state changed", "from", s.state.String(), "to", next.String())
	s.state = next
	return nil
}

func (s *CallSession) handleConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Infow("Peer connection state changed", "state", state.String())
	if state != webrtc.PeerConnectionStateConnected {
		return
	}
	if s.State() == domain.CallConnecting {
		_ = s.transition(domain.CallActive)
	}
}

func (s *CallSession) handlePeerLeft(args []json.RawMessage) {
	var role string
	_ = decodeArg(args, 0, &role)
	s.logger.Infow("Peer left the room", "peer_role", role)
}

// handleDisconnect only records the loss. The call is neither torn down nor renegotiated.
func (s *CallSession) handleDisconnect([]json.RawMessage) {
	s.logger.Warnw("Signaling connection lost", "state", s.State().String())
}

// Peer exposes the peer manager of the session.
func (s *CallSession) Peer() *PeerManager { return s.peer }

// ToggleMic flips every local audio track and returns the new state.
func (s *CallSession) ToggleMic() bool {
	return s.toggle(domain.TrackAudio, &s.micEnabled)
}

// ToggleCamera flips every local video track and returns the new state.
func (s *CallSession) ToggleCamera() bool {
	return s.toggle(domain.TrackVideo, &s.cameraEnabled)
}

func (s *CallSession) toggle(kind domain.TrackKind, flag *bool) bool {
	s.mu.Lock()
	*flag = !*flag
	enabled := *flag
	s.mu.Unlock()

	for _, track := range s.peer.Stream().TracksOf(kind) {
		track.SetEnabled(enabled)
	}
	return enabled
}

func (s *CallSession) MicEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.micEnabled
}

func (s *CallSession) CameraEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cameraEnabled
}

// Chat exposes the in-call chat log.
func (s *CallSession) Chat() *ChatLog { return s.chat }

func (s *CallSession) Messages() []domain.ChatMessage { return s.chat.Messages() }

func (s *CallSession) OpenChat() { s.chat.Open() }

func (s *CallSession) CloseChat() { s.chat.Close() }

func (s *CallSession) ToggleChat() bool { return s.chat.Toggle() }

func (s *CallSession) UnreadCount() int { return s.chat.Unread() }

// SendText echoes the message locally, then relays it to the room. A failed
// relay keeps the local message and marks it failed.
func (s *CallSession) SendText(ctx context.Context, text string) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, domain.ErrEmptyMessage
	}
	if s.isClosed() {
		return domain.ChatMessage{}, domain.ErrSessionClosed
	}

	msg := s.chat.Append(domain.ChatMessage{
		ID:       uuid.NewString(),
		Type:     domain.MessageText,
		Text:     text,
		Sender:   domain.SenderYou,
		Time:     s.now(),
		Delivery: domain.DeliveryPending,
	})
	return s.relay(ctx, msg, domain.ChatPayload{Type: domain.MessageText, Text: text})
}

// SendFile stores the file for local preview, echoes it and relays only its metadata.
func (s *CallSession) SendFile(ctx context.Context, name, contentType string, size int64, body io.Reader) (domain.ChatMessage, error) {
	if s.isClosed() {
		return domain.ChatMessage{}, domain.ErrSessionClosed
	}
	if s.cfg.Files == nil {
		return domain.ChatMessage{}, errors.New("file sharing is not configured")
	}

	stored, err := s.cfg.Files.Put(ctx, name, contentType, size, body)
	if err != nil {
		s.notifyError(err, "Failed to upload file")
		return domain.ChatMessage{}, fmt.Errorf("store file: %w", err)
	}

	msg := s.chat.Append(domain.ChatMessage{
		ID:       uuid.NewString(),
		Type:     domain.MessageFile,
		FileName: stored.Name,
		FileSize: stored.Size,
		FileType: stored.Type,
		URL:      stored.URL,
		Sender:   domain.SenderYou,
		Time:     s.now(),
		Delivery: domain.DeliveryPending,
	})
	return s.relay(ctx, msg, domain.ChatPayload{
		Type:     domain.MessageFile,
		FileName: stored.Name,
		FileSize: stored.Size,
		FileType: stored.Type,
	})
}

func (s *CallSession) relay(ctx context.Context, msg domain.ChatMessage, payload domain.ChatPayload) (domain.ChatMessage, error) {
	if err := s.cfg.Transport.Emit(ctx, domain.EventSendCallChat, payload, s.cfg.RoomID, s.cfg.Role); err != nil {
		s.chat.SetDelivery(msg.ID, domain.DeliveryFailed)
		msg.Delivery = domain.DeliveryFailed
		s.logger.Warnw("Failed to relay chat message", "message_id", msg.ID, "error", err)
		s.notifyError(err, "Message could not be delivered")
		return msg, err
	}
	s.chat.SetDelivery(msg.ID, domain.DeliverySent)
	msg.Delivery = domain.DeliverySent
	return msg, nil
}

// handleChat appends a relayed message. The sender is "You" when the reported
// role matches the local role, otherwise the label of that role.
func (s *CallSession) handleChat(args []json.RawMessage) {
	var payload domain.ChatPayload
	if err := decodeArg(args, 0, &payload); err != nil {
		s.logger.Warnw("Malformed chat message", "error", err)
		return
	}
	var role domain.Role
	if err := decodeArg(args, 1, &role); err != nil {
		s.logger.Warnw("Chat message without role", "error", err)
		return
	}

	sender := domain.Sender(role.Label())
	if role == s.cfg.Role {
		sender = domain.SenderYou
	}

	s.chat.Append(domain.ChatMessage{
		ID:       uuid.NewString(),
		Type:     payload.Type,
		Text:     payload.Text,
		FileName: payload.FileName,
		FileSize: payload.FileSize,
		FileType: payload.FileType,
		Sender:   sender,
		Time:     s.now(),
		Delivery: domain.DeliveryReceived,
	})
}

func (s *CallSession) notifyError(err error, fallback string) {
	s.cfg.Notifier.Error(apperrors.UserMessage(err, fallback))
}

func (s *CallSession) now() string {
	return s.cfg.Now().Format(s.cfg.TimeFormat)
}

// EndCall tears the call down and shows the outcome form for the local role.
// Ending is irreversible; calling it again shows the same form.
func (s *CallSession) EndCall() Outcome {
	s.mu.Lock()
	if s.outcome != nil {
		outcome := s.outcome
		s.mu.Unlock()
		outcome.Show()
		return outcome
	}
	s.mu.Unlock()

	if err := s.transition(domain.CallEnding); err != nil {
		s.logger.Warnw("Ending call from unexpected state", "error", err)
	}
	s.peer.Teardown()

	deps := outcomeDeps{
		roomID:    s.cfg.RoomID,
		backend:   s.cfg.Backend,
		navigator: s.cfg.Navigator,
		notifier:  s.cfg.Notifier,
		logger:    s.logger,
		onDone:    s.finish,
	}
	var outcome Outcome
	if s.cfg.Role == domain.RoleLawyer {
		outcome = newLawyerOutcome(deps)
	} else {
		outcome = newUserOutcome(deps)
	}

	s.mu.Lock()
	s.outcome = outcome
	s.mu.Unlock()

	s.logger.Infow("Call ended")
	return outcome
}

// Outcome returns the end-of-call form, or nil while the call is running.
func (s *CallSession) Outcome() Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

func (s *CallSession) finish() {
	if err := s.transition(domain.CallTerminal); err != nil {
		s.logger.Warnw("Unexpected state after outcome", "error", err)
	}
	s.Close()
}

// Close releases everything the session holds. It runs on unmount and after
// the outcome is submitted, and is safe to call repeatedly.
func (s *CallSession) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	unsubs := s.unsubs
	s.unsubs = nil
	s.state = domain.CallTerminal
	s.mu.Unlock()

	s.peer.Teardown()
	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
}

func (s *CallSession) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type nopNotifier struct{}

func (nopNotifier) Error(string)   {}
func (nopNotifier) Success(string) {}

type nopNavigator struct{}

func (nopNavigator) Navigate(domain.Route) {}
