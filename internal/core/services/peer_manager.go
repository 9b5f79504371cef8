package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

type PeerManagerConfig struct {
	RoomID    domain.RoomID
	Role      domain.Role
	Transport ports.SignalingTransport
	Devices   ports.MediaDevices
	Factory   ports.PeerConnectionFactory
	Local     ports.LocalView
	Remote    ports.RemoteView
	// OnConnectionState is called for every peer connection state change.
	OnConnectionState func(state webrtc.PeerConnectionState)
	Logger            *zap.SugaredLogger
}

// PeerManager owns the local capture and the peer connection of one call.
type PeerManager struct {
	cfg    PeerManagerConfig
	logger *zap.SugaredLogger

	mu         sync.Mutex
	ctx        context.Context
	cancel     context.CancelFunc
	stream     *domain.MediaStream
	pc         ports.PeerConnection
	negotiator Negotiator
	unsubs     []func()
	torn       bool

	// Remote candidates wait here until a remote description is applied.
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

// maxPendingCandidates bounds the queue of early remote candidates.
const maxPendingCandidates = 64

func NewPeerManager(cfg PeerManagerConfig) *PeerManager {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &PeerManager{
		cfg:    cfg,
		logger: logger.With("room_id", cfg.RoomID, "role", cfg.Role),
	}
}

// Start acquires local media, builds the peer connection and subscribes to
// negotiation events. Media acquisition errors are returned unchanged.
func (m *PeerManager) Start(ctx context.Context) error {
	stream, err := m.cfg.Devices.GetUserMedia(ctx, domain.MediaConstraints{Audio: true, Video: true})
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.torn {
		stream.StopAll()
		return domain.ErrSessionClosed
	}
	if m.pc != nil {
		stream.StopAll()
		return fmt.Errorf("%w: peer connection already started", domain.ErrInvalidTransition)
	}

	m.stream = stream
	if m.cfg.Local != nil {
		m.cfg.Local.ShowLocal(stream)
	}

	pc, err := m.cfg.Factory.NewPeerConnection()
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	m.pc = pc

	for _, track := range stream.Tracks {
		if err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("add %s track: %w", track.Kind(), err)
		}
	}

	// Handlers outlive the Start call, so they use a context bound to the manager.
	m.ctx, m.cancel = context.WithCancel(context.WithoutCancel(ctx))
	sessionCtx := m.ctx

	pc.OnTrack(func(track ports.RemoteTrack) {
		m.logger.Infow("Remote track received", "track_id", track.ID(), "kind", track.Kind())
		if m.cfg.Remote != nil {
			m.cfg.Remote.AttachRemote(track)
		}
	})
	pc.OnICECandidate(func(candidate webrtc.ICECandidateInit) {
		if err := m.cfg.Transport.Emit(sessionCtx, domain.EventCandidate, candidate, m.cfg.RoomID); err != nil {
			m.logger.Warnw("Failed to send ICE candidate", "error", err)
		}
	})
	if m.cfg.OnConnectionState != nil {
		pc.OnConnectionStateChange(m.cfg.OnConnectionState)
	}

	negotiator, err := NewNegotiator(m.cfg.Role, remoteGate{PeerConnection: pc, m: m}, m.cfg.Transport, m.cfg.RoomID, m.logger)
	if err != nil {
		return err
	}
	m.negotiator = negotiator

	m.unsubs = append(m.unsubs, m.cfg.Transport.On(domain.EventCandidate, m.handleCandidate))
	m.unsubs = append(m.unsubs, negotiator.Bind(sessionCtx)...)

	m.logger.Infow("Peer connection ready", "tracks", len(stream.Tracks))
	return nil
}

// handleCandidate adds a remote candidate, or queues it while the peer
// connection has no remote description yet. Failures are logged and dropped.
func (m *PeerManager) handleCandidate(args []json.RawMessage) {
	var candidate webrtc.ICECandidateInit
	if err := decodeArg(args, 0, &candidate); err != nil {
		m.logger.Warnw("Malformed ICE candidate", "error", err)
		return
	}

	m.mu.Lock()
	pc := m.pc
	if pc == nil || m.torn {
		m.mu.Unlock()
		return
	}
	if !m.remoteSet {
		if len(m.pending) >= maxPendingCandidates {
			m.mu.Unlock()
			m.logger.Warnw("Dropping early ICE candidate, queue full", "queued", maxPendingCandidates)
			return
		}
		m.pending = append(m.pending, candidate)
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	m.addCandidate(pc, candidate)
}

func (m *PeerManager) addCandidate(pc ports.PeerConnection, candidate webrtc.ICECandidateInit) {
	if err := pc.AddICECandidate(candidate); err != nil {
		m.logger.Warnw("Failed to add ICE candidate", "error", err)
	}
}

// flushCandidates marks the remote description as applied and adds every
// candidate queued before it.
func (m *PeerManager) flushCandidates() {
	m.mu.Lock()
	m.remoteSet = true
	pc, pending := m.pc, m.pending
	m.pending = nil
	m.mu.Unlock()

	if len(pending) > 0 {
		m.logger.Debugw("Adding queued ICE candidates", "count", len(pending))
	}
	for _, candidate := range pending {
		m.addCandidate(pc, candidate)
	}
}

// remoteGate is the peer connection seen by the negotiator. It releases the
// queued remote candidates once a remote description is accepted.
type remoteGate struct {
	ports.PeerConnection
	m *PeerManager
}

func (g remoteGate) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if err := g.PeerConnection.SetRemoteDescription(desc); err != nil {
		return err
	}
	g.m.flushCandidates()
	return nil
}

// Negotiator returns the negotiation side chosen at Start, or nil before Start.
func (m *PeerManager) Negotiator() Negotiator {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.negotiator
}

// Stream returns the local capture, or nil before Start.
func (m *PeerManager) Stream() *domain.MediaStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stream
}

// Teardown closes the peer connection, detaches every signaling listener,
// stops the local tracks and clears both views. Calling it again is a no-op.
func (m *PeerManager) Teardown() {
	m.mu.Lock()
	if m.torn {
		m.mu.Unlock()
		return
	}
	m.torn = true
	pc, stream, unsubs, cancel := m.pc, m.stream, m.unsubs, m.cancel
	m.unsubs = nil
	m.pending = nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if pc != nil {
		if err := pc.Close(); err != nil {
			m.logger.Warnw("Failed to close peer connection", "error", err)
		}
	}
	for _, unsubscribe := range unsubs {
		unsubscribe()
	}
	stopped := stream.StopAll()
	if m.cfg.Local != nil {
		m.cfg.Local.ClearLocal()
	}
	if m.cfg.Remote != nil {
		m.cfg.Remote.ClearRemote()
	}

	m.logger.Infow("Peer connection torn down", "stopped_tracks", stopped)
}
