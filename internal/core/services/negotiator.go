package services

import (
	"context"
	"encoding/json"
	"fmt"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Negotiator drives the SDP exchange for one side of a call. Exactly one of
// the two participants offers.
type Negotiator interface {
	Role() domain.Role
	// Bind subscribes to the signaling events this side reacts to and returns the unsubscribe functions.
	Bind(ctx context.Context) []func()
}

// NewNegotiator picks the negotiation side for role.
func NewNegotiator(role domain.Role, pc ports.PeerConnection, transport ports.SignalingTransport, roomID domain.RoomID, logger *zap.SugaredLogger) (Negotiator, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	base := negotiation{pc: pc, transport: transport, roomID: roomID, logger: logger.With("role", role)}
	switch role {
	case domain.RoleLawyer:
		return &OfferingPeer{negotiation: base}, nil
	case domain.RoleUser:
		return &AnsweringPeer{negotiation: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidRole, role)
	}
}

type negotiation struct {
	pc        ports.PeerConnection
	transport ports.SignalingTransport
	roomID    domain.RoomID
	logger    *zap.SugaredLogger
}

// OfferingPeer creates the offer once the other participant joins and accepts
// a single answer to it.
type OfferingPeer struct {
	negotiation
}

func (p *OfferingPeer) Role() domain.Role { return domain.RoleLawyer }

func (p *OfferingPeer) Bind(ctx context.Context) []func() {
	return []func(){
		p.transport.On(domain.EventPeerJoined, func([]json.RawMessage) {
			if err := p.SendOffer(ctx); err != nil {
				p.logger.Errorw("Failed to send offer", "room_id", p.roomID, "error", err)
			}
		}),
		p.transport.On(domain.EventAnswer, func(args []json.RawMessage) {
			var answer webrtc.SessionDescription
			if err := decodeArg(args, 0, &answer); err != nil {
				p.logger.Warnw("Malformed answer", "room_id", p.roomID, "error", err)
				return
			}
			if _, err := p.AcceptAnswer(answer); err != nil {
				p.logger.Errorw("Failed to apply answer", "room_id", p.roomID, "error", err)
			}
		}),
	}
}

// SendOffer creates an offer, applies it locally and sends it to the room.
func (p *OfferingPeer) SendOffer(ctx context.Context) error {
	offer, err := p.pc.CreateOffer(ctx)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := p.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local offer: %w", err)
	}
	return p.transport.Emit(ctx, domain.EventOffer, offer, p.roomID)
}

// AcceptAnswer applies answer only while an offer is outstanding. Late or
// duplicate answers are dropped and reported as not applied.
func (p *OfferingPeer) AcceptAnswer(answer webrtc.SessionDescription) (bool, error) {
	if state := p.pc.SignalingState(); state != webrtc.SignalingStateHaveLocalOffer {
		p.logger.Warnw("Ignoring answer", "room_id", p.roomID, "signaling_state", state.String())
		return false, nil
	}
	if err := p.pc.SetRemoteDescription(answer); err != nil {
		return false, fmt.Errorf("set remote answer: %w", err)
	}
	return true, nil
}

// AnsweringPeer waits for the offer and replies with an answer.
type AnsweringPeer struct {
	negotiation
}

func (p *AnsweringPeer) Role() domain.Role { return domain.RoleUser }

func (p *AnsweringPeer) Bind(ctx context.Context) []func() {
	return []func(){
		p.transport.On(domain.EventOffer, func(args []json.RawMessage) {
			var offer webrtc.SessionDescription
			if err := decodeArg(args, 0, &offer); err != nil {
				p.logger.Warnw("Malformed offer", "room_id", p.roomID, "error", err)
				return
			}
			if err := p.AcceptOffer(ctx, offer); err != nil {
				p.logger.Errorw("Failed to answer offer", "room_id", p.roomID, "error", err)
			}
		}),
	}
}

// AcceptOffer applies offer, answers it and sends the answer to the room.
// Repeated offers are processed again.
func (p *AnsweringPeer) AcceptOffer(ctx context.Context, offer webrtc.SessionDescription) error {
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := p.pc.CreateAnswer(ctx)
	if err != nil {
		return fmt.Errorf("create answer: %w", err)
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local answer: %w", err)
	}
	return p.transport.Emit(ctx, domain.EventAnswer, answer, p.roomID)
}

func decodeArg(args []json.RawMessage, i int, v any) error {
	if i >= len(args) {
		return fmt.Errorf("missing argument %d", i)
	}
	return json.Unmarshal(args[i], v)
}
