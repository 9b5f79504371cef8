package webrtc

import (
	"context"
	"fmt"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"
	"lexmeet/pkg/config"

	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config selects the ICE servers and the UDP port range for peer connections.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
}

func ConfigFrom(cfg *config.Config) Config {
	var out Config
	for _, s := range cfg.WebRTC.ICEServers {
		out.ICEServers = append(out.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	out.PortRange.Min = cfg.WebRTC.PortRange.Min
	out.PortRange.Max = cfg.WebRTC.PortRange.Max
	return out
}

// PeerFactory builds pion peer connections. It implements ports.PeerConnectionFactory.
type PeerFactory struct {
	api    *webrtc.API
	config webrtc.Configuration
	logger *zap.SugaredLogger
}

func NewPeerFactory(cfg Config, logger *zap.SugaredLogger) (*PeerFactory, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if cfg.PortRange.Min > 0 && cfg.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(cfg.PortRange.Min, cfg.PortRange.Max); err != nil {
			return nil, fmt.Errorf("set port range: %w", err)
		}
	}

	return &PeerFactory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(mediaEngine),
			webrtc.WithSettingEngine(settingEngine),
		),
		config: webrtc.Configuration{
			ICEServers:   cfg.ICEServers,
			SDPSemantics: webrtc.SDPSemanticsUnifiedPlan,
		},
		logger: logger,
	}, nil
}

func (f *PeerFactory) NewPeerConnection() (ports.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(f.config)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}
	return &PeerConnection{pc: pc, logger: f.logger}, nil
}

// trackSource is implemented by local tracks that can be sent over pion.
type trackSource interface {
	TrackLocal() webrtc.TrackLocal
}

// PeerConnection adapts *webrtc.PeerConnection to ports.PeerConnection.
type PeerConnection struct {
	pc     *webrtc.PeerConnection
	logger *zap.SugaredLogger
}

func (p *PeerConnection) AddTrack(track domain.MediaTrack) error {
	src, ok := track.(trackSource)
	if !ok {
		return fmt.Errorf("%w: %T", domain.ErrUnsupportedTrack, track)
	}
	sender, err := p.pc.AddTrack(src.TrackLocal())
	if err != nil {
		return fmt.Errorf("add %s track: %w", track.Kind(), err)
	}

	// RTCP has to be drained for the sender to make progress.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *PeerConnection) CreateOffer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return p.pc.CreateOffer(nil)
}

func (p *PeerConnection) CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error) {
	if err := ctx.Err(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return p.pc.CreateAnswer(nil)
}

func (p *PeerConnection) SetLocalDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetLocalDescription(desc)
}

func (p *PeerConnection) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return p.pc.SetRemoteDescription(desc)
}

func (p *PeerConnection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return p.pc.AddICECandidate(candidate)
}

func (p *PeerConnection) SignalingState() webrtc.SignalingState {
	return p.pc.SignalingState()
}

func (p *PeerConnection) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering
		if c == nil {
			return
		}
		fn(c.ToJSON())
	})
}

func (p *PeerConnection) OnTrack(fn func(ports.RemoteTrack)) {
	p.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		p.logger.Infow("remote track arrived",
			"track_id", track.ID(),
			"stream_id", track.StreamID(),
			"codec", track.Codec().MimeType,
		)
		fn(&RemoteTrack{track: track, pc: p.pc})
	})
}

func (p *PeerConnection) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(fn)
}

func (p *PeerConnection) Close() error {
	return p.pc.Close()
}

// RemoteTrack is a track received over a pion peer connection.
type RemoteTrack struct {
	track *webrtc.TrackRemote
	pc    *webrtc.PeerConnection
	buf   [1500]byte
}

func (t *RemoteTrack) ID() string       { return t.track.ID() }
func (t *RemoteTrack) StreamID() string { return t.track.StreamID() }

func (t *RemoteTrack) Kind() domain.TrackKind {
	if t.track.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.TrackAudio
	}
	return domain.TrackVideo
}

// ReadPacket blocks for the next RTP packet. It is not safe for concurrent use.
func (t *RemoteTrack) ReadPacket() (*rtp.Packet, error) {
	n, _, err := t.track.Read(t.buf[:])
	if err != nil {
		return nil, err
	}
	pkt := &rtp.Packet{}
	if err := pkt.Unmarshal(t.buf[:n]); err != nil {
		return nil, fmt.Errorf("unmarshal rtp: %w", err)
	}
	return pkt, nil
}

// RequestKeyframe asks the sender for a fresh keyframe.
func (t *RemoteTrack) RequestKeyframe() error {
	return t.pc.WriteRTCP([]rtcp.Packet{
		&rtcp.PictureLossIndication{MediaSSRC: uint32(t.track.SSRC())},
	})
}
