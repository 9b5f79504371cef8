package ports

import (
	"context"

	"lexmeet/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// MediaDevices acquires local capture. Each call returns fresh tracks.
type MediaDevices interface {
	GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaStream, error)
}

// RemoteTrack is a track received from the other participant.
type RemoteTrack interface {
	ID() string
	StreamID() string
	Kind() domain.TrackKind
}

// PeerConnection is the subset of a WebRTC peer connection a call session drives.
type PeerConnection interface {
	AddTrack(track domain.MediaTrack) error
	CreateOffer(ctx context.Context) (webrtc.SessionDescription, error)
	CreateAnswer(ctx context.Context) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	SignalingState() webrtc.SignalingState
	OnICECandidate(fn func(candidate webrtc.ICECandidateInit))
	OnTrack(fn func(track RemoteTrack))
	OnConnectionStateChange(fn func(state webrtc.PeerConnectionState))
	Close() error
}

// PeerConnectionFactory builds peer connections with the configured ICE servers.
type PeerConnectionFactory interface {
	NewPeerConnection() (PeerConnection, error)
}

// LocalView shows the local capture to the participant.
type LocalView interface {
	ShowLocal(stream *domain.MediaStream)
	ClearLocal()
}

// RemoteView renders what the other participant sends.
type RemoteView interface {
	AttachRemote(track RemoteTrack)
	ClearRemote()
}
