package webrtc

import (
	"context"
	"fmt"
	"sync/atomic"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

// LocalTrack is a sample-fed local track. A disabled track drops samples
// so the remote side sees silence or a frozen frame; a stopped track refuses them.
type LocalTrack struct {
	kind    domain.TrackKind
	track   *webrtc.TrackLocalStaticSample
	enabled atomic.Bool
	stopped atomic.Bool
	dropped atomic.Uint64
}

var _ domain.MediaTrack = (*LocalTrack)(nil)

func NewLocalTrack(kind domain.TrackKind, mimeType, id, streamID string) (*LocalTrack, error) {
	capability := webrtc.RTPCodecCapability{MimeType: mimeType}
	switch mimeType {
	case webrtc.MimeTypeOpus:
		capability.ClockRate = 48000
		capability.Channels = 2
	default:
		capability.ClockRate = 90000
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	t := &LocalTrack{kind: kind, track: track}
	t.enabled.Store(true)
	return t, nil
}

func (t *LocalTrack) ID() string             { return t.track.ID() }
func (t *LocalTrack) Kind() domain.TrackKind { return t.kind }
func (t *LocalTrack) Enabled() bool          { return t.enabled.Load() }
func (t *LocalTrack) SetEnabled(enabled bool) {
	t.enabled.Store(enabled)
}
func (t *LocalTrack) Stop()         { t.stopped.Store(true) }
func (t *LocalTrack) Stopped() bool { return t.stopped.Load() }

// Dropped counts samples discarded while the track was disabled.
func (t *LocalTrack) Dropped() uint64 { return t.dropped.Load() }

func (t *LocalTrack) TrackLocal() webrtc.TrackLocal { return t.track }

func (t *LocalTrack) WriteSample(sample media.Sample) error {
	if t.stopped.Load() {
		return domain.ErrTrackStopped
	}
	if !t.enabled.Load() {
		t.dropped.Add(1)
		return nil
	}
	return t.track.WriteSample(sample)
}

// SampleDevices stands in for camera and microphone: every GetUserMedia call
// returns a fresh Opus audio track and VP8 video track to be fed with samples.
type SampleDevices struct{}

var _ ports.MediaDevices = SampleDevices{}

func (SampleDevices) GetUserMedia(ctx context.Context, constraints domain.MediaConstraints) (*domain.MediaStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !constraints.Audio && !constraints.Video {
		return nil, fmt.Errorf("%w: no media kind requested", domain.ErrUnsupportedTrack)
	}

	stream := &domain.MediaStream{ID: "lexmeet-" + uuid.NewString()}
	if constraints.Audio {
		audio, err := NewLocalTrack(domain.TrackAudio, webrtc.MimeTypeOpus, "audio-"+uuid.NewString(), stream.ID)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, audio)
	}
	if constraints.Video {
		video, err := NewLocalTrack(domain.TrackVideo, webrtc.MimeTypeVP8, "video-"+uuid.NewString(), stream.ID)
		if err != nil {
			return nil, err
		}
		stream.Tracks = append(stream.Tracks, video)
	}
	return stream, nil
}

// LocalTrackOf returns the first LocalTrack of kind in stream.
func LocalTrackOf(stream *domain.MediaStream, kind domain.TrackKind) (*LocalTrack, bool) {
	for _, t := range stream.TracksOf(kind) {
		if lt, ok := t.(*LocalTrack); ok {
			return lt, true
		}
	}
	return nil, false
}
