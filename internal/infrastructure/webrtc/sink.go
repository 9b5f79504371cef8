package webrtc

import (
	"errors"
	"io"
	"sync"

	"lexmeet/internal/core/domain"
	"lexmeet/internal/core/ports"

	"github.com/pion/rtp"
	"go.uber.org/zap"
)

// packetSource is a remote track whose RTP can be consumed.
type packetSource interface {
	ReadPacket() (*rtp.Packet, error)
}

type keyframeRequester interface {
	RequestKeyframe() error
}

// TrackStats summarises what arrived on one remote track.
type TrackStats struct {
	Kind         domain.TrackKind
	Packets      uint64
	Bytes        uint64
	LastSequence uint16
}

// RemoteSink is the headless stand-in for the call's video elements: it
// records the local preview and drains every remote track, keeping per-track stats.
type RemoteSink struct {
	mu       sync.Mutex
	local    *domain.MediaStream
	stats    map[string]*TrackStats
	attached int
	wg       sync.WaitGroup
	logger   *zap.SugaredLogger
}

var (
	_ ports.LocalView  = (*RemoteSink)(nil)
	_ ports.RemoteView = (*RemoteSink)(nil)
)

func NewRemoteSink(logger *zap.SugaredLogger) *RemoteSink {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &RemoteSink{
		stats:  make(map[string]*TrackStats),
		logger: logger,
	}
}

func (s *RemoteSink) ShowLocal(stream *domain.MediaStream) {
	s.mu.Lock()
	s.local = stream
	s.mu.Unlock()
	s.logger.Infow("local preview attached", "stream_id", stream.ID, "tracks", len(stream.Tracks))
}

func (s *RemoteSink) ClearLocal() {
	s.mu.Lock()
	s.local = nil
	s.mu.Unlock()
}

func (s *RemoteSink) Local() *domain.MediaStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

func (s *RemoteSink) AttachRemote(track ports.RemoteTrack) {
	s.mu.Lock()
	s.attached++
	stats, ok := s.stats[track.ID()]
	if !ok {
		stats = &TrackStats{Kind: track.Kind()}
		s.stats[track.ID()] = stats
	}
	s.mu.Unlock()

	s.logger.Infow("remote track attached", "track_id", track.ID(), "kind", track.Kind())

	if track.Kind() == domain.TrackVideo {
		if kr, ok := track.(keyframeRequester); ok {
			if err := kr.RequestKeyframe(); err != nil {
				s.logger.Warnw("keyframe request failed", "track_id", track.ID(), "error", err)
			}
		}
	}

	src, ok := track.(packetSource)
	if !ok {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.drain(track.ID(), src)
	}()
}

func (s *RemoteSink) drain(trackID string, src packetSource) {
	for {
		pkt, err := src.ReadPacket()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Debugw("remote track ended", "track_id", trackID, "error", err)
			}
			return
		}

		s.mu.Lock()
		stats := s.stats[trackID]
		stats.Packets++
		stats.Bytes += uint64(len(pkt.Payload))
		stats.LastSequence = pkt.SequenceNumber
		s.mu.Unlock()
	}
}

// ClearRemote detaches the remote view. Readers finish once their tracks end.
func (s *RemoteSink) ClearRemote() {
	s.mu.Lock()
	s.attached = 0
	s.mu.Unlock()
}

// Attached reports how many remote tracks are bound to the view.
func (s *RemoteSink) Attached() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attached
}

// Wait blocks until every remote track reader has returned.
func (s *RemoteSink) Wait() {
	s.wg.Wait()
}

func (s *RemoteSink) Stats() map[string]TrackStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]TrackStats, len(s.stats))
	for id, st := range s.stats {
		out[id] = *st
	}
	return out
}
