package domain

// TrackKind is the media kind of a track.
type TrackKind string

const (
	TrackAudio TrackKind = "audio"
	TrackVideo TrackKind = "video"
)

// MediaTrack is one local capture track. Disabling a track mutes it in place;
// stopping it releases it for good.
type MediaTrack interface {
	ID() string
	Kind() TrackKind
	Enabled() bool
	SetEnabled(enabled bool)
	Stop()
	Stopped() bool
}

// MediaStream is the local audio+video capture owned by one call session.
type MediaStream struct {
	ID     string
	Tracks []MediaTrack
}

// TracksOf returns the tracks of the given kind in capture order.
func (s *MediaStream) TracksOf(kind TrackKind) []MediaTrack {
	if s == nil {
		return nil
	}
	out := make([]MediaTrack, 0, len(s.Tracks))
	for _, t := range s.Tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// StopAll stops every track that is still live and reports how many it stopped.
func (s *MediaStream) StopAll() int {
	if s == nil {
		return 0
	}
	stopped := 0
	for _, t := range s.Tracks {
		if !t.Stopped() {
			t.Stop()
			stopped++
		}
	}
	return stopped
}

// MediaConstraints selects which kinds are captured.
type MediaConstraints struct {
	Audio bool
	Video bool
}
