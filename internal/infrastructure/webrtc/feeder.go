package webrtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"lexmeet/internal/core/domain"

	"github.com/pion/webrtc/v3/pkg/media"
	"github.com/pion/webrtc/v3/pkg/media/ivfreader"
	"github.com/pion/webrtc/v3/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	opusSampleRate       = 48000
)

// SampleWriter receives media samples. *LocalTrack implements it.
type SampleWriter interface {
	WriteSample(sample media.Sample) error
}

// FeedIVF paces the VP8 frames of an IVF stream into track at the file's
// frame rate. It returns nil at end of stream or once the track is stopped.
func FeedIVF(ctx context.Context, r io.Reader, track SampleWriter) error {
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("open ivf: %w", err)
	}

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator > 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}
	if frameDuration <= 0 {
		frameDuration = defaultFrameDuration
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ivf frame: %w", err)
		}

		if err := track.WriteSample(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			if errors.Is(err, domain.ErrTrackStopped) {
				return nil
			}
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// FeedOgg paces the Opus pages of an Ogg stream into track, timing each page
// by its granule position.
func FeedOgg(ctx context.Context, r io.Reader, track SampleWriter) error {
	reader, _, err := oggreader.NewWith(r)
	if err != nil {
		return fmt.Errorf("open ogg: %w", err)
	}

	var lastGranule uint64
	for {
		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read ogg page: %w", err)
		}

		samples := float64(header.GranulePosition - lastGranule)
		lastGranule = header.GranulePosition
		duration := time.Duration(samples / opusSampleRate * float64(time.Second))

		if err := track.WriteSample(media.Sample{Data: page, Duration: duration}); err != nil {
			if errors.Is(err, domain.ErrTrackStopped) {
				return nil
			}
			return err
		}

		if duration <= 0 {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
		}
	}
}
