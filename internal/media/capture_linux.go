//go:build linux && cgo

package media

import (
	"fmt"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/webrtc/v4"
)

// micCapture captures the default microphone via pion/mediadevices (malgo),
// encoding with Opus. Audio only — no camera driver is linked.
type micCapture struct {
	selector *mediadevices.CodecSelector
}

// NewCapture builds the microphone capture backend.
func NewCapture() (Capture, error) {
	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("init opus encoder: %w", err)
	}

	selector := mediadevices.NewCodecSelector(
		mediadevices.WithAudioEncoders(&opusParams),
	)
	return &micCapture{selector: selector}, nil
}

func (m *micCapture) Populate(engine *webrtc.MediaEngine) error {
	m.selector.Populate(engine)
	return nil
}

func (m *micCapture) AcquireAudio() (LocalStream, error) {
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(_ *mediadevices.MediaTrackConstraints) {},
		Codec: m.selector,
	})
	if err != nil {
		return nil, fmt.Errorf("open microphone: %w", err)
	}
	return &micStream{tracks: stream.GetTracks()}, nil
}

// micStream wraps the mediadevices tracks as a LocalStream.
type micStream struct {
	tracks []mediadevices.Track
}

func (s *micStream) AudioTracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(s.tracks))
	for _, t := range s.tracks {
		out = append(out, t)
	}
	return out
}

func (s *micStream) Close() {
	for _, t := range s.tracks {
		t.Close()
	}
}
