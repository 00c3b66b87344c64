//go:build !(linux && cgo)

package media

import (
	"errors"

	"github.com/pion/webrtc/v4"
)

// Microphone capture via pion/mediadevices needs the malgo driver, which is
// only wired up for Linux builds here. Other platforms get a stub that lets
// the binary compile and negotiate receive-only, but cannot originate audio.

type stubCapture struct{}

// NewCapture builds the capture backend for platforms without a microphone
// driver.
func NewCapture() (Capture, error) {
	return stubCapture{}, nil
}

func (stubCapture) Populate(engine *webrtc.MediaEngine) error {
	return engine.RegisterDefaultCodecs()
}

func (stubCapture) AcquireAudio() (LocalStream, error) {
	return nil, errors.New("audio capture not supported on this platform")
}
