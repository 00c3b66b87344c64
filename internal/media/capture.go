// Package media owns the peer connection, the local and remote media
// streams, and the offer/answer exchange for one call at a time. Audio
// capture and the capture-permission gate live behind narrow interfaces so
// the call engine never touches devices directly.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// LocalStream is an opaque handle over the captured local audio tracks.
type LocalStream interface {
	AudioTracks() []webrtc.TrackLocal
	// Close stops and releases every track. Must be called on every call
	// exit path — a leaked capture handle is an open microphone.
	Close()
}

// Capture acquires local audio. Implementations also register the encoders
// their tracks produce on the media engine used to build the PeerConnection.
type Capture interface {
	Populate(*webrtc.MediaEngine) error
	AcquireAudio() (LocalStream, error)
}

// Gatekeeper is the single capture-capability check consumed before
// acquiring devices. Platform-specific and treated as opaque.
type Gatekeeper interface {
	RequestAudioCapability(ctx context.Context) bool
}

// StaticGate is a Gatekeeper with a fixed answer. Desktop builds have no
// runtime permission dialog, so the default gate grants.
type StaticGate bool

func (g StaticGate) RequestAudioCapability(context.Context) bool { return bool(g) }
