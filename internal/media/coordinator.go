package media

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/allcallall/voicecall/internal/util"
)

// ErrNoPeerConnection is returned by negotiation operations invoked before
// CreatePeerConnection or after Teardown.
var ErrNoPeerConnection = errors.New("media: no active peer connection")

// Callbacks are the three media-layer notifications surfaced to the call
// engine. They are invoked from pion goroutines; handlers must re-read any
// session state from its owner rather than capture copies.
type Callbacks struct {
	// OnLocalCandidate fires for every gathered local ICE candidate.
	OnLocalCandidate func(webrtc.ICECandidateInit)
	// OnRemoteTrack fires when the peer's audio track arrives.
	OnRemoteTrack func(*webrtc.TrackRemote)
	// OnTransportFailure fires when the connection reaches failed,
	// disconnected, or closed. This is the only path by which a call ends
	// without a signaling message.
	OnTransportFailure func(webrtc.PeerConnectionState)
}

// Coordinator owns the single live PeerConnection and the local/remote
// stream handles. At most one of each may exist at a time; Teardown releases
// everything and is safe to call repeatedly.
type Coordinator struct {
	stunServers []string
	capture     Capture

	mu           sync.Mutex
	pc           *webrtc.PeerConnection
	local        LocalStream
	remoteTracks []*webrtc.TrackRemote
	gen          uint64 // bumped on teardown; stale pion callbacks check it and bail
}

// NewCoordinator creates a Coordinator using the given STUN servers and
// capture backend.
func NewCoordinator(stunServers []string, capture Capture) *Coordinator {
	return &Coordinator{stunServers: stunServers, capture: capture}
}

// AcquireAudio opens the local audio capture stream. The stream is attached
// to the peer connection by AttachLocalAudio and released by Teardown.
func (co *Coordinator) AcquireAudio() error {
	stream, err := co.capture.AcquireAudio()
	if err != nil {
		return fmt.Errorf("acquire audio: %w", err)
	}

	co.mu.Lock()
	if co.local != nil {
		co.local.Close()
	}
	co.local = stream
	co.mu.Unlock()
	return nil
}

// CreatePeerConnection constructs the peer connection and registers the
// three callbacks. Callbacks registered here stop firing after Teardown.
func (co *Coordinator) CreatePeerConnection(cb Callbacks) error {
	pc, err := newPeerConnection(co.stunServers, co.capture)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	co.mu.Lock()
	if co.pc != nil {
		co.mu.Unlock()
		pc.Close()
		return errors.New("media: peer connection already exists")
	}
	co.pc = pc
	co.gen++
	gen := co.gen
	co.mu.Unlock()

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		// nil marks the end of gathering.
		if c == nil || !co.live(gen) {
			return
		}
		if cb.OnLocalCandidate != nil {
			cb.OnLocalCandidate(c.ToJSON())
		}
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		if !co.live(gen) {
			return
		}
		co.mu.Lock()
		co.remoteTracks = append(co.remoteTracks, track)
		co.mu.Unlock()
		util.LogDebug("media: remote track arrived (%s)", track.Codec().MimeType)
		if cb.OnRemoteTrack != nil {
			cb.OnRemoteTrack(track)
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		if !co.live(gen) {
			return
		}
		util.LogDebug("media: peer connection state %s", state)
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			if cb.OnTransportFailure != nil {
				cb.OnTransportFailure(state)
			}
		}
	})

	return nil
}

// AttachLocalAudio adds every captured audio track to the peer connection.
func (co *Coordinator) AttachLocalAudio() error {
	co.mu.Lock()
	pc, local := co.pc, co.local
	co.mu.Unlock()

	if pc == nil {
		return ErrNoPeerConnection
	}
	if local == nil {
		return errors.New("media: no local audio stream acquired")
	}
	for _, track := range local.AudioTracks() {
		if _, err := pc.AddTrack(track); err != nil {
			return fmt.Errorf("attach audio track: %w", err)
		}
	}
	return nil
}

// CreateOffer produces an audio-only offer and applies it locally.
func (co *Coordinator) CreateOffer() (webrtc.SessionDescription, error) {
	co.mu.Lock()
	pc := co.pc
	co.mu.Unlock()

	if pc == nil {
		return webrtc.SessionDescription{}, ErrNoPeerConnection
	}
	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("apply local offer: %w", err)
	}
	return offer, nil
}

// CreateAnswer produces an answer to the applied remote offer and applies it
// locally.
func (co *Coordinator) CreateAnswer() (webrtc.SessionDescription, error) {
	co.mu.Lock()
	pc := co.pc
	co.mu.Unlock()

	if pc == nil {
		return webrtc.SessionDescription{}, ErrNoPeerConnection
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("apply local answer: %w", err)
	}
	return answer, nil
}

// ApplyRemoteDescription applies the peer's offer or answer.
func (co *Coordinator) ApplyRemoteDescription(sd webrtc.SessionDescription) error {
	co.mu.Lock()
	pc := co.pc
	co.mu.Unlock()

	if pc == nil {
		return ErrNoPeerConnection
	}
	if err := pc.SetRemoteDescription(sd); err != nil {
		return fmt.Errorf("apply remote description: %w", err)
	}
	return nil
}

// AddRemoteCandidate applies one remote ICE candidate.
func (co *Coordinator) AddRemoteCandidate(init webrtc.ICECandidateInit) error {
	co.mu.Lock()
	pc := co.pc
	co.mu.Unlock()

	if pc == nil {
		return ErrNoPeerConnection
	}
	return pc.AddICECandidate(init)
}

// HasRemoteDescription reports whether a remote description has been applied.
// Remote candidates arriving earlier must be buffered, not applied.
func (co *Coordinator) HasRemoteDescription() bool {
	co.mu.Lock()
	pc := co.pc
	co.mu.Unlock()

	return pc != nil && pc.RemoteDescription() != nil
}

// Teardown releases everything, in order: callback bindings, the peer
// connection, local capture tracks, remote track handles. A no-op when
// nothing is live; safe to call from multiple racing triggers.
func (co *Coordinator) Teardown() {
	co.mu.Lock()
	pc, local := co.pc, co.local
	co.pc = nil
	co.local = nil
	co.remoteTracks = nil
	co.gen++
	co.mu.Unlock()

	if pc != nil {
		pc.OnICECandidate(func(*webrtc.ICECandidate) {})
		pc.OnTrack(func(*webrtc.TrackRemote, *webrtc.RTPReceiver) {})
		pc.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		if err := pc.Close(); err != nil {
			util.LogWarning("media: close peer connection: %v", err)
		}
	}
	if local != nil {
		local.Close()
	}
}

func (co *Coordinator) live(gen uint64) bool {
	co.mu.Lock()
	defer co.mu.Unlock()
	return co.gen == gen && co.pc != nil
}
