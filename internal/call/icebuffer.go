package call

import (
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/allcallall/voicecall/internal/util"
)

// ICEBuffer holds candidates that cannot be delivered yet. Local candidates
// queue until a call identifier and peer exist to address them; remote
// candidates queue until a remote description has been applied — a candidate
// applied before the description is rejected by the media layer. Each side
// drains in FIFO order.
type ICEBuffer struct {
	mu     sync.Mutex
	local  []webrtc.ICECandidateInit
	remote []webrtc.ICECandidateInit
}

// EnqueueLocal appends a locally gathered candidate.
func (b *ICEBuffer) EnqueueLocal(c webrtc.ICECandidateInit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local = append(b.local, c)
}

// FlushLocal returns all buffered local candidates in insertion order and
// clears the buffer. Called once per transition into an addressable state —
// on invite-ack and on accept.
func (b *ICEBuffer) FlushLocal() []webrtc.ICECandidateInit {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.local
	b.local = nil
	return out
}

// EnqueueRemote appends a remote candidate unless an identical one (same
// candidate string and media-line identifiers) is already queued, so
// duplicate delivery is harmless.
func (b *ICEBuffer) EnqueueRemote(c webrtc.ICECandidateInit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, queued := range b.remote {
		if sameCandidate(queued, c) {
			return
		}
	}
	b.remote = append(b.remote, c)
}

// DrainRemote applies every buffered remote candidate in FIFO order via
// apply. A candidate that fails to apply is logged and skipped — a single
// malformed candidate must not abort the call. The buffer is cleared
// unconditionally.
func (b *ICEBuffer) DrainRemote(apply func(webrtc.ICECandidateInit) error) {
	b.mu.Lock()
	pending := b.remote
	b.remote = nil
	b.mu.Unlock()

	for _, c := range pending {
		if err := apply(c); err != nil {
			util.LogWarning("call: apply queued ICE candidate: %v", err)
		}
	}
}

// Clear drops both buffers. Called whenever the peer connection is torn down.
func (b *ICEBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.local = nil
	b.remote = nil
}

// Len returns the buffered (local, remote) candidate counts.
func (b *ICEBuffer) Len() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.local), len(b.remote)
}

func sameCandidate(a, b webrtc.ICECandidateInit) bool {
	return a.Candidate == b.Candidate &&
		eqStrPtr(a.SDPMid, b.SDPMid) &&
		eqUint16Ptr(a.SDPMLineIndex, b.SDPMLineIndex)
}

func eqStrPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func eqUint16Ptr(a, b *uint16) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
