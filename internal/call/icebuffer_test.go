package call

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pion/webrtc/v4"
)

func candidate(s string, mid string, line uint16) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{Candidate: s, SDPMid: &mid, SDPMLineIndex: &line}
}

// TestFlushLocalPreservesOrder verifies local candidates come back in
// insertion order and that the buffer is cleared by the flush.
func TestFlushLocalPreservesOrder(t *testing.T) {
	var b ICEBuffer
	for i := 0; i < 5; i++ {
		b.EnqueueLocal(candidate(fmt.Sprintf("candidate:%d", i), "0", 0))
	}

	out := b.FlushLocal()
	if len(out) != 5 {
		t.Fatalf("flushed %d candidates, want 5", len(out))
	}
	for i, c := range out {
		if want := fmt.Sprintf("candidate:%d", i); c.Candidate != want {
			t.Errorf("candidate %d = %q, want %q", i, c.Candidate, want)
		}
	}

	if again := b.FlushLocal(); len(again) != 0 {
		t.Errorf("second flush returned %d candidates, want 0", len(again))
	}
}

// TestEnqueueRemoteDedup verifies duplicate remote candidates (same
// candidate string and media identifiers) are queued only once.
func TestEnqueueRemoteDedup(t *testing.T) {
	var b ICEBuffer
	c := candidate("candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host", "audio", 0)
	b.EnqueueRemote(c)
	b.EnqueueRemote(c)
	// Same string, different media line — not a duplicate.
	b.EnqueueRemote(candidate("candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host", "audio", 1))

	if _, remote := b.Len(); remote != 2 {
		t.Fatalf("remote buffer holds %d candidates, want 2", remote)
	}
}

// TestDrainRemoteSkipsFailures verifies a candidate that fails to apply is
// skipped without aborting the drain, and the buffer is cleared afterward.
func TestDrainRemoteSkipsFailures(t *testing.T) {
	var b ICEBuffer
	b.EnqueueRemote(candidate("candidate:a", "0", 0))
	b.EnqueueRemote(candidate("candidate:bad", "0", 0))
	b.EnqueueRemote(candidate("candidate:c", "0", 0))

	var applied []string
	b.DrainRemote(func(c webrtc.ICECandidateInit) error {
		if c.Candidate == "candidate:bad" {
			return errors.New("malformed")
		}
		applied = append(applied, c.Candidate)
		return nil
	})

	if len(applied) != 2 || applied[0] != "candidate:a" || applied[1] != "candidate:c" {
		t.Errorf("applied = %v, want [candidate:a candidate:c]", applied)
	}
	if _, remote := b.Len(); remote != 0 {
		t.Errorf("remote buffer holds %d candidates after drain, want 0", remote)
	}
}

// TestClearEmptiesBothSides verifies Clear drops local and remote buffers.
func TestClearEmptiesBothSides(t *testing.T) {
	var b ICEBuffer
	b.EnqueueLocal(candidate("candidate:l", "0", 0))
	b.EnqueueRemote(candidate("candidate:r", "0", 0))

	b.Clear()

	local, remote := b.Len()
	if local != 0 || remote != 0 {
		t.Errorf("Len() = (%d, %d) after Clear, want (0, 0)", local, remote)
	}
}
