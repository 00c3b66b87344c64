package signal

import (
	"encoding/json"
	"testing"

	"github.com/pion/webrtc/v4"
)

func TestDecodeDescription(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
		want    webrtc.SDPType
	}{
		{"offer", `{"type":"offer","sdp":"v=0"}`, false, webrtc.SDPTypeOffer},
		{"answer", `{"type":"answer","sdp":"v=0"}`, false, webrtc.SDPTypeAnswer},
		{"missing sdp", `{"type":"offer"}`, true, 0},
		{"empty sdp", `{"type":"offer","sdp":""}`, true, 0},
		{"bad type", `{"type":"pranswer","sdp":"v=0"}`, true, 0},
		{"not json", `nope`, true, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, err := DecodeDescription(json.RawMessage(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("DecodeDescription(%q) succeeded, want error", tt.raw)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDescription(%q): %v", tt.raw, err)
			}
			if sd.Type != tt.want || sd.SDP != "v=0" {
				t.Errorf("got %v %q, want %v \"v=0\"", sd.Type, sd.SDP, tt.want)
			}
		})
	}
}

func TestCandidateRoundTrip(t *testing.T) {
	mid := "audio"
	var line uint16 = 1
	in := webrtc.ICECandidateInit{
		Candidate:     "candidate:1 1 udp 2130706431 192.0.2.1 54321 typ host",
		SDPMid:        &mid,
		SDPMLineIndex: &line,
	}

	raw, err := EncodeCandidate(in)
	if err != nil {
		t.Fatalf("EncodeCandidate: %v", err)
	}
	out, err := DecodeCandidate(raw)
	if err != nil {
		t.Fatalf("DecodeCandidate: %v", err)
	}
	if out.Candidate != in.Candidate {
		t.Errorf("candidate = %q, want %q", out.Candidate, in.Candidate)
	}
	if out.SDPMid == nil || *out.SDPMid != mid {
		t.Errorf("sdpMid = %v, want %q", out.SDPMid, mid)
	}
	if out.SDPMLineIndex == nil || *out.SDPMLineIndex != line {
		t.Errorf("sdpMLineIndex = %v, want %d", out.SDPMLineIndex, line)
	}
}

func TestDecodeCandidateRejectsEmpty(t *testing.T) {
	if _, err := DecodeCandidate(json.RawMessage(`{"candidate":""}`)); err == nil {
		t.Error("empty candidate accepted")
	}
	if _, err := DecodeCandidate(json.RawMessage(`garbage`)); err == nil {
		t.Error("non-JSON candidate accepted")
	}
}

func TestDecodeErrorReason(t *testing.T) {
	if got := DecodeErrorReason(json.RawMessage(`{"reason":"callee offline"}`)); got != "callee offline" {
		t.Errorf("reason = %q, want %q", got, "callee offline")
	}
	if got := DecodeErrorReason(nil); got != "unknown error" {
		t.Errorf("reason for empty payload = %q, want fallback", got)
	}
	if got := DecodeErrorReason(json.RawMessage(`{}`)); got != "unknown error" {
		t.Errorf("reason for missing field = %q, want fallback", got)
	}
}
