// Package signal implements the client side of the call signaling protocol:
// the wire message types and a persistent WebSocket channel manager with
// reconnection and bounded outbound buffering.
package signal

import (
	"encoding/json"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// Kind identifies the kind of signaling message.
type Kind string

const (
	KindCallInvite    Kind = "call.invite"
	KindCallInviteAck Kind = "call.invite.ack"
	KindCallAccept    Kind = "call.accept"
	KindCallReject    Kind = "call.reject"
	KindCallEnd       Kind = "call.end"
	KindIceCandidate  Kind = "ice.candidate"
	KindCallError     Kind = "call.error"
)

// Message is the JSON structure exchanged over the signaling WebSocket.
// CallID is assigned by the server on invite acknowledgment; invite and
// invite-ack are the only kinds expected to travel without one.
type Message struct {
	Type    Kind            `json:"type"`
	CallID  string          `json:"call_id,omitempty"`
	To      string          `json:"to,omitempty"`
	From    string          `json:"from,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DescriptionPayload carries an SDP offer or answer.
type DescriptionPayload struct {
	Type string `json:"type"` // "offer" or "answer"
	SDP  string `json:"sdp"`
}

// CandidatePayload carries one trickled ICE candidate. Field names follow the
// RTCIceCandidateInit shape so that browser and mobile peers interoperate.
type CandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// ErrorPayload carries the reason attached to a call.error message.
type ErrorPayload struct {
	Reason string `json:"reason"`
}

// EncodeDescription serializes a local session description for transmission.
func EncodeDescription(sd webrtc.SessionDescription) (json.RawMessage, error) {
	return json.Marshal(DescriptionPayload{Type: sd.Type.String(), SDP: sd.SDP})
}

// DecodeDescription validates and parses a session-description payload.
// Both fields must be present: a missing SDP or type means the peer sent a
// malformed call request, which must abort the call rather than proceed.
func DecodeDescription(raw json.RawMessage) (webrtc.SessionDescription, error) {
	var p DescriptionPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("parse description payload: %w", err)
	}
	if p.SDP == "" {
		return webrtc.SessionDescription{}, fmt.Errorf("description payload missing sdp")
	}
	sdpType := webrtc.NewSDPType(p.Type)
	if sdpType != webrtc.SDPTypeOffer && sdpType != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("unexpected description type %q", p.Type)
	}
	return webrtc.SessionDescription{Type: sdpType, SDP: p.SDP}, nil
}

// EncodeCandidate serializes a gathered local candidate for transmission.
func EncodeCandidate(init webrtc.ICECandidateInit) (json.RawMessage, error) {
	return json.Marshal(CandidatePayload{
		Candidate:     init.Candidate,
		SDPMid:        init.SDPMid,
		SDPMLineIndex: init.SDPMLineIndex,
	})
}

// DecodeCandidate validates and parses an ICE-candidate payload.
func DecodeCandidate(raw json.RawMessage) (webrtc.ICECandidateInit, error) {
	var p CandidatePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return webrtc.ICECandidateInit{}, fmt.Errorf("parse candidate payload: %w", err)
	}
	if p.Candidate == "" {
		return webrtc.ICECandidateInit{}, fmt.Errorf("candidate payload missing candidate")
	}
	return webrtc.ICECandidateInit{
		Candidate:     p.Candidate,
		SDPMid:        p.SDPMid,
		SDPMLineIndex: p.SDPMLineIndex,
	}, nil
}

// DecodeErrorReason extracts the reason from a call.error payload, falling
// back to a generic string for peers that send no structured reason.
func DecodeErrorReason(raw json.RawMessage) string {
	var p ErrorPayload
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err == nil && p.Reason != "" {
			return p.Reason
		}
	}
	return "unknown error"
}
