// Package call implements the call session state machine: it interprets
// inbound signaling events and local user actions, drives the media
// coordinator and the ICE candidate buffer, and exposes a small
// command/query surface to the UI layer.
package call

import "github.com/pion/webrtc/v4"

// Direction marks who initiated the call.
type Direction int

const (
	DirectionOutgoing Direction = iota
	DirectionIncoming
)

func (d Direction) String() string {
	if d == DirectionIncoming {
		return "incoming"
	}
	return "outgoing"
}

// Status is the externally observable projection of the state machine.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusIncoming
	StatusInCall
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusIncoming:
		return "incoming"
	case StatusInCall:
		return "in_call"
	default:
		return "idle"
	}
}

// Session identifies one in-progress or pending call. CallID stays empty
// until the server assigns one on invite acknowledgment. At most one Session
// exists at a time.
type Session struct {
	CallID    string
	Peer      string // peer email
	Direction Direction
	Offer     *webrtc.SessionDescription // incoming sessions: the peer's pending offer
}
