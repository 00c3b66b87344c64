package call

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	mediapkg "github.com/allcallall/voicecall/internal/media"
	"github.com/allcallall/voicecall/internal/signal"
	"github.com/allcallall/voicecall/internal/util"
)

// Precondition failures surfaced to the command caller.
var (
	ErrNotAuthenticated = errors.New("call: not authenticated")
	ErrBusy             = errors.New("call: another call is in progress")
	ErrNoIncomingCall   = errors.New("call: no incoming call to answer")
	ErrNoActiveCall     = errors.New("call: no active call")
	ErrPermissionDenied = errors.New("call: audio capture permission denied")
)

// Sender transmits signaling messages. Satisfied by *signal.Client.
type Sender interface {
	Send(*signal.Message) (signal.SendResult, error)
}

// Media is the negotiation surface the engine drives. Satisfied by
// *media.Coordinator.
type Media interface {
	AcquireAudio() error
	CreatePeerConnection(mediapkg.Callbacks) error
	AttachLocalAudio() error
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	ApplyRemoteDescription(webrtc.SessionDescription) error
	AddRemoteCandidate(webrtc.ICECandidateInit) error
	HasRemoteDescription() bool
	Teardown()
}

// Auth exposes the authenticated identity as read-only inputs. An empty
// token means the engine may not hold a call.
type Auth interface {
	UserEmail() string
	Token() string
}

// Notifier delivers one user-facing notification. Invoked from engine
// goroutines while the engine lock is held — it must not call back into the
// engine.
type Notifier func(title, detail string)

// EngineConfig wires an Engine's collaborators. Notify and OnStatus may be
// nil.
type EngineConfig struct {
	Sender   Sender
	Media    Media
	Gate     mediapkg.Gatekeeper
	Auth     Auth
	Notify   Notifier
	OnStatus func(Status)
}

// Engine is the call session state machine. It is the only writer of the
// call status and session; every transition runs under one lock, and every
// continuation re-reads the session from the engine at the moment of use, so
// a reject or teardown processed while a start/accept flow awaited the
// permission gate cannot act on a replaced session.
type Engine struct {
	sender   Sender
	media    Media
	gate     mediapkg.Gatekeeper
	auth     Auth
	notify   Notifier
	onStatus func(Status)

	mu            sync.Mutex
	status        Status
	session       *Session
	pendingTarget string // outgoing invite target before the server acks a call ID
	ice           ICEBuffer
}

// NewEngine creates an Engine in the Idle state.
func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{
		sender:   cfg.Sender,
		media:    cfg.Media,
		gate:     cfg.Gate,
		auth:     cfg.Auth,
		notify:   cfg.Notify,
		onStatus: cfg.OnStatus,
	}
}

// Run consumes signaling events until ctx is cancelled or the event channel
// closes. Inbound messages are handled in arrival order.
func (e *Engine) Run(ctx context.Context, events <-chan signal.Event) {
	for {
		select {
		case <-ctx.Done():
			e.Teardown()
			return
		case ev, ok := <-events:
			if !ok {
				e.Teardown()
				return
			}
			switch ev.Kind {
			case signal.EventOpen:
				util.LogInfo("call: signaling channel open")
			case signal.EventClose:
				util.LogWarning("call: signaling channel closed (code=%d, reason=%q)", ev.Code, ev.Reason)
				e.handleChannelClose()
			case signal.EventError:
				util.LogWarning("call: signaling error: %v", ev.Err)
			case signal.EventMessage:
				e.handleMessage(ev.Message)
			}
		}
	}
}

// ---------------------------------------------------------------------------
// Queries
// ---------------------------------------------------------------------------

// Status returns the externally observable call status.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Session returns a copy of the current session, if any.
func (e *Engine) Session() (Session, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return Session{}, false
	}
	return *e.session, true
}

// ---------------------------------------------------------------------------
// Local user actions
// ---------------------------------------------------------------------------

// StartCall places an outgoing call to peer. Fails fast without side effects
// when unauthenticated or not Idle. Any failure after resources have been
// touched tears everything down and returns to Idle.
func (e *Engine) StartCall(ctx context.Context, peer string) error {
	e.mu.Lock()
	if e.auth.UserEmail() == "" || e.auth.Token() == "" {
		e.mu.Unlock()
		return ErrNotAuthenticated
	}
	if e.status != StatusIdle {
		e.mu.Unlock()
		return ErrBusy
	}
	e.mu.Unlock()

	if !e.gate.RequestAudioCapability(ctx) {
		e.notifyf("Microphone required", "grant microphone access to place calls")
		return ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// The permission prompt may have raced an inbound invite or a teardown.
	if e.status != StatusIdle {
		return ErrBusy
	}
	if err := e.offerLocked(peer); err != nil {
		e.teardownLocked()
		e.notifyf("Unable to start call", err.Error())
		return err
	}
	return nil
}

// offerLocked acquires audio, builds the peer connection, and sends the
// invite carrying the offer. The target is remembered as pending until the
// server acks with a call ID.
func (e *Engine) offerLocked(peer string) error {
	if err := e.media.AcquireAudio(); err != nil {
		return err
	}
	if err := e.media.CreatePeerConnection(e.mediaCallbacks()); err != nil {
		return err
	}
	if err := e.media.AttachLocalAudio(); err != nil {
		return err
	}
	offer, err := e.media.CreateOffer()
	if err != nil {
		return err
	}
	payload, err := signal.EncodeDescription(offer)
	if err != nil {
		return err
	}

	e.pendingTarget = peer
	e.setStatusLocked(StatusConnecting)

	if _, err := e.sender.Send(&signal.Message{
		Type:    signal.KindCallInvite,
		To:      peer,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("send invite: %w", err)
	}
	return nil
}

// AcceptCall answers the ringing incoming call.
func (e *Engine) AcceptCall(ctx context.Context) error {
	e.mu.Lock()
	s := e.session
	if e.status != StatusIncoming || s == nil || s.Direction != DirectionIncoming || s.Offer == nil {
		e.mu.Unlock()
		return ErrNoIncomingCall
	}
	callID, peer, offer := s.CallID, s.Peer, *s.Offer
	e.mu.Unlock()

	if !e.gate.RequestAudioCapability(ctx) {
		e.notifyf("Microphone required", "grant microphone access to answer calls")
		return ErrPermissionDenied
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// A remote end/reject may have raced the permission prompt; act only on
	// the same ringing session we validated above.
	if e.status != StatusIncoming || e.session == nil ||
		e.session.Peer != peer || e.session.CallID != callID {
		return ErrNoIncomingCall
	}
	if err := e.answerLocked(callID, peer, offer); err != nil {
		e.teardownLocked()
		e.notifyf("Unable to answer call", err.Error())
		return err
	}
	return nil
}

// answerLocked acquires audio, applies the stored offer, drains remote
// candidates queued ahead of the description, and sends the answer.
func (e *Engine) answerLocked(callID, peer string, offer webrtc.SessionDescription) error {
	if err := e.media.AcquireAudio(); err != nil {
		return err
	}
	if err := e.media.CreatePeerConnection(e.mediaCallbacks()); err != nil {
		return err
	}
	if err := e.media.AttachLocalAudio(); err != nil {
		return err
	}
	if err := e.media.ApplyRemoteDescription(offer); err != nil {
		return fmt.Errorf("invalid call request: %w", err)
	}
	e.ice.DrainRemote(e.media.AddRemoteCandidate)

	answer, err := e.media.CreateAnswer()
	if err != nil {
		return err
	}
	payload, err := signal.EncodeDescription(answer)
	if err != nil {
		return err
	}
	if _, err := e.sender.Send(&signal.Message{
		Type:    signal.KindCallAccept,
		CallID:  callID,
		To:      peer,
		Payload: payload,
	}); err != nil {
		return fmt.Errorf("send accept: %w", err)
	}
	e.setStatusLocked(StatusInCall)
	return nil
}

// RejectCall declines the current call and tears down.
func (e *Engine) RejectCall() error {
	return e.finishCall(signal.KindCallReject)
}

// EndCall hangs up the current call and tears down.
func (e *Engine) EndCall() error {
	return e.finishCall(signal.KindCallEnd)
}

func (e *Engine) finishCall(kind signal.Kind) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil {
		return ErrNoActiveCall
	}
	e.sendControlLocked(&signal.Message{Type: kind, CallID: s.CallID, To: s.Peer})
	e.teardownLocked()
	return nil
}

// Teardown unconditionally returns the engine to Idle, releasing the peer
// connection, both streams, and both candidate buffers. Idempotent.
func (e *Engine) Teardown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.teardownLocked()
}

// HandleAuthRevoked is called when the auth token disappears (logout or
// expiry). A call may not outlive its credentials.
func (e *Engine) HandleAuthRevoked() {
	util.LogInfo("call: auth token revoked, tearing down")
	e.Teardown()
}

// ---------------------------------------------------------------------------
// Inbound signaling
// ---------------------------------------------------------------------------

func (e *Engine) handleMessage(msg *signal.Message) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case signal.KindCallInviteAck:
		e.handleInviteAck(msg)
	case signal.KindCallInvite:
		e.handleInvite(msg)
	case signal.KindCallAccept:
		e.handleAccept(msg)
	case signal.KindCallReject:
		e.handleTerminal(msg, "Call rejected", "declined the call")
	case signal.KindCallEnd:
		e.handleTerminal(msg, "Call ended", "ended the call")
	case signal.KindIceCandidate:
		e.handleCandidate(msg)
	case signal.KindCallError:
		e.handleError(msg)
	default:
		util.LogDebug("call: ignoring message type %q", msg.Type)
	}
}

// handleInviteAck binds the server-issued call ID to the pending outgoing
// target and flushes local candidates now that they are addressable. A stale
// or duplicate ack (no pending target) is a no-op.
func (e *Engine) handleInviteAck(msg *signal.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pendingTarget == "" {
		util.LogDebug("call: invite ack with no pending target, ignoring")
		return
	}
	e.session = &Session{
		CallID:    msg.CallID,
		Peer:      e.pendingTarget,
		Direction: DirectionOutgoing,
	}
	e.pendingTarget = ""
	e.setStatusLocked(StatusConnecting)
	if e.session.CallID != "" {
		e.flushLocalLocked()
	}
}

// handleInvite rings an incoming call. Only meaningful while Idle; the
// payload must be a valid session description.
func (e *Engine) handleInvite(msg *signal.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle || e.session != nil {
		util.LogWarning("call: invite from %q ignored, already busy", msg.From)
		return
	}
	if msg.From == "" {
		e.notifyf("Call error", "received an invalid call request")
		return
	}
	offer, err := signal.DecodeDescription(msg.Payload)
	if err != nil {
		util.LogWarning("call: invite with bad payload: %v", err)
		e.notifyf("Call error", "received an invalid call request")
		return
	}
	e.session = &Session{
		CallID:    msg.CallID,
		Peer:      msg.From,
		Direction: DirectionIncoming,
		Offer:     &offer,
	}
	e.setStatusLocked(StatusIncoming)
	e.notifyf("Incoming call", msg.From)
}

// handleAccept applies the peer's answer for an outgoing call. An answer
// that fails to apply is logged but not fatal: ICE may still succeed, and a
// genuinely dead transport surfaces through the connection-state callback.
func (e *Engine) handleAccept(msg *signal.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := e.session
	if s == nil || s.Direction != DirectionOutgoing {
		util.LogWarning("call: accept without an outgoing session, ignoring")
		return
	}

	if answer, err := signal.DecodeDescription(msg.Payload); err != nil {
		util.LogWarning("call: accept with bad payload: %v", err)
	} else {
		if err := e.media.ApplyRemoteDescription(answer); err != nil {
			util.LogWarning("call: apply remote answer: %v", err)
		}
		e.ice.DrainRemote(e.media.AddRemoteCandidate)
	}

	e.setStatusLocked(StatusInCall)

	if msg.CallID != "" {
		s.CallID = msg.CallID
		e.flushLocalLocked()
	}
}

// handleCandidate applies a trickled remote candidate, or buffers it while
// no remote description exists yet.
func (e *Engine) handleCandidate(msg *signal.Message) {
	init, err := signal.DecodeCandidate(msg.Payload)
	if err != nil {
		util.LogWarning("call: bad candidate payload: %v", err)
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.media.HasRemoteDescription() {
		if err := e.media.AddRemoteCandidate(init); err != nil {
			util.LogWarning("call: add remote candidate: %v", err)
		}
		return
	}
	e.ice.EnqueueRemote(init)
}

func (e *Engine) handleTerminal(msg *signal.Message, title, verb string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	peer := msg.From
	if peer == "" && e.session != nil {
		peer = e.session.Peer
	}
	if peer == "" {
		peer = "Peer"
	}
	e.notifyf(title, fmt.Sprintf("%s %s", peer, verb))
	e.teardownLocked()
}

func (e *Engine) handleError(msg *signal.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notifyf("Call error", signal.DecodeErrorReason(msg.Payload))
	e.teardownLocked()
}

// handleChannelClose reacts to the loss of the signaling connection: a call
// cannot be controlled without it, so everything is torn down.
func (e *Engine) handleChannelClose() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status != StatusIdle {
		e.notifyf("Call ended", "signaling connection lost")
	}
	e.teardownLocked()
}

// ---------------------------------------------------------------------------
// Media callbacks
// ---------------------------------------------------------------------------

func (e *Engine) mediaCallbacks() mediapkg.Callbacks {
	return mediapkg.Callbacks{
		OnLocalCandidate:   e.onLocalCandidate,
		OnRemoteTrack:      e.onRemoteTrack,
		OnTransportFailure: e.onTransportFailure,
	}
}

// onLocalCandidate forwards a gathered candidate to the peer when the
// session is addressable, and buffers it otherwise. The session is re-read
// here, not captured at registration time.
func (e *Engine) onLocalCandidate(init webrtc.ICECandidateInit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil && e.session.CallID != "" {
		e.sendCandidateLocked(e.session.CallID, e.session.Peer, init)
		return
	}
	e.ice.EnqueueLocal(init)
}

func (e *Engine) onRemoteTrack(track *webrtc.TrackRemote) {
	util.LogInfo("call: remote audio track arrived (%s)", track.Codec().MimeType)
}

func (e *Engine) onTransportFailure(state webrtc.PeerConnectionState) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.status == StatusIdle {
		return
	}
	e.notifyf("Call ended", fmt.Sprintf("media transport %s", state))
	e.teardownLocked()
}

// ---------------------------------------------------------------------------
// Internals
// ---------------------------------------------------------------------------

// teardownLocked is the single terminal transition: pending target cleared,
// session cleared, status Idle, media released, candidate buffers emptied.
// Safe to run repeatedly.
func (e *Engine) teardownLocked() {
	e.pendingTarget = ""
	e.session = nil
	e.setStatusLocked(StatusIdle)
	e.media.Teardown()
	e.ice.Clear()
}

func (e *Engine) setStatusLocked(s Status) {
	if e.status == s {
		return
	}
	e.status = s
	if e.onStatus != nil {
		e.onStatus(s)
	}
}

// flushLocalLocked sends every buffered local candidate tagged with the
// session's call ID.
func (e *Engine) flushLocalLocked() {
	s := e.session
	if s == nil || s.CallID == "" {
		return
	}
	for _, init := range e.ice.FlushLocal() {
		e.sendCandidateLocked(s.CallID, s.Peer, init)
	}
}

// sendCandidateLocked transmits one candidate. Candidate delivery is
// best-effort: failures are logged, never surfaced to the user.
func (e *Engine) sendCandidateLocked(callID, peer string, init webrtc.ICECandidateInit) {
	payload, err := signal.EncodeCandidate(init)
	if err != nil {
		util.LogWarning("call: encode candidate: %v", err)
		return
	}
	if _, err := e.sender.Send(&signal.Message{
		Type:    signal.KindIceCandidate,
		CallID:  callID,
		To:      peer,
		Payload: payload,
	}); err != nil {
		util.LogWarning("call: send candidate: %v", err)
	}
}

// sendControlLocked transmits a reject/end message. A queue overflow is the
// one send failure that must reach the user.
func (e *Engine) sendControlLocked(msg *signal.Message) {
	if _, err := e.sender.Send(msg); err != nil {
		if errors.Is(err, signal.ErrQueueOverflow) {
			e.notifyf("Connection issue", "too many pending messages, hangup not delivered")
		} else {
			util.LogWarning("call: send %s: %v", msg.Type, err)
		}
	}
}

func (e *Engine) notifyf(title, detail string) {
	if e.notify != nil {
		e.notify(title, detail)
		return
	}
	util.LogInfo("%s — %s", title, detail)
}
