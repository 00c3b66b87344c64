package signal

// EventKind identifies the kind of channel event.
type EventKind int

const (
	// EventOpen fires when the transport opens (including after a reconnect),
	// before the outbound queue is drained.
	EventOpen EventKind = iota
	// EventClose fires when the transport closes for any reason other than an
	// explicit Disconnect. Close, not Error, is authoritative for reconnection.
	EventClose
	// EventMessage fires for every well-formed inbound signaling message,
	// preserving transport arrival order.
	EventMessage
	// EventError fires for transport-level errors and malformed inbound
	// frames. Non-fatal: the connection stays up.
	EventError
)

// Event is one connection-lifecycle or inbound-message notification.
// Exactly one of Message/Err is set depending on Kind.
type Event struct {
	Kind    EventKind
	Message *Message // EventMessage
	Code    int      // EventClose: close code (-1 when the transport never opened)
	Reason  string   // EventClose
	Err     error    // EventError
}
