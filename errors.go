package irc2me

import "fmt"

// TransportError wraps a failure from the transport layer (§7: connect
// failure, read error, write error, TLS handshake failure, EOF).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("irc2me: transport %s: %s", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError covers a nickname collision with no alternates remaining,
// a failed initial connect, and a failed legacy-charset trail decode (§7).
// A server ERROR command is not reported through it: Dispatch turns ERROR
// into a quit reason instead.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "irc2me: protocol: " + e.Reason
}

// ErrNoAltNicks is returned by the registration FSM when the server
// rejects every nickname, including all alternates (§4.4 Cancel state).
var ErrNoAltNicks = &ProtocolError{Reason: "no alternate nicknames remain after collision"}

// ErrConnectFailed is returned by connect helpers when the initial dial
// never produced a Connection (§4.4 Error policy).
var ErrConnectFailed = &ProtocolError{Reason: "connect failed"}
