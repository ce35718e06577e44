package irc2me

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// AccountID and NetworkID are opaque identifiers compared for equality
// only (§3 Data model).
type AccountID uint64
type NetworkID uint64

// Identity is the nick/user tuple used when registering with a network
// (§3 Data model). NickAlt is consumed left-to-right on collision.
type Identity struct {
	Nick     string
	NickAlt  []string
	UserName string
	RealName string
}

// ConnectionStatus transitions strictly Initializing -> Established ->
// Closed, or Initializing -> Closed (§3 invariant 2).
type ConnectionStatus int32

const (
	StatusInitializing ConnectionStatus = iota
	StatusEstablished
	StatusClosed
)

func (s ConnectionStatus) String() string {
	switch s {
	case StatusInitializing:
		return "initializing"
	case StatusEstablished:
		return "established"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Severity tags a DebugEntry (§7: "all errors surface as entries on the
// per-connection debug queue with severity Error|Warning|Info").
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	default:
		return "info"
	}
}

// DebugEntry is one entry on a Connection's debug log queue.
type DebugEntry struct {
	Time     time.Time
	Severity Severity
	Location string
	Message  string
}

// inboundItem is one timestamped, parsed wire message. The registration
// FSM's replay buffer (§4.4) is a slice of these; it is not a Connection
// field since it only exists transiently during the handshake.
type inboundItem struct {
	Time time.Time
	Msg  *IrcMsg
}

// Connection owns one IRC session exclusively: its transport handle,
// lifecycle status, nick, joined-channel map and debug queue (§3 Data
// model: Connection). All cells are independently protected so a writer
// may run while the reader is blocked in Transport.ReadLine.
type Connection struct {
	Server Server
	User   Identity
	Log    *log.Logger

	transport *Transport

	status int32 // atomic ConnectionStatus

	nickMu sync.RWMutex
	nick   string

	channels cmap.ConcurrentMap // channel name -> key (string, "" = no key)

	debug chan DebugEntry

	closeOnce sync.Once
}

// newConnection wraps an already-dialed Transport. Starting channels are
// copied in so reconnect (§9 open question) re-sends keys verbatim.
func newConnection(srv Server, user Identity, t *Transport, startChannels map[string]string, logger *log.Logger) *Connection {
	if logger == nil {
		logger = log.New(nowWriter{}, "", 0)
	}
	c := &Connection{
		Server:    srv,
		User:      user,
		Log:       logger,
		transport: t,
		status:    int32(StatusInitializing),
		nick:      user.Nick,
		channels:  cmap.New(),
		debug:     make(chan DebugEntry, 256),
	}
	for ch, key := range startChannels {
		c.channels.Set(ch, key)
	}
	return c
}

// nowWriter discards writes; used only as the default *log.Logger sink
// when a caller doesn't supply one, matching girc's io.Discard default.
type nowWriter struct{}

func (nowWriter) Write(p []byte) (int, error) { return len(p), nil }

func (c *Connection) logf(sev Severity, location, format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	entry := DebugEntry{Time: time.Now(), Severity: sev, Location: location, Message: msg}
	select {
	case c.debug <- entry:
	default:
		// Drop-oldest: make room rather than block the caller (reader,
		// writer, or FSM) on a slow/absent debug consumer.
		select {
		case <-c.debug:
		default:
		}
		select {
		case c.debug <- entry:
		default:
		}
	}
	c.Log.Print(sev.String() + " " + c.logPrefix() + msg)
}

func (c *Connection) logPrefix() string {
	return fmt.Sprintf("[%s] ", c.CurrentNick())
}

// DebugEntries exposes the per-connection debug queue for inspection
// (SPEC_FULL §4 supplemented feature).
func (c *Connection) DebugEntries() <-chan DebugEntry { return c.debug }

// Status returns the current lifecycle state (§3).
func (c *Connection) Status() ConnectionStatus {
	return ConnectionStatus(atomic.LoadInt32(&c.status))
}

// IsOpen reports whether the connection is Initializing or Established.
func (c *Connection) IsOpen() bool { return c.Status() != StatusClosed }

// IsInit reports whether the connection is still in the registration
// handshake.
func (c *Connection) IsInit() bool { return c.Status() == StatusInitializing }

// setEstablished is the monotonic Initializing -> Established transition,
// driven only by the registration FSM on 001 (§4.4).
func (c *Connection) setEstablished() {
	atomic.CompareAndSwapInt32(&c.status, int32(StatusInitializing), int32(StatusEstablished))
}

// CurrentNick returns the nick last accepted by the server (§3 invariant
// 1).
func (c *Connection) CurrentNick() string {
	c.nickMu.RLock()
	defer c.nickMu.RUnlock()
	return c.nick
}

// SetNick updates the accepted nick. Called by applyMessages when a NICK
// renames the connection's own nick, or by the registration FSM on
// collision fallback (§4.4, §4.5).
func (c *Connection) SetNick(nick string) {
	c.nickMu.Lock()
	c.nick = nick
	c.nickMu.Unlock()
}

// Channels returns a snapshot of the joined-channel map: channel name ->
// join key (empty string if none) (§3 invariant 2).
func (c *Connection) Channels() map[string]string {
	out := make(map[string]string, c.channels.Count())
	for item := range c.channels.IterBuffered() {
		out[item.Key] = item.Val.(string)
	}
	return out
}

func (c *Connection) joinChannel(name, key string) {
	c.channels.Set(name, key)
}

func (c *Connection) partChannel(name string) {
	c.channels.Remove(name)
}

// Send serializes and writes msg. A send on a Closed connection is a
// silent no-op, logged at error level (§4.3, §9 open question: QUIT sent
// unconditionally during teardown must not panic or error loudly).
func (c *Connection) Send(msg *IrcMsg) error {
	if !c.IsOpen() {
		c.logf(SeverityError, "send", "dropped %s: connection closed", msg.Cmd)
		return nil
	}
	if err := c.transport.Write(msg.Bytes()); err != nil {
		c.logf(SeverityError, "send", "%s", err)
		return err
	}
	return nil
}

// Receive blocks for the next wire message. Used by the reader task and
// by the registration FSM before it hands off to the reader (§4.2, §4.4).
func (c *Connection) Receive() (time.Time, *IrcMsg, error) {
	return c.transport.ReadLine()
}

// applyMessages mutates connection-owned state (nick, channel map) to
// stay consistent with the structured Messages a dispatch just produced
// (§3 invariants 1-2). This is the one place outside Dispatch/Resolve
// that touches connection state in response to a parsed message, keeping
// Dispatch itself pure per §8 property 1.
func (c *Connection) applyMessages(msgs []Message) {
	nick := c.CurrentNick()
	for _, msg := range msgs {
		switch msg.Type {
		case MessageTypeJoin:
			if msg.Join.Who == nil {
				c.joinChannel(msg.Join.Channel, "")
			}
		case MessageTypePart:
			if msg.Part.Who == nil {
				c.partChannel(msg.Part.Channel)
			}
		case MessageTypeKick:
			if msg.Kick.Nick == nick {
				c.partChannel(msg.Kick.Channel)
			}
		case MessageTypeNick:
			if msg.Nick.OldUser != nil && msg.Nick.OldUser.Nick == nick {
				c.SetNick(msg.Nick.NewNick)
			}
		case MessageTypeMOTD:
			if t, ok := parseServerTime(msg.MOTD.Text); ok {
				c.logf(SeverityInfo, "motd", "server clock %s: %s", t.Format("2006-01-02 15:04:05 MST"), msg.MOTD.Text)
			}
		}
	}
}

// Close idempotently tears the connection down: flips status to Closed
// exactly once and closes the transport (§3 invariant 3, §8 property 5).
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		atomic.StoreInt32(&c.status, int32(StatusClosed))
		if c.transport != nil {
			_ = c.transport.Close()
		}
	})
}
