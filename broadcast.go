package irc2me

import (
	"errors"
	"math/rand"
	"sync"
	"time"

	cmap "github.com/orcaman/concurrent-map"
)

// Handler receives one delivered (enqueue-time, Message) pair (§4.6).
type Handler func(time.Time, Message)

type timedMessage struct {
	Time time.Time
	Msg  Message
}

type subscriber struct {
	ch   chan timedMessage
	stop chan struct{}
}

// Broadcast is the single-producer, multi-consumer fan-out for one
// Connection's structured message stream (§4.6, §9 "Broadcast hub per
// connection"). One reader goroutine drains the connection's transport;
// each subscriber gets its own bounded, drop-oldest buffer and delivery
// goroutine, so a slow or stuck subscriber can never stall the reader.
type Broadcast struct {
	conn *Connection

	subs cmap.ConcurrentMap // subscriber id (string) -> *subscriber

	stopOnce sync.Once
	done     chan struct{}
}

// StartBroadcasting launches the reader task for conn and returns the hub
// that fans its structured messages out to subscribers (§2 Flow, §4.6).
func StartBroadcasting(conn *Connection) *Broadcast {
	b := &Broadcast{
		conn: conn,
		subs: cmap.New(),
		done: make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// readLoop is the one task per Connection that owns exclusive read access
// to its transport (§5 Scheduling model). It terminates on any transport
// error, on a dispatch-produced quit, or when Stop closes the connection.
func (b *Broadcast) readLoop() {
	for {
		if !b.conn.IsOpen() {
			return
		}

		ts, msg, err := b.conn.Receive()
		if err != nil {
			var perr *ParseError
			if errors.As(err, &perr) {
				// A malformed line is discarded, not fatal: the reader
				// keeps draining the transport (§7).
				b.conn.logf(SeverityWarning, "reader", "%s", err)
				continue
			}
			b.conn.logf(SeverityError, "reader", "%s", err)
			b.conn.Close()
			return
		}

		done := Resolve(Dispatch(msg), b.conn.CurrentNick(), b.conn.User)
		b.conn.applyMessages(done.Add)

		for _, reply := range done.Send {
			_ = b.conn.Send(reply)
		}

		for _, m := range done.Add {
			b.publish(ts, m)
		}

		if done.Quit != nil {
			_ = b.conn.Send(&IrcMsg{Cmd: QUIT, Trail: *done.Quit, HasTrail: true})
			b.conn.Close()
			return
		}
	}
}

// publish delivers one message to every currently-subscribed handler.
// Delivery is best-effort per subscriber: a full buffer drops its oldest
// queued message rather than blocking this loop (§4.6, §5 "no
// suspension" guarantee for the reader).
func (b *Broadcast) publish(ts time.Time, msg Message) {
	tm := timedMessage{Time: ts, Msg: msg}
	for item := range b.subs.IterBuffered() {
		s := item.Val.(*subscriber)
		select {
		case s.ch <- tm:
		default:
			select {
			case <-s.ch:
			default:
			}
			select {
			case s.ch <- tm:
			default:
			}
		}
	}
}

// Subscribe registers handler; it is only delivered messages enqueued
// after this call returns (§4.6, §8 property 3 — "no replay").
func (b *Broadcast) Subscribe(handler Handler) (id string) {
	id = newSubscriberID()
	s := &subscriber{
		ch:   make(chan timedMessage, 64),
		stop: make(chan struct{}),
	}
	b.subs.Set(id, s)

	go func() {
		for {
			select {
			case tm := <-s.ch:
				handler(tm.Time, tm.Msg)
			case <-s.stop:
				return
			case <-b.done:
				return
			}
		}
	}()

	return id
}

// Unsubscribe removes a handler. Safe to call concurrently with delivery
// (§4.6).
func (b *Broadcast) Unsubscribe(id string) {
	if v, ok := b.subs.Pop(id); ok {
		close(v.(*subscriber).stop)
	}
}

// Stop sends QUIT (with reason, if given) if the connection is still
// open, closes the transport, and terminates the reader task.
// Idempotent (§4.6, §8 property 5).
func (b *Broadcast) Stop(reason *string) {
	b.stopOnce.Do(func() {
		if b.conn.IsOpen() {
			if reason != nil {
				_ = b.conn.Send(&IrcMsg{Cmd: QUIT, Trail: *reason, HasTrail: true})
			} else {
				_ = b.conn.Send(&IrcMsg{Cmd: QUIT})
			}
		}
		b.conn.Close()
		close(b.done)
	})
}

const subIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// newSubscriberID mirrors lrstanley-girc's Caller.cuid random-id
// generation, sized for a per-connection registry rather than a global
// handler table.
func newSubscriberID() string {
	b := make([]byte, 16)
	for i := range b {
		b[i] = subIDAlphabet[rand.Intn(len(subIDAlphabet))]
	}
	return string(b)
}
