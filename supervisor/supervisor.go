// Package supervisor implements §4.7/§2 component C7: given the
// persisted account/network/identity tables, it establishes or refreshes
// the full map of connections and routes newly-connected frontend
// clients to the broadcasts their account owns.
//
// Modelled on lrstanley-girc's cmdhandler subpackage, which is similarly
// a small consumer layer sitting on top of the root irc2me package
// rather than folded into it — the supervisor's Store/EventQueue
// collaborators (§6 External interfaces) are a seam the core library
// itself has no business knowing about.
package supervisor

import (
	"fmt"
	"log"

	cmap "github.com/orcaman/concurrent-map"

	"github.com/kvitebjorn/irc2me"
)

// Store is the relational store of accounts/identities/networks (§6
// External interfaces, consumed). All three queries are idempotent; any
// error is treated as a hard failure of the current refresh cycle (§4.7,
// §7).
type Store interface {
	SelectAccounts() ([]irc2me.AccountID, error)
	SelectServersToReconnect(account irc2me.AccountID) ([]ServerToReconnect, error)
	SelectNetworkIdentity(account irc2me.AccountID, network irc2me.NetworkID) (*irc2me.Identity, bool, error)
}

// ServerToReconnect pairs a network with the server to dial for it.
type ServerToReconnect struct {
	NetworkID irc2me.NetworkID
	Server    irc2me.Server
}

// DatabaseError wraps any Store failure encountered during a refresh
// cycle (§7 Error handling design: Database).
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("supervisor: database %s: %s", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// AccountEvent is one item off the event queue (§6 External interfaces,
// consumed). Payload is currently only ClientConnected; unknown payload
// types are ignored by the event loop (§4.7).
type AccountEvent struct {
	AccountID irc2me.AccountID
	Payload   interface{}
}

// ClientConnected is the one event payload the core handles: a frontend
// client subscribed for account's streams and wants attaching to every
// network broadcast that account already owns.
type ClientConnected struct {
	Handler irc2me.Handler
}

// networkMap is NetworkID -> *irc2me.Broadcast for one account.
type networkMap struct {
	m cmap.ConcurrentMap
}

func newNetworkMap() *networkMap { return &networkMap{m: cmap.New()} }

func networkKey(id irc2me.NetworkID) string { return fmt.Sprintf("%d", uint64(id)) }

func (n *networkMap) get(id irc2me.NetworkID) (*irc2me.Broadcast, bool) {
	v, ok := n.m.Get(networkKey(id))
	if !ok {
		return nil, false
	}
	return v.(*irc2me.Broadcast), true
}

func (n *networkMap) set(id irc2me.NetworkID, b *irc2me.Broadcast) {
	n.m.Set(networkKey(id), b)
}

func (n *networkMap) forEach(fn func(*irc2me.Broadcast)) {
	for item := range n.m.IterBuffered() {
		fn(item.Val.(*irc2me.Broadcast))
	}
}

// ConnectionMap is the supervisor-owned AccountID -> NetworkID ->
// *Broadcast map (§3 Data model via §4.7/§5). Single-writer (the
// supervisor), multi-reader (debug/inspection) — the nested
// concurrent-map mirrors lrstanley-girc's COMMAND -> CUID -> Handler
// nestedHandlers shape (handler.go), here keyed by account then network
// instead of command then callback id.
type ConnectionMap struct {
	accounts cmap.ConcurrentMap // AccountID (string) -> *networkMap
}

// NewConnectionMap returns an empty map, the starting point for the
// first ReconnectAll call.
func NewConnectionMap() *ConnectionMap {
	return &ConnectionMap{accounts: cmap.New()}
}

func accountKey(id irc2me.AccountID) string { return fmt.Sprintf("%d", uint64(id)) }

func (cm *ConnectionMap) account(id irc2me.AccountID) *networkMap {
	v, ok := cm.accounts.Get(accountKey(id))
	if ok {
		return v.(*networkMap)
	}
	nm := newNetworkMap()
	cm.accounts.SetIfAbsent(accountKey(id), nm)
	v, _ = cm.accounts.Get(accountKey(id))
	return v.(*networkMap)
}

// Lookup returns the broadcast for (account, network), if one exists.
func (cm *ConnectionMap) Lookup(account irc2me.AccountID, network irc2me.NetworkID) (*irc2me.Broadcast, bool) {
	v, ok := cm.accounts.Get(accountKey(account))
	if !ok {
		return nil, false
	}
	return v.(*networkMap).get(network)
}

// ForEachNetwork calls fn for every broadcast owned by account.
func (cm *ConnectionMap) ForEachNetwork(account irc2me.AccountID, fn func(*irc2me.Broadcast)) {
	v, ok := cm.accounts.Get(accountKey(account))
	if !ok {
		return
	}
	v.(*networkMap).forEach(fn)
}

// Dialer lets a Supervisor route outbound connections through a custom
// Dialer (e.g. irc2me.SOCKS5Dialer); nil uses the default.
type Dialer = irc2me.Dialer

// Supervisor owns a Store, an outbound Dialer and the resulting
// ConnectionMap, and drives both the reconnect sweep and the account
// event loop (§4.7).
type Supervisor struct {
	store  Store
	dialer Dialer
	log    *log.Logger

	Connections *ConnectionMap
}

// New constructs a Supervisor. logger may be nil.
func New(store Store, dialer Dialer, logger *log.Logger) *Supervisor {
	if logger == nil {
		logger = log.New(log.Writer(), "supervisor: ", log.LstdFlags)
	}
	return &Supervisor{
		store:       store,
		dialer:      dialer,
		log:         logger,
		Connections: NewConnectionMap(),
	}
}

// ReconnectAll implements reconnect_all (§4.7): for every account, for
// every (network, server) it should be connected to, skip if already
// present, else look up the identity and start_broadcasting. A database
// error aborts the rest of the refresh; no entry is removed from the map,
// and entries added earlier in the same call are kept.
// Safe, and idempotent, to call repeatedly (SPEC_FULL §4 supplemented
// feature: reconnect backoff is a caller policy, not owned here).
func (s *Supervisor) ReconnectAll() error {
	accounts, err := s.store.SelectAccounts()
	if err != nil {
		return &DatabaseError{Op: "select_accounts", Err: err}
	}

	for _, account := range accounts {
		targets, err := s.store.SelectServersToReconnect(account)
		if err != nil {
			return &DatabaseError{Op: "select_servers_to_reconnect", Err: err}
		}

		for _, target := range targets {
			if _, ok := s.Connections.Lookup(account, target.NetworkID); ok {
				continue
			}

			identity, ok, err := s.store.SelectNetworkIdentity(account, target.NetworkID)
			if err != nil {
				return &DatabaseError{Op: "select_network_identity", Err: err}
			}
			if !ok {
				s.log.Printf("account %v network %v: no identity on record, skipping", account, target.NetworkID)
				continue
			}

			b, err := s.startBroadcasting(*identity, target.Server)
			if err != nil {
				s.log.Printf("account %v network %v: %s", account, target.NetworkID, err)
				continue
			}

			s.Connections.account(account).set(target.NetworkID, b)
		}
	}

	return nil
}

func (s *Supervisor) startBroadcasting(identity irc2me.Identity, server irc2me.Server) (*irc2me.Broadcast, error) {
	conn, err := irc2me.Connect(s.dialer, server, identity, nil, nil, s.log)
	if err != nil {
		return nil, err
	}
	return irc2me.StartBroadcasting(conn), nil
}

// Run consumes events off queue until it's closed. The only event
// handled is ClientConnected, which subscribes its handler to every
// network broadcast owned by the event's account. Unknown payloads are
// ignored; a subscriber error never terminates the loop (§4.7).
func (s *Supervisor) Run(queue <-chan AccountEvent) {
	for ev := range queue {
		switch payload := ev.Payload.(type) {
		case ClientConnected:
			s.Connections.ForEachNetwork(ev.AccountID, func(b *irc2me.Broadcast) {
				func() {
					defer func() {
						if r := recover(); r != nil {
							s.log.Printf("account %v: subscriber panicked: %v", ev.AccountID, r)
						}
					}()
					b.Subscribe(payload.Handler)
				}()
			})
		default:
			// Unknown events are ignored (§4.7).
		}
	}
}
