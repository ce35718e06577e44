package supervisor

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kvitebjorn/irc2me"
)

type fakeStore struct {
	accounts       []irc2me.AccountID
	targets        map[irc2me.AccountID][]ServerToReconnect
	identities     map[irc2me.AccountID]map[irc2me.NetworkID]*irc2me.Identity
	accountsErr    error
	targetsErr     error
	identityErr    error
	selectAccounts int
}

func (s *fakeStore) SelectAccounts() ([]irc2me.AccountID, error) {
	s.selectAccounts++
	if s.accountsErr != nil {
		return nil, s.accountsErr
	}
	return s.accounts, nil
}

func (s *fakeStore) SelectServersToReconnect(account irc2me.AccountID) ([]ServerToReconnect, error) {
	if s.targetsErr != nil {
		return nil, s.targetsErr
	}
	return s.targets[account], nil
}

func (s *fakeStore) SelectNetworkIdentity(account irc2me.AccountID, network irc2me.NetworkID) (*irc2me.Identity, bool, error) {
	if s.identityErr != nil {
		return nil, false, s.identityErr
	}
	m, ok := s.identities[account]
	if !ok {
		return nil, false, nil
	}
	id, ok := m[network]
	return id, ok, nil
}

func TestReconnectAllDatabaseErrorAbortsCycle(t *testing.T) {
	store := &fakeStore{accountsErr: errors.New("connection refused")}
	sup := New(store, nil, nil)

	err := sup.ReconnectAll()
	require.Error(t, err)
	var dbErr *DatabaseError
	require.ErrorAs(t, err, &dbErr)
	assert.Equal(t, "select_accounts", dbErr.Op)
}

func TestReconnectAllSkipsUnknownIdentity(t *testing.T) {
	store := &fakeStore{
		accounts: []irc2me.AccountID{1},
		targets: map[irc2me.AccountID][]ServerToReconnect{
			1: {{NetworkID: 10, Server: irc2me.Server{Host: "irc.example.org", Port: 6667}}},
		},
		identities: map[irc2me.AccountID]map[irc2me.NetworkID]*irc2me.Identity{},
	}
	sup := New(store, nil, nil)

	err := sup.ReconnectAll()
	require.NoError(t, err)

	_, ok := sup.Connections.Lookup(1, 10)
	assert.False(t, ok, "no identity on record should leave the target unconnected, not error")
}

func TestReconnectAllSkipsAlreadyConnectedTargets(t *testing.T) {
	store := &fakeStore{
		accounts: []irc2me.AccountID{1},
		targets: map[irc2me.AccountID][]ServerToReconnect{
			1: {{NetworkID: 10, Server: irc2me.Server{Host: "irc.example.org", Port: 6667}}},
		},
		identities: map[irc2me.AccountID]map[irc2me.NetworkID]*irc2me.Identity{
			1: {10: {Nick: "alice"}},
		},
		// Fails the cycle if the identity of an already-connected target is looked up.
		identityErr: errors.New("identity looked up for an already-connected target"),
	}
	sup := New(store, nil, nil)

	// Pre-seed the map as if a prior cycle already connected this target,
	// without a real *irc2me.Broadcast (nil is fine, Lookup only checks presence).
	sup.Connections.account(1).set(10, nil)

	err := sup.ReconnectAll()
	require.NoError(t, err)
	assert.Equal(t, 1, store.selectAccounts)
}

func TestRunClientConnectedWithoutNetworksAndUnknownPayloadIgnored(t *testing.T) {
	store := &fakeStore{}
	sup := New(store, nil, nil)

	queue := make(chan AccountEvent, 1)

	var mu sync.Mutex
	delivered := 0
	handler := func(_ time.Time, _ irc2me.Message) {
		mu.Lock()
		delivered++
		mu.Unlock()
	}

	go sup.Run(queue)
	queue <- AccountEvent{AccountID: 1, Payload: ClientConnected{Handler: handler}}
	queue <- AccountEvent{AccountID: 1, Payload: "unknown, should be ignored"}
	close(queue)

	time.Sleep(20 * time.Millisecond)
	// No networks registered for account 1, so nothing should have been
	// delivered, and the unknown payload must not have crashed the loop.
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, delivered)
}
