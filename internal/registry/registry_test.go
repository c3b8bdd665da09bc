// internal/registry/registry_test.go
package registry

import (
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/WalterHenri/blackjack-rendezvous/internal/protocol"
)

// fakePeer records everything delivered to it.
type fakePeer struct {
	key uuid.UUID

	mu     sync.Mutex
	frames []protocol.Frame
}

func newFakePeer() *fakePeer {
	return &fakePeer{key: uuid.New()}
}

func (p *fakePeer) Key() uuid.UUID { return p.key }

func (p *fakePeer) Deliver(f protocol.Frame) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.frames = append(p.frames, f)
}

func (p *fakePeer) delivered() []protocol.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]protocol.Frame, len(p.frames))
	copy(out, p.frames)
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func testRegistry() *Registry {
	return New(Options{IDLength: 4, TTL: 60 * time.Second, Grace: 10 * time.Second}, testLogger())
}

func TestCreateAssignsUniqueIDs(t *testing.T) {
	reg := testRegistry()

	seen := make(map[string]bool)
	for i := 0; i < 200; i++ {
		room, err := reg.Create(newFakePeer(), "table", "1.2.3.4:5000", "")
		require.NoError(t, err)
		require.Len(t, room.ID, 4)
		assert.False(t, seen[room.ID], "duplicate room id %s", room.ID)
		seen[room.ID] = true
	}
}

func TestCreateRejectsBoundConnection(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()

	_, err := reg.Create(host, "first", "", "")
	require.NoError(t, err)

	_, err = reg.Create(host, "second", "", "")
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestCreateTruncatesLongName(t *testing.T) {
	reg := testRegistry()
	long := make([]byte, 100)
	for i := range long {
		long[i] = 'x'
	}

	room, err := reg.Create(newFakePeer(), string(long), "", "")
	require.NoError(t, err)
	assert.Len(t, room.Name, 64)
}

func TestJoinLifecycle(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "9.9.9.9:5000", "")
	require.NoError(t, err)

	joined, hostPeer, err := reg.Join(joiner, room.ID, "")
	require.NoError(t, err)
	assert.Equal(t, room.ID, joined.ID)
	assert.Equal(t, host.Key(), hostPeer.Key())

	// Second joiner bounces off the occupied slot.
	_, _, err = reg.Join(newFakePeer(), room.ID, "")
	assert.ErrorIs(t, err, ErrRoomFull)

	// A bound connection cannot join elsewhere.
	other, err := reg.Create(newFakePeer(), "other", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, other.ID, "")
	assert.ErrorIs(t, err, ErrAlreadyBound)
}

func TestJoinUnknownRoom(t *testing.T) {
	reg := testRegistry()
	_, _, err := reg.Join(newFakePeer(), "0000", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestJoinPassword(t *testing.T) {
	reg := testRegistry()
	room, err := reg.Create(newFakePeer(), "secret table", "", "s3")
	require.NoError(t, err)

	_, _, err = reg.Join(newFakePeer(), room.ID, "s4")
	assert.ErrorIs(t, err, ErrWrongPassword)

	// Case matters.
	_, _, err = reg.Join(newFakePeer(), room.ID, "S3")
	assert.ErrorIs(t, err, ErrWrongPassword)

	_, _, err = reg.Join(newFakePeer(), room.ID, "s3")
	assert.NoError(t, err)
}

func TestListNeverExposesPassword(t *testing.T) {
	reg := testRegistry()
	_, err := reg.Create(newFakePeer(), "locked", "1.1.1.1:5000", "hunter2")
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 1)
	assert.True(t, list[0].HasPassword)
	assert.Equal(t, "locked", list[0].Name)
	assert.Equal(t, 1, list[0].Players)
	// Summary carries no password field at all; nothing further to check
	// beyond the type, but make sure the name is the only string echoing
	// user input.
	assert.NotContains(t, list[0].Host, "hunter2")
}

func TestPingAuthorization(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, room.ID, "")
	require.NoError(t, err)

	assert.NoError(t, reg.Ping(host, room.ID))
	assert.ErrorIs(t, reg.Ping(joiner, room.ID), ErrNotHost)
	assert.ErrorIs(t, reg.Ping(host, "9999"), ErrNotFound)
}

func TestDeleteByHostReturnsSurvivor(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, room.ID, "")
	require.NoError(t, err)

	assert.ErrorIs(t, mustErr(reg.Delete(joiner, room.ID)), ErrNotHost)

	survivor, err := reg.Delete(host, room.ID)
	require.NoError(t, err)
	require.NotNil(t, survivor)
	assert.Equal(t, joiner.Key(), survivor.Key())

	_, ok := reg.Get(room.ID)
	assert.False(t, ok)

	// Both connections are free to bind again.
	_, err = reg.Create(host, "again", "", "")
	assert.NoError(t, err)
	_, err = reg.Create(joiner, "again2", "", "")
	assert.NoError(t, err)
}

func TestDetachHostRemovesRoom(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, room.ID, "")
	require.NoError(t, err)

	roomID, survivor, role, ok := reg.Detach(host)
	require.True(t, ok)
	assert.Equal(t, room.ID, roomID)
	assert.Equal(t, RoleHost, role)
	require.NotNil(t, survivor)
	assert.Equal(t, joiner.Key(), survivor.Key())

	_, ok = reg.Get(room.ID)
	assert.False(t, ok)

	// The joiner's binding died with the room.
	_, _, _, ok = reg.Detach(joiner)
	assert.False(t, ok)
}

func TestDetachJoinerKeepsRoomHosted(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, room.ID, "")
	require.NoError(t, err)

	roomID, survivor, role, ok := reg.Detach(joiner)
	require.True(t, ok)
	assert.Equal(t, room.ID, roomID)
	assert.Equal(t, RoleJoiner, role)
	require.NotNil(t, survivor)
	assert.Equal(t, host.Key(), survivor.Key())

	// Room stays listed and joinable again.
	summary, ok := reg.Get(room.ID)
	require.True(t, ok)
	assert.Equal(t, 1, summary.Players)

	_, _, err = reg.Join(newFakePeer(), room.ID, "")
	assert.NoError(t, err)
}

func TestDetachUnboundConnection(t *testing.T) {
	reg := testRegistry()
	_, _, _, ok := reg.Detach(newFakePeer())
	assert.False(t, ok)
}

func TestRoomFor(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	joiner := newFakePeer()

	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)

	// Hosted room: host resolves with an empty peer slot.
	roomID, role, peer, ok := reg.RoomFor(host)
	require.True(t, ok)
	assert.Equal(t, room.ID, roomID)
	assert.Equal(t, RoleHost, role)
	assert.Nil(t, peer)

	_, _, err = reg.Join(joiner, room.ID, "")
	require.NoError(t, err)

	_, role, peer, ok = reg.RoomFor(joiner)
	require.True(t, ok)
	assert.Equal(t, RoleJoiner, role)
	require.NotNil(t, peer)
	assert.Equal(t, host.Key(), peer.Key())

	_, _, _, ok = reg.RoomFor(newFakePeer())
	assert.False(t, ok)
}

func TestReapRespectsTTLAndGrace(t *testing.T) {
	reg := testRegistry()
	base := time.Now()
	reg.now = func() time.Time { return base }

	host := newFakePeer()
	joiner := newFakePeer()
	stale, err := reg.Create(host, "stale", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(joiner, stale.ID, "")
	require.NoError(t, err)

	// A second room created later stays within its TTL after a ping.
	fresh, err := reg.Create(newFakePeer(), "fresh", "", "")
	require.NoError(t, err)

	// Inside the grace period nothing is reaped, regardless of silence.
	assert.Empty(t, reg.Reap(base.Add(5*time.Second)))

	// Fresh room's host pings at +50s; stale room's host stays silent.
	reg.now = func() time.Time { return base.Add(50 * time.Second) }
	require.NoError(t, reg.Ping(fresh.host, fresh.ID))

	reaped := reg.Reap(base.Add(70 * time.Second))
	require.Len(t, reaped, 1)
	assert.Equal(t, stale.ID, reaped[0].ID)
	assert.Len(t, reaped[0].Occupants, 2)

	_, ok := reg.Get(stale.ID)
	assert.False(t, ok)
	_, ok = reg.Get(fresh.ID)
	assert.True(t, ok)

	// Reaped occupants are unbound.
	_, err = reg.Create(host, "rebind", "", "")
	assert.NoError(t, err)
}

func TestForceClose(t *testing.T) {
	reg := testRegistry()
	host := newFakePeer()
	room, err := reg.Create(host, "table", "", "")
	require.NoError(t, err)

	r, ok := reg.ForceClose(room.ID)
	require.True(t, ok)
	assert.Equal(t, room.ID, r.ID)
	assert.Len(t, r.Occupants, 1)

	_, ok = reg.ForceClose(room.ID)
	assert.False(t, ok)
}

func TestStats(t *testing.T) {
	reg := testRegistry()
	rooms, players := reg.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, players)

	room, err := reg.Create(newFakePeer(), "a", "", "")
	require.NoError(t, err)
	_, _, err = reg.Join(newFakePeer(), room.ID, "")
	require.NoError(t, err)
	_, err = reg.Create(newFakePeer(), "b", "", "")
	require.NoError(t, err)

	rooms, players = reg.Stats()
	assert.Equal(t, 2, rooms)
	assert.Equal(t, 3, players)
}

// Exclusive-slot invariant under concurrent create/join/detach churn: no
// connection ever occupies more than one slot.
func TestConcurrentChurnKeepsSlotsExclusive(t *testing.T) {
	reg := testRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				host := newFakePeer()
				room, err := reg.Create(host, "churn", "", "")
				if err != nil {
					continue
				}
				joiner := newFakePeer()
				if _, _, err := reg.Join(joiner, room.ID, ""); err == nil {
					reg.Detach(joiner)
				}
				reg.Detach(host)
			}
		}()
	}
	wg.Wait()

	rooms, players := reg.Stats()
	assert.Zero(t, rooms)
	assert.Zero(t, players)
}

func mustErr(_ Peer, err error) error { return err }
