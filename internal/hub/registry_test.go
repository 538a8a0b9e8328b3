package hub

import (
	"testing"

	"github.com/majlis-chat/majlis/internal/testutil"
	"github.com/majlis-chat/majlis/internal/types"
	"github.com/stretchr/testify/assert"
)

func newRegistryClient(t *testing.T, user types.User) *Client {
	t.Helper()

	return &Client{
		id:    user.Username + "-conn",
		log:   testutil.TestLogger(t),
		user:  user,
		send:  make(chan *ServerEvent, sendBufferSize),
		rooms: make(map[string]*Room),
		stop:  make(chan struct{}),
	}
}

func TestRegistry_Add(t *testing.T) {
	reg := NewRegistry()
	user := types.User{Id: 1, Username: "fatima"}

	c1 := newRegistryClient(t, user)
	c1.id = "conn-1"
	assert.True(t, reg.Add(c1), "expected first connection to bring user online")
	assert.True(t, reg.IsOnline(1))
	assert.Equal(t, 1, reg.NumClients())

	c2 := newRegistryClient(t, user)
	c2.id = "conn-2"
	assert.False(t, reg.Add(c2), "expected second connection not to re-announce")
	assert.True(t, reg.IsOnline(1))
	assert.Equal(t, 2, reg.NumClients())
}

func TestRegistry_Remove(t *testing.T) {
	t.Run("last connection takes user offline", func(t *testing.T) {
		reg := NewRegistry()
		user := types.User{Id: 1, Username: "fatima"}
		c1 := newRegistryClient(t, user)
		c1.id = "conn-1"
		c2 := newRegistryClient(t, user)
		c2.id = "conn-2"
		reg.Add(c1)
		reg.Add(c2)

		removed, wentOffline := reg.Remove(c1)
		assert.True(t, removed)
		assert.False(t, wentOffline, "expected user to stay online with a second connection open")
		assert.True(t, reg.IsOnline(1))

		removed, wentOffline = reg.Remove(c2)
		assert.True(t, removed)
		assert.True(t, wentOffline, "expected last connection to take user offline")
		assert.False(t, reg.IsOnline(1))
		assert.Zero(t, reg.NumClients())
	})

	t.Run("unknown connection is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		c := newRegistryClient(t, types.User{Id: 1, Username: "fatima"})

		removed, wentOffline := reg.Remove(c)
		assert.False(t, removed)
		assert.False(t, wentOffline)
	})

	t.Run("duplicate remove is a no-op", func(t *testing.T) {
		reg := NewRegistry()
		c := newRegistryClient(t, types.User{Id: 1, Username: "fatima"})
		reg.Add(c)

		removed, wentOffline := reg.Remove(c)
		assert.True(t, removed)
		assert.True(t, wentOffline)

		removed, wentOffline = reg.Remove(c)
		assert.False(t, removed, "expected duplicate remove to report nothing")
		assert.False(t, wentOffline)
	})
}

func TestRegistry_OnlineUsers(t *testing.T) {
	reg := NewRegistry()
	fatima := types.User{Id: 1, Username: "fatima"}
	omar := types.User{Id: 2, Username: "omar"}

	c1 := newRegistryClient(t, fatima)
	c1.id = "conn-1"
	c2 := newRegistryClient(t, fatima)
	c2.id = "conn-2"
	c3 := newRegistryClient(t, omar)

	reg.Add(c1)
	reg.Add(c2)
	reg.Add(c3)

	users := reg.OnlineUsers()
	assert.Len(t, users, 2, "expected each user listed once regardless of connection count")
	for _, u := range users {
		assert.True(t, u.IsOnline)
	}
}

func TestRegistry_ConnectionsFor(t *testing.T) {
	reg := NewRegistry()
	user := types.User{Id: 1, Username: "fatima"}

	assert.Empty(t, reg.ConnectionsFor(1))

	c1 := newRegistryClient(t, user)
	c1.id = "conn-1"
	c2 := newRegistryClient(t, user)
	c2.id = "conn-2"
	reg.Add(c1)
	reg.Add(c2)

	conns := reg.ConnectionsFor(1)
	assert.Len(t, conns, 2)
	assert.ElementsMatch(t, []*Client{c1, c2}, conns)
}
