package hub

import (
	"sync"

	"github.com/majlis-chat/majlis/internal/types"
)

// Registry maps user ids to their live connections. A user may hold any
// number of connections at once; the Add/Remove return values report the
// edge-triggered online/offline crossings so a second tab never produces
// a second presence event.
type Registry struct {
	mu        sync.Mutex
	clients   map[*Client]struct{}
	userConns map[int]map[*Client]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		clients:   make(map[*Client]struct{}),
		userConns: make(map[int]map[*Client]struct{}),
	}
}

// Add tracks a new connection and reports whether the owning user just
// crossed from offline to online.
func (reg *Registry) Add(c *Client) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	reg.clients[c] = struct{}{}

	conns := reg.userConns[c.user.Id]
	if conns == nil {
		conns = make(map[*Client]struct{})
		reg.userConns[c.user.Id] = conns
	}
	conns[c] = struct{}{}

	return len(conns) == 1
}

// Remove untracks a connection. Removing an unknown connection is a
// no-op; disconnect events may arrive duplicated or late. The second
// return reports whether the user just crossed to offline.
func (reg *Registry) Remove(c *Client) (removed, wentOffline bool) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, ok := reg.clients[c]; !ok {
		return false, false
	}
	delete(reg.clients, c)

	if conns, ok := reg.userConns[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(reg.userConns, c.user.Id)
			return true, true
		}
	}

	return true, false
}

func (reg *Registry) IsOnline(userId int) bool {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.userConns[userId]) > 0
}

// OnlineUsers returns a snapshot of every user with at least one live
// connection.
func (reg *Registry) OnlineUsers() []types.User {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	users := make([]types.User, 0, len(reg.userConns))
	for _, conns := range reg.userConns {
		for c := range conns {
			u := c.user
			u.IsOnline = true
			users = append(users, u)
			break
		}
	}

	return users
}

// ConnectionsFor returns the user's live connections.
func (reg *Registry) ConnectionsFor(userId int) []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns := make([]*Client, 0, len(reg.userConns[userId]))
	for c := range reg.userConns[userId] {
		conns = append(conns, c)
	}

	return conns
}

func (reg *Registry) NumClients() int {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	return len(reg.clients)
}

func (reg *Registry) allClients() []*Client {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	clients := make([]*Client, 0, len(reg.clients))
	for c := range reg.clients {
		clients = append(clients, c)
	}

	return clients
}
