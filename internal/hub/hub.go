package hub

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/majlis-chat/majlis/internal/database"
	"github.com/majlis-chat/majlis/internal/stats"
	"github.com/majlis-chat/majlis/internal/types"
)

// FeedPublisher republishes accepted messages onto an external change
// feed. Implementations must not block; the room goroutine calls this on
// the fan-out path.
type FeedPublisher interface {
	PublishMessage(me *MessageEvent)
}

type unloadRoomReq struct {
	key     string
	deleted bool
}

type stopReq struct {
	done chan struct{}
}

// Hub owns the connection registry and the room table. It is constructed
// once at process start and handed to every request-handling unit; rooms
// are loaded on demand and unloaded when idle.
type Hub struct {
	log      *log.Logger
	db       database.Repository
	stats    stats.Provider
	registry *Registry

	rooms        map[string]*Room
	joinCh       chan *ClientEvent
	routeCh      chan *ClientEvent
	registerCh   chan *Client
	deregisterCh chan *Client
	unloadRoomCh chan unloadRoomReq
	feedInCh     chan *MessageEvent
	stop         chan stopReq

	feed FeedPublisher
}

func NewHub(logger *log.Logger, db database.Repository, su stats.Provider) (*Hub, error) {
	for _, metric := range []string{
		"ActiveConnections",
		"ActiveRooms",
		"MessagesAccepted",
		"MessagesRejected",
		"PresenceTransitions",
		"TypingTransitions",
	} {
		su.RegisterMetric(metric)
	}

	return &Hub{
		log:          logger,
		db:           db,
		stats:        su,
		registry:     NewRegistry(),
		rooms:        make(map[string]*Room),
		joinCh:       make(chan *ClientEvent, 256),
		routeCh:      make(chan *ClientEvent, 256),
		registerCh:   make(chan *Client),
		deregisterCh: make(chan *Client),
		unloadRoomCh: make(chan unloadRoomReq, 64),
		feedInCh:     make(chan *MessageEvent, 256),
		stop:         make(chan stopReq),
	}, nil
}

// SetFeed wires an optional change-feed bridge. Must be called before
// Run.
func (h *Hub) SetFeed(pub FeedPublisher) {
	h.feed = pub
}

func (h *Hub) Run() {
	for {
		select {
		case ev := <-h.joinCh:
			h.handleJoin(ev)
		case ev := <-h.routeCh:
			h.handleRoute(ev)
		case c := <-h.registerCh:
			h.handleConnect(c)
		case c := <-h.deregisterCh:
			h.handleDisconnect(c)
		case req := <-h.unloadRoomCh:
			h.unloadRoom(req)
		case me := <-h.feedInCh:
			if r, ok := h.rooms[me.Room]; ok {
				select {
				case r.feedCh <- me:
				default:
					h.log.Printf("feed channel full for room %q", r.key)
				}
			}
		case req := <-h.stop:
			h.log.Println("shutting down rooms")
			for _, r := range h.rooms {
				r.exit <- exitReq{}
				<-r.done
			}
			h.rooms = make(map[string]*Room)

			for _, c := range h.registry.allClients() {
				c.stopClient()
			}

			close(req.done)
			return
		}
	}
}

// Register tracks a freshly upgraded connection.
func (h *Hub) Register(c *Client) {
	h.registerCh <- c
}

func (h *Hub) IsOnline(userId int) bool {
	return h.registry.IsOnline(userId)
}

// OnlineUsers is a snapshot of every user with at least one live
// connection, for the periodic online-users listing.
func (h *Hub) OnlineUsers() []types.User {
	return h.registry.OnlineUsers()
}

// UnloadRoom evicts a room from memory, notifying members when the room
// was deleted.
func (h *Hub) UnloadRoom(ctx context.Context, key string, deleted bool) error {
	select {
	case h.unloadRoomCh <- unloadRoomReq{key: key, deleted: deleted}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// DeliverFeed hands a change-feed message to the owning room, if loaded.
// Rooms with no live members have no subscribers to deliver to.
func (h *Hub) DeliverFeed(me *MessageEvent) {
	select {
	case h.feedInCh <- me:
	default:
		h.log.Println("feed inbound channel full, dropping entry")
	}
}

func (h *Hub) Shutdown(ctx context.Context) error {
	h.log.Println("received shutdown signal")
	req := stopReq{done: make(chan struct{})}

	select {
	case h.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) handleJoin(ev *ClientEvent) {
	key := ev.client.targetKey(ev.Join.Room, ev.Join.Private, ev.Join.Recipient)

	room, err := h.loadRoom(key, ev.Join.Private, ev.UserId, ev.Join.Recipient)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			ev.client.queueEvent(ErrRoomNotFound(ev.Id))
		} else {
			h.log.Printf("load room %q: %v", key, err)
			ev.client.queueEvent(ErrPersistenceFailure(ev.Id))
		}
		return
	}

	select {
	case room.joinCh <- ev:
	default:
		h.log.Printf("join channel full on room %q", room.key)
		ev.client.queueEvent(ErrServiceUnavailable(ev.Id))
	}
}

// handleRoute resolves publishes and typing events addressed to rooms
// the sending connection has not joined. Public rooms are never joined
// implicitly; private pairs are loaded so the room can admit the
// participant on first send.
func (h *Hub) handleRoute(ev *ClientEvent) {
	var key string
	var private bool
	var recipient int

	switch {
	case ev.Publish != nil:
		key = ev.client.targetKey(ev.Publish.Room, ev.Publish.Private, ev.Publish.Recipient)
		private = ev.Publish.Private
		recipient = ev.Publish.Recipient
	case ev.Typing != nil:
		key = ev.client.targetKey(ev.Typing.Room, ev.Typing.Private, ev.Typing.Recipient)
		private = ev.Typing.Private
		recipient = ev.Typing.Recipient
	default:
		return
	}

	if !private {
		if ev.Publish != nil {
			h.stats.Incr("MessagesRejected")
			ev.client.queueEvent(ErrNotMember(ev.Id))
		}
		return
	}

	room, err := h.loadRoom(key, true, ev.UserId, recipient)
	if err != nil {
		h.log.Printf("load private room %q: %v", key, err)
		if ev.Publish != nil {
			ev.client.queueEvent(ErrPersistenceFailure(ev.Id))
		}
		return
	}

	select {
	case room.eventCh <- ev:
	default:
		h.log.Printf("event channel full for room %q", room.key)
		ev.client.queueEvent(ErrServiceUnavailable(ev.Id))
	}
}

// loadRoom returns the live actor for a room key, starting one from the
// repository row if needed. Private rooms are created on demand; they
// are always valid given two participants.
func (h *Hub) loadRoom(key string, private bool, userId, recipient int) (*Room, error) {
	if room, ok := h.rooms[key]; ok {
		return room, nil
	}

	var dbRoom database.Room
	var err error
	if private {
		a, b := userId, recipient
		if b < a {
			a, b = b, a
		}
		dbRoom, err = h.db.GetOrCreatePrivateRoom(key, a, b)
	} else {
		dbRoom, err = h.db.GetRoomByExternalId(key)
	}
	if err != nil {
		return nil, err
	}

	room := newRoom(h, dbRoom)
	h.addRoom(key, room)
	go room.run()

	return room, nil
}

func (h *Hub) addRoom(key string, room *Room) {
	h.rooms[key] = room
	h.stats.Incr("ActiveRooms")
}

func (h *Hub) getRoom(key string) (*Room, bool) {
	r, ok := h.rooms[key]
	return r, ok
}

func (h *Hub) unloadRoom(req unloadRoomReq) {
	r, ok := h.rooms[req.key]
	if !ok {
		return
	}

	h.log.Printf("removing room %q", req.key)
	delete(h.rooms, req.key)
	h.stats.Decr("ActiveRooms")

	r.exit <- exitReq{deleted: req.deleted}
	<-r.done
}

func (h *Hub) handleConnect(c *Client) {
	h.log.Printf("adding connection %s from %q", c.id, c.user.Username)

	wentOnline := h.registry.Add(c)
	h.stats.Incr("ActiveConnections")

	if wentOnline {
		// the fresh connection has no memberships yet, so the audience
		// comes from the user's durable subscriptions
		h.broadcastPresence(c.user, true, h.subscribedRooms(c.user.Id))
	}
}

// handleDisconnect removes the connection from every room it was a
// member of and from the registry, so no further fan-out targets it.
func (h *Hub) handleDisconnect(c *Client) {
	h.log.Printf("removing connection %s from %q", c.id, c.user.Username)

	rooms := c.roomList()
	for _, r := range rooms {
		select {
		case r.leaveCh <- &ClientEvent{
			Leave:        &Leave{Room: r.key},
			UserId:       c.user.Id,
			client:       c,
			disconnected: true,
		}:
		default:
			h.log.Printf("leave channel full for room %q", r.key)
		}
	}

	removed, wentOffline := h.registry.Remove(c)
	if !removed {
		// duplicate or late disconnect
		return
	}
	h.stats.Decr("ActiveConnections")

	if wentOffline {
		h.broadcastPresence(c.user, false, h.subscribedRooms(c.user.Id))
	}
}

// subscribedRooms maps the user's durable subscriptions onto the rooms
// currently loaded in the hub. Unloaded rooms have no one listening and
// are skipped.
func (h *Hub) subscribedRooms(userId int) []*Room {
	subs, err := h.db.ListSubscriptions(userId)
	if err != nil {
		h.log.Println("error listing subscriptions:", err)
		return nil
	}

	var rooms []*Room
	for _, sub := range subs {
		if r, ok := h.rooms[sub.Room.ExternalId]; ok {
			rooms = append(rooms, r)
		}
	}

	return rooms
}

// broadcastPresence emits one online/offline event per registry
// transition to every loaded room the user is subscribed to.
func (h *Hub) broadcastPresence(user types.User, online bool, rooms []*Room) {
	h.stats.Incr("PresenceTransitions")

	ev := &ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Presence: &PresenceEvent{
			UserId:   user.Id,
			Username: user.Username,
			Online:   online,
		},
	}

	for _, r := range rooms {
		select {
		case r.notifyCh <- ev:
		default:
			h.log.Printf("notify channel full for room %q", r.key)
		}
	}
}

// requestUnload asks the hub loop to evict a room. Reports false when
// the request could not be queued; the caller keeps its kill timer
// armed and retries on the next idle period.
func (h *Hub) requestUnload(key string, deleted bool) bool {
	select {
	case h.unloadRoomCh <- unloadRoomReq{key: key, deleted: deleted}:
		return true
	default:
		h.log.Printf("unload channel full, room %q stays loaded", key)
		return false
	}
}

func (h *Hub) publishFeed(me *MessageEvent) {
	if h.feed == nil {
		return
	}
	h.feed.PublishMessage(me)
}
