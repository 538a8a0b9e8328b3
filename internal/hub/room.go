package hub

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/majlis-chat/majlis/internal/database"
	"github.com/majlis-chat/majlis/internal/types"
)

const idleRoomTimeout = time.Second * 30

const systemUsername = "System"

type exitReq struct {
	deleted bool
	done    chan string
}

// Room is the fan-out scope for one public room or one private pair.
// A single goroutine (run) owns membership, the typing tracker, and the
// sequence counter, so no two submissions to the same room can be
// assigned the same sequence number. Unrelated rooms never share a lock.
type Room struct {
	id   int
	key  string
	kind types.RoomKind
	// userA and userB are the participants of a private room, in
	// canonical order. Zero for public rooms.
	userA int
	userB int
	seq   int

	hub *Hub
	log *log.Logger

	joinCh        chan *ClientEvent
	leaveCh       chan *ClientEvent
	eventCh       chan *ClientEvent
	notifyCh      chan *ServerEvent
	feedCh        chan *MessageEvent
	typingExpired chan int
	exit          chan exitReq
	done          chan struct{}

	clients   map[*Client]struct{}
	userConns map[int]map[*Client]struct{}
	typing    *typingTracker

	// killTimer unloads the room once every member is gone.
	killTimer *time.Timer
}

func newRoom(h *Hub, dbRoom database.Room) *Room {
	r := &Room{
		id:            dbRoom.Id,
		key:           dbRoom.ExternalId,
		kind:          types.RoomKind(dbRoom.Kind),
		userA:         dbRoom.UserA,
		userB:         dbRoom.UserB,
		seq:           dbRoom.SeqId,
		hub:           h,
		log:           h.log,
		joinCh:        make(chan *ClientEvent, 256),
		leaveCh:       make(chan *ClientEvent, 256),
		eventCh:       make(chan *ClientEvent, 256),
		notifyCh:      make(chan *ServerEvent, 256),
		feedCh:        make(chan *MessageEvent, 256),
		typingExpired: make(chan int, 64),
		exit:          make(chan exitReq),
		done:          make(chan struct{}),
		clients:       make(map[*Client]struct{}),
		userConns:     make(map[int]map[*Client]struct{}),
	}

	r.typing = newTypingTracker(typingQuietPeriod, func(userId int) {
		select {
		case r.typingExpired <- userId:
		case <-r.done:
		}
	})

	return r
}

func (r *Room) run() {
	r.log.Printf("starting room %q", r.key)
	r.killTimer = time.NewTimer(idleRoomTimeout)
	r.killTimer.Stop()

	for {
		select {
		case ev := <-r.joinCh:
			r.handleJoin(ev)
		case ev := <-r.leaveCh:
			r.handleLeave(ev)
		case ev := <-r.eventCh:
			switch {
			case ev.Publish != nil:
				r.handlePublish(ev)
			case ev.Typing != nil:
				r.handleTyping(ev)
			case ev.Read != nil:
				r.handleRead(ev)
			}
		case userId := <-r.typingExpired:
			r.handleTypingExpired(userId)
		case msg := <-r.feedCh:
			r.handleFeedMessage(msg)
		case ev := <-r.notifyCh:
			r.broadcast(ev)
		case <-r.killTimer.C:
			r.handleRoomTimeout()
		case e := <-r.exit:
			r.handleRoomExit(e)
			return
		}
	}
}

func (r *Room) handleJoin(ev *ClientEvent) {
	r.killTimer.Stop()

	c := ev.client
	if _, ok := r.clients[c]; ok {
		// joining twice is a no-op
		c.queueEvent(NoErrOK(ev.Id, r.roomInfo()))
		return
	}

	if err := r.joinClient(c); err != nil {
		r.log.Printf("join %q to room %q: %v", c.user.Username, r.key, err)
		if len(r.clients) == 0 {
			r.killTimer.Reset(idleRoomTimeout)
		}
		c.queueEvent(ErrPersistenceFailure(ev.Id))
		return
	}

	c.queueEvent(NoErrOK(ev.Id, r.roomInfo()))

	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Status: &StatusEvent{
			Room:     r.key,
			Username: systemUsername,
			Msg:      fmt.Sprintf("%s joined the room", c.user.Username),
		},
	})
}

// joinClient adds the connection to the membership set, creating the
// durable subscription on the user's first join.
func (r *Room) joinClient(c *Client) error {
	if !r.hub.db.SubscriptionExists(c.user.Id, r.id) {
		if _, err := r.hub.db.CreateSubscription(c.user.Id, r.id); err != nil {
			return fmt.Errorf("create subscription: %w", err)
		}
	}

	r.addClient(c)
	return nil
}

func (r *Room) handleLeave(ev *ClientEvent) {
	if ev.Leave != nil && ev.Leave.Unsubscribe {
		r.handleUnsubscribe(ev)
		return
	}

	c := ev.client
	if _, ok := r.clients[c]; !ok {
		// leaving a room you are not in is a no-op
		if !ev.disconnected {
			c.queueEvent(NoErrOK(ev.Id, nil))
		}
		return
	}

	r.removeClient(c)

	// a connection leaving mid-keystroke must not strand its flag,
	// but only the user's last connection clears it
	if r.userConns[c.user.Id] == nil && r.typing.stop(c.user.Id) {
		r.broadcastTyping(c.user, false)
	}

	if ev.disconnected {
		return
	}

	c.queueEvent(NoErrOK(ev.Id, nil))

	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Status: &StatusEvent{
			Room:     r.key,
			Username: systemUsername,
			Msg:      fmt.Sprintf("%s left the room", c.user.Username),
		},
	})
}

// handleUnsubscribe drops the user's durable subscription and every
// one of their live connections in this room.
func (r *Room) handleUnsubscribe(ev *ClientEvent) {
	c := ev.client

	if err := r.hub.db.DeleteSubscription(c.user.Id, r.id); err != nil {
		r.log.Printf("error deleting subscription for %q in room %q: %v",
			c.user.Username, r.key, err)
		c.queueEvent(ErrPersistenceFailure(ev.Id))
		return
	}

	for conn := range r.userConns[c.user.Id] {
		r.removeClient(conn)
	}

	if r.typing.stop(c.user.Id) {
		r.broadcastTyping(c.user, false)
	}

	c.queueEvent(NoErrOK(ev.Id, nil))

	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Status: &StatusEvent{
			Room:     r.key,
			Username: systemUsername,
			Msg:      fmt.Sprintf("%s left the room", c.user.Username),
		},
	})
}

// handlePublish validates and routes one inbound message: trim-check,
// membership check, then persist before fan-out. A rejected message
// never consumes a sequence number.
func (r *Room) handlePublish(ev *ClientEvent) {
	c := ev.client

	content := strings.TrimSpace(ev.Publish.Content)
	if content == "" {
		r.hub.stats.Incr("MessagesRejected")
		c.queueEvent(ErrEmptyContent(ev.Id))
		return
	}

	if _, ok := r.clients[c]; !ok {
		// a private room admits its participants on first send;
		// public rooms require an explicit join
		if r.kind != types.RoomKindPrivate || !r.isParticipant(c.user.Id) {
			r.hub.stats.Incr("MessagesRejected")
			c.queueEvent(ErrNotMember(ev.Id))
			return
		}

		r.killTimer.Stop()
		if err := r.joinClient(c); err != nil {
			r.log.Printf("auto-join %q to room %q: %v", c.user.Username, r.key, err)
			c.queueEvent(ErrPersistenceFailure(ev.Id))
			return
		}
	}

	seq := r.seq + 1
	msg := database.Message{
		SeqId:     seq,
		RoomId:    r.id,
		UserId:    c.user.Id,
		Content:   content,
		CreatedAt: ev.Timestamp,
	}

	if err := r.hub.db.SaveMessage(msg); err != nil {
		r.log.Println("error saving message:", err)
		r.hub.stats.Incr("MessagesRejected")
		c.queueEvent(ErrPersistenceFailure(ev.Id))
		return
	}

	r.seq = seq
	r.hub.stats.Incr("MessagesAccepted")

	// sending a message ends the sender's typing state
	if r.typing.stop(c.user.Id) {
		r.broadcastTyping(c.user, false)
	}

	c.queueEvent(NoErrAccepted(ev.Id))

	me := &MessageEvent{
		Room:      r.key,
		Private:   r.kind == types.RoomKindPrivate,
		SeqId:     seq,
		UserId:    c.user.Id,
		Username:  c.user.Username,
		Content:   content,
		Timestamp: ev.Timestamp,
	}

	// the sender's own connections receive the broadcast echo too
	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Id: ev.Id, Timestamp: ev.Timestamp},
		Message:   me,
	})

	r.hub.publishFeed(me)
}

func (r *Room) handleTyping(ev *ClientEvent) {
	c := ev.client
	if _, ok := r.clients[c]; !ok {
		// typing is best-effort; non-members are ignored, except the
		// participants of a private room, who may type before their
		// first send admits them
		if r.kind != types.RoomKindPrivate || !r.isParticipant(c.user.Id) {
			return
		}
	}

	if ev.Typing.IsTyping {
		if r.typing.start(c.user.Id) {
			r.broadcastTyping(c.user, true)
		}
		return
	}

	if r.typing.stop(c.user.Id) {
		r.broadcastTyping(c.user, false)
	}
}

// handleRead records how far the user has caught up in this room.
func (r *Room) handleRead(ev *ClientEvent) {
	c := ev.client
	if _, ok := r.clients[c]; !ok {
		return
	}

	if err := r.hub.db.UpdateLastReadSeqId(c.user.Id, r.id, ev.Read.SeqId); err != nil {
		r.log.Printf("error updating read marker for %q in room %q: %v",
			c.user.Username, r.key, err)
		c.queueEvent(ErrPersistenceFailure(ev.Id))
		return
	}

	c.queueEvent(NoErrOK(ev.Id, nil))
}

func (r *Room) handleTypingExpired(userId int) {
	// the explicit stop may have won the race with the timer
	if !r.typing.stop(userId) {
		return
	}

	user := types.User{Id: userId}
	for c := range r.clients {
		if c.user.Id == userId {
			user = c.user
			break
		}
	}

	r.broadcastTyping(user, false)
}

func (r *Room) broadcastTyping(user types.User, isTyping bool) {
	r.hub.stats.Incr("TypingTransitions")
	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Typing: &TypingEvent{
			Room:     r.key,
			UserId:   user.Id,
			Username: user.Username,
			IsTyping: isTyping,
		},
		SkipUserId: user.Id,
	})
}

// handleFeedMessage re-delivers a message observed on the change feed.
// Anything at or below the room's own sequence already went through the
// in-process fan-out and is dropped as a duplicate.
func (r *Room) handleFeedMessage(me *MessageEvent) {
	if me.SeqId <= r.seq {
		return
	}

	r.seq = me.SeqId
	r.broadcast(&ServerEvent{
		BaseEvent: BaseEvent{Timestamp: Now()},
		Message:   me,
	})
}

func (r *Room) handleRoomTimeout() {
	r.log.Printf("room %q timed out", r.key)
	if !r.hub.requestUnload(r.key, false) {
		r.killTimer.Reset(idleRoomTimeout)
	}
}

func (r *Room) handleRoomExit(e exitReq) {
	r.log.Printf("room %q is exiting", r.key)
	r.typing.reset()

	if e.deleted {
		r.broadcast(&ServerEvent{
			BaseEvent: BaseEvent{Timestamp: Now()},
			RoomGone:  &RoomGone{Room: r.key},
		})
	}

	for c := range r.clients {
		c.delRoom(r.key)
	}

	close(r.done)
	if e.done != nil {
		e.done <- r.key
	}
}

func (r *Room) isParticipant(userId int) bool {
	return userId == r.userA || userId == r.userB
}

func (r *Room) roomInfo() map[string]any {
	return map[string]any{
		"room":   r.key,
		"kind":   r.kind,
		"seq_id": r.seq,
	}
}

func (r *Room) addClient(c *Client) {
	r.clients[c] = struct{}{}
	if r.userConns[c.user.Id] == nil {
		r.userConns[c.user.Id] = make(map[*Client]struct{})
	}
	r.userConns[c.user.Id][c] = struct{}{}

	c.addRoom(r)
}

func (r *Room) removeClient(c *Client) {
	delete(r.clients, c)
	c.delRoom(r.key)

	if conns, ok := r.userConns[c.user.Id]; ok {
		delete(conns, c)
		if len(conns) == 0 {
			delete(r.userConns, c.user.Id)
		}
	}

	if len(r.clients) == 0 {
		r.log.Printf("no clients in %q, starting kill timer", r.key)
		r.killTimer.Reset(idleRoomTimeout)
	}
}

// subscribers returns the current fan-out target set.
func (r *Room) subscribers() []*Client {
	subs := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		subs = append(subs, c)
	}
	return subs
}

func (r *Room) broadcast(ev *ServerEvent) {
	for client := range r.clients {
		if client == ev.SkipClient {
			continue
		}
		if ev.SkipUserId != 0 && client.user.Id == ev.SkipUserId {
			continue
		}

		client.queueEvent(ev)
	}
}
