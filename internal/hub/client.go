package hub

import (
	"encoding/json"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/majlis-chat/majlis/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxEventSize   = 4096
	sendBufferSize = 256
)

// Client is one live transport connection. A user with several open tabs
// holds several Clients, each with its own buffered outbound queue so a
// slow consumer never stalls delivery to the rest of a room.
type Client struct {
	id           string
	conn         *websocket.Conn
	hub          *Hub
	log          *log.Logger
	user         types.User
	send         chan *ServerEvent
	rooms        map[string]*Room
	roomsLock    sync.RWMutex
	createdAt    time.Time
	lastActivity atomic64Time
	stop         chan struct{}
	stopOnce     sync.Once
}

func NewClient(user types.User, conn *websocket.Conn, h *Hub, l *log.Logger) *Client {
	c := &Client{
		id:        uuid.NewString(),
		conn:      conn,
		hub:       h,
		log:       l,
		user:      user,
		send:      make(chan *ServerEvent, sendBufferSize),
		rooms:     make(map[string]*Room),
		createdAt: time.Now().UTC(),
		stop:      make(chan struct{}),
	}
	c.lastActivity.Store(c.createdAt)

	return c
}

// Id returns the connection's unique identifier.
func (c *Client) Id() string {
	return c.id
}

func (c *Client) User() types.User {
	return c.user
}

func (c *Client) LastActivity() time.Time {
	return c.lastActivity.Load()
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.log.Println("write exiting")
	}()

	for {
		select {
		case ev, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(ev)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeMessage(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeMessage(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
		c.log.Println("read exiting")
	}()

	c.conn.SetReadLimit(maxEventSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		var ev ClientEvent
		if err := json.Unmarshal(raw, &ev); err != nil {
			c.log.Println("error parsing event:", err)
			c.queueEvent(ErrInvalidEvent(-1))
			continue
		}

		ev.client = c
		ev.UserId = c.user.Id
		ev.Timestamp = Now()
		c.lastActivity.Store(ev.Timestamp)

		c.dispatch(&ev)
	}
}

func (c *Client) dispatch(ev *ClientEvent) {
	switch {
	case ev.Join != nil:
		c.sendToHub(c.hub.joinCh, ev)
	case ev.Leave != nil:
		c.leaveRoom(ev)
	case ev.Publish != nil:
		key := c.targetKey(ev.Publish.Room, ev.Publish.Private, ev.Publish.Recipient)
		if r := c.getRoom(key); r != nil {
			c.sendToRoom(r, r.eventCh, ev)
		} else {
			// the hub decides between auto-joining a private pair
			// and rejecting an unjoined public room
			c.sendToHub(c.hub.routeCh, ev)
		}
	case ev.Typing != nil:
		key := c.targetKey(ev.Typing.Room, ev.Typing.Private, ev.Typing.Recipient)
		if r := c.getRoom(key); r != nil {
			c.sendToRoom(r, r.eventCh, ev)
		} else if ev.Typing.Private {
			// a private pair may type before the first send joins it;
			// typing for an unjoined public room is dropped
			c.sendToHub(c.hub.routeCh, ev)
		}
	case ev.Read != nil:
		if r := c.getRoom(ev.Read.Room); r != nil {
			c.sendToRoom(r, r.eventCh, ev)
		}
		// a read marker for an unjoined room has nothing to advance
	case ev.Activity != nil:
		if err := c.hub.db.TouchLastSeen(c.user.Id); err != nil {
			c.log.Println("touch last seen:", err)
		}
	default:
		c.queueEvent(ErrInvalidEvent(ev.Id))
	}
}

func (c *Client) targetKey(room string, private bool, recipient int) string {
	if private {
		return PrivateRoomKey(c.user.Id, recipient)
	}
	return room
}

func (c *Client) leaveRoom(ev *ClientEvent) {
	r := c.getRoom(ev.Leave.Room)
	if r == nil {
		// already not a member
		c.queueEvent(NoErrOK(ev.Id, nil))
		return
	}

	c.sendToRoom(r, r.leaveCh, ev)
}

func (c *Client) sendToHub(ch chan *ClientEvent, ev *ClientEvent) {
	select {
	case ch <- ev:
	default:
		c.log.Println("hub channel full, dropping event")
		c.queueEvent(ErrServiceUnavailable(ev.Id))
	}
}

func (c *Client) sendToRoom(r *Room, ch chan *ClientEvent, ev *ClientEvent) {
	select {
	case ch <- ev:
	default:
		c.log.Printf("channel full for room %q", r.key)
		c.queueEvent(ErrServiceUnavailable(ev.Id))
	}
}

func (c *Client) queueEvent(ev *ServerEvent) bool {
	select {
	case c.send <- ev:
	default:
		c.log.Println("failed to queue event for client, channel is full")
		return false
	}

	return true
}

func (c *Client) writeMessage(msgType int, msg []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, msg); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write message: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *Client) cleanup() {
	c.hub.deregisterCh <- c
	c.stopClient()
}

func (c *Client) addRoom(r *Room) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	c.rooms[r.key] = r
}

func (c *Client) delRoom(key string) {
	c.roomsLock.Lock()
	defer c.roomsLock.Unlock()

	delete(c.rooms, key)
}

func (c *Client) getRoom(key string) *Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	return c.rooms[key]
}

func (c *Client) roomList() []*Room {
	c.roomsLock.RLock()
	defer c.roomsLock.RUnlock()

	rooms := make([]*Room, 0, len(c.rooms))
	for _, r := range c.rooms {
		rooms = append(rooms, r)
	}

	return rooms
}

// atomic64Time stores a time as unix nanos; the read and write pumps
// touch last-activity from different goroutines.
type atomic64Time struct {
	v atomic.Int64
}

func (t *atomic64Time) Store(tm time.Time) {
	t.v.Store(tm.UnixNano())
}

func (t *atomic64Time) Load() time.Time {
	return time.Unix(0, t.v.Load()).UTC()
}
