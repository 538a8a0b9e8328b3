package hub

import (
	"net/http"
	"time"
)

// Reject kinds reported on error responses so clients can react without
// matching on status codes alone.
const (
	KindEmptyContent       = "empty_content"
	KindNotMember          = "not_member"
	KindRoomNotFound       = "room_not_found"
	KindPersistenceFailure = "persistence_failure"
	KindUnauthorized       = "unauthorized"
)

type BaseEvent struct {
	Id        int       `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ClientEvent is the inbound wire frame. Exactly one of the pointer
// fields is set.
type ClientEvent struct {
	BaseEvent
	Join     *Join     `json:"join,omitempty"`
	Leave    *Leave    `json:"leave,omitempty"`
	Publish  *Publish  `json:"message,omitempty"`
	Typing   *Typing   `json:"typing,omitempty"`
	Read     *ReadMark `json:"read,omitempty"`
	Activity *Activity `json:"activity,omitempty"`
	UserId   int       `json:"-"`
	client   *Client
	// disconnected marks leaves synthesized by the hub on transport close.
	disconnected bool
}

type Join struct {
	Room      string `json:"room,omitempty"`
	Private   bool   `json:"private,omitempty"`
	Recipient int    `json:"recipient,omitempty"`
}

type Leave struct {
	Room string `json:"room"`
	// Unsubscribe also drops the durable subscription, not just the
	// live connections.
	Unsubscribe bool `json:"unsubscribe,omitempty"`
}

type Publish struct {
	Room      string `json:"room,omitempty"`
	Private   bool   `json:"private,omitempty"`
	Recipient int    `json:"recipient,omitempty"`
	Content   string `json:"message"`
}

type Typing struct {
	Room      string `json:"room,omitempty"`
	Private   bool   `json:"private,omitempty"`
	Recipient int    `json:"recipient,omitempty"`
	IsTyping  bool   `json:"is_typing"`
}

// ReadMark advances the sender's last-read position in a room.
type ReadMark struct {
	Room  string `json:"room"`
	SeqId int    `json:"seq_id"`
}

type Activity struct{}

// ServerEvent is the outbound wire frame. SkipClient and SkipUserId
// narrow the fan-out target set and never hit the wire.
type ServerEvent struct {
	BaseEvent
	Response   *Response      `json:"response,omitempty"`
	Message    *MessageEvent  `json:"message,omitempty"`
	Status     *StatusEvent   `json:"status,omitempty"`
	Typing     *TypingEvent   `json:"typing,omitempty"`
	Presence   *PresenceEvent `json:"presence,omitempty"`
	RoomGone   *RoomGone      `json:"room_gone,omitempty"`
	SkipClient *Client        `json:"-"`
	SkipUserId int            `json:"-"`
}

type Response struct {
	ResponseCode int            `json:"response_code"`
	Kind         string         `json:"kind,omitempty"`
	Error        string         `json:"error,omitempty"`
	Data         map[string]any `json:"data,omitempty"`
}

type MessageEvent struct {
	Room      string    `json:"room"`
	Private   bool      `json:"private,omitempty"`
	SeqId     int       `json:"seq_id"`
	UserId    int       `json:"user_id"`
	Username  string    `json:"username"`
	Content   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

type StatusEvent struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Msg      string `json:"msg"`
}

type TypingEvent struct {
	Room     string `json:"room"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

type PresenceEvent struct {
	UserId   int    `json:"id"`
	Username string `json:"username"`
	Online   bool   `json:"online"`
}

type RoomGone struct {
	Room string `json:"room"`
}

func NoErrOK(id int, data map[string]any) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusOK,
			Data:         data,
		},
	}
}

func NoErrAccepted(id int) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: http.StatusAccepted,
		},
	}
}

func errEvent(id, code int, kind, msg string) *ServerEvent {
	return &ServerEvent{
		BaseEvent: BaseEvent{
			Id:        id,
			Timestamp: Now(),
		},
		Response: &Response{
			ResponseCode: code,
			Kind:         kind,
			Error:        msg,
		},
	}
}

func ErrEmptyContent(id int) *ServerEvent {
	return errEvent(id, http.StatusBadRequest, KindEmptyContent, "message is empty")
}

func ErrNotMember(id int) *ServerEvent {
	return errEvent(id, http.StatusForbidden, KindNotMember, "not a member of room")
}

func ErrRoomNotFound(id int) *ServerEvent {
	return errEvent(id, http.StatusNotFound, KindRoomNotFound, "room not found")
}

func ErrPersistenceFailure(id int) *ServerEvent {
	return errEvent(id, http.StatusInternalServerError, KindPersistenceFailure, "failed to store message")
}

func ErrUnauthorized(id int) *ServerEvent {
	return errEvent(id, http.StatusUnauthorized, KindUnauthorized, "unauthorized")
}

func ErrServiceUnavailable(id int) *ServerEvent {
	return errEvent(id, http.StatusServiceUnavailable, "", "service unavailable")
}

func ErrInvalidEvent(id int) *ServerEvent {
	ev := errEvent(0, http.StatusBadRequest, "", "invalid event format")
	if id > 0 {
		ev.Id = id
	}
	return ev
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
