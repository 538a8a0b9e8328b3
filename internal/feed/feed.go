// Package feed bridges accepted messages onto a redis channel so
// secondary consumers (other hub instances, change-feed subscribers) can
// observe them. The in-process fan-out stays the single source of
// delivery truth: inbound feed entries are deduplicated against each
// room's sequence counter before re-delivery, so a message never renders
// twice.
package feed

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"
	"github.com/majlis-chat/majlis/internal/hub"
	"github.com/redis/go-redis/v9"
)

const defaultChannel = "majlis:messages"

type entry struct {
	Origin  string           `json:"origin"`
	Message *hub.MessageEvent `json:"message"`
}

type Bridge struct {
	log     *log.Logger
	rdb     *redis.Client
	hub     *hub.Hub
	channel string
	// origin identifies this bridge instance so its own publications
	// are skipped on the inbound path before the sequence dedup runs.
	origin string
	out    chan *hub.MessageEvent
	stop   chan struct{}
	done   chan struct{}
}

func NewBridge(logger *log.Logger, addr string, h *hub.Hub) *Bridge {
	return &Bridge{
		log:     logger,
		rdb:     redis.NewClient(&redis.Options{Addr: addr}),
		hub:     h,
		channel: defaultChannel,
		origin:  uuid.NewString(),
		out:     make(chan *hub.MessageEvent, 256),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// PublishMessage enqueues an accepted message for republication. Never
// blocks; the feed is best-effort and the room goroutine must not stall.
func (b *Bridge) PublishMessage(me *hub.MessageEvent) {
	select {
	case b.out <- me:
	default:
		b.log.Println("feed outbound queue full, dropping entry")
	}
}

func (b *Bridge) Run() {
	go b.publishLoop()
	go b.subscribeLoop()
}

func (b *Bridge) publishLoop() {
	ctx := context.Background()

	for {
		select {
		case me := <-b.out:
			payload, err := json.Marshal(entry{Origin: b.origin, Message: me})
			if err != nil {
				b.log.Println("feed marshal:", err)
				continue
			}

			if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
				b.log.Println("feed publish:", err)
			}
		case <-b.stop:
			return
		}
	}
}

func (b *Bridge) subscribeLoop() {
	defer close(b.done)

	ctx := context.Background()
	pubsub := b.rdb.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}

			var e entry
			if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
				b.log.Println("feed unmarshal:", err)
				continue
			}

			if e.Origin == b.origin || e.Message == nil {
				continue
			}

			b.hub.DeliverFeed(e.Message)
		case <-b.stop:
			return
		}
	}
}

func (b *Bridge) Stop() {
	close(b.stop)
	<-b.done

	if err := b.rdb.Close(); err != nil {
		b.log.Println("feed close:", err)
	}
}
