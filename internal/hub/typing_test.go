package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTypingTracker_start(t *testing.T) {
	tracker := newTypingTracker(time.Hour, func(int) {})
	defer tracker.reset()

	assert.True(t, tracker.start(1), "expected first start to be a transition")
	assert.True(t, tracker.active(1))

	assert.False(t, tracker.start(1), "expected refresh not to be a transition")
	assert.True(t, tracker.active(1))
}

func TestTypingTracker_stop(t *testing.T) {
	tracker := newTypingTracker(time.Hour, func(int) {})
	defer tracker.reset()

	assert.False(t, tracker.stop(1), "expected stop without start to report no transition")

	tracker.start(1)
	assert.True(t, tracker.stop(1), "expected stop after start to be a transition")
	assert.False(t, tracker.active(1))

	assert.False(t, tracker.stop(1), "expected duplicate stop to report no transition")
}

func TestTypingTracker_expiry(t *testing.T) {
	expired := make(chan int, 1)
	tracker := newTypingTracker(10*time.Millisecond, func(userId int) {
		expired <- userId
	})
	defer tracker.reset()

	tracker.start(1)

	select {
	case userId := <-expired:
		assert.Equal(t, 1, userId)
	case <-time.After(time.Second):
		t.Fatal("expected typing flag to expire after the quiet period")
	}

	select {
	case <-time.After(50 * time.Millisecond):
	case userId := <-expired:
		t.Fatalf("expected a single expiry, got another for user %d", userId)
	}
}

func TestTypingTracker_refreshExtendsDeadline(t *testing.T) {
	expired := make(chan int, 1)
	tracker := newTypingTracker(50*time.Millisecond, func(userId int) {
		expired <- userId
	})
	defer tracker.reset()

	tracker.start(1)
	time.Sleep(30 * time.Millisecond)
	tracker.start(1)
	time.Sleep(30 * time.Millisecond)

	select {
	case <-expired:
		t.Fatal("expected refresh to extend the quiet period")
	default:
	}

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("expected flag to expire once refreshes stop")
	}
}

func TestTypingTracker_reset(t *testing.T) {
	expired := make(chan int, 2)
	tracker := newTypingTracker(20*time.Millisecond, func(userId int) {
		expired <- userId
	})

	tracker.start(1)
	tracker.start(2)
	tracker.reset()

	assert.False(t, tracker.active(1))
	assert.False(t, tracker.active(2))

	select {
	case userId := <-expired:
		t.Fatalf("expected no expiry after reset, got one for user %d", userId)
	case <-time.After(60 * time.Millisecond):
	}
}
