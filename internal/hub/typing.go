package hub

import "time"

// typingQuietPeriod is how long a typing flag survives without a refresh
// before the room clears it on the client's behalf. Dropped stop events
// must never leave a stale indicator.
const typingQuietPeriod = 2 * time.Second

// typingTracker holds the ephemeral per-user typing flags of one room.
// It is owned by the room goroutine and never locked; expiry timers call
// back through expired, which re-enters the room loop via a channel.
type typingTracker struct {
	quiet   time.Duration
	timers  map[int]*time.Timer
	expired func(userId int)
}

func newTypingTracker(quiet time.Duration, expired func(userId int)) *typingTracker {
	return &typingTracker{
		quiet:   quiet,
		timers:  make(map[int]*time.Timer),
		expired: expired,
	}
}

// start records or refreshes the user's typing flag and reports whether
// this is an idle-to-typing transition. Refreshes only extend the
// deadline; they are not transitions.
func (t *typingTracker) start(userId int) bool {
	if timer, ok := t.timers[userId]; ok {
		timer.Reset(t.quiet)
		return false
	}

	t.timers[userId] = time.AfterFunc(t.quiet, func() {
		t.expired(userId)
	})
	return true
}

// stop clears the user's typing flag and reports whether a
// typing-to-idle transition actually occurred.
func (t *typingTracker) stop(userId int) bool {
	timer, ok := t.timers[userId]
	if !ok {
		return false
	}

	timer.Stop()
	delete(t.timers, userId)
	return true
}

func (t *typingTracker) active(userId int) bool {
	_, ok := t.timers[userId]
	return ok
}

// reset drops all flags without firing transitions; used on room exit.
func (t *typingTracker) reset() {
	for userId, timer := range t.timers {
		timer.Stop()
		delete(t.timers, userId)
	}
}
