package store

import (
	"sync"

	"github.com/npezzotti/go-pokerplan/internal/types"
)

type QueryKind string

const (
	QueryRooms        QueryKind = "rooms"
	QueryRoom         QueryKind = "room"
	QueryParticipants QueryKind = "participants"
)

// Query selects which slice of store state a feed observes. RoomId is
// required for QueryRoom and QueryParticipants.
type Query struct {
	Kind   QueryKind
	RoomId string
}

// Event carries the full matching set for the feed's query, never a
// diff. Exactly one field is populated, matching the query kind.
type Event struct {
	Rooms        []types.Room
	Room         *types.Room
	Participants []types.Participant
}

// Feed is a live change feed over one query. The first event is the
// current snapshot; every subsequent event is a fresh full snapshot
// taken after an observed change. Failures while streaming are recorded
// in a sticky error slot and do not close the event channel, so a
// transient fault never forces the consumer to re-watch.
type Feed struct {
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once

	errLock sync.Mutex
	err     error
}

func NewFeed(buffer int) *Feed {
	return &Feed{
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}
}

func (f *Feed) Events() <-chan Event {
	return f.events
}

// Err returns the most recent streaming error. It does not reset.
func (f *Feed) Err() error {
	f.errLock.Lock()
	defer f.errLock.Unlock()
	return f.err
}

// RecordErr stores err in the feed's error slot. The feed keeps
// delivering events.
func (f *Feed) RecordErr(err error) {
	f.errLock.Lock()
	defer f.errLock.Unlock()
	f.err = err
}

// Publish delivers ev to the consumer, blocking until it is accepted or
// the feed is closed. It reports whether the event was delivered.
func (f *Feed) Publish(ev Event) bool {
	select {
	case <-f.done:
		return false
	default:
	}

	select {
	case f.events <- ev:
		return true
	case <-f.done:
		return false
	}
}

// Close releases the feed. It is safe to call more than once and safe
// to call on a feed whose error slot is set.
func (f *Feed) Close() {
	f.closeOnce.Do(func() {
		close(f.done)
	})
}

// Done is closed when the feed has been released.
func (f *Feed) Done() <-chan struct{} {
	return f.done
}
