package session

import (
	"context"
	"log"
	"sync"

	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
	"github.com/npezzotti/go-pokerplan/internal/types"
)

// Hub hands out live subscriptions over room and participant state.
// Every subscription delivers the current full matching set immediately
// and a fresh full set after each observed change; it never delivers
// diffs. Deliveries for one subscription are serialized on a single
// goroutine, so later writes are never observed before earlier ones.
type Hub struct {
	log   *log.Logger
	store store.SessionStore
	stats stats.StatsProvider
}

func NewHub(logger *log.Logger, st store.SessionStore, sp stats.StatsProvider) *Hub {
	sp.RegisterMetric(stats.ActiveSubscriptions)

	return &Hub{
		log:   logger,
		store: st,
		stats: sp,
	}
}

// Subscription is a single live binding between a query and a delivery
// callback. The owner must call Cancel exactly once when done; an
// uncancelled subscription holds its feed for the life of the process.
type Subscription struct {
	feed       *store.Feed
	stats      stats.StatsProvider
	cancelOnce sync.Once
}

// Cancel releases the subscription. It is idempotent: cancelling twice,
// or cancelling a subscription whose error slot is set, is safe.
func (s *Subscription) Cancel() {
	s.cancelOnce.Do(func() {
		s.feed.Close()
		s.stats.Decr(stats.ActiveSubscriptions)
	})
}

// Err reports the most recent streaming error. An error here does not
// mean the subscription is dead: the stream stays subscribed and
// resumes delivery when the underlying transport recovers.
func (s *Subscription) Err() error {
	return s.feed.Err()
}

func (h *Hub) SubscribeRooms(ctx context.Context, onUpdate func([]types.Room)) (*Subscription, error) {
	return h.subscribe(ctx, store.Query{Kind: store.QueryRooms}, func(ev store.Event) {
		onUpdate(ev.Rooms)
	})
}

func (h *Hub) SubscribeRoom(ctx context.Context, roomId string, onUpdate func(*types.Room)) (*Subscription, error) {
	return h.subscribe(ctx, store.Query{Kind: store.QueryRoom, RoomId: roomId}, func(ev store.Event) {
		onUpdate(ev.Room)
	})
}

func (h *Hub) SubscribeParticipants(ctx context.Context, roomId string, onUpdate func([]types.Participant)) (*Subscription, error) {
	return h.subscribe(ctx, store.Query{Kind: store.QueryParticipants, RoomId: roomId}, func(ev store.Event) {
		onUpdate(ev.Participants)
	})
}

func (h *Hub) subscribe(ctx context.Context, query store.Query, deliver func(store.Event)) (*Subscription, error) {
	feed, err := h.store.Watch(ctx, query)
	if err != nil {
		h.log.Printf("subscribe %s: %v", query.Kind, err)
		return nil, err
	}

	sub := &Subscription{
		feed:  feed,
		stats: h.stats,
	}
	h.stats.Incr(stats.ActiveSubscriptions)

	go func() {
		for {
			select {
			case ev := <-feed.Events():
				deliver(ev)
			case <-feed.Done():
				return
			}
		}
	}()

	return sub, nil
}
