package store

import (
	"context"
	"fmt"

	"github.com/lib/pq"
)

type pgWatcher struct {
	query  Query
	notify chan struct{}
}

func (s *PgSessionStore) Watch(ctx context.Context, query Query) (*Feed, error) {
	switch query.Kind {
	case QueryRooms:
	case QueryRoom, QueryParticipants:
		if query.RoomId == "" {
			return nil, NewUnknownError(fmt.Errorf("query kind %q requires a room id", query.Kind))
		}
	default:
		return nil, NewUnknownError(fmt.Errorf("unknown query kind %q", query.Kind))
	}

	feed := NewFeed(16)
	w := &pgWatcher{
		query:  query,
		notify: make(chan struct{}, 1),
	}

	s.watchLock.Lock()
	s.watchers[feed] = w
	s.watchLock.Unlock()

	go s.serveWatch(feed, w)
	return feed, nil
}

// serveWatch owns all deliveries for one feed. Each delivery re-runs
// the feed's query, so snapshots are monotonically fresh and never
// reordered. A failing query lands in the feed's error slot and the
// loop keeps serving, so recovery of the connection resumes delivery
// without the consumer resubscribing.
func (s *PgSessionStore) serveWatch(feed *Feed, w *pgWatcher) {
	defer func() {
		s.watchLock.Lock()
		delete(s.watchers, feed)
		s.watchLock.Unlock()
	}()

	deliver := func() bool {
		ev, err := s.snapshot(w.query)
		if err != nil {
			s.log.Printf("watch %s: %v", w.query.Kind, err)
			feed.RecordErr(err)
			return true
		}
		return feed.Publish(ev)
	}

	if !deliver() {
		return
	}

	for {
		select {
		case <-w.notify:
			if !deliver() {
				return
			}
		case <-feed.Done():
			return
		}
	}
}

func (s *PgSessionStore) snapshot(query Query) (Event, error) {
	ctx := context.Background()

	switch query.Kind {
	case QueryRooms:
		rooms, err := s.ListRooms(ctx)
		if err != nil {
			return Event{}, err
		}
		return Event{Rooms: rooms}, nil
	case QueryRoom:
		room, err := s.GetRoom(ctx, query.RoomId)
		if err != nil {
			if CodeOf(err) == CodeNotFound {
				return Event{}, nil
			}
			return Event{}, err
		}
		return Event{Room: &room}, nil
	default:
		participants, err := s.ListParticipants(ctx, query.RoomId)
		if err != nil {
			return Event{}, err
		}
		return Event{Participants: participants}, nil
	}
}

// dispatch fans LISTEN/NOTIFY payloads out to the watchers whose query
// they affect. Notifications are coalesced per watcher.
func (s *PgSessionStore) dispatch() {
	defer close(s.done)

	for {
		select {
		case n := <-s.listener.Notify:
			if n == nil {
				// listener lost its connection; it reconnects on its
				// own and notifications may have been missed, so nudge
				// every watcher to re-query
				s.nudgeAll()
				continue
			}

			switch n.Channel {
			case roomsChannel:
				s.changed(QueryRooms, n.Extra)
			case participantsChannel:
				s.changed(QueryParticipants, n.Extra)
			}
		case <-s.stop:
			return
		}
	}
}

func (s *PgSessionStore) changed(kind QueryKind, roomId string) {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()

	for _, w := range s.watchers {
		switch w.query.Kind {
		case QueryRooms:
			if kind != QueryRooms {
				continue
			}
		case QueryRoom:
			if kind != QueryRooms || w.query.RoomId != roomId {
				continue
			}
		case QueryParticipants:
			if kind != QueryParticipants || w.query.RoomId != roomId {
				continue
			}
		}

		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (s *PgSessionStore) nudgeAll() {
	s.watchLock.Lock()
	defer s.watchLock.Unlock()

	for _, w := range s.watchers {
		select {
		case w.notify <- struct{}{}:
		default:
		}
	}
}

func (s *PgSessionStore) listenerEvent(ev pq.ListenerEventType, err error) {
	switch ev {
	case pq.ListenerEventConnectionAttemptFailed, pq.ListenerEventDisconnected:
		if err != nil {
			s.log.Println("listener:", err)
			mapped := NewUnavailableError(err)

			s.watchLock.Lock()
			watchers := make([]*Feed, 0, len(s.watchers))
			for feed := range s.watchers {
				watchers = append(watchers, feed)
			}
			s.watchLock.Unlock()

			// record without terminating any stream
			for _, feed := range watchers {
				feed.RecordErr(mapped)
			}
		}
	case pq.ListenerEventReconnected:
		s.log.Println("listener reconnected")
		s.nudgeAll()
	}
}
