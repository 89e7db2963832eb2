package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-pokerplan/internal/types"
	"github.com/teris-io/shortid"
)

// MemorySessionStore is a fully functional in-process SessionStore with
// the same ordering and watch semantics as the Postgres implementation.
// It backs local development and the behavioral tests that a
// call-recording mock cannot express.
type MemorySessionStore struct {
	lock         sync.RWMutex
	rooms        map[string]types.Room
	participants map[string]map[string]types.Participant
	watchers     map[*Feed]*memWatcher

	// FailParticipantUpdate, when set, is consulted before every
	// UpdateParticipantFields call. Tests use it to inject per-room
	// faults without a second store implementation.
	FailParticipantUpdate func(roomId, userId string) error
}

type memWatcher struct {
	query  Query
	notify chan struct{}
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		rooms:        make(map[string]types.Room),
		participants: make(map[string]map[string]types.Participant),
		watchers:     make(map[*Feed]*memWatcher),
	}
}

func (m *MemorySessionStore) Ping() error { return nil }

func (m *MemorySessionStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	id, err := shortid.Generate()
	if err != nil {
		return types.Room{}, NewUnknownError(err)
	}

	room := types.Room{
		Id:             id,
		Name:           params.Name,
		CreatedBy:      params.CreatedBy,
		CreatedByEmail: params.CreatedByEmail,
		CreatedByName:  params.CreatedByName,
		CreatedAt:      time.Now().UTC(),
		CurrentRound:   0,
	}

	m.lock.Lock()
	m.rooms[room.Id] = room
	m.lock.Unlock()

	m.changed(QueryRooms, room.Id)
	return room, nil
}

func (m *MemorySessionStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	room, ok := m.rooms[roomId]
	if !ok {
		return types.Room{}, NewNotFoundError(fmt.Errorf("room %q not found", roomId))
	}
	return room, nil
}

func (m *MemorySessionStore) ListRooms(ctx context.Context) ([]types.Room, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.listRoomsLocked(), nil
}

func (m *MemorySessionStore) listRoomsLocked() []types.Room {
	rooms := make([]types.Room, 0, len(m.rooms))
	for _, r := range m.rooms {
		rooms = append(rooms, r)
	}

	// most recent first, ties broken by id order
	sort.Slice(rooms, func(i, j int) bool {
		if !rooms[i].CreatedAt.Equal(rooms[j].CreatedAt) {
			return rooms[i].CreatedAt.After(rooms[j].CreatedAt)
		}
		return rooms[i].Id < rooms[j].Id
	})

	return rooms
}

func (m *MemorySessionStore) IncrementRound(ctx context.Context, roomId string) error {
	m.lock.Lock()
	room, ok := m.rooms[roomId]
	if !ok {
		m.lock.Unlock()
		return NewNotFoundError(fmt.Errorf("room %q not found", roomId))
	}

	room.CurrentRound++
	m.rooms[roomId] = room
	m.lock.Unlock()

	m.changed(QueryRooms, roomId)
	return nil
}

func (m *MemorySessionStore) PutParticipant(ctx context.Context, roomId string, identity types.Identity) (types.Participant, error) {
	p := types.Participant{
		Id:        identity.Id,
		UserId:    identity.Id,
		UserEmail: identity.Email,
		UserName:  identity.Name(),
		JoinedAt:  time.Now().UTC(),
	}
	if identity.PhotoURL != "" {
		photoURL := identity.PhotoURL
		p.UserPhotoURL = &photoURL
	}

	m.lock.Lock()
	if _, ok := m.rooms[roomId]; !ok {
		m.lock.Unlock()
		return types.Participant{}, NewNotFoundError(fmt.Errorf("room %q not found", roomId))
	}

	if m.participants[roomId] == nil {
		m.participants[roomId] = make(map[string]types.Participant)
	}
	// create-or-replace: a rejoin overwrites the document wholesale,
	// resetting the vote and join time
	m.participants[roomId][identity.Id] = p
	m.lock.Unlock()

	m.changed(QueryParticipants, roomId)
	return p, nil
}

func (m *MemorySessionStore) UpdateParticipantFields(ctx context.Context, roomId, userId string, fields Fields) error {
	if m.FailParticipantUpdate != nil {
		if err := m.FailParticipantUpdate(roomId, userId); err != nil {
			return MapError(err)
		}
	}

	m.lock.Lock()
	p, ok := m.participants[roomId][userId]
	if !ok {
		m.lock.Unlock()
		return NewNotFoundError(fmt.Errorf("participant %q not found in room %q", userId, roomId))
	}

	for name, value := range fields {
		switch name {
		case FieldSelectedCard:
			if value == nil {
				p.SelectedCard = nil
			} else {
				card := value.(string)
				p.SelectedCard = &card
			}
		case FieldSelectedAt:
			if value == nil {
				p.SelectedAt = nil
			} else {
				at := value.(time.Time)
				p.SelectedAt = &at
			}
		case FieldIsSpectator:
			p.IsSpectator = value.(bool)
		case FieldUserPhotoURL:
			if value == nil {
				p.UserPhotoURL = nil
			} else {
				photoURL := value.(string)
				p.UserPhotoURL = &photoURL
			}
		default:
			m.lock.Unlock()
			return NewUnknownError(fmt.Errorf("unknown participant field %q", name))
		}
	}

	m.participants[roomId][userId] = p
	m.lock.Unlock()

	m.changed(QueryParticipants, roomId)
	return nil
}

func (m *MemorySessionStore) DeleteParticipant(ctx context.Context, roomId, userId string) error {
	m.lock.Lock()
	if _, ok := m.participants[roomId][userId]; !ok {
		// deleting an absent participant is not an error
		m.lock.Unlock()
		return nil
	}

	delete(m.participants[roomId], userId)
	m.lock.Unlock()

	m.changed(QueryParticipants, roomId)
	return nil
}

func (m *MemorySessionStore) CountParticipants(ctx context.Context, roomId string) (int, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return len(m.participants[roomId]), nil
}

func (m *MemorySessionStore) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()
	return m.listParticipantsLocked(roomId), nil
}

func (m *MemorySessionStore) listParticipantsLocked(roomId string) []types.Participant {
	participants := make([]types.Participant, 0, len(m.participants[roomId]))
	for _, p := range m.participants[roomId] {
		participants = append(participants, p)
	}

	// earliest joiner first
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserId < participants[j].UserId
	})

	return participants
}

func (m *MemorySessionStore) Watch(ctx context.Context, query Query) (*Feed, error) {
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
	w := &memWatcher{
		query:  query,
		notify: make(chan struct{}, 1),
	}

	m.lock.Lock()
	m.watchers[feed] = w
	m.lock.Unlock()

	go m.serveWatch(feed, w)
	return feed, nil
}

// serveWatch owns all deliveries for one feed, so later snapshots are
// never delivered before earlier ones. Notifications are coalesced: a
// delivery always carries the state current at query time.
func (m *MemorySessionStore) serveWatch(feed *Feed, w *memWatcher) {
	defer func() {
		m.lock.Lock()
		delete(m.watchers, feed)
		m.lock.Unlock()
	}()

	if !feed.Publish(m.snapshot(w.query)) {
		return
	}

	for {
		select {
		case <-w.notify:
			if !feed.Publish(m.snapshot(w.query)) {
				return
			}
		case <-feed.Done():
			return
		}
	}
}

func (m *MemorySessionStore) snapshot(query Query) Event {
	m.lock.RLock()
	defer m.lock.RUnlock()

	switch query.Kind {
	case QueryRooms:
		return Event{Rooms: m.listRoomsLocked()}
	case QueryRoom:
		if room, ok := m.rooms[query.RoomId]; ok {
			return Event{Room: &room}
		}
		return Event{}
	default:
		return Event{Participants: m.listParticipantsLocked(query.RoomId)}
	}
}

func (m *MemorySessionStore) changed(kind QueryKind, roomId string) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	for _, w := range m.watchers {
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
