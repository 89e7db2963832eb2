package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-pokerplan/internal/types"
	"github.com/stretchr/testify/assert"
)

func testIdentity(id string) types.Identity {
	return types.Identity{
		Id:          id,
		Email:       id + "@example.com",
		DisplayName: "user " + id,
	}
}

func Test_CreateRoom_assignsIdAndDefaults(t *testing.T) {
	s := NewMemorySessionStore()

	room, err := s.CreateRoom(context.Background(), CreateRoomParams{
		Name:           "Sprint 1",
		CreatedBy:      "user-a",
		CreatedByEmail: "a@example.com",
		CreatedByName:  "User A",
	})
	assert.NoError(t, err)
	assert.NotEmpty(t, room.Id, "expected a store-assigned id")
	assert.Equal(t, "Sprint 1", room.Name)
	assert.Equal(t, 0, room.CurrentRound, "expected new room to start at round 0")
	assert.False(t, room.CreatedAt.IsZero(), "expected a server-assigned creation time")

	got, err := s.GetRoom(context.Background(), room.Id)
	assert.NoError(t, err)
	assert.Equal(t, room, got)
}

func Test_GetRoom_notFound(t *testing.T) {
	s := NewMemorySessionStore()

	_, err := s.GetRoom(context.Background(), "missing")
	assert.Error(t, err)
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func Test_ListRooms_orderedMostRecentFirst(t *testing.T) {
	s := NewMemorySessionStore()

	for _, name := range []string{"first", "second", "third"} {
		_, err := s.CreateRoom(context.Background(), CreateRoomParams{Name: name, CreatedBy: "u"})
		assert.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	rooms, err := s.ListRooms(context.Background())
	assert.NoError(t, err)
	assert.Len(t, rooms, 3)
	assert.Equal(t, "third", rooms[0].Name, "expected the most recent room first")
	assert.Equal(t, "first", rooms[2].Name)
}

func Test_IncrementRound_concurrent(t *testing.T) {
	s := NewMemorySessionStore()
	room, err := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})
	assert.NoError(t, err)

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.IncrementRound(context.Background(), room.Id))
		}()
	}
	wg.Wait()

	got, err := s.GetRoom(context.Background(), room.Id)
	assert.NoError(t, err)
	assert.Equal(t, n, got.CurrentRound, "expected no lost increments")
}

func Test_IncrementRound_notFound(t *testing.T) {
	s := NewMemorySessionStore()

	err := s.IncrementRound(context.Background(), "missing")
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func Test_PutParticipant_freshJoinSemantics(t *testing.T) {
	s := NewMemorySessionStore()
	room, err := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})
	assert.NoError(t, err)

	first, err := s.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)
	assert.Equal(t, "user-b", first.Id, "participant id equals user id")
	assert.Nil(t, first.SelectedCard)
	assert.Nil(t, first.SelectedAt)
	assert.False(t, first.IsSpectator)

	// vote, then rejoin: the vote and join time must reset
	err = s.UpdateParticipantFields(context.Background(), room.Id, "user-b", Fields{
		FieldSelectedCard: "5",
		FieldSelectedAt:   time.Now().UTC(),
	})
	assert.NoError(t, err)

	time.Sleep(2 * time.Millisecond)
	second, err := s.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)
	assert.Nil(t, second.SelectedCard, "rejoin resets the vote")
	assert.True(t, second.JoinedAt.After(first.JoinedAt), "rejoin resets the join time")

	count, err := s.CountParticipants(context.Background(), room.Id)
	assert.NoError(t, err)
	assert.Equal(t, 1, count, "rejoin overwrites, never duplicates")
}

func Test_PutParticipant_roomNotFound(t *testing.T) {
	s := NewMemorySessionStore()

	_, err := s.PutParticipant(context.Background(), "missing", testIdentity("user-b"))
	assert.Equal(t, CodeNotFound, CodeOf(err))
}

func Test_UpdateParticipantFields(t *testing.T) {
	s := NewMemorySessionStore()
	room, _ := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})
	_, err := s.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)

	t.Run("sets and clears fields", func(t *testing.T) {
		selectedAt := time.Now().UTC()
		err := s.UpdateParticipantFields(context.Background(), room.Id, "user-b", Fields{
			FieldSelectedCard: "8",
			FieldSelectedAt:   selectedAt,
		})
		assert.NoError(t, err)

		participants, err := s.ListParticipants(context.Background(), room.Id)
		assert.NoError(t, err)
		assert.Len(t, participants, 1)
		assert.Equal(t, "8", *participants[0].SelectedCard)
		assert.Equal(t, selectedAt, *participants[0].SelectedAt)

		err = s.UpdateParticipantFields(context.Background(), room.Id, "user-b", Fields{
			FieldSelectedCard: nil,
			FieldSelectedAt:   nil,
		})
		assert.NoError(t, err)

		participants, _ = s.ListParticipants(context.Background(), room.Id)
		assert.Nil(t, participants[0].SelectedCard)
		assert.Nil(t, participants[0].SelectedAt)
	})

	t.Run("missing participant", func(t *testing.T) {
		err := s.UpdateParticipantFields(context.Background(), room.Id, "ghost", Fields{
			FieldSelectedCard: "3",
		})
		assert.Equal(t, CodeNotFound, CodeOf(err))
	})

	t.Run("unknown field", func(t *testing.T) {
		err := s.UpdateParticipantFields(context.Background(), room.Id, "user-b", Fields{
			"bogus": true,
		})
		assert.Error(t, err)
	})
}

func Test_DeleteParticipant_idempotent(t *testing.T) {
	s := NewMemorySessionStore()
	room, _ := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})
	_, err := s.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)

	assert.NoError(t, s.DeleteParticipant(context.Background(), room.Id, "user-b"))

	count, _ := s.CountParticipants(context.Background(), room.Id)
	assert.Equal(t, 0, count)

	// deleting an absent participant is not an error
	assert.NoError(t, s.DeleteParticipant(context.Background(), room.Id, "user-b"))
}

func Test_ListParticipants_orderedByJoinTime(t *testing.T) {
	s := NewMemorySessionStore()
	room, _ := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})

	for _, id := range []string{"user-a", "user-b", "user-c"} {
		_, err := s.PutParticipant(context.Background(), room.Id, testIdentity(id))
		assert.NoError(t, err)
		time.Sleep(2 * time.Millisecond)
	}

	participants, err := s.ListParticipants(context.Background(), room.Id)
	assert.NoError(t, err)
	assert.Len(t, participants, 3)
	assert.Equal(t, "user-a", participants[0].UserId, "earliest joiner first")
	assert.Equal(t, "user-c", participants[2].UserId)
}

func awaitEvent(t *testing.T, feed *Feed) Event {
	t.Helper()

	select {
	case ev := <-feed.Events():
		return ev
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for feed event")
		return Event{}
	}
}

func Test_Watch_roomsFeed(t *testing.T) {
	s := NewMemorySessionStore()

	feed, err := s.Watch(context.Background(), Query{Kind: QueryRooms})
	assert.NoError(t, err)
	defer feed.Close()

	ev := awaitEvent(t, feed)
	assert.Empty(t, ev.Rooms, "initial delivery is the current full set")

	room, err := s.CreateRoom(context.Background(), CreateRoomParams{Name: "Sprint 1", CreatedBy: "u"})
	assert.NoError(t, err)

	ev = awaitEvent(t, feed)
	assert.Len(t, ev.Rooms, 1)
	assert.Equal(t, room.Id, ev.Rooms[0].Id)
	assert.NoError(t, feed.Err())
}

func Test_Watch_participantsFeed(t *testing.T) {
	s := NewMemorySessionStore()
	room, _ := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})

	feed, err := s.Watch(context.Background(), Query{Kind: QueryParticipants, RoomId: room.Id})
	assert.NoError(t, err)
	defer feed.Close()

	ev := awaitEvent(t, feed)
	assert.Empty(t, ev.Participants)

	_, err = s.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)

	ev = awaitEvent(t, feed)
	assert.Len(t, ev.Participants, 1)
	assert.Equal(t, "user-b", ev.Participants[0].UserId)

	assert.NoError(t, s.DeleteParticipant(context.Background(), room.Id, "user-b"))
	ev = awaitEvent(t, feed)
	assert.Empty(t, ev.Participants, "next delivered set excludes the departed user")
}

func Test_Watch_snapshotsAreMonotone(t *testing.T) {
	s := NewMemorySessionStore()
	room, _ := s.CreateRoom(context.Background(), CreateRoomParams{Name: "room", CreatedBy: "u"})

	feed, err := s.Watch(context.Background(), Query{Kind: QueryRoom, RoomId: room.Id})
	assert.NoError(t, err)
	defer feed.Close()

	awaitEvent(t, feed)

	const n = 10
	for i := 0; i < n; i++ {
		assert.NoError(t, s.IncrementRound(context.Background(), room.Id))
	}

	// deliveries are coalesced but never go backwards
	last := -1
	deadline := time.After(time.Second)
	for {
		select {
		case ev := <-feed.Events():
			if assert.NotNil(t, ev.Room) {
				assert.GreaterOrEqual(t, ev.Room.CurrentRound, last, "a later write was delivered before an earlier one")
				last = ev.Room.CurrentRound
			}
			if last == n {
				return
			}
		case <-deadline:
			t.Fatalf("timeout, last observed round %d", last)
		}
	}
}

func Test_Watch_requiresRoomId(t *testing.T) {
	s := NewMemorySessionStore()

	_, err := s.Watch(context.Background(), Query{Kind: QueryParticipants})
	assert.Error(t, err)

	_, err = s.Watch(context.Background(), Query{Kind: "bogus"})
	assert.Error(t, err)
}

func Test_Feed_closeIdempotent(t *testing.T) {
	feed := NewFeed(1)

	feed.RecordErr(errors.New("stream fault"))
	feed.Close()
	feed.Close()

	assert.EqualError(t, feed.Err(), "stream fault", "error slot survives close")
	assert.False(t, feed.Publish(Event{}), "publish after close reports failure")
}

func Test_Feed_errorSlotIsSticky(t *testing.T) {
	feed := NewFeed(4)

	feed.RecordErr(errors.New("first"))
	assert.EqualError(t, feed.Err(), "first")

	// delivery continues after an error
	assert.True(t, feed.Publish(Event{}))
	assert.EqualError(t, feed.Err(), "first")

	feed.RecordErr(errors.New("second"))
	assert.EqualError(t, feed.Err(), "second", "slot holds the most recent error")
}
