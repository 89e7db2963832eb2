package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
	"github.com/npezzotti/go-pokerplan/internal/testutil"
	"github.com/npezzotti/go-pokerplan/internal/types"
	"github.com/stretchr/testify/assert"
)

func Test_SubscribeRooms_deliversSnapshotThenChanges(t *testing.T) {
	memStore := store.NewMemorySessionStore()
	hub := NewHub(testutil.TestLogger(t), memStore, testStats())

	first, err := memStore.CreateRoom(context.Background(), store.CreateRoomParams{Name: "existing", CreatedBy: "u"})
	assert.NoError(t, err)

	updates := make(chan []types.Room, 16)
	sub, err := hub.SubscribeRooms(context.Background(), func(rooms []types.Room) {
		updates <- rooms
	})
	assert.NoError(t, err)
	defer sub.Cancel()

	select {
	case rooms := <-updates:
		assert.Len(t, rooms, 1, "first delivery is the current set")
		assert.Equal(t, first.Id, rooms[0].Id)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for initial delivery")
	}

	_, err = memStore.CreateRoom(context.Background(), store.CreateRoomParams{Name: "new", CreatedBy: "u"})
	assert.NoError(t, err)

	select {
	case rooms := <-updates:
		assert.Len(t, rooms, 2, "a change delivers the full set, not a diff")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change delivery")
	}
	assert.NoError(t, sub.Err())
}

func Test_SubscribeRoom_deliveriesAreOrdered(t *testing.T) {
	mockStore := &store.MockSessionStore{}
	hub := NewHub(testutil.TestLogger(t), mockStore, testStats())

	feed := store.NewFeed(1)
	mockStore.On("Watch", store.Query{Kind: store.QueryRoom, RoomId: "room-1"}).Return(feed, nil).Once()

	updates := make(chan int, 64)
	sub, err := hub.SubscribeRoom(context.Background(), "room-1", func(room *types.Room) {
		updates <- room.CurrentRound
	})
	assert.NoError(t, err)
	defer sub.Cancel()

	const n = 20
	for i := 0; i < n; i++ {
		assert.True(t, feed.Publish(store.Event{Room: &types.Room{Id: "room-1", CurrentRound: i}}))
	}

	for i := 0; i < n; i++ {
		select {
		case got := <-updates:
			assert.Equal(t, i, got, "deliveries arrive in publish order")
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for delivery %d", i)
		}
	}
}

func Test_SubscribeParticipants(t *testing.T) {
	memStore := store.NewMemorySessionStore()
	hub := NewHub(testutil.TestLogger(t), memStore, testStats())

	room, err := memStore.CreateRoom(context.Background(), store.CreateRoomParams{Name: "room", CreatedBy: "u"})
	assert.NoError(t, err)

	updates := make(chan []types.Participant, 16)
	sub, err := hub.SubscribeParticipants(context.Background(), room.Id, func(participants []types.Participant) {
		updates <- participants
	})
	assert.NoError(t, err)
	defer sub.Cancel()

	select {
	case participants := <-updates:
		assert.Empty(t, participants)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for initial delivery")
	}

	_, err = memStore.PutParticipant(context.Background(), room.Id, testIdentity("user-b"))
	assert.NoError(t, err)

	select {
	case participants := <-updates:
		assert.Len(t, participants, 1)
		assert.Equal(t, "user-b", participants[0].UserId)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for change delivery")
	}
}

func Test_Subscribe_watchError(t *testing.T) {
	mockStore := &store.MockSessionStore{}
	sp := testStats()
	hub := NewHub(testutil.TestLogger(t), mockStore, sp)

	storeErr := store.NewUnavailableError(errors.New("connection refused"))
	mockStore.On("Watch", store.Query{Kind: store.QueryRooms}).Return(nil, storeErr).Once()

	_, err := hub.SubscribeRooms(context.Background(), func([]types.Room) {})
	assert.Equal(t, store.CodeUnavailable, store.CodeOf(err))
	sp.AssertNotCalled(t, "Incr", stats.ActiveSubscriptions)
}

func Test_Subscription_cancelIsIdempotent(t *testing.T) {
	mockStore := &store.MockSessionStore{}
	sp := testStats()
	hub := NewHub(testutil.TestLogger(t), mockStore, sp)

	feed := store.NewFeed(1)
	mockStore.On("Watch", store.Query{Kind: store.QueryRooms}).Return(feed, nil).Once()

	sub, err := hub.SubscribeRooms(context.Background(), func([]types.Room) {})
	assert.NoError(t, err)

	feed.RecordErr(errors.New("stream fault"))

	sub.Cancel()
	sub.Cancel()

	sp.AssertNumberOfCalls(t, "Decr", 1)
}

func Test_Subscription_errorDoesNotStopDelivery(t *testing.T) {
	mockStore := &store.MockSessionStore{}
	hub := NewHub(testutil.TestLogger(t), mockStore, testStats())

	feed := store.NewFeed(1)
	mockStore.On("Watch", store.Query{Kind: store.QueryRooms}).Return(feed, nil).Once()

	updates := make(chan []types.Room, 16)
	sub, err := hub.SubscribeRooms(context.Background(), func(rooms []types.Room) {
		updates <- rooms
	})
	assert.NoError(t, err)
	defer sub.Cancel()

	streamErr := store.NewUnavailableError(errors.New("listener lost"))
	feed.RecordErr(streamErr)
	assert.True(t, feed.Publish(store.Event{Rooms: []types.Room{{Id: "room-1"}}}))

	select {
	case rooms := <-updates:
		assert.Len(t, rooms, 1, "stream keeps delivering after an error")
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for delivery")
	}
	assert.Equal(t, streamErr, sub.Err(), "error slot is visible without closing the stream")
}
