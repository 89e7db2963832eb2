package store

import (
	"context"

	"github.com/npezzotti/go-pokerplan/internal/types"
	"github.com/stretchr/testify/mock"
)

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockSessionStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	args := m.Called(params)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockSessionStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	args := m.Called(roomId)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockSessionStore) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called()
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockSessionStore) IncrementRound(ctx context.Context, roomId string) error {
	args := m.Called(roomId)
	return args.Error(0)
}
func (m *MockSessionStore) PutParticipant(ctx context.Context, roomId string, identity types.Identity) (types.Participant, error) {
	args := m.Called(roomId, identity)
	return args.Get(0).(types.Participant), args.Error(1)
}
func (m *MockSessionStore) UpdateParticipantFields(ctx context.Context, roomId, userId string, fields Fields) error {
	args := m.Called(roomId, userId, fields)
	return args.Error(0)
}
func (m *MockSessionStore) DeleteParticipant(ctx context.Context, roomId, userId string) error {
	args := m.Called(roomId, userId)
	return args.Error(0)
}
func (m *MockSessionStore) CountParticipants(ctx context.Context, roomId string) (int, error) {
	args := m.Called(roomId)
	return args.Int(0), args.Error(1)
}
func (m *MockSessionStore) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	args := m.Called(roomId)
	if participants, ok := args.Get(0).([]types.Participant); ok {
		return participants, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockSessionStore) Watch(ctx context.Context, query Query) (*Feed, error) {
	args := m.Called(query)
	if feed, ok := args.Get(0).(*Feed); ok {
		return feed, args.Error(1)
	}
	return nil, args.Error(1)
}
