package session

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
	"github.com/npezzotti/go-pokerplan/internal/types"
)

// Service implements the interactive session operations: room
// lifecycle, participant presence, and the per-participant card state.
// All authoritative state lives in the store; the service holds none.
type Service struct {
	errorSlot

	log   *log.Logger
	store store.SessionStore
	stats stats.StatsProvider
}

func NewService(logger *log.Logger, st store.SessionStore, sp stats.StatsProvider) *Service {
	sp.RegisterMetric(stats.RoomsCreated)
	sp.RegisterMetric(stats.RoundsAdvanced)
	sp.RegisterMetric(stats.CardsSelected)

	return &Service{
		log:   logger,
		store: st,
		stats: sp,
	}
}

// CreateRoom writes a new room with a creator snapshot and a round
// counter of zero and returns its store-assigned id.
func (s *Service) CreateRoom(ctx context.Context, name string, identity types.Identity) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", s.record(NewValidationError("room name is required"))
	}
	if identity.Zero() {
		return "", s.record(NewValidationError("identity is required"))
	}

	room, err := s.store.CreateRoom(ctx, store.CreateRoomParams{
		Name:           name,
		CreatedBy:      identity.Id,
		CreatedByEmail: identity.Email,
		CreatedByName:  identity.Name(),
	})
	if err != nil {
		s.log.Println("create room:", err)
		return "", s.record(err)
	}

	s.stats.Incr(stats.RoomsCreated)
	return room.Id, nil
}

func (s *Service) ListRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := s.store.ListRooms(ctx)
	if err != nil {
		s.log.Println("list rooms:", err)
		return nil, s.record(err)
	}

	return rooms, nil
}

// AdvanceRound increments the room's round counter by exactly one via
// the store's atomic increment. It does not clear any participant's
// selected card; callers wanting "new round, fresh votes" must reset
// each participant themselves.
func (s *Service) AdvanceRound(ctx context.Context, roomId string) error {
	if err := s.store.IncrementRound(ctx, roomId); err != nil {
		s.log.Println("advance round:", err)
		return s.record(err)
	}

	s.stats.Incr(stats.RoundsAdvanced)
	return nil
}

// JoinRoom upserts the caller's participant document. Rejoining a room
// the user already occupies resets their vote and join time.
func (s *Service) JoinRoom(ctx context.Context, roomId string, identity types.Identity) (types.Participant, error) {
	if identity.Zero() {
		return types.Participant{}, s.record(NewValidationError("identity is required"))
	}

	p, err := s.store.PutParticipant(ctx, roomId, identity)
	if err != nil {
		s.log.Println("join room:", err)
		return types.Participant{}, s.record(err)
	}

	return p, nil
}

// LeaveRoom deletes the participant document. Leaving a room the user
// is not in is not an error.
func (s *Service) LeaveRoom(ctx context.Context, roomId, userId string) error {
	if err := s.store.DeleteParticipant(ctx, roomId, userId); err != nil {
		s.log.Println("leave room:", err)
		return s.record(err)
	}

	return nil
}

// ParticipantCount is a point-in-time count. It degrades to zero on
// failure instead of propagating the error.
func (s *Service) ParticipantCount(ctx context.Context, roomId string) int {
	count, err := s.store.CountParticipants(ctx, roomId)
	if err != nil {
		s.log.Println("participant count:", err)
		s.record(err)
		return 0
	}

	return count
}

func (s *Service) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	participants, err := s.store.ListParticipants(ctx, roomId)
	if err != nil {
		s.log.Println("list participants:", err)
		return nil, s.record(err)
	}

	return participants, nil
}

// SelectCard records the participant's vote. It does not check the
// spectator flag; disallowing a spectator vote is the caller's policy.
func (s *Service) SelectCard(ctx context.Context, roomId, userId, value string) error {
	if value == "" {
		return s.record(NewValidationError("card value is required"))
	}

	err := s.store.UpdateParticipantFields(ctx, roomId, userId, store.Fields{
		store.FieldSelectedCard: value,
		store.FieldSelectedAt:   time.Now().UTC(),
	})
	if err != nil {
		s.log.Println("select card:", err)
		return s.record(err)
	}

	s.stats.Incr(stats.CardsSelected)
	return nil
}

// ResetCard clears the participant's vote. The card and its timestamp
// change in the same write; no observer sees one without the other.
func (s *Service) ResetCard(ctx context.Context, roomId, userId string) error {
	err := s.store.UpdateParticipantFields(ctx, roomId, userId, store.Fields{
		store.FieldSelectedCard: nil,
		store.FieldSelectedAt:   nil,
	})
	if err != nil {
		s.log.Println("reset card:", err)
		return s.record(err)
	}

	return nil
}

// SetSpectator toggles spectator mode. Entering it discards any
// existing vote in the same write; leaving it does not restore one.
func (s *Service) SetSpectator(ctx context.Context, roomId, userId string, enable bool) error {
	fields := store.Fields{
		store.FieldIsSpectator: enable,
	}
	if enable {
		fields[store.FieldSelectedCard] = nil
		fields[store.FieldSelectedAt] = nil
	}

	if err := s.store.UpdateParticipantFields(ctx, roomId, userId, fields); err != nil {
		s.log.Println("set spectator:", err)
		return s.record(err)
	}

	return nil
}
