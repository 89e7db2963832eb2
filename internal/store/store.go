package store

import (
	"context"

	"github.com/npezzotti/go-pokerplan/internal/types"
)

// Field names accepted by UpdateParticipantFields. Unknown names are
// rejected rather than silently dropped.
const (
	FieldSelectedCard = "selected_card"
	FieldSelectedAt   = "selected_at"
	FieldIsSpectator  = "is_spectator"
	FieldUserPhotoURL = "user_photo_url"
)

// Fields is a partial field set applied to a participant document in a
// single atomic write. A nil value clears the field.
type Fields map[string]any

type CreateRoomParams struct {
	Name           string
	CreatedBy      string
	CreatedByEmail string
	CreatedByName  string
}

// SessionStore is the remote state store holding all authoritative room
// and participant state. Implementations must guarantee that
// IncrementRound is a store-native atomic increment, never a
// read-modify-write, and that feeds returned by Watch deliver full
// ordered snapshots in write order per feed.
type SessionStore interface {
	Ping() error
	CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error)
	GetRoom(ctx context.Context, roomId string) (types.Room, error)
	ListRooms(ctx context.Context) ([]types.Room, error)
	IncrementRound(ctx context.Context, roomId string) error
	PutParticipant(ctx context.Context, roomId string, identity types.Identity) (types.Participant, error)
	UpdateParticipantFields(ctx context.Context, roomId, userId string, fields Fields) error
	DeleteParticipant(ctx context.Context, roomId, userId string) error
	CountParticipants(ctx context.Context, roomId string) (int, error)
	ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error)
	Watch(ctx context.Context, query Query) (*Feed, error)
}
