package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/npezzotti/go-pokerplan/internal/types"
	"github.com/teris-io/shortid"
)

const (
	selectRoomColumns = "id, name, created_by, created_by_email, created_by_name, created_at, current_round"

	selectParticipantColumns = "user_id, user_email, user_name, user_photo_url, joined_at, selected_card, selected_at, is_spectator"
)

func (s *PgSessionStore) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	id, err := shortid.Generate()
	if err != nil {
		return types.Room{}, NewUnknownError(err)
	}

	row := s.conn.QueryRowContext(ctx,
		"INSERT INTO rooms (id, name, created_by, created_by_email, created_by_name, created_at) "+
			"VALUES ($1, $2, $3, $4, $5, now()) RETURNING "+selectRoomColumns,
		id,
		params.Name,
		params.CreatedBy,
		params.CreatedByEmail,
		params.CreatedByName,
	)

	room, err := scanRoom(row)
	if err != nil {
		return types.Room{}, MapError(err)
	}

	return room, nil
}

func (s *PgSessionStore) GetRoom(ctx context.Context, roomId string) (types.Room, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT "+selectRoomColumns+" FROM rooms WHERE id = $1 LIMIT 1",
		roomId,
	)

	room, err := scanRoom(row)
	if err != nil {
		return types.Room{}, MapError(err)
	}

	return room, nil
}

func (s *PgSessionStore) ListRooms(ctx context.Context) ([]types.Room, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+selectRoomColumns+" FROM rooms ORDER BY created_at DESC, id ASC",
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var rooms = make([]types.Room, 0)
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, MapError(err)
		}

		rooms = append(rooms, room)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return rooms, nil
}

// IncrementRound advances the room's round counter by one as a single
// server-side update. N concurrent callers always produce N increments.
func (s *PgSessionStore) IncrementRound(ctx context.Context, roomId string) error {
	res, err := s.conn.ExecContext(ctx,
		"UPDATE rooms SET current_round = current_round + 1 WHERE id = $1",
		roomId,
	)
	if err != nil {
		return MapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if n == 0 {
		return NewNotFoundError(fmt.Errorf("room %q not found", roomId))
	}

	return nil
}

func (s *PgSessionStore) PutParticipant(ctx context.Context, roomId string, identity types.Identity) (types.Participant, error) {
	var photoURL sql.NullString
	if identity.PhotoURL != "" {
		photoURL = sql.NullString{String: identity.PhotoURL, Valid: true}
	}

	// create-or-replace: rejoining resets the vote and join time
	row := s.conn.QueryRowContext(ctx,
		"INSERT INTO participants (room_id, user_id, user_email, user_name, user_photo_url, joined_at) "+
			"VALUES ($1, $2, $3, $4, $5, now()) "+
			"ON CONFLICT (room_id, user_id) DO UPDATE SET "+
			"user_email = EXCLUDED.user_email, user_name = EXCLUDED.user_name, "+
			"user_photo_url = EXCLUDED.user_photo_url, joined_at = EXCLUDED.joined_at, "+
			"selected_card = NULL, selected_at = NULL, is_spectator = FALSE "+
			"RETURNING "+selectParticipantColumns,
		roomId,
		identity.Id,
		identity.Email,
		identity.Name(),
		photoURL,
	)

	p, err := scanParticipant(row)
	if err != nil {
		return types.Participant{}, MapError(err)
	}

	return p, nil
}

func (s *PgSessionStore) UpdateParticipantFields(ctx context.Context, roomId, userId string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}

	// fixed column order keeps the statement deterministic
	var assignments []string
	var args = []any{roomId, userId}
	for _, name := range []string{FieldSelectedCard, FieldSelectedAt, FieldIsSpectator, FieldUserPhotoURL} {
		value, ok := fields[name]
		if !ok {
			continue
		}

		args = append(args, value)
		assignments = append(assignments, fmt.Sprintf("%s = $%d", name, len(args)))
	}

	if len(assignments) != len(fields) {
		return NewUnknownError(fmt.Errorf("unknown participant field in update"))
	}

	res, err := s.conn.ExecContext(ctx,
		"UPDATE participants SET "+strings.Join(assignments, ", ")+
			" WHERE room_id = $1 AND user_id = $2",
		args...,
	)
	if err != nil {
		return MapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return MapError(err)
	}
	if n == 0 {
		return NewNotFoundError(fmt.Errorf("participant %q not found in room %q", userId, roomId))
	}

	return nil
}

func (s *PgSessionStore) DeleteParticipant(ctx context.Context, roomId, userId string) error {
	// idempotent, deleting an absent participant is not an error
	_, err := s.conn.ExecContext(ctx,
		"DELETE FROM participants WHERE room_id = $1 AND user_id = $2",
		roomId,
		userId,
	)

	return MapError(err)
}

func (s *PgSessionStore) CountParticipants(ctx context.Context, roomId string) (int, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM participants WHERE room_id = $1",
		roomId,
	)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, MapError(err)
	}

	return count, nil
}

func (s *PgSessionStore) ListParticipants(ctx context.Context, roomId string) ([]types.Participant, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT "+selectParticipantColumns+" FROM participants "+
			"WHERE room_id = $1 ORDER BY joined_at ASC, user_id ASC",
		roomId,
	)
	if err != nil {
		return nil, MapError(err)
	}
	defer rows.Close()

	var participants = make([]types.Participant, 0)
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, MapError(err)
		}

		participants = append(participants, p)
	}

	if err := rows.Err(); err != nil {
		return nil, MapError(err)
	}

	return participants, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRoom(row rowScanner) (types.Room, error) {
	var room types.Room
	err := row.Scan(
		&room.Id,
		&room.Name,
		&room.CreatedBy,
		&room.CreatedByEmail,
		&room.CreatedByName,
		&room.CreatedAt,
		&room.CurrentRound,
	)

	return room, err
}

func scanParticipant(row rowScanner) (types.Participant, error) {
	var (
		p            types.Participant
		userPhotoURL sql.NullString
		selectedCard sql.NullString
		selectedAt   sql.NullTime
	)

	err := row.Scan(
		&p.UserId,
		&p.UserEmail,
		&p.UserName,
		&userPhotoURL,
		&p.JoinedAt,
		&selectedCard,
		&selectedAt,
		&p.IsSpectator,
	)
	if err != nil {
		return types.Participant{}, err
	}

	p.Id = p.UserId
	if userPhotoURL.Valid {
		p.UserPhotoURL = &userPhotoURL.String
	}
	if selectedCard.Valid {
		p.SelectedCard = &selectedCard.String
	}
	if selectedAt.Valid {
		t := selectedAt.Time
		p.SelectedAt = &t
	}

	return p, nil
}
