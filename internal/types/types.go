package types

import (
	"time"
)

// Identity is the externally-issued identity of the acting user. It is
// supplied by the identity provider and never created by this system.
type Identity struct {
	Id          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name,omitempty"`
	PhotoURL    string `json:"photo_url,omitempty"`
}

// Zero reports whether the identity carries no user id.
func (i Identity) Zero() bool {
	return i.Id == ""
}

// Name returns the display name, falling back to the email address the
// way the room creator snapshot does.
func (i Identity) Name() string {
	if i.DisplayName != "" {
		return i.DisplayName
	}
	return i.Email
}

type Room struct {
	Id             string    `json:"id"`
	Name           string    `json:"name"`
	CreatedBy      string    `json:"created_by"`
	CreatedByEmail string    `json:"created_by_email"`
	CreatedByName  string    `json:"created_by_name"`
	CreatedAt      time.Time `json:"created_at"`
	CurrentRound   int       `json:"current_round"`
}

type Participant struct {
	Id           string     `json:"id"`
	UserId       string     `json:"user_id"`
	UserEmail    string     `json:"user_email"`
	UserName     string     `json:"user_name"`
	UserPhotoURL *string    `json:"user_photo_url"`
	JoinedAt     time.Time  `json:"joined_at"`
	SelectedCard *string    `json:"selected_card"`
	SelectedAt   *time.Time `json:"selected_at"`
	IsSpectator  bool       `json:"is_spectator"`
}
