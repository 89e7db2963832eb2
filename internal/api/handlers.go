package api

import (
	"encoding/json"
	"net/http"

	"github.com/npezzotti/go-pokerplan/internal/session"
)

type CreateRoomRequest struct {
	Name string `json:"name"`
}

type CreateRoomResponse struct {
	Id string `json:"id"`
}

type SelectCardRequest struct {
	Value string `json:"value"`
}

type SetSpectatorRequest struct {
	Enable bool `json:"enable"`
}

type ParticipantCountResponse struct {
	Count int `json:"count"`
}

type UploadAvatarResponse struct {
	PhotoURL string `json:"photo_url"`
}

func (a *App) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.log.Printf("json encode: %v", err)
	}
}

func (a *App) healthCheck(w http.ResponseWriter, r *http.Request) {
	if err := a.store.Ping(); err != nil {
		a.log.Println("health check:", err)
		errResp := NewInternalServerError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (a *App) createRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	roomId, err := a.sessions.CreateRoom(r.Context(), req.Name, identity)
	if err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusCreated, CreateRoomResponse{Id: roomId})
}

func (a *App) listRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.sessions.ListRooms(r.Context())
	if err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, rooms)
}

func (a *App) advanceRound(w http.ResponseWriter, r *http.Request) {
	if err := a.sessions.AdvanceRound(r.Context(), r.PathValue("id")); err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, nil)
}

func (a *App) joinRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participant, err := a.sessions.JoinRoom(r.Context(), r.PathValue("id"), identity)
	if err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusCreated, participant)
}

func (a *App) leaveRoom(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := a.sessions.LeaveRoom(r.Context(), r.PathValue("id"), identity.Id); err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, nil)
}

func (a *App) participantCount(w http.ResponseWriter, r *http.Request) {
	count := a.sessions.ParticipantCount(r.Context(), r.PathValue("id"))
	a.writeJson(w, http.StatusOK, ParticipantCountResponse{Count: count})
}

func (a *App) selectCard(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SelectCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := a.sessions.SelectCard(r.Context(), r.PathValue("id"), identity.Id, req.Value); err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, nil)
}

func (a *App) resetCard(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := a.sessions.ResetCard(r.Context(), r.PathValue("id"), identity.Id); err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, nil)
}

func (a *App) setSpectator(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req SetSpectatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if err := a.sessions.SetSpectator(r.Context(), r.PathValue("id"), identity.Id, req.Enable); err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, nil)
}

func (a *App) uploadAvatar(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// the size ceiling plus form overhead
	r.Body = http.MaxBytesReader(w, r.Body, session.MaxAvatarSize+4096)
	if err := r.ParseMultipartForm(session.MaxAvatarSize); err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	file, header, err := r.FormFile("avatar")
	if err != nil {
		errResp := NewBadRequestError()
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer file.Close()

	photoURL, err := a.avatars.Upload(r.Context(), identity, header.Header.Get("Content-Type"), header.Size, file)
	if err != nil {
		errResp := fromError(err)
		a.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	a.writeJson(w, http.StatusOK, UploadAvatarResponse{PhotoURL: photoURL})
}
