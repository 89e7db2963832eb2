package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-pokerplan/internal/config"
	"github.com/npezzotti/go-pokerplan/internal/session"
	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
)

type App struct {
	log            *log.Logger
	store          store.SessionStore
	sessions       *session.Service
	hub            *session.Hub
	avatars        *session.AvatarService
	stats          stats.StatsProvider
	mux            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewApp(mux *http.ServeMux, logger *log.Logger, st store.SessionStore, sessions *session.Service, hub *session.Hub, avatars *session.AvatarService, sp stats.StatsProvider, cfg *config.Config) *App {
	a := &App{
		log:            logger,
		store:          st,
		sessions:       sessions,
		hub:            hub,
		avatars:        avatars,
		stats:          sp,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	if sp != nil {
		sp.RegisterMetric(stats.ActiveConnections)
	}

	mux.HandleFunc("GET /healthz", a.healthCheck)
	mux.Handle("POST /api/rooms", a.authMiddleware(a.createRoom))
	mux.Handle("GET /api/rooms", a.authMiddleware(a.listRooms))
	mux.Handle("POST /api/rooms/{id}/round", a.authMiddleware(a.advanceRound))
	mux.Handle("POST /api/rooms/{id}/participants", a.authMiddleware(a.joinRoom))
	mux.Handle("DELETE /api/rooms/{id}/participants", a.authMiddleware(a.leaveRoom))
	mux.Handle("GET /api/rooms/{id}/participants/count", a.authMiddleware(a.participantCount))
	mux.Handle("PUT /api/rooms/{id}/card", a.authMiddleware(a.selectCard))
	mux.Handle("DELETE /api/rooms/{id}/card", a.authMiddleware(a.resetCard))
	mux.Handle("PUT /api/rooms/{id}/spectator", a.authMiddleware(a.setSpectator))
	mux.Handle("POST /api/avatar", a.authMiddleware(a.uploadAvatar))
	mux.Handle("GET /ws", a.authMiddleware(a.serveWs))

	if cfg.AvatarDir != "" {
		mux.Handle("GET /avatars/", http.StripPrefix("/avatars/", http.FileServer(http.Dir(cfg.AvatarDir))))
	}

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = a.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	a.mux = srv
	return a
}

func (a *App) Start() error {
	a.log.Printf("starting server on %s\n", a.mux.Addr)
	return a.mux.ListenAndServe()
}

func (a *App) Shutdown(ctx context.Context) error {
	a.log.Println("shutting down HTTP server...")
	if err := a.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}

func (a *App) errorHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				var panicError error
				switch e := err.(type) {
				case error:
					panicError = e
				default:
					panicError = fmt.Errorf("%v", e)
				}
				a.log.Printf("panic: %v", panicError)
				errResp := NewInternalServerError(panicError)
				w.Header().Set("Connection", "close")
				a.writeJson(w, errResp.StatusCode, errResp)
				return
			}
		}()

		next.ServeHTTP(w, r)
	})
}
