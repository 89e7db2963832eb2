package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-pokerplan/internal/api"
	"github.com/npezzotti/go-pokerplan/internal/blob"
	"github.com/npezzotti/go-pokerplan/internal/config"
	"github.com/npezzotti/go-pokerplan/internal/identity"
	"github.com/npezzotti/go-pokerplan/internal/session"
	"github.com/npezzotti/go-pokerplan/internal/stats"
	"github.com/npezzotti/go-pokerplan/internal/store"
)

const defaultSigningKey = "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU="

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr            string
	dsn             string
	signingKey      string
	avatarDir       string
	avatarBaseURL   string
	profileEndpoint string
	allowedOrigins  stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", "localhost:8000", "server address")
	flag.StringVar(&dsn, "dsn", "host=localhost user=postgres password=postgres dbname=postgres sslmode=disable", "database connection string")
	flag.StringVar(&signingKey, "signing-key", defaultSigningKey, "base64 encoded signing key for identity tokens")
	flag.StringVar(&avatarDir, "avatar-dir", "avatars", "directory avatars are stored in")
	flag.StringVar(&avatarBaseURL, "avatar-base-url", "http://localhost:8000/avatars", "public base URL avatars resolve against")
	flag.StringVar(&profileEndpoint, "profile-endpoint", "", "identity provider endpoint for profile updates")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := log.New(os.Stderr, "[pokerplan] ", log.LstdFlags)

	cfg, err := config.NewConfig(addr, dsn, signingKey, allowedOrigins, avatarDir, avatarBaseURL, profileEndpoint)
	if err != nil {
		logger.Fatal("config:", err)
	}

	if err := store.RunMigrations(cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrations:", err)
	}

	sessionStore, err := store.NewPgSessionStore(logger, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("store:", err)
	}
	defer func() {
		if err := sessionStore.Close(); err != nil {
			logger.Println("store close:", err)
		}
	}()

	blobs, err := blob.NewFilesystemStore(logger, cfg.AvatarDir, cfg.AvatarBaseURL)
	if err != nil {
		logger.Fatal("blob store:", err)
	}

	var provider identity.Provider = identity.NoopProvider{}
	if cfg.ProfileEndpoint != "" {
		provider = identity.NewHTTPProvider(logger, cfg.ProfileEndpoint)
	}

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)

	sessions := session.NewService(logger, sessionStore, statsUpdater)
	hub := session.NewHub(logger, sessionStore, statsUpdater)
	avatars := session.NewAvatarService(logger, sessionStore, blobs, provider, statsUpdater)

	app := api.NewApp(mux, logger, sessionStore, sessions, hub, avatars, statsUpdater, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutdown complete")
}
