package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/lanchat-server/internal/auth"
	"github.com/vovakirdan/lanchat-server/internal/blob"
	"github.com/vovakirdan/lanchat-server/internal/config"
	"github.com/vovakirdan/lanchat-server/internal/core"
	"github.com/vovakirdan/lanchat-server/internal/store"
	"github.com/vovakirdan/lanchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/lanchat-server/internal/transport/http"
)

const defaultJWTSecret = "change-me"

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	blobs, err := NewBlobStore(ctx, cfg.Blob)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init blob store: %w", err)
	}
	logger.Info().Str("backend", cfg.Blob.Backend).Msg("blob store initialized")

	if cfg.JWTSecret == defaultJWTSecret {
		logger.Warn().Msg("jwt_secret is the default value, set a real secret")
	}

	authService := NewAuthService(cfg, st)
	presence := core.NewPresence()
	router := core.NewRouter(st, blobs, presence, logger, core.WithBroadcastEcho(cfg.BroadcastEcho))
	hub := core.NewHub(router, presence, st, logger)

	server := transporthttp.NewServer(transporthttp.Deps{
		Hub:      hub,
		Router:   router,
		Unread:   core.NewUnreadAggregator(st),
		Presence: presence,
		Auth:     authService,
		Users:    st,
	}, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// NewAuthService builds the credential collaborator from configuration.
func NewAuthService(cfg *config.Config, users store.UserStore) *auth.Service {
	return auth.NewService(users, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
}

// NewBlobStore opens the configured blob backend.
func NewBlobStore(ctx context.Context, cfg config.BlobConfig) (blob.Store, error) {
	switch cfg.Backend {
	case "", config.BlobBackendDisk:
		return blob.NewDisk(cfg.Root, cfg.Dir)
	case config.BlobBackendS3:
		return blob.NewS3(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.Dir,
		})
	default:
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Backend)
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		a.hub.Run(hubCtx)
		close(hubDone)
	}()

	serverErr := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		a.logLANAddress()
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var err error
	select {
	case err = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Hijacked websocket connections are not tracked by Shutdown; the
		// hub closes them.
		stopHub()
		if shutdownErr := a.server.Shutdown(shutdownCtx); shutdownErr != nil {
			err = shutdownErr
		} else {
			err = <-serverErr
		}
	}

	stopHub()
	<-hubDone
	a.cleanup()
	return err
}

// logLANAddress tells the operator where other devices can connect.
func (a *App) logLANAddress() {
	addrs, err := interfaceAddrs()
	if err != nil {
		a.log.Debug().Err(err).Msg("list network interfaces")
		return
	}
	if url, ok := lanURL(a.server.Addr, addrs); ok {
		a.log.Info().Str("url", url).Msg("connect from other devices")
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
