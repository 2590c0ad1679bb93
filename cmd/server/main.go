package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/gitflash/interviewd/internal/config"
	"github.com/gitflash/interviewd/internal/database"
	"github.com/gitflash/interviewd/internal/events"
	"github.com/gitflash/interviewd/internal/handlers"
	"github.com/gitflash/interviewd/internal/logger"
	"github.com/gitflash/interviewd/internal/provider"
	"github.com/gitflash/interviewd/internal/repositories"
	"github.com/gitflash/interviewd/internal/routes"
	"github.com/gitflash/interviewd/internal/rtc"
	"github.com/gitflash/interviewd/internal/services"
	ws "github.com/gitflash/interviewd/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New("info", "console", os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	db, err := database.Connect(connectCtx, database.Config{
		URL:             cfg.PostgresDSN(),
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 30 * time.Minute,
	}, log)
	cancel()
	if err != nil {
		return err
	}
	defer db.Close()

	devices, err := rtc.ParseDeviceCatalog(cfg.DeviceCatalog)
	if err != nil {
		return err
	}
	transport, err := rtc.NewPeerTransport(rtc.PeerConfig{
		ICEServers:  cfg.ICEServers,
		Devices:     devices,
		JoinTimeout: cfg.JoinTimeout,
		DisplayName: cfg.DisplayName,
	}, log)
	if err != nil {
		return err
	}

	hub := ws.NewHub(log)
	notifier := services.MultiNotifier{hub}

	if cfg.RabbitMQEnabled {
		publisher, err := events.Dial(cfg.RabbitMQURL, cfg.RabbitMQExchange, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		notifier = append(notifier, publisher)
	}

	service := services.NewInterviewService(services.InterviewServiceDeps{
		Provider: provider.NewClient(provider.ClientConfig{
			BaseURL:        cfg.ProviderBaseURL,
			APIKey:         cfg.ProviderAPIKey,
			RequestTimeout: cfg.ProviderTimeout,
		}, nil, log),
		Sessions:    repositories.NewInterviewSessionRepository(db),
		Preferences: repositories.NewCallPreferenceRepository(db),
		Transport:   rtc.NewShared(transport, log),
		Notifier:    notifier,
		Surfaces: func(viewID uuid.UUID, sessionID string) services.SurfaceController {
			return ws.NewSurfaceController(hub, viewID, sessionID, cfg.AutoJoinTimeout)
		},
		Rooms: hub,
		Log:   log,
		Controller: services.ControllerConfig{
			PollInterval:       cfg.PollInterval,
			MaxPollAttempts:    cfg.PollMaxAttempts,
			FailureNotifyEvery: cfg.PollFailureNotifyEvery,
		},
		AutoJoin:       services.AutoJoinConfig{Delays: cfg.AutoJoinDelays},
		AcquireTimeout: cfg.TransportAcquireTimeout,
	})

	router := gin.New()
	router.Use(gin.Recovery(), logger.Middleware(log), cors.New(corsConfig(cfg.AllowedOrigins)))

	routes.RegisterPublicEndpoints(router,
		handlers.NewHealthHandler(service, db),
		handlers.NewWebSocketHandler(service, hub, cfg.AllowedOrigins, log),
		service,
		cfg.JWTSecret,
		log,
	)
	routes.RegisterProtectedEndpoints(router, handlers.NewInterviewHandler(service, log), cfg.JWTSecret, log)

	srv := &http.Server{
		Addr:              cfg.ServerAddress,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ServerAddress).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	service.Shutdown(shutdownCtx)
	return nil
}

func corsConfig(origins []string) cors.Config {
	c := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			c.AllowCredentials = false
			return c
		}
	}
	c.AllowOrigins = origins
	return c
}
