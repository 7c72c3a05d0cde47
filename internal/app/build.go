package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/config"
	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/dashboard"
	"github.com/aidcare/copilot/internal/gateway"
	"github.com/aidcare/copilot/internal/httpapi"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/session"
)

type AudioInfo struct {
	Player   string
	Recorder string
	Detail   string
}

type BuildResult struct {
	Config      config.Config
	API         *httpapi.Server
	Sessions    *session.Manager
	Backend     *backend.Client
	Credentials *session.Credentials
	Cache       *cache.Cache
	Screens     *dashboard.Screens
	Languages   *languages.Catalog
	Speaker     *audio.PlaybackController
	Metrics     *observability.Metrics
	Audio       AudioInfo
	Logger      *slog.Logger

	// NewEngine builds a conversation bound to the process-wide speaker and
	// the configured microphone.
	NewEngine httpapi.EngineFactory

	// Cleanup should be called on shutdown to release external resources (redis, players, etc).
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	langs := languages.Default()
	if path := strings.TrimSpace(cfg.LanguagesFile); path != "" {
		loaded, err := languages.Load(path)
		if err != nil {
			return nil, fmt.Errorf("language catalog load failed: %w", err)
		}
		langs = loaded
	}

	store, err := cache.NewStore(ctx, cfg.CacheBackend, cache.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("cache store init failed: %w", err)
	}
	responses := cache.New(store, metrics, logger)

	creds := session.NewCredentials(cfg.AuthToken)
	creds.OnClear(func() {
		// Signing out must not leave another clinician's views behind.
		if err := responses.Clear(context.Background()); err != nil {
			logger.Warn("cache clear on sign-out failed", "error", err)
		}
	})

	gw, err := gateway.New(gateway.Options{
		BaseURL:     cfg.APIBaseURL,
		Timeout:     cfg.RequestTimeout,
		Credentials: creds,
		OnUnauthorized: func(path string) {
			logger.Warn("backend rejected credentials; sign in again",
				"path", path,
				"login_url", cfg.LoginURL,
			)
		},
		Metrics: metrics,
		Logger:  logger,
	})
	if err != nil {
		_ = responses.Close()
		return nil, fmt.Errorf("request gateway init failed: %w", err)
	}
	client := backend.New(gw, responses, logger)

	audioSetup, err := resolveAudio(cfg)
	if err != nil {
		_ = responses.Close()
		return nil, err
	}
	speaker := audio.NewPlaybackController(audio.PlaybackOptions{
		Synthesizer: client,
		Sink:        audioSetup.sink,
		Metrics:     metrics,
		Logger:      logger,
	})

	screens := dashboard.NewScreens(client, creds, dashboard.NewLoader(metrics, logger), dashboard.Timeouts{
		Admin:   cfg.AdminTimeout,
		Burnout: cfg.BurnoutTimeout,
		Home:    cfg.HomeTimeout,
	}, logger)

	newEngine := func(id string) (*conversation.Engine, error) {
		return conversation.New(conversation.Options{
			ID:                id,
			Backend:           client,
			Languages:         langs,
			Speaker:           speaker,
			Microphone:        audioSetup.microphone,
			AutoCompleteDelay: cfg.AutoCompleteDelay,
			Metrics:           metrics,
			Logger:            logger,
		})
	}

	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	api := httpapi.New(cfg, sessions, httpapi.Deps{
		NewEngine: newEngine,
		Screens:   screens,
		Cache:     responses,
		Languages: langs,
		Metrics:   metrics,
		Logger:    logger,
	})

	cleanup := func() error {
		var errs []string
		api.Shutdown()
		speaker.Stop()
		if err := responses.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	return &BuildResult{
		Config:      cfg,
		API:         api,
		Sessions:    sessions,
		Backend:     client,
		Credentials: creds,
		Cache:       responses,
		Screens:     screens,
		Languages:   langs,
		Speaker:     speaker,
		Metrics:     metrics,
		Audio:       audioSetup.info,
		Logger:      logger,
		NewEngine:   newEngine,
		Cleanup:     cleanup,
	}, nil
}

// Authenticate loads the signed-in user for a preconfigured token. Without a
// token it is a no-op; the dashboards then answer as an anonymous caller.
func (b *BuildResult) Authenticate(ctx context.Context) error {
	if b.Credentials.Token() == "" {
		return nil
	}
	u, err := b.Backend.Me(ctx)
	if err != nil {
		return fmt.Errorf("loading signed-in user: %w", err)
	}
	b.Logger.Info("signed in", "doctor_id", u.DoctorID, "role", u.Role, "ward", u.WardName)
	return nil
}
