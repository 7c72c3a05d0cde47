package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/config"
	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/dashboard"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/protocol"
	"github.com/aidcare/copilot/internal/reliability"
	"github.com/aidcare/copilot/internal/session"
)

// Deps are the collaborators the console API drives. Screens and Cache may
// be nil; their routes then answer 501.
type Deps struct {
	NewEngine EngineFactory
	Screens   *dashboard.Screens
	Cache     *cache.Cache
	Languages *languages.Catalog
	Metrics   *observability.Metrics
	Logger    *slog.Logger
}

type Server struct {
	cfg       config.Config
	sessions  *session.Manager
	engines   *Registry
	newEngine EngineFactory
	screens   *dashboard.Screens
	cache     *cache.Cache
	langs     *languages.Catalog
	metrics   *observability.Metrics
	logger    *slog.Logger
	upgrader  websocket.Upgrader
}

func New(cfg config.Config, sessions *session.Manager, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	langs := deps.Languages
	if langs == nil {
		langs = languages.Default()
	}
	s := &Server{
		cfg:       cfg,
		sessions:  sessions,
		engines:   NewRegistry(),
		newEngine: deps.NewEngine,
		screens:   deps.Screens,
		cache:     deps.Cache,
		langs:     langs,
		metrics:   deps.Metrics,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Only the console's own origin may drive a conversation
				// unless explicitly opened up.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
	sessions.SetExpireHook(func(sess *session.Session) {
		if s.engines.Close(sess.ID) {
			s.logger.Info("conversation expired", "session_id", sess.ID)
		}
		s.metrics.ObserveSessionEvent("expired")
		s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	})
	return s
}

// Shutdown closes every live conversation.
func (s *Server) Shutdown() {
	s.engines.CloseAll()
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Get("/v1/perf/latency", s.handlePerfLatency)
	r.Get("/v1/languages", s.handleLanguages)

	r.Route("/v1/triage/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleListSessions)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Delete("/", s.handleEndSession)
			r.Get("/events", s.handleSessionWS)
			r.Post("/language", s.handleSelectLanguage)
			r.Post("/turns", s.handleTurn)
			r.Post("/staff-notes", s.handleStaffNote)
			r.Post("/complete", s.handleComplete)
			r.Post("/restart", s.handleRestart)
			r.Post("/audio/stop", s.handleStopAudio)
			r.Post("/recording/start", s.handleRecordingStart)
			r.Post("/recording/stop", s.handleRecordingStop)
			r.Post("/recording/cancel", s.handleRecordingCancel)
			r.Post("/recording/submit", s.handleRecordingSubmit)
		})
	})

	r.Get("/v1/dashboards/admin", s.handleAdminDashboard)
	r.Get("/v1/dashboards/burnout", s.handleBurnoutDashboard)
	r.Get("/v1/dashboards/home", s.handleHomeDashboard)
	r.Post("/v1/cache/invalidate", s.handleCacheInvalidate)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"active_sessions": s.sessions.ActiveCount(),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	status, code := "ready", http.StatusOK
	if s.newEngine == nil {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	respondJSON(w, code, map[string]any{
		"status":             status,
		"triage_enabled":     s.newEngine != nil,
		"dashboards_enabled": s.screens != nil,
		"cache_backend":      s.cfg.CacheBackend,
	})
}

func (s *Server) handleLanguages(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"primary":   languages.Primary,
		"languages": s.langs.All(),
	})
}

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	Retryable bool   `json:"retryable,omitempty"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}

// respondFailure maps engine, capture and backend errors onto HTTP.
func respondFailure(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	respondJSON(w, status, errorResponse{
		Error:     reliability.Message(err, "Request failed."),
		Code:      code,
		Retryable: reliability.Retryable(err),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, conversation.ErrTurnInFlight):
		return http.StatusConflict, "turn_in_flight"
	case errors.Is(err, conversation.ErrWrongPhase):
		return http.StatusConflict, "wrong_phase"
	case errors.Is(err, audio.ErrCaptureBusy):
		return http.StatusConflict, "capture_busy"
	case errors.Is(err, audio.ErrNoRecording):
		return http.StatusConflict, "no_recording"
	case errors.Is(err, conversation.ErrUnknownLanguage):
		return http.StatusBadRequest, "unknown_language"
	case errors.Is(err, conversation.ErrEmptyContext):
		return http.StatusUnprocessableEntity, "empty_context"
	case errors.Is(err, conversation.ErrNoSpeech):
		return http.StatusUnprocessableEntity, "no_speech"
	case errors.Is(err, conversation.ErrClosed):
		return http.StatusGone, "session_closed"
	case errors.Is(err, dashboard.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	}
	switch reliability.KindOf(err) {
	case reliability.KindDevicePermission:
		return http.StatusServiceUnavailable, "device_unavailable"
	case reliability.KindTimeout:
		return http.StatusGatewayTimeout, "timeout"
	case reliability.KindUnauthorized:
		return http.StatusUnauthorized, "unauthorized"
	case reliability.KindValidation:
		return http.StatusUnprocessableEntity, "backend_rejected"
	default:
		return http.StatusBadGateway, "backend_error"
	}
}

func messageTypeOf(v any) (protocol.MessageType, bool) {
	switch m := v.(type) {
	case protocol.ClientText:
		return m.Type, true
	case protocol.ClientStaffNote:
		return m.Type, true
	case protocol.ClientControl:
		return m.Type, true
	case protocol.PhaseChanged:
		return m.Type, true
	case protocol.MessageAppended:
		return m.Type, true
	case protocol.Speaking:
		return m.Type, true
	case protocol.RecordingState:
		return m.Type, true
	case protocol.Result:
		return m.Type, true
	case protocol.SystemEvent:
		return m.Type, true
	case protocol.ErrorEvent:
		return m.Type, true
	default:
		return "", false
	}
}
