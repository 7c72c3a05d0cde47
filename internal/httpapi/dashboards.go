package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/dashboard"
)

func refreshRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("refresh"))
	return err == nil && v
}

func streamRequested(r *http.Request) bool {
	v, err := strconv.ParseBool(r.URL.Query().Get("stream"))
	return err == nil && v
}

// viewStream writes each render as one NDJSON line and flushes it, so the
// primary reaches the client while secondaries are still loading.
type viewStream struct {
	w       http.ResponseWriter
	rc      *http.ResponseController
	started bool
	err     error
}

func (vs *viewStream) send(v any) {
	if vs.err != nil {
		return
	}
	if !vs.started {
		vs.w.Header().Set("Content-Type", "application/x-ndjson")
		vs.w.Header().Set("Cache-Control", "no-store")
		vs.w.WriteHeader(http.StatusOK)
		vs.started = true
	}
	if err := json.NewEncoder(vs.w).Encode(v); err != nil {
		vs.err = err
		return
	}
	if err := vs.rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
		vs.err = err
	}
}

// serveView answers with the final view, or with every render of it when the
// client asked for ?stream=true.
func serveView[V any](w http.ResponseWriter, r *http.Request, load func(render func(V)) (V, error)) {
	if !streamRequested(r) {
		view, err := load(nil)
		if err != nil {
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, view)
		return
	}
	vs := &viewStream{w: w, rc: http.NewResponseController(w)}
	if _, err := load(func(v V) { vs.send(v) }); err != nil && !vs.started {
		respondFailure(w, err)
	}
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, r *http.Request) {
	if s.screens == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dashboards not configured")
		return
	}
	q := r.URL.Query()
	query := dashboard.AdminQuery{
		WardID:     strings.TrimSpace(q.Get("ward_uuid")),
		HospitalID: strings.TrimSpace(q.Get("hospital_uuid")),
		Refresh:    refreshRequested(r),
	}
	serveView(w, r, func(render func(dashboard.AdminView)) (dashboard.AdminView, error) {
		return s.screens.Admin(r.Context(), query, render)
	})
}

func (s *Server) handleBurnoutDashboard(w http.ResponseWriter, r *http.Request) {
	if s.screens == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dashboards not configured")
		return
	}
	refresh := refreshRequested(r)
	serveView(w, r, func(render func(dashboard.BurnoutView)) (dashboard.BurnoutView, error) {
		return s.screens.Burnout(r.Context(), refresh, render)
	})
}

func (s *Server) handleHomeDashboard(w http.ResponseWriter, r *http.Request) {
	if s.screens == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "dashboards not configured")
		return
	}
	serveView(w, r, func(render func(dashboard.HomeView)) (dashboard.HomeView, error) {
		return s.screens.Home(r.Context(), render)
	})
}

type invalidateRequest struct {
	// Namespaces to evict; empty clears everything.
	Namespaces []string `json:"namespaces"`
}

var knownNamespaces = map[string]cache.Namespace{
	string(cache.NamespacePatients): cache.NamespacePatients,
	string(cache.NamespaceBurnout):  cache.NamespaceBurnout,
	string(cache.NamespaceAdmin):    cache.NamespaceAdmin,
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "cache not configured")
		return
	}
	var req invalidateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if len(req.Namespaces) == 0 {
		if err := s.cache.Clear(r.Context()); err != nil {
			respondError(w, http.StatusInternalServerError, "cache_error", err.Error())
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"cleared": []string{"*"}})
		return
	}

	namespaces := make([]cache.Namespace, 0, len(req.Namespaces))
	cleared := make([]string, 0, len(req.Namespaces))
	for _, raw := range req.Namespaces {
		ns, ok := knownNamespaces[strings.ToLower(strings.TrimSpace(raw))]
		if !ok {
			respondError(w, http.StatusBadRequest, "unknown_namespace", "unknown cache namespace "+raw)
			return
		}
		namespaces = append(namespaces, ns)
		cleared = append(cleared, string(ns))
	}
	if err := s.cache.ClearNamespace(r.Context(), namespaces...); err != nil {
		respondError(w, http.StatusInternalServerError, "cache_error", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}
