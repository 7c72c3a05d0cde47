package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/session"
)

type sessionView struct {
	Session      *session.Session     `json:"session"`
	Conversation conversation.Session `json:"conversation"`
}

type createSessionResponse struct {
	session.CreateResponse
	Conversation conversation.Session `json:"conversation"`
}

type languageRequest struct {
	Language string `json:"language"`
}

type textRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.newEngine == nil {
		respondError(w, http.StatusNotImplemented, "unavailable", "triage engine not configured")
		return
	}
	var req session.CreateRequest
	if err := decodeJSON(r, &req); err != nil && !errors.Is(err, errEmptyBody) {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	if strings.TrimSpace(req.OperatorID) == "" {
		req.OperatorID = "console"
	}
	code := languages.Parse(req.Language)
	if code != "" {
		if _, ok := s.langs.Get(code); !ok {
			respondError(w, http.StatusBadRequest, "unknown_language", "unsupported language "+req.Language)
			return
		}
	}

	sess := s.sessions.Create(req.OperatorID, req.PatientRef)
	engine, err := s.newEngine(sess.ID)
	if err != nil {
		_, _ = s.sessions.End(sess.ID)
		s.logger.Error("conversation engine init failed", "session_id", sess.ID, "error", err)
		respondError(w, http.StatusInternalServerError, "engine_init_failed", err.Error())
		return
	}
	s.engines.Put(sess.ID, engine)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("created")

	if code != "" {
		if err := engine.SelectLanguage(r.Context(), code); err != nil {
			s.engines.Close(sess.ID)
			_, _ = s.sessions.End(sess.ID)
			s.metrics.SetActiveSessions(s.sessions.ActiveCount())
			respondFailure(w, err)
			return
		}
	}

	respondJSON(w, http.StatusCreated, createSessionResponse{
		CreateResponse: session.CreateResponse{
			SessionID:       sess.ID,
			OperatorID:      sess.OperatorID,
			PatientRef:      sess.PatientRef,
			Status:          sess.Status,
			StartedAt:       sess.StartedAt,
			LastActivityAt:  sess.LastActivityAt,
			InactivityTTLMS: s.sessions.InactivityTimeout().Milliseconds(),
		},
		Conversation: engine.Snapshot(),
	})
}

type sessionSummary struct {
	*session.Session
	Phase    conversation.Phase `json:"phase"`
	Language string             `json:"language,omitempty"`
}

// handleListSessions lists live console sessions, optionally for one operator.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.sessions.List(strings.TrimSpace(r.URL.Query().Get("operator_id")))
	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		sum := sessionSummary{Session: sess}
		if engine, ok := s.engines.Get(sess.ID); ok {
			snap := engine.Snapshot()
			sum.Phase = snap.Phase
			sum.Language = snap.Language
		}
		out = append(out, sum)
	}
	respondJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

// lookup resolves the session and its engine and marks activity. It writes
// the error response itself and reports false when the handler must stop.
func (s *Server) lookup(w http.ResponseWriter, r *http.Request) (*session.Session, *conversation.Engine, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return nil, nil, false
	}
	sess, err := s.sessions.Get(id)
	if err != nil || sess.Status != session.StatusActive {
		respondError(w, http.StatusNotFound, "session_not_found", session.ErrNotFound.Error())
		return nil, nil, false
	}
	engine, ok := s.engines.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "conversation not found")
		return nil, nil, false
	}
	_ = s.sessions.Touch(id)
	return sess, engine, true
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, sessionView{Session: sess, Conversation: engine.Snapshot()})
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if strings.TrimSpace(id) == "" {
		respondError(w, http.StatusBadRequest, "invalid_session_id", "missing session id")
		return
	}

	sess, err := s.sessions.End(id)
	if err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	s.engines.Close(id)
	s.metrics.SetActiveSessions(s.sessions.ActiveCount())
	s.metrics.ObserveSessionEvent("ended")
	respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleSelectLanguage(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req languageRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "language is required")
		return
	}
	if err := engine.SelectLanguage(r.Context(), languages.Parse(req.Language)); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engine.Snapshot())
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	sess, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if err := engine.SendTurn(r.Context(), req.Text); err != nil {
		respondFailure(w, err)
		return
	}
	_ = s.sessions.RecordTurn(sess.ID)
	respondJSON(w, http.StatusOK, engine.Snapshot())
}

func (s *Server) handleStaffNote(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	var req textRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Text) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "text is required")
		return
	}
	if err := engine.RecordStaffNote(req.Text); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engine.Snapshot())
}

func (s *Server) handleComplete(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if _, err := engine.CompleteAssessment(r.Context(), nil); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engine.Snapshot())
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	engine.Restart()
	respondJSON(w, http.StatusOK, engine.Snapshot())
}

func (s *Server) handleStopAudio(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	engine.StopAudio()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	// The capture outlives this request; it ends on stop or cancel.
	if err := engine.StartRecording(context.WithoutCancel(r.Context())); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, engine.Snapshot().Recording)
}

func (s *Server) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	rec, err := engine.StopRecording()
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"recording_id": rec.ID,
		"sample_rate":  rec.SampleRate,
		"duration_ms":  rec.Duration.Milliseconds(),
		"bytes":        len(rec.WAV),
		"state":        engine.Snapshot().Recording,
	})
}

func (s *Server) handleRecordingCancel(w http.ResponseWriter, r *http.Request) {
	_, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	engine.CancelRecording()
	respondJSON(w, http.StatusOK, engine.Snapshot().Recording)
}

func (s *Server) handleRecordingSubmit(w http.ResponseWriter, r *http.Request) {
	sess, engine, ok := s.lookup(w, r)
	if !ok {
		return
	}
	if err := engine.SubmitRecording(r.Context()); err != nil {
		respondFailure(w, err)
		return
	}
	_ = s.sessions.RecordTurn(sess.ID)
	respondJSON(w, http.StatusOK, engine.Snapshot())
}
