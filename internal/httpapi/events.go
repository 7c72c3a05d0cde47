package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/protocol"
	"github.com/aidcare/copilot/internal/reliability"
)

// handleSessionWS streams conversation events and accepts client commands on
// one socket. Each command runs on its own goroutine so the engine, not the
// socket, decides whether a second turn is allowed while one is in flight.
func (s *Server) handleSessionWS(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "id"))
	if _, err := s.sessions.Get(sessionID); err != nil {
		respondError(w, http.StatusNotFound, "session_not_found", err.Error())
		return
	}
	engine, ok := s.engines.Get(sessionID)
	if !ok {
		respondError(w, http.StatusNotFound, "session_not_found", "conversation not found")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	s.metrics.ObserveSessionEvent("ws_connected")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	events, unsubscribe := engine.Subscribe(256)
	defer unsubscribe()
	outbound := make(chan any, 64)

	snap := engine.Snapshot()
	outbound <- protocol.PhaseChanged{
		Type:      protocol.TypePhaseChanged,
		SessionID: sessionID,
		Phase:     string(snap.Phase),
		Language:  snap.Language,
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			var msg any
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					// Engine closed; tell the client and hang up.
					_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended"))
					cancel()
					return
				}
				msg = ev
			case ev := <-outbound:
				msg = ev
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(msg); err != nil {
				s.metrics.ObserveWSMessage("outbound", "write_error")
				cancel()
				return
			}
			if t, ok := messageTypeOf(msg); ok {
				s.metrics.ObserveWSMessage("outbound", string(t))
			}
		}
	}()

	conn.SetReadLimit(2 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		return nil
	})

	reject := func(code, detail string, retryable bool) {
		ev := protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: sessionID,
			Code:      code,
			Source:    "console",
			Retryable: retryable,
			Detail:    detail,
		}
		select {
		case outbound <- ev:
		default:
			// Keep websocket writes single-threaded; drop if the queue is saturated.
			s.metrics.ObserveWSMessage("outbound", "drop_full")
		}
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
		parsed, err := protocol.ParseClientMessage(data)
		if err != nil {
			reject("invalid_client_message", err.Error(), false)
			continue
		}
		if t, ok := messageTypeOf(parsed); ok {
			s.metrics.ObserveWSMessage("inbound", string(t))
		}
		_ = s.sessions.Touch(sessionID)

		// Commands outlive the socket: a dropped connection must not abort a
		// turn the backend is already working on.
		cmdCtx := context.WithoutCancel(ctx)
		go func(msg any) {
			if err := s.dispatch(cmdCtx, engine, sessionID, msg); err != nil {
				status, code := statusFor(err)
				// Backend failures already reached the client as engine events.
				if status == http.StatusConflict || status == http.StatusBadRequest ||
					status == http.StatusGone || status == http.StatusUnprocessableEntity {
					reject(code, reliability.Message(err, "Request failed."), false)
				}
			}
		}(parsed)
	}

	cancel()
	<-writerDone
	s.metrics.ObserveSessionEvent("ws_disconnected")
}

func (s *Server) dispatch(ctx context.Context, engine *conversation.Engine, sessionID string, msg any) error {
	switch m := msg.(type) {
	case protocol.ClientText:
		if err := engine.SendTurn(ctx, m.Text); err != nil {
			return err
		}
		return s.sessions.RecordTurn(sessionID)
	case protocol.ClientStaffNote:
		return engine.RecordStaffNote(m.Text)
	case protocol.ClientControl:
		switch m.Action {
		case protocol.ActionSelectLanguage:
			return engine.SelectLanguage(ctx, languages.Parse(m.Language))
		case protocol.ActionStartRecording:
			return engine.StartRecording(ctx)
		case protocol.ActionStopRecording:
			_, err := engine.StopRecording()
			return err
		case protocol.ActionCancelRecording:
			engine.CancelRecording()
		case protocol.ActionSubmitRecording:
			if err := engine.SubmitRecording(ctx); err != nil {
				return err
			}
			return s.sessions.RecordTurn(sessionID)
		case protocol.ActionComplete:
			_, err := engine.CompleteAssessment(ctx, nil)
			return err
		case protocol.ActionRestart:
			engine.Restart()
		case protocol.ActionStopAudio:
			engine.StopAudio()
		}
	}
	return nil
}
