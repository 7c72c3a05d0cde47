package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/config"
	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/dashboard"
	"github.com/aidcare/copilot/internal/gateway"
	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/session"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func fakeUpstream() http.Handler {
	r := chi.NewRouter()
	r.Post("/triage/conversation/continue", func(w http.ResponseWriter, r *http.Request) {
		var req backend.ContinueRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, backend.ContinueReply{Response: "How long have you felt this way?", Language: req.Language})
	})
	r.Post("/triage/translate", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"transcript_english": "Hello", "language": "ha"})
	})
	r.Post("/triage/process_text", func(w http.ResponseWriter, r *http.Request) {
		var req backend.AssessmentRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		writeJSON(w, backend.TriageResult{
			Language:          req.Language,
			ExtractedSymptoms: []string{"headache"},
			RiskLevel:         "low",
			Recommendation:    backend.Recommendation{UrgencyLevel: "Routine"},
		})
	})
	r.Get("/patients/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, backend.PatientList{Total: 3})
	})
	r.Get("/doctor/shifts/active", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, map[string]any{"shift": nil})
	})
	r.Get("/doctor/burnout/me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, backend.Burnout{DoctorID: "d1", CognitiveLoadScore: 40, Status: "green"})
	})
	r.Get("/admin/dashboard/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, backend.AdminDashboard{GeneratedAt: "now"})
	})
	return r
}

type testEnv struct {
	ts       *httptest.Server
	srv      *Server
	sessions *session.Manager
}

func newTestEnv(t *testing.T, role string) *testEnv {
	t.Helper()
	upstream := httptest.NewServer(fakeUpstream())
	t.Cleanup(upstream.Close)

	creds := session.NewCredentials("tok")
	creds.SetUser(session.User{DoctorID: "d1", Role: role, WardID: "w1"})
	gw, err := gateway.New(gateway.Options{BaseURL: upstream.URL, Timeout: 5 * time.Second, Credentials: creds})
	if err != nil {
		t.Fatalf("gateway.New() error = %v", err)
	}
	responses := cache.New(cache.NewInMemoryStore(), nil, nil)
	bc := backend.New(gw, responses, nil)

	cfg := config.Config{SessionInactivityTimeout: 2 * time.Minute, CacheBackend: "memory"}
	sessions := session.NewManager(cfg.SessionInactivityTimeout)
	metrics := observability.NewMetrics("test_httpapi_" + t.Name())
	srv := New(cfg, sessions, Deps{
		NewEngine: func(id string) (*conversation.Engine, error) {
			return conversation.New(conversation.Options{
				ID:                id,
				Backend:           bc,
				AutoCompleteDelay: 20 * time.Millisecond,
				Metrics:           metrics,
			})
		},
		Screens: dashboard.NewScreens(bc, creds, dashboard.NewLoader(metrics, nil), dashboard.Timeouts{}, nil),
		Cache:   responses,
		Metrics: metrics,
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	return &testEnv{ts: ts, srv: srv, sessions: sessions}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, _ := http.NewRequest(method, e.ts.URL+path, rdr)
	req.Header.Set("Content-Type", "application/json")
	res, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s error = %v", method, path, err)
	}
	defer res.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(res.Body).Decode(&out)
	return res, out
}

func (e *testEnv) createSession(t *testing.T, language string) string {
	t.Helper()
	res, out := e.do(t, http.MethodPost, "/v1/triage/sessions", map[string]string{
		"operator_id": "nurse-1",
		"language":    language,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create status = %d, want %d (%v)", res.StatusCode, http.StatusCreated, out)
	}
	id, _ := out["session_id"].(string)
	if id == "" {
		t.Fatalf("missing session_id in create response: %+v", out)
	}
	return id
}

func TestTriageSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "en")
	base := "/v1/triage/sessions/" + id

	res, out := env.do(t, http.MethodPost, base+"/turns", map[string]string{"text": "I have a headache"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("turn status = %d (%v)", res.StatusCode, out)
	}
	msgs, _ := out["messages"].([]any)
	if len(msgs) != 3 {
		t.Fatalf("expected greeting, patient and reply messages, got %d", len(msgs))
	}

	res, out = env.do(t, http.MethodPost, base+"/staff-notes", map[string]string{"text": "BP 130/85"})
	if res.StatusCode != http.StatusOK || out["staff_notes"] != "BP 130/85" {
		t.Fatalf("staff note status = %d (%v)", res.StatusCode, out)
	}

	res, out = env.do(t, http.MethodPost, base+"/complete", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("complete status = %d (%v)", res.StatusCode, out)
	}
	if out["phase"] != string(conversation.PhaseResults) {
		t.Fatalf("phase = %v, want results", out["phase"])
	}
	result, _ := out["result"].(map[string]any)
	if result["risk_level"] != "low" {
		t.Fatalf("unexpected result %v", result)
	}

	res, _ = env.do(t, http.MethodPost, base+"/turns", map[string]string{"text": "more"})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("turn after results status = %d, want %d", res.StatusCode, http.StatusConflict)
	}

	res, _ = env.do(t, http.MethodDelete, base, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("end status = %d", res.StatusCode)
	}
	if env.srv.engines.Len() != 0 {
		t.Fatalf("ended session must release its engine")
	}
	res, _ = env.do(t, http.MethodGet, base, nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("get after end status = %d, want %d", res.StatusCode, http.StatusNotFound)
	}
}

func TestListSessions(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "ha")

	res, out := env.do(t, http.MethodGet, "/v1/triage/sessions?operator_id=nurse-1", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d (%v)", res.StatusCode, out)
	}
	list, _ := out["sessions"].([]any)
	if len(list) != 1 {
		t.Fatalf("sessions = %v, want one", out["sessions"])
	}
	first, _ := list[0].(map[string]any)
	if first["session_id"] != id || first["phase"] != string(conversation.PhaseConversation) || first["language"] != "ha" {
		t.Fatalf("summary = %v", first)
	}

	_, out = env.do(t, http.MethodGet, "/v1/triage/sessions?operator_id=someone-else", nil)
	if list, _ := out["sessions"].([]any); len(list) != 0 {
		t.Fatalf("other operator sessions = %v, want none", list)
	}
}

func TestCreateSessionRejectsUnknownLanguage(t *testing.T) {
	env := newTestEnv(t, "doctor")
	res, out := env.do(t, http.MethodPost, "/v1/triage/sessions", map[string]string{"language": "fr"})
	if res.StatusCode != http.StatusBadRequest || out["code"] != "unknown_language" {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
	if env.sessions.ActiveCount() != 0 {
		t.Fatalf("rejected create must not leave a session behind")
	}
}

func TestCreateSessionReleasesEngineWhenLanguageFails(t *testing.T) {
	sessions := session.NewManager(time.Minute)
	srv := New(config.Config{SessionInactivityTimeout: time.Minute}, sessions, Deps{
		NewEngine: func(id string) (*conversation.Engine, error) {
			e, err := conversation.New(conversation.Options{ID: id, Backend: backend.New(nil, nil, nil)})
			if err != nil {
				return nil, err
			}
			// A closed engine refuses the greeting.
			e.Close()
			return e, nil
		},
		Metrics: observability.NewMetrics("test_httpapi_" + t.Name()),
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		srv.Shutdown()
	})
	env := &testEnv{ts: ts, srv: srv, sessions: sessions}

	res, out := env.do(t, http.MethodPost, "/v1/triage/sessions", map[string]string{"language": "en"})
	if res.StatusCode != http.StatusGone || out["code"] != "session_closed" {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
	if sessions.ActiveCount() != 0 || srv.engines.Len() != 0 {
		t.Fatalf("failed create left %d sessions and %d engines", sessions.ActiveCount(), srv.engines.Len())
	}
}

func TestTurnValidation(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "")

	res, _ := env.do(t, http.MethodPost, "/v1/triage/sessions/"+id+"/turns", map[string]string{"text": "  "})
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("blank turn status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
	res, out := env.do(t, http.MethodPost, "/v1/triage/sessions/"+id+"/turns", map[string]string{"text": "hello"})
	if res.StatusCode != http.StatusConflict || out["code"] != "wrong_phase" {
		t.Fatalf("turn before language status = %d body = %v", res.StatusCode, out)
	}
	res, _ = env.do(t, http.MethodGet, "/v1/triage/sessions/missing", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("missing session status = %d", res.StatusCode)
	}
}

func TestCompleteWithoutSymptomsIsRejected(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "en")

	res, out := env.do(t, http.MethodPost, "/v1/triage/sessions/"+id+"/complete", nil)
	if res.StatusCode != http.StatusUnprocessableEntity || out["code"] != "empty_context" {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
}

func TestRecordingWithoutDeviceIsNonFatal(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "en")

	res, out := env.do(t, http.MethodPost, "/v1/triage/sessions/"+id+"/recording/start", nil)
	if res.StatusCode != http.StatusServiceUnavailable || out["code"] != "device_unavailable" {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
	res, out = env.do(t, http.MethodPost, "/v1/triage/sessions/"+id+"/turns", map[string]string{"text": "typing instead"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("typed turn after device failure status = %d (%v)", res.StatusCode, out)
	}
}

func TestDashboards(t *testing.T) {
	env := newTestEnv(t, "doctor")

	res, out := env.do(t, http.MethodGet, "/v1/dashboards/admin", nil)
	if res.StatusCode != http.StatusForbidden {
		t.Fatalf("admin as doctor status = %d body = %v", res.StatusCode, out)
	}

	res, out = env.do(t, http.MethodGet, "/v1/dashboards/home", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("home status = %d", res.StatusCode)
	}
	if out["patient_count"] != float64(3) || out["shift_active"] != false {
		t.Fatalf("unexpected home view %v", out)
	}

	res, out = env.do(t, http.MethodGet, "/v1/dashboards/burnout?refresh=true", nil)
	if res.StatusCode != http.StatusOK || out["outcome"] != "ok" {
		t.Fatalf("burnout status = %d body = %v", res.StatusCode, out)
	}
}

func TestAdminDashboardForAdmins(t *testing.T) {
	env := newTestEnv(t, "super_admin")
	res, out := env.do(t, http.MethodGet, "/v1/dashboards/admin", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("admin status = %d body = %v", res.StatusCode, out)
	}
	// Allocation and organogram are not served upstream.
	banner, _ := out["banner"].(string)
	if !strings.HasPrefix(banner, "Allocation: ") && !strings.HasPrefix(banner, "Organogram: ") {
		t.Fatalf("expected a secondary banner, got %q", banner)
	}
	if out["dashboard"] == nil {
		t.Fatalf("primary dashboard missing: %v", out)
	}
}

func TestAdminDashboardStreamsPrimaryFirst(t *testing.T) {
	env := newTestEnv(t, "super_admin")
	res, err := http.Get(env.ts.URL + "/v1/dashboards/admin?stream=true")
	if err != nil {
		t.Fatalf("GET error = %v", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "application/x-ndjson" {
		t.Fatalf("status = %d content-type = %q", res.StatusCode, res.Header.Get("Content-Type"))
	}

	var views []map[string]any
	dec := json.NewDecoder(res.Body)
	for dec.More() {
		var v map[string]any
		if err := dec.Decode(&v); err != nil {
			t.Fatalf("decode: %v", err)
		}
		views = append(views, v)
	}
	if len(views) != 3 {
		t.Fatalf("views = %d, want primary plus allocation and organogram", len(views))
	}
	if views[0]["dashboard"] == nil || views[0]["pending"] == nil || views[0]["banner"] != nil {
		t.Fatalf("first view = %v", views[0])
	}
	last := views[len(views)-1]
	if last["pending"] != nil || last["banner"] == nil {
		t.Fatalf("last view = %v", last)
	}
}

func TestCacheInvalidate(t *testing.T) {
	env := newTestEnv(t, "doctor")

	res, out := env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{"namespaces": []string{"weather"}})
	if res.StatusCode != http.StatusBadRequest || out["code"] != "unknown_namespace" {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
	res, out = env.do(t, http.MethodPost, "/v1/cache/invalidate", map[string]any{"namespaces": []string{"Admin", "patients"}})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d body = %v", res.StatusCode, out)
	}
	res, _ = env.do(t, http.MethodPost, "/v1/cache/invalidate", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("clear all status = %d", res.StatusCode)
	}
}

func TestLanguagesAndHealth(t *testing.T) {
	env := newTestEnv(t, "doctor")
	res, out := env.do(t, http.MethodGet, "/v1/languages", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("languages status = %d", res.StatusCode)
	}
	if langs, _ := out["languages"].([]any); len(langs) != 5 {
		t.Fatalf("expected 5 languages, got %d", len(langs))
	}
	res, out = env.do(t, http.MethodGet, "/readyz", nil)
	if res.StatusCode != http.StatusOK || out["triage_enabled"] != true {
		t.Fatalf("ready status = %d body = %v", res.StatusCode, out)
	}
}

func readUntil(t *testing.T, conn *websocket.Conn, want string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg map[string]any
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", want, err)
		}
		if msg["type"] == want {
			return msg
		}
	}
}

func TestSessionEventsWebsocket(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "en")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/triage/sessions/" + id + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	first := readUntil(t, conn, "phase_changed")
	if first["phase"] != string(conversation.PhaseConversation) {
		t.Fatalf("initial phase = %v", first["phase"])
	}

	if err := conn.WriteJSON(map[string]any{"type": "client_text", "session_id": id, "text": "My stomach hurts"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	appended := readUntil(t, conn, "message_appended")
	if appended["role"] != "patient" || appended["content"] != "My stomach hurts" {
		t.Fatalf("unexpected first append %v", appended)
	}
	reply := readUntil(t, conn, "message_appended")
	if reply["role"] != "assistant" {
		t.Fatalf("unexpected reply %v", reply)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"client_control","session_id":"`+id+`","action":"fly"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	ev := readUntil(t, conn, "error_event")
	if ev["code"] != "invalid_client_message" {
		t.Fatalf("unexpected error event %v", ev)
	}
}

func TestWebsocketRejectsForeignOrigin(t *testing.T) {
	env := newTestEnv(t, "doctor")
	id := env.createSession(t, "en")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/v1/triage/sessions/" + id + "/events"
	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, res, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err == nil {
		t.Fatalf("expected handshake failure for foreign origin")
	}
	if res == nil || res.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %+v", res)
	}
}
