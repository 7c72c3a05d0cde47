package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/aidcare/copilot/internal/reliability"
)

const (
	genericDetail = "Request failed"
	expiredDetail = "Session expired"
	timeoutDetail = "request timed out"
)

// Error is returned for every failed backend call. Status is zero when no
// response was received.
type Error struct {
	Status int
	Detail string
	Path   string
	kind   reliability.Kind
	err    error
}

func (e *Error) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("api %s: %s", e.Path, e.Detail)
	}
	return fmt.Sprintf("API %d: %s", e.Status, e.Detail)
}

func (e *Error) Kind() reliability.Kind { return e.kind }

func (e *Error) UserDetail() string { return e.Detail }

func (e *Error) Unwrap() error { return e.err }

func statusError(path string, status int, body []byte) *Error {
	detail := extractDetail(body)
	if detail == "" {
		if status == http.StatusUnauthorized {
			detail = expiredDetail
		} else if text := http.StatusText(status); text != "" {
			detail = text
		} else {
			detail = genericDetail
		}
	}
	return &Error{
		Status: status,
		Detail: detail,
		Path:   path,
		kind:   reliability.KindForStatus(status),
	}
}

// extractDetail prefers the JSON "detail" field and falls back to the raw body.
// Non-string details (validation error lists) are returned as compact JSON.
func extractDetail(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 || string(payload.Detail) == "null" {
		return text
	}
	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		if strings.TrimSpace(s) == "" {
			return text
		}
		return s
	}
	return string(payload.Detail)
}
