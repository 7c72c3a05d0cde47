package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

type statusErr struct {
	kind   Kind
	detail string
}

func (e statusErr) Error() string      { return "api error: " + e.detail }
func (e statusErr) Kind() Kind         { return e.kind }
func (e statusErr) UserDetail() string { return e.detail }

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestKindForStatus(t *testing.T) {
	cases := map[int]Kind{
		401: KindUnauthorized,
		404: KindValidation,
		422: KindValidation,
		500: KindServer,
		503: KindServer,
	}
	for code, want := range cases {
		if got := KindForStatus(code); got != want {
			t.Fatalf("KindForStatus(%d) = %q, want %q", code, got, want)
		}
	}
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("continue turn: %w", statusErr{kind: KindServer, detail: "boom"})
	if got := KindOf(wrapped); got != KindServer {
		t.Fatalf("KindOf(wrapped) = %q, want %q", got, KindServer)
	}
	if got := KindOf(fmt.Errorf("open mic: %w", ErrDevicePermission)); got != KindDevicePermission {
		t.Fatalf("KindOf(device) = %q, want %q", got, KindDevicePermission)
	}
	if got := KindOf(context.DeadlineExceeded); got != KindTimeout {
		t.Fatalf("KindOf(deadline) = %q, want %q", got, KindTimeout)
	}
	if !Retryable(context.DeadlineExceeded) {
		t.Fatalf("timeouts should be retryable")
	}
	if Retryable(statusErr{kind: KindUnauthorized}) {
		t.Fatalf("unauthorized should not offer retry")
	}
}

func TestMessagePrefersDetail(t *testing.T) {
	if got := Message(statusErr{kind: KindValidation, detail: "age is required"}, "x"); got != "age is required" {
		t.Fatalf("Message() = %q", got)
	}
	if got := Message(statusErr{kind: KindValidation}, "Unable to continue conversation."); got != "Unable to continue conversation." {
		t.Fatalf("Message() fallback = %q", got)
	}
	if got := Message(context.DeadlineExceeded, ""); got != "request timed out" {
		t.Fatalf("Message(timeout) = %q", got)
	}
	if got := Message(errors.New("plain"), ""); got != "plain" {
		t.Fatalf("Message(plain) = %q", got)
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}
