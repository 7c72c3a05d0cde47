package reliability

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"
)

// Kind is the single failure taxonomy shared by every network and device path.
type Kind string

const (
	KindUnknown          Kind = "unknown"
	KindTransport        Kind = "transport"
	KindTimeout          Kind = "timeout"
	KindUnauthorized     Kind = "unauthorized"
	KindValidation       Kind = "validation"
	KindServer           Kind = "server"
	KindDevicePermission Kind = "device_permission"
)

// ErrTimedOut is returned when an operation exceeds its fixed deadline.
var ErrTimedOut = errors.New("request timed out")

// ErrDevicePermission is wrapped by capture errors when the microphone cannot be acquired.
var ErrDevicePermission = errors.New("microphone access failed")

// Kinded is implemented by errors that know their own Kind.
type Kinded interface {
	Kind() Kind
}

// Detailed is implemented by errors that carry a user-facing detail string.
type Detailed interface {
	UserDetail() string
}

// KindOf classifies err. Errors that do not carry a Kind fall back to
// context and net inspection.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var k Kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	if errors.Is(err, ErrDevicePermission) {
		return KindDevicePermission
	}
	if errors.Is(err, ErrTimedOut) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return KindTimeout
		}
		return KindTransport
	}
	return KindUnknown
}

// KindForStatus maps a non-success HTTP status onto the taxonomy.
func KindForStatus(code int) Kind {
	switch {
	case code == 401:
		return KindUnauthorized
	case code >= 500:
		return KindServer
	case code >= 400:
		return KindValidation
	default:
		return KindUnknown
	}
}

// IsRetryableHTTPStatus classifies retryable HTTP status codes.
func IsRetryableHTTPStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Retryable reports whether the user should be offered a retry affordance.
// Authorization failures tear the session down instead.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindTimeout, KindTransport, KindServer:
		return true
	default:
		return false
	}
}

// Message returns the human-readable text for err, falling back when nothing
// better is known.
func Message(err error, fallback string) string {
	if err == nil {
		return ""
	}
	if fallback == "" {
		fallback = "Something went wrong."
	}
	var d Detailed
	if errors.As(err, &d) {
		if s := strings.TrimSpace(d.UserDetail()); s != "" {
			return s
		}
		return fallback
	}
	if KindOf(err) == KindTimeout {
		return ErrTimedOut.Error()
	}
	if s := strings.TrimSpace(err.Error()); s != "" {
		return s
	}
	return fallback
}

// ExponentialBackoff computes a deterministic capped backoff duration.
func ExponentialBackoff(attempt int, base, cap time.Duration) time.Duration {
	if attempt <= 0 {
		return base
	}
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}
	return d
}
