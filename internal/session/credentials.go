package session

import (
	"strings"
	"sync"

	"github.com/aidcare/copilot/internal/policy"
)

// User is the authenticated clinician as returned by the backend.
type User struct {
	DoctorID     string `json:"doctor_id"`
	Email        string `json:"email,omitempty"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	Specialty    string `json:"specialty,omitempty"`
	WardID       string `json:"ward_id,omitempty"`
	WardName     string `json:"ward_name,omitempty"`
	HospitalID   string `json:"hospital_id,omitempty"`
	HospitalName string `json:"hospital_name,omitempty"`
}

// IsAdmin reports whether role may see hospital-wide dashboards.
func IsAdmin(role string) bool {
	return policy.IsAdmin(role)
}

// Credentials holds the bearer token and the signed-in user. The request
// gateway reads the token on every call and clears the holder on a 401.
type Credentials struct {
	mu      sync.RWMutex
	token   string
	user    *User
	onClear []func()
}

func NewCredentials(token string) *Credentials {
	return &Credentials{token: strings.TrimSpace(token)}
}

func (c *Credentials) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Set stores a fresh token, and the user when known.
func (c *Credentials) Set(token string, user *User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = strings.TrimSpace(token)
	if user != nil {
		u := *user
		c.user = &u
	}
}

func (c *Credentials) SetUser(user User) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.user = &user
}

func (c *Credentials) User() (User, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.user == nil {
		return User{}, false
	}
	return *c.user, true
}

func (c *Credentials) IsAdmin() bool {
	u, ok := c.User()
	return ok && IsAdmin(u.Role)
}

// OnClear registers a hook run after Clear.
func (c *Credentials) OnClear(fn func()) {
	if fn == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClear = append(c.onClear, fn)
}

// Clear drops the token and user, then runs the registered hooks.
func (c *Credentials) Clear() {
	c.mu.Lock()
	c.token = ""
	c.user = nil
	hooks := append([]func(){}, c.onClear...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn()
	}
}
