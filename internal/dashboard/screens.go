package dashboard

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/reliability"
	"github.com/aidcare/copilot/internal/session"
)

// ErrForbidden is returned when a non-admin opens an admin-only screen.
var ErrForbidden = errors.New("dashboard: admin role required")

const (
	ScreenAdmin   = "admin"
	ScreenBurnout = "burnout"
	ScreenHome    = "home"
)

// Source is the slice of the backend the screens read from.
type Source interface {
	MyBurnout(ctx context.Context) (backend.Burnout, error)
	AdminDashboard(ctx context.Context, wardID string) (backend.AdminDashboard, error)
	AdminAllocation(ctx context.Context, hospitalID string) (backend.Allocation, error)
	AdminOrganogram(ctx context.Context) (backend.Organogram, error)
	Patients(ctx context.Context, wardID string) (backend.PatientList, error)
	ActiveShift(ctx context.Context) (backend.ActiveShift, error)
	InvalidateAdmin(ctx context.Context) error
	InvalidateBurnout(ctx context.Context) error
}

type Timeouts struct {
	Admin   time.Duration
	Burnout time.Duration
	Home    time.Duration
}

func DefaultTimeouts() Timeouts {
	return Timeouts{Admin: 45 * time.Second, Burnout: 10 * time.Second, Home: 10 * time.Second}
}

// Status is shared by every screen view.
type Status struct {
	Outcome  Outcome   `json:"outcome"`
	Error    string    `json:"error,omitempty"`
	Banner   string    `json:"banner,omitempty"`
	Pending  []string  `json:"pending,omitempty"`
	LoadedAt time.Time `json:"loaded_at"`
}

type AdminView struct {
	Status
	Dashboard  *backend.AdminDashboard `json:"dashboard,omitempty"`
	Allocation *backend.Allocation     `json:"allocation,omitempty"`
	Organogram *backend.Organogram     `json:"organogram,omitempty"`
}

type BurnoutView struct {
	Status
	Burnout    *backend.Burnout        `json:"burnout,omitempty"`
	Team       *backend.AdminDashboard `json:"team,omitempty"`
	Organogram *backend.Organogram     `json:"organogram,omitempty"`
}

type HomeView struct {
	Status
	User         *session.User  `json:"user,omitempty"`
	PatientCount int            `json:"patient_count"`
	ShiftActive  bool           `json:"shift_active"`
	Shift        *backend.Shift `json:"shift,omitempty"`
}

// AdminQuery narrows the admin screen; empty fields mean the caller's scope.
type AdminQuery struct {
	WardID     string
	HospitalID string
	Refresh    bool
}

// Screens loads the clinician dashboards.
type Screens struct {
	source   Source
	creds    *session.Credentials
	loader   *Loader
	timeouts Timeouts
	logger   *slog.Logger
}

func NewScreens(source Source, creds *session.Credentials, loader *Loader, timeouts Timeouts, logger *slog.Logger) *Screens {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultTimeouts()
	if timeouts.Admin <= 0 {
		timeouts.Admin = def.Admin
	}
	if timeouts.Burnout <= 0 {
		timeouts.Burnout = def.Burnout
	}
	if timeouts.Home <= 0 {
		timeouts.Home = def.Home
	}
	return &Screens{source: source, creds: creds, loader: loader, timeouts: timeouts, logger: logger}
}

func (s *Screens) isAdmin() bool {
	return s.creds != nil && s.creds.IsAdmin()
}

func (s *Screens) user() (session.User, bool) {
	if s.creds == nil {
		return session.User{}, false
	}
	return s.creds.User()
}

// Admin loads the hospital-wide view. Allocation and organogram are fetched
// only after the dashboard rendered. render, if set, sees every intermediate
// view; the returned view is the last one rendered.
func (s *Screens) Admin(ctx context.Context, q AdminQuery, render func(AdminView)) (AdminView, error) {
	if !s.isAdmin() {
		return AdminView{}, ErrForbidden
	}
	if q.Refresh {
		if err := s.source.InvalidateAdmin(ctx); err != nil {
			s.logger.Warn("admin cache invalidation failed", "error", err)
		}
	}

	var view AdminView
	snapshot := func(r Report[backend.AdminDashboard]) AdminView {
		v := view
		v.Status = statusOf(r, "Failed to load dashboard")
		return v
	}
	report := Load(ctx, s.loader, Plan[backend.AdminDashboard]{
		Screen:  ScreenAdmin,
		Timeout: s.timeouts.Admin,
		Primary: func(ctx context.Context) (backend.AdminDashboard, error) {
			return s.source.AdminDashboard(ctx, q.WardID)
		},
		OnPrimary: func(d backend.AdminDashboard) { view.Dashboard = &d },
		Secondaries: func(backend.AdminDashboard) []Secondary {
			return []Secondary{
				{Name: "allocation", Label: "Allocation", Fetch: func(ctx context.Context) (func(), error) {
					a, err := s.source.AdminAllocation(ctx, q.HospitalID)
					return func() { view.Allocation = &a }, err
				}},
				{Name: "organogram", Label: "Organogram", Fetch: func(ctx context.Context) (func(), error) {
					o, err := s.source.AdminOrganogram(ctx)
					return func() { view.Organogram = &o }, err
				}},
			}
		},
		Render: renderWith(render, snapshot),
	})
	return snapshot(report), nil
}

// Burnout loads the caller's fatigue view. Admins also get the team
// dashboard and organogram.
func (s *Screens) Burnout(ctx context.Context, refresh bool, render func(BurnoutView)) (BurnoutView, error) {
	if refresh {
		if err := s.source.InvalidateBurnout(ctx); err != nil {
			s.logger.Warn("burnout cache invalidation failed", "error", err)
		}
	}
	admin := s.isAdmin()

	var view BurnoutView
	snapshot := func(r Report[backend.Burnout]) BurnoutView {
		v := view
		v.Status = statusOf(r, "Failed to load burnout data")
		return v
	}
	report := Load(ctx, s.loader, Plan[backend.Burnout]{
		Screen:    ScreenBurnout,
		Timeout:   s.timeouts.Burnout,
		Primary:   s.source.MyBurnout,
		OnPrimary: func(b backend.Burnout) { view.Burnout = &b },
		Secondaries: func(backend.Burnout) []Secondary {
			if !admin {
				return nil
			}
			return []Secondary{
				{Name: "team", Label: "Team", Fetch: func(ctx context.Context) (func(), error) {
					d, err := s.source.AdminDashboard(ctx, "")
					return func() { view.Team = &d }, err
				}},
				{Name: "organogram", Label: "Organogram", Fetch: func(ctx context.Context) (func(), error) {
					o, err := s.source.AdminOrganogram(ctx)
					return func() { view.Organogram = &o }, err
				}},
			}
		},
		Render: renderWith(render, snapshot),
	})
	return snapshot(report), nil
}

// Home loads the landing view: ward patient count and whether a shift is
// running. An unreachable shift endpoint reads as no active shift.
func (s *Screens) Home(ctx context.Context, render func(HomeView)) (HomeView, error) {
	var view HomeView
	var ward string
	if u, ok := s.user(); ok {
		view.User = &u
		ward = u.WardID
	}

	snapshot := func(r Report[backend.PatientList]) HomeView {
		v := view
		v.Status = statusOf(r, "Failed to load patients")
		return v
	}
	report := Load(ctx, s.loader, Plan[backend.PatientList]{
		Screen:  ScreenHome,
		Timeout: s.timeouts.Home,
		Primary: func(ctx context.Context) (backend.PatientList, error) {
			return s.source.Patients(ctx, ward)
		},
		OnPrimary: func(p backend.PatientList) { view.PatientCount = p.Total },
		Secondaries: func(backend.PatientList) []Secondary {
			return []Secondary{
				{Name: "active_shift", Label: "Shift", Fetch: func(ctx context.Context) (func(), error) {
					a, err := s.source.ActiveShift(ctx)
					return func() {
						if a.Shift != nil {
							view.ShiftActive = true
							view.Shift = a.Shift
						}
					}, err
				}},
			}
		},
		Render: renderWith(render, snapshot),
	})
	return snapshot(report), nil
}

func renderWith[T, V any](render func(V), snapshot func(Report[T]) V) func(Report[T]) {
	if render == nil {
		return nil
	}
	return func(r Report[T]) { render(snapshot(r)) }
}

func statusOf[T any](r Report[T], fallback string) Status {
	st := Status{Outcome: r.Primary.Outcome, Banner: r.Banner, Pending: r.Pending, LoadedAt: time.Now().UTC()}
	switch r.Primary.Outcome {
	case OutcomeOK:
	case OutcomeTimedOut:
		st.Error = "Request timed out"
	default:
		st.Error = reliability.Message(r.Primary.Err, fallback)
	}
	return st
}
