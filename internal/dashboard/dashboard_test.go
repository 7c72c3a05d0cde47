package dashboard

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/gateway"
	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/session"
)

type fakeSource struct {
	dashboardDelay  time.Duration
	dashboardErr    error
	allocationErr   error
	organogramDelay time.Duration
	organogramGate  chan struct{}
	organogramErr   error
	patientsErr     error
	shiftErr        error

	allocationCalls atomic.Int32
	organogramCalls atomic.Int32
	invalidations   atomic.Int32
	lastWard        atomic.Value
}

func (f *fakeSource) MyBurnout(context.Context) (backend.Burnout, error) {
	return backend.Burnout{DoctorID: "d1", CognitiveLoadScore: 72, Status: "red"}, nil
}

func (f *fakeSource) AdminDashboard(ctx context.Context, _ string) (backend.AdminDashboard, error) {
	if f.dashboardDelay > 0 {
		select {
		case <-time.After(f.dashboardDelay):
		case <-ctx.Done():
			return backend.AdminDashboard{}, ctx.Err()
		}
	}
	if f.dashboardErr != nil {
		return backend.AdminDashboard{}, f.dashboardErr
	}
	return backend.AdminDashboard{GeneratedAt: "2026-10-16T08:00:00Z", TeamStats: backend.TeamStats{TotalActive: 4}}, nil
}

func (f *fakeSource) AdminAllocation(context.Context, string) (backend.Allocation, error) {
	f.allocationCalls.Add(1)
	if f.allocationErr != nil {
		return backend.Allocation{}, f.allocationErr
	}
	return backend.Allocation{HospitalName: "Aminu Kano", OverburdenedCount: 2}, nil
}

func (f *fakeSource) AdminOrganogram(ctx context.Context) (backend.Organogram, error) {
	f.organogramCalls.Add(1)
	if f.organogramGate != nil {
		select {
		case <-f.organogramGate:
		case <-ctx.Done():
			return backend.Organogram{}, ctx.Err()
		}
	}
	if f.organogramDelay > 0 {
		time.Sleep(f.organogramDelay)
	}
	if f.organogramErr != nil {
		return backend.Organogram{}, f.organogramErr
	}
	return backend.Organogram{Scope: "hospital"}, nil
}

func (f *fakeSource) Patients(_ context.Context, ward string) (backend.PatientList, error) {
	f.lastWard.Store(ward)
	if f.patientsErr != nil {
		return backend.PatientList{}, f.patientsErr
	}
	return backend.PatientList{Total: 7}, nil
}

func (f *fakeSource) ActiveShift(context.Context) (backend.ActiveShift, error) {
	if f.shiftErr != nil {
		return backend.ActiveShift{}, f.shiftErr
	}
	return backend.ActiveShift{Shift: &backend.Shift{ShiftID: "s1"}}, nil
}

func (f *fakeSource) InvalidateAdmin(context.Context) error {
	f.invalidations.Add(1)
	return nil
}

func (f *fakeSource) InvalidateBurnout(context.Context) error {
	f.invalidations.Add(1)
	return nil
}

func credsFor(u session.User) *session.Credentials {
	c := session.NewCredentials("tok")
	c.SetUser(u)
	return c
}

func adminCreds() *session.Credentials {
	return credsFor(session.User{DoctorID: "a1", Role: "hospital_admin", WardID: "w1"})
}

func newScreens(src Source, creds *session.Credentials, timeouts Timeouts) *Screens {
	return NewScreens(src, creds, NewLoader(nil, nil), timeouts, nil)
}

func TestAwaitTimesOut(t *testing.T) {
	res := Await(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return 42, nil
	})
	if res.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out, got %s", res.Outcome)
	}
	if res.Value != 0 {
		t.Fatalf("late value must be discarded, got %d", res.Value)
	}
}

func TestAwaitReportsCancellationAndFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := Await(ctx, time.Second, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	if res.Outcome != OutcomeCancelled {
		t.Fatalf("expected cancelled, got %s", res.Outcome)
	}

	boom := errors.New("boom")
	res = Await(context.Background(), time.Second, func(context.Context) (string, error) {
		return "", boom
	})
	if res.Outcome != OutcomeFailed || !errors.Is(res.Err, boom) {
		t.Fatalf("expected failed with boom, got %+v", res)
	}
}

func TestAdminPrimaryTimeoutSkipsSecondaries(t *testing.T) {
	src := &fakeSource{dashboardDelay: time.Second}
	s := newScreens(src, adminCreds(), Timeouts{Admin: 30 * time.Millisecond})

	view, err := s.Admin(context.Background(), AdminQuery{}, nil)
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if view.Outcome != OutcomeTimedOut || view.Error != "Request timed out" {
		t.Fatalf("unexpected status: %+v", view.Status)
	}
	if view.Dashboard != nil {
		t.Fatalf("timed-out dashboard must not render")
	}
	if src.allocationCalls.Load() != 0 || src.organogramCalls.Load() != 0 {
		t.Fatalf("secondaries must not start before the primary renders")
	}
}

func TestAdminSecondaryFailureKeepsOtherResult(t *testing.T) {
	src := &fakeSource{
		allocationErr: &gateway.Error{Status: 500, Detail: "Allocation engine offline"},
		organogramErr: errors.New("organogram down"),
		// Allocation fails first; its message wins the banner.
		organogramDelay: 50 * time.Millisecond,
	}
	s := newScreens(src, adminCreds(), Timeouts{})

	view, err := s.Admin(context.Background(), AdminQuery{}, nil)
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if view.Outcome != OutcomeOK || view.Dashboard == nil {
		t.Fatalf("primary should render: %+v", view)
	}
	if view.Banner != "Allocation: Allocation engine offline" {
		t.Fatalf("unexpected banner %q", view.Banner)
	}
	if view.Allocation != nil || view.Organogram != nil {
		t.Fatalf("failed secondaries must stay empty")
	}
}

func TestAdminRendersPrimaryBeforeSecondaries(t *testing.T) {
	// The organogram only answers once the dashboard has been rendered.
	src := &fakeSource{organogramGate: make(chan struct{})}
	s := newScreens(src, adminCreds(), Timeouts{})

	var renders []AdminView
	view, err := s.Admin(context.Background(), AdminQuery{}, func(v AdminView) {
		if len(renders) == 0 {
			close(src.organogramGate)
		}
		renders = append(renders, v)
	})
	if err != nil {
		t.Fatalf("admin: %v", err)
	}
	if len(renders) != 3 {
		t.Fatalf("renders = %d, want primary plus one per secondary", len(renders))
	}
	first := renders[0]
	if first.Dashboard == nil || first.Allocation != nil || first.Organogram != nil {
		t.Fatalf("first render should carry only the dashboard: %+v", first)
	}
	if strings.Join(first.Pending, ",") != "allocation,organogram" {
		t.Fatalf("first render pending = %v", first.Pending)
	}
	last := renders[len(renders)-1]
	if last.Organogram == nil || last.Allocation == nil || len(last.Pending) != 0 {
		t.Fatalf("last render = %+v", last)
	}
	if view.Organogram == nil || len(view.Pending) != 0 {
		t.Fatalf("returned view = %+v", view)
	}
}

func TestPrimaryFailureRendersOnce(t *testing.T) {
	src := &fakeSource{patientsErr: errors.New("down")}
	var renders []HomeView
	_, _ = newScreens(src, adminCreds(), Timeouts{}).Home(context.Background(), func(v HomeView) {
		renders = append(renders, v)
	})
	if len(renders) != 1 || renders[0].Outcome != OutcomeFailed {
		t.Fatalf("renders = %+v", renders)
	}
}

func TestAdminPartialSuccessApplies(t *testing.T) {
	src := &fakeSource{organogramErr: errors.New("organogram down")}
	s := newScreens(src, adminCreds(), Timeouts{})

	view, _ := s.Admin(context.Background(), AdminQuery{}, nil)
	if view.Allocation == nil || view.Allocation.OverburdenedCount != 2 {
		t.Fatalf("allocation should apply despite organogram failure: %+v", view.Allocation)
	}
	if view.Banner != "Organogram: organogram down" {
		t.Fatalf("unexpected banner %q", view.Banner)
	}
}

func TestAdminForbiddenForClinicians(t *testing.T) {
	creds := credsFor(session.User{DoctorID: "d1", Role: "doctor"})
	src := &fakeSource{}
	s := newScreens(src, creds, Timeouts{})
	if _, err := s.Admin(context.Background(), AdminQuery{Refresh: true}, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("expected ErrForbidden, got %v", err)
	}
	if src.invalidations.Load() != 0 {
		t.Fatalf("forbidden load must not touch the cache")
	}
}

func TestAdminRefreshInvalidates(t *testing.T) {
	src := &fakeSource{}
	s := newScreens(src, adminCreds(), Timeouts{})
	if _, err := s.Admin(context.Background(), AdminQuery{Refresh: true}, nil); err != nil {
		t.Fatalf("admin: %v", err)
	}
	if src.invalidations.Load() != 1 {
		t.Fatalf("expected one invalidation, got %d", src.invalidations.Load())
	}
}

func TestBurnoutSecondariesOnlyForAdmins(t *testing.T) {
	src := &fakeSource{}
	clinician := credsFor(session.User{DoctorID: "d1", Role: "doctor"})
	view, err := newScreens(src, clinician, Timeouts{}).Burnout(context.Background(), false, nil)
	if err != nil {
		t.Fatalf("burnout: %v", err)
	}
	if view.Burnout == nil || view.Team != nil || src.organogramCalls.Load() != 0 {
		t.Fatalf("clinician view should carry only their own burnout: %+v", view)
	}

	view, _ = newScreens(src, adminCreds(), Timeouts{}).Burnout(context.Background(), true, nil)
	if view.Team == nil || view.Organogram == nil {
		t.Fatalf("admin view should carry team and organogram: %+v", view)
	}
	if src.invalidations.Load() != 1 {
		t.Fatalf("refresh should invalidate burnout")
	}
}

func TestHomeUsesWardAndToleratesShiftFailure(t *testing.T) {
	src := &fakeSource{shiftErr: errors.New("unreachable")}
	view, err := newScreens(src, adminCreds(), Timeouts{}).Home(context.Background(), nil)
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if got, _ := src.lastWard.Load().(string); got != "w1" {
		t.Fatalf("patients should be scoped to the user's ward, got %q", got)
	}
	if view.PatientCount != 7 || view.ShiftActive {
		t.Fatalf("unexpected home view: %+v", view)
	}
	if view.Banner != "Shift: unreachable" {
		t.Fatalf("unexpected banner %q", view.Banner)
	}
}

func TestHomePatientsFailureReadsAsZero(t *testing.T) {
	src := &fakeSource{patientsErr: &gateway.Error{Status: 503}}
	view, _ := newScreens(src, adminCreds(), Timeouts{}).Home(context.Background(), nil)
	if view.Outcome != OutcomeFailed || view.PatientCount != 0 {
		t.Fatalf("unexpected home view: %+v", view)
	}
	if view.Error == "" {
		t.Fatalf("expected an error message")
	}
}

func TestLoadRecordsMetrics(t *testing.T) {
	m := observability.NewMetrics("dashboard_test_load")
	l := NewLoader(m, nil)
	rep := Load(context.Background(), l, Plan[int]{
		Screen:  "test",
		Timeout: time.Second,
		Primary: func(context.Context) (int, error) { return 1, nil },
		Secondaries: func(int) []Secondary {
			return []Secondary{{Name: "x", Label: "X", Fetch: func(context.Context) (func(), error) { return nil, nil }}}
		},
	})
	if !rep.Primary.OK() || rep.Banner != "" {
		t.Fatalf("unexpected report: %+v", rep)
	}
	snap := m.SnapshotStages()
	found := false
	for _, st := range snap.Stages {
		if st.Stage == "dashboard_primary" {
			found = true
		}
	}
	if !found {
		t.Fatalf("dashboard_primary stage not recorded")
	}
}

func TestPollBacksOffOnFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	var calls atomic.Int32
	err := Poll(ctx, 10*time.Millisecond, 80*time.Millisecond, func(context.Context) error {
		calls.Add(1)
		return errors.New("down")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline, got %v", err)
	}
	// 0, +20, +40, +80 ms: at most four calls fit.
	if n := calls.Load(); n < 2 || n > 4 {
		t.Fatalf("unexpected call count %d", n)
	}
}
