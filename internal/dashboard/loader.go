package dashboard

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/reliability"
)

// Secondary is a call that runs only after the primary rendered. Fetch
// returns an apply func that writes its result into the view; applies and
// renders never overlap, and a failure never discards what others applied.
type Secondary struct {
	Name  string
	Label string
	Fetch func(ctx context.Context) (apply func(), err error)
}

// Plan describes one screen load.
type Plan[T any] struct {
	Screen      string
	Timeout     time.Duration
	Primary     func(ctx context.Context) (T, error)
	OnPrimary   func(T)
	Secondaries func(T) []Secondary
	// Render is called once the primary settles and again after each
	// secondary settles. The last call carries the final report.
	Render func(Report[T])
}

// Report is the state of a screen load at one render.
type Report[T any] struct {
	Primary Result[T]
	// Banner is the first secondary failure, "Label: message", or empty.
	Banner string
	// Failed names every secondary that failed, in completion order.
	Failed []string
	// Pending names the secondaries still loading.
	Pending []string
}

// Loader runs plans and records their outcomes.
type Loader struct {
	metrics *observability.Metrics
	logger  *slog.Logger
}

func NewLoader(metrics *observability.Metrics, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{metrics: metrics, logger: logger}
}

// Load runs the primary under the plan's deadline and renders it before any
// secondary starts. Secondaries then run concurrently; each applies and
// renders as it settles, and only the first failure becomes the banner.
func Load[T any](ctx context.Context, l *Loader, plan Plan[T]) Report[T] {
	if l == nil {
		l = NewLoader(nil, nil)
	}
	render := plan.Render
	if render == nil {
		render = func(Report[T]) {}
	}
	started := time.Now()
	res := Await(ctx, plan.Timeout, plan.Primary)
	l.metrics.ObserveStage("dashboard_primary", time.Since(started))
	l.metrics.ObserveDashboard(plan.Screen, "primary", string(res.Outcome))

	report := Report[T]{Primary: res}
	if !res.OK() {
		l.logger.Warn("dashboard primary did not complete",
			"screen", plan.Screen,
			"outcome", res.Outcome,
			"error", res.Err,
		)
		render(report)
		return report
	}
	if plan.OnPrimary != nil {
		plan.OnPrimary(res.Value)
	}
	var secondaries []Secondary
	if plan.Secondaries != nil {
		secondaries = plan.Secondaries(res.Value)
	}
	for _, sec := range secondaries {
		report.Pending = append(report.Pending, sec.Name)
	}
	render(report.clone())
	if len(secondaries) == 0 {
		return report
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for _, sec := range secondaries {
		g.Go(func() error {
			apply, err := sec.Fetch(ctx)
			outcome := "ok"
			if err != nil {
				outcome = "failed"
				l.logger.Warn("dashboard secondary failed",
					"screen", plan.Screen,
					"call", sec.Name,
					"error", err,
				)
			}
			l.metrics.ObserveDashboard(plan.Screen, sec.Name, outcome)

			mu.Lock()
			defer mu.Unlock()
			report.Pending = slices.DeleteFunc(report.Pending, func(n string) bool { return n == sec.Name })
			if err == nil {
				if apply != nil {
					apply()
				}
			} else {
				if report.Banner == "" {
					report.Banner = sec.Label + ": " + reliability.Message(err, "Failed to load")
				}
				report.Failed = append(report.Failed, sec.Name)
			}
			render(report.clone())
			return nil
		})
	}
	_ = g.Wait()
	return report
}

func (r Report[T]) clone() Report[T] {
	r.Failed = slices.Clone(r.Failed)
	r.Pending = slices.Clone(r.Pending)
	return r
}
