package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/app"
	"github.com/aidcare/copilot/internal/dashboard"
)

type dashboardOptions struct {
	refresh  bool
	watch    time.Duration
	ward     string
	hospital string
}

func dashboardCmd() *cobra.Command {
	var opts dashboardOptions
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Load a clinician dashboard and print it as JSON",
	}
	cmd.PersistentFlags().BoolVar(&opts.refresh, "refresh", false, "drop cached data before loading")
	cmd.PersistentFlags().DurationVar(&opts.watch, "watch", 0, "reload on this interval until interrupted (e.g. 12s)")

	admin := &cobra.Command{
		Use:   "admin",
		Short: "Ward and hospital overview (admins only)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, opts, func(ctx context.Context, s *dashboard.Screens, refresh bool, show func(any)) (dashboard.Status, error) {
				q := dashboard.AdminQuery{WardID: opts.ward, HospitalID: opts.hospital, Refresh: refresh}
				v, err := s.Admin(ctx, q, func(v dashboard.AdminView) { show(v) })
				return v.Status, err
			})
		},
	}
	admin.Flags().StringVar(&opts.ward, "ward", "", "ward id (default: signed-in user's ward)")
	admin.Flags().StringVar(&opts.hospital, "hospital", "", "hospital id for the allocation view")

	burnout := &cobra.Command{
		Use:   "burnout",
		Short: "Personal burnout score, plus team view for admins",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, opts, func(ctx context.Context, s *dashboard.Screens, refresh bool, show func(any)) (dashboard.Status, error) {
				v, err := s.Burnout(ctx, refresh, func(v dashboard.BurnoutView) { show(v) })
				return v.Status, err
			})
		},
	}

	home := &cobra.Command{
		Use:   "home",
		Short: "Patient count and active shift",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDashboard(cmd, opts, func(ctx context.Context, s *dashboard.Screens, _ bool, show func(any)) (dashboard.Status, error) {
				v, err := s.Home(ctx, func(v dashboard.HomeView) { show(v) })
				return v.Status, err
			})
		},
	}

	cmd.AddCommand(admin, burnout, home)
	return cmd
}

// screenLoader loads one screen, passing every render to show.
type screenLoader func(ctx context.Context, s *dashboard.Screens, refresh bool, show func(any)) (dashboard.Status, error)

var errScreenFailed = errors.New("screen did not load")

func runDashboard(cmd *cobra.Command, opts dashboardOptions, load screenLoader) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer built.Cleanup()
	if err := built.Authenticate(ctx); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if opts.watch <= 0 {
		_, err := renderScreen(ctx, out, built.Screens, load, opts.refresh)
		return err
	}

	// Only the first load honors --refresh; later ticks read through the cache.
	refresh := opts.refresh
	err = dashboard.Poll(ctx, opts.watch, 8*opts.watch, func(ctx context.Context) error {
		st, err := renderScreen(ctx, out, built.Screens, load, refresh)
		refresh = false
		if err != nil {
			logger.Warn("dashboard load failed", "error", err)
			return err
		}
		if st.Outcome != dashboard.OutcomeOK {
			return errScreenFailed
		}
		return nil
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// renderScreen prints each render as its own JSON document: the primary view
// first, then one update per secondary that settles.
func renderScreen(ctx context.Context, out io.Writer, screens *dashboard.Screens, load screenLoader, refresh bool) (dashboard.Status, error) {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	var writeErr error
	st, err := load(ctx, screens, refresh, func(view any) {
		if writeErr == nil {
			writeErr = enc.Encode(view)
		}
	})
	if err != nil {
		return st, err
	}
	if writeErr != nil {
		return st, fmt.Errorf("writing view: %w", writeErr)
	}
	return st, nil
}
