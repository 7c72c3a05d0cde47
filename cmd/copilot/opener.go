package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/app"
	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/policy"
)

// withApp builds the client stack for a one-shot command and tears it down after.
func withApp(fn func(ctx context.Context, built *app.BuildResult) error) error {
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
	return fn(ctx, built)
}

func openerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "opener",
		Short: "OpenER emergency routing: hospital readiness and dispatch",
	}
	cmd.AddCommand(openerHospitalsCmd(), openerAssessCmd(), openerDispatchCmd(), openerUpdateCmd())
	return cmd
}

func openerHospitalsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hospitals",
		Short: "List hospital readiness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				list, err := built.Backend.Hospitals(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tBEDS\tQUEUE\tLOAD\tSPECIALISTS")
				for _, h := range list.Hospitals {
					fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
						h.HospitalID, h.Name, h.CriticalBeds, h.QueueLevel, h.StaffLoadStatus,
						strings.Join(h.SpecialistsOnSeat, ","))
				}
				return tw.Flush()
			})
		},
	}
}

func openerAssessCmd() *cobra.Command {
	var req backend.EmergencyRequest
	var symptoms []string
	cmd := &cobra.Command{
		Use:   "assess",
		Short: "Score an emergency and rank receiving hospitals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.IncidentType) == "" {
				return errors.New("--incident is required")
			}
			req.KeySymptoms = splitList(symptoms)
			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				res, err := built.Backend.AssessEmergency(ctx, req)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "emergency %s  severity=%s\n%s\n\n", res.EmergencyID, res.SeverityBand, res.EmergencySummary)
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "RANK\tHOSPITAL\tID\tKM\tETA\tSCORE\tSPECIALISTS")
				for i, c := range res.RecommendedHospitals {
					match := "missing"
					if c.SpecialistStatus.Match {
						match = "match"
					}
					fmt.Fprintf(tw, "%d\t%s\t%s\t%.1f\t%dm\t%.2f\t%s\n",
						i+1, c.HospitalName, c.HospitalID, c.DistanceKM, c.ETAMinutes, c.FinalScore, match)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&req.IncidentType, "incident", "", "incident type (e.g. trauma, obstetric, cardiac)")
	cmd.Flags().Float64Var(&req.Lat, "lat", 0, "incident latitude")
	cmd.Flags().Float64Var(&req.Lng, "lng", 0, "incident longitude")
	cmd.Flags().IntVar(&req.PatientAge, "age", 0, "patient age in years")
	cmd.Flags().StringVar(&req.Sex, "sex", "", "patient sex")
	cmd.Flags().StringSliceVar(&symptoms, "symptoms", nil, "comma-separated key symptoms")
	return cmd
}

func openerDispatchCmd() *cobra.Command {
	var req backend.DispatchRequest
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Alert a receiving hospital about an incoming emergency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.EmergencyID == "" || req.HospitalID == "" {
				return errors.New("--emergency and --hospital are required")
			}
			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				alert, err := built.Backend.DispatchAlert(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, alert)
			})
		},
	}
	cmd.Flags().StringVar(&req.EmergencyID, "emergency", "", "emergency id from opener assess")
	cmd.Flags().StringVar(&req.HospitalID, "hospital", "", "receiving hospital id")
	cmd.Flags().IntVar(&req.ETAMinutes, "eta", 0, "ETA in minutes")
	cmd.Flags().StringVar(&req.Summary, "summary", "", "handover summary for the receiving team")
	return cmd
}

func openerUpdateCmd() *cobra.Command {
	var upd backend.HospitalUpdate
	var specialists []string
	cmd := &cobra.Command{
		Use:   "update-hospital <hospital-id>",
		Short: "Publish a hospital's current readiness",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if upd.CriticalBeds < 0 || upd.QueueLevel < 0 {
				return errors.New("--beds and --queue must not be negative")
			}
			upd.SpecialistsOnSeat = splitList(specialists)
			return withApp(func(ctx context.Context, built *app.BuildResult) error {
				if err := built.Authenticate(ctx); err != nil {
					return err
				}
				if u, ok := built.Credentials.User(); ok && !policy.Allows(u.Role, policy.UpdateHospitalStatus) {
					return fmt.Errorf("role %q may not update hospital readiness", u.Role)
				}
				h, err := built.Backend.UpdateHospital(ctx, args[0], upd)
				if err != nil {
					return err
				}
				return printJSON(cmd, h)
			})
		},
	}
	cmd.Flags().IntVar(&upd.CriticalBeds, "beds", 0, "available critical beds")
	cmd.Flags().StringSliceVar(&specialists, "specialists", nil, "comma-separated specialists on seat")
	cmd.Flags().IntVar(&upd.QueueLevel, "queue", 0, "queue level")
	cmd.Flags().StringVar(&upd.Notes, "notes", "", "free-text notes")
	return cmd
}

func splitList(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
