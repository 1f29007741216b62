package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukydev/fleet-safety/internal/lifecycle"
)

type scopeFlags struct {
	actor  string
	branch string
}

func (f *scopeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.actor, "actor", "cli", "Acting user id")
	cmd.Flags().StringVar(&f.branch, "branch", "", "Branch to report on (empty for all branches)")
}

func (f *scopeFlags) scope() lifecycle.Scope {
	return lifecycle.Scope{ActorID: f.actor, BranchID: f.branch}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dueCmd(flags *globalFlags) *cobra.Command {
	var (
		sf scopeFlags
		q  lifecycle.DueQuery
	)
	cmd := &cobra.Command{
		Use:   "due",
		Short: "Report overdue and due-soon maintenance, inspections and documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			log := logrus.NewEntry(logger)
			store, closeStore, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			svc, err := newService(store, cfg, log)
			if err != nil {
				return err
			}
			report, err := svc.DueAndOverdue(cmd.Context(), sf.scope(), q)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), report)
		},
	}
	sf.register(cmd)
	cmd.Flags().DurationVar(&q.ScheduleHorizon, "schedule-horizon", 0, "Due-soon window for time-based schedules (default from config)")
	cmd.Flags().DurationVar(&q.InspectionHorizon, "inspection-horizon", 0, "Due-soon window for vehicle inspections (default from config)")
	cmd.Flags().DurationVar(&q.ExpiryHorizon, "expiry-horizon", 0, "Window for insurance and registration expiries (default from config)")
	return cmd
}

// parseDay parses a YYYY-MM-DD flag. endOfDay moves it to the last instant
// of that day so the bound includes the whole day.
func parseDay(name, value string, endOfDay bool) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return nil, fmt.Errorf("--%s: expected YYYY-MM-DD: %w", name, err)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func tcoCmd(flags *globalFlags) *cobra.Command {
	var (
		sf       scopeFlags
		from, to string
	)
	cmd := &cobra.Command{
		Use:   "tco VEHICLE_ID",
		Short: "Total cost of ownership of a vehicle over a service-date range",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			fromT, err := parseDay("from", from, false)
			if err != nil {
				return err
			}
			toT, err := parseDay("to", to, true)
			if err != nil {
				return err
			}

			cfg, logger, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			log := logrus.NewEntry(logger)
			store, closeStore, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer closeStore()

			svc, err := newService(store, cfg, log)
			if err != nil {
				return err
			}
			summary, err := svc.TotalCostOfOwnership(cmd.Context(), sf.scope(), args[0], fromT, toT)
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), summary)
		},
	}
	sf.register(cmd)
	cmd.Flags().StringVar(&from, "from", "", "First service date, YYYY-MM-DD")
	cmd.Flags().StringVar(&to, "to", "", "Last service date, YYYY-MM-DD")
	return cmd
}
