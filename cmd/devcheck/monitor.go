package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devcheck"
	"devcheck/cmd/devcheck/ui"
	"devcheck/internal/monitor"
	"devcheck/internal/track"
)

func monitorCmd(conn *connection) *cobra.Command {
	var (
		interval time.Duration
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "monitor <container-id>...",
		Short: "Watch resource usage of running containers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, api, connCtx, err := conn.engine()
			if err != nil {
				return err
			}
			defer api.Close()

			thresholds := track.DefaultThresholds()
			if connCtx.Limits.MemoryPercent > 0 {
				thresholds.Memory = connCtx.Limits.MemoryPercent
			}
			if connCtx.Limits.CPUPercent > 0 {
				thresholds.CPU = connCtx.Limits.CPUPercent
			}
			if connCtx.Limits.DiskPercent > 0 {
				thresholds.Disk = connCtx.Limits.DiskPercent
			}

			m := monitor.New(cmd.Context(), eng,
				monitor.WithInterval(interval),
				monitor.WithThresholds(thresholds),
			)
			defer m.Close()

			for _, id := range args {
				m.Start(id)
			}
			fmt.Println(ui.InfoMsg("monitoring %d container(s) every %s for %s",
				len(args), interval, duration))

			select {
			case <-cmd.Context().Done():
			case <-time.After(duration):
			}

			for _, id := range args {
				report, err := m.Report(id)
				if err != nil {
					fmt.Println(ui.ErrorMsg("%s: %v", shortID(id), err))
					continue
				}
				printReport(m, id, report)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "Sampling interval")
	cmd.Flags().DurationVar(&duration, "duration", time.Minute, "How long to watch before reporting")
	return cmd
}

func printReport(m *monitor.Monitor, id string, report monitor.Report) {
	fmt.Println()
	fmt.Println(ui.InfoMsg("container %s", ui.Accent(shortID(id))))
	fmt.Print(ui.KeyValues("  ",
		ui.KV("active", ui.Bool(report.Active)),
		ui.KV("samples", fmt.Sprintf("%d", report.Samples)),
		ui.KV("memory", statLine(report.MemoryPercent)),
		ui.KV("cpu", statLine(report.CPUPercent)),
	))

	if tracker, ok := m.Tracker(id); ok {
		printAlerts(tracker.Alerts())
	}
	for _, rec := range report.Recommendations {
		fmt.Println(ui.Muted("  hint: " + rec))
	}
}

func statLine(s monitor.Stats) string {
	return fmt.Sprintf("avg %.1f%%  min %.1f%%  max %.1f%%", s.Avg, s.Min, s.Max)
}

func printAlerts(alerts []devcheck.Alert) {
	if len(alerts) == 0 {
		fmt.Println(ui.SuccessMsg("no alerts"))
		return
	}

	rows := make([][]string, 0, len(alerts))
	for _, a := range alerts {
		rows = append(rows, []string{
			a.Time.Format(time.TimeOnly),
			a.Kind.String(),
			ui.SeverityBadge(a.Severity),
			fmt.Sprintf("%.1f%% (limit %.0f%%)", a.Value, a.Threshold),
		})
	}
	fmt.Println(ui.Table([]string{"TIME", "RESOURCE", "SEVERITY", "VALUE"}, rows))
}
