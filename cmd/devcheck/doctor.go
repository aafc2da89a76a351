package main

import (
	"fmt"
	"os"
	"time"

	"github.com/beevik/ntp"
	"github.com/spf13/cobra"

	"devcheck/cmd/devcheck/ui"
	"devcheck/config"
	"devcheck/internal/history"
)

const (
	ntpPool            = "pool.ntp.org"
	clockSkewThreshold = 500 * time.Millisecond
)

func doctorCmd(conn *connection) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the host setup for container validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			engineOK := false
			var engineErr error
			if eng, api, _, err := conn.engine(); err != nil {
				engineErr = err
			} else {
				engineErr = eng.Ping(cmd.Context())
				engineOK = engineErr == nil
				_ = api.Close()
			}

			clockOK, clockDetail := checkClock()

			historyOK := true
			var historyErr error
			if store, err := history.Open(historyPath()); err != nil {
				historyOK = false
				historyErr = err
			} else {
				_ = store.Close()
			}

			_, configErr := os.Stat(config.Path())

			fmt.Println(ui.InfoMsg("devcheck host diagnostic"))
			fmt.Print(ui.KeyValues("  ",
				ui.KV("engine", ui.Bool(engineOK)),
				ui.KV("clock sync", ui.Bool(clockOK)),
				ui.KV("history db", ui.Bool(historyOK)),
				ui.KV("config file", ui.Bool(configErr == nil)),
			))

			type issue struct {
				component string
				problem   string
				fix       string
			}
			issues := make([]issue, 0, 4)

			if !engineOK {
				issues = append(issues, issue{
					component: "engine",
					problem:   fmt.Sprintf("container engine is unreachable: %v", engineErr),
					fix:       "start the docker daemon, or point --host / DOCKER_HOST at a running one",
				})
			}
			if !clockOK {
				issues = append(issues, issue{
					component: "clock",
					problem:   clockDetail,
					fix:       "ensure NTP is configured (ntpd, chrony, or systemd-timesyncd)",
				})
			}
			if !historyOK {
				issues = append(issues, issue{
					component: "history",
					problem:   fmt.Sprintf("history database cannot be opened: %v", historyErr),
					fix:       "check permissions on " + historyPath(),
				})
			}

			if len(issues) == 0 {
				fmt.Println(ui.SuccessMsg("no issues detected"))
				return nil
			}

			fmt.Println(ui.WarnMsg("detected issues:"))
			for i, issue := range issues {
				fmt.Printf("  %d) %s: %s\n", i+1, issue.component, issue.problem)
				fmt.Println(ui.Muted("     fix: " + issue.fix))
			}
			return nil
		},
	}
}

// checkClock compares the host clock against NTP. A skewed clock breaks
// uptime dwell measurement and report timestamps.
func checkClock() (bool, string) {
	resp, err := ntp.Query(ntpPool)
	if err != nil {
		return false, fmt.Sprintf("NTP check failed: %v", err)
	}
	if resp.ClockOffset.Abs() >= clockSkewThreshold {
		return false, fmt.Sprintf("clock offset %s exceeds %s", resp.ClockOffset, clockSkewThreshold)
	}
	return true, ""
}
