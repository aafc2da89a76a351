package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devcheck"
	"devcheck/cmd/devcheck/ui"
	"devcheck/internal/history"
	"devcheck/internal/launch"
	"devcheck/internal/logging"
	"devcheck/internal/track"
	"devcheck/internal/validate"
)

func validateCmd(conn *connection) *cobra.Command {
	var (
		image    string
		noSave   bool
		runTO    time.Duration
		readyTO  time.Duration
		scratch  string
		netCheck string
	)

	cmd := &cobra.Command{
		Use:   "validate [spec.yaml]",
		Short: "Launch a container and validate it as a dev environment",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var spec devcheck.ContainerSpec
			switch {
			case len(args) == 1:
				loaded, err := loadSpec(args[0])
				if err != nil {
					return err
				}
				spec = loaded
				if image != "" {
					spec.Image = image
				}
			case image != "":
				spec = devcheck.ContainerSpec{Image: image}
			default:
				return fmt.Errorf("either a spec file or --image is required")
			}

			eng, api, connCtx, err := conn.engine()
			if err != nil {
				return err
			}
			defer api.Close()

			cfgRun, cfgReady, err := connCtx.Durations()
			if err != nil {
				return err
			}
			if runTO == 0 {
				runTO = cfgRun
			}
			if readyTO == 0 {
				readyTO = cfgReady
			}

			steps := ui.NewStepOutput()
			defer steps.Close()

			var opts []validate.ValidatorOption
			opts = append(opts, validate.WithTracer(steps.Tracer("devcheck")))
			if runTO > 0 {
				opts = append(opts, validate.WithRunTimeout(runTO))
			}
			if readyTO > 0 {
				opts = append(opts, validate.WithReadyTimeout(readyTO))
			}
			if scratch != "" || netCheck != "" {
				opts = append(opts, validate.WithProbeConfig(validate.ProbeConfig{
					ScratchDir:    scratch,
					NetworkTarget: netCheck,
				}))
			}
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
			opts = append(opts, validate.WithThresholds(thresholds))

			launcher := launch.New(eng)
			v := validate.New(launcher, eng, opts...)

			fmt.Println(ui.InfoMsg("validating %s", ui.Accent(spec.Image)))
			run := v.Validate(cmd.Context(), spec)
			steps.Close()

			if !noSave {
				if err := saveRun(run); err != nil {
					logging.Component("cli").Warn("save history failed", "err", err)
				}
			}

			printRun(run)
			if run.Status == devcheck.ValidationFailed {
				return fmt.Errorf("validation failed: %s", run.Error)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "Image to validate (overrides the spec file)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Do not record the run in history")
	cmd.Flags().DurationVar(&runTO, "timeout", 0, "Overall run timeout")
	cmd.Flags().DurationVar(&readyTO, "ready-timeout", 0, "Readiness timeout")
	cmd.Flags().StringVar(&scratch, "scratch-dir", "", "Directory for the filesystem write probe")
	cmd.Flags().StringVar(&netCheck, "network-target", "", "Host for the network reachability probe")
	return cmd
}

func saveRun(run devcheck.Validation) error {
	store, err := history.Open(historyPath())
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(run)
}

func printRun(run devcheck.Validation) {
	fmt.Println()
	fmt.Print(ui.KeyValues("  ",
		ui.KV("run", run.RunID),
		ui.KV("container", shortID(run.ContainerID)),
		ui.KV("status", ui.RunBadge(run.Status)),
		ui.KV("build", run.BuildTime.Round(time.Millisecond).String()),
		ui.KV("startup", run.StartupTime.Round(time.Millisecond).String()),
	))

	if len(run.Checks) > 0 {
		rows := make([][]string, 0, len(run.Checks))
		for _, c := range run.Checks {
			rows = append(rows, []string{
				c.Name,
				ui.CheckBadge(c.Status),
				c.Message,
				c.Duration.Round(time.Millisecond).String(),
			})
		}
		fmt.Println(ui.Table([]string{"CHECK", "STATUS", "DETAIL", "TOOK"}, rows))
	}

	if run.Resources.Memory.LimitMB > 0 || run.Resources.CPU.UsagePercent > 0 {
		fmt.Print(ui.KeyValues("  ",
			ui.KV("memory", fmt.Sprintf("%.0f / %.0f MB (%.1f%%)",
				run.Resources.Memory.UsedMB, run.Resources.Memory.LimitMB, run.Resources.Memory.Percent())),
			ui.KV("cpu", fmt.Sprintf("%.1f%%", run.Resources.CPU.UsagePercent)),
			ui.KV("disk", fmt.Sprintf("%.1f%%", run.Resources.Disk.Percent())),
		))
	}

	switch run.Status {
	case devcheck.ValidationFailed:
		fmt.Println(ui.ErrorMsg("%s", run.Error))
	default:
		if n := len(run.Warnings()); n > 0 {
			fmt.Println(ui.WarnMsg("usable with %d warning(s)", n))
		} else {
			fmt.Println(ui.SuccessMsg("environment is ready"))
		}
	}
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
