package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"devcheck/cmd/devcheck/ui"
	"devcheck/internal/history"
)

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect past validation runs",
	}
	cmd.AddCommand(historyListCmd())
	cmd.AddCommand(historyShowCmd())
	cmd.AddCommand(historyPruneCmd())
	return cmd
}

func historyListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := history.Open(historyPath())
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println(ui.InfoMsg("No recorded runs."))
				return nil
			}

			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					shortRunID(run.RunID),
					run.Image,
					ui.RunBadge(run.Status),
					fmt.Sprintf("%d", len(run.Warnings())),
					run.StartedAt.Local().Format(time.DateTime),
				})
			}
			fmt.Println(ui.Table([]string{"RUN", "IMAGE", "STATUS", "WARNINGS", "STARTED"}, rows))
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum runs to list (0 for all)")
	return cmd
}

func historyShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := history.Open(historyPath())
			if err != nil {
				return err
			}
			defer store.Close()

			run, found, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if !found {
				// Accept the shortened id shown by list.
				runs, listErr := store.List(0)
				if listErr != nil {
					return listErr
				}
				for _, candidate := range runs {
					if shortRunID(candidate.RunID) == args[0] {
						run, found = candidate, true
						break
					}
				}
			}
			if !found {
				return fmt.Errorf("run %q not found", args[0])
			}

			printRun(run)
			return nil
		},
	}
}

func historyPruneCmd() *cobra.Command {
	var keep int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete old runs, keeping the newest",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := history.Open(historyPath())
			if err != nil {
				return err
			}
			defer store.Close()

			pruned, err := store.Prune(keep)
			if err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("pruned %d run(s), kept the newest %d", pruned, keep))
			return nil
		},
	}

	cmd.Flags().IntVar(&keep, "keep", 50, "Number of newest runs to keep")
	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
