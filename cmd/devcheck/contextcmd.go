package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"devcheck/cmd/devcheck/ui"
	"devcheck/config"
)

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage engine contexts",
	}
	cmd.AddCommand(contextListCmd())
	cmd.AddCommand(contextAddCmd())
	cmd.AddCommand(contextUseCmd())
	cmd.AddCommand(contextRemoveCmd())
	return cmd
}

func contextListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available contexts",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			if len(cfg.Contexts) == 0 {
				fmt.Println(ui.InfoMsg("No contexts configured."))
				return nil
			}

			names := make([]string, 0, len(cfg.Contexts))
			for name := range cfg.Contexts {
				names = append(names, name)
			}
			sort.Strings(names)

			var rows [][]string
			for _, name := range names {
				c := cfg.Contexts[name]

				current := ""
				if name == cfg.CurrentContext {
					current = "*"
				}

				target := c.Target()
				if target == "" {
					target = "(environment default)"
				}
				rows = append(rows, []string{current, name, target})
			}

			fmt.Println(ui.Table([]string{"", "NAME", "TARGET"}, rows))
			return nil
		},
	}
}

func contextAddCmd() *cobra.Command {
	var (
		host    string
		socket  string
		runTO   string
		readyTO string
	)

	cmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add or update a context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			name := args[0]

			if host == "" && socket == "" {
				return fmt.Errorf("at least one of --host or --socket is required")
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := config.Context{
				Host:         host,
				Socket:       socket,
				RunTimeout:   runTO,
				ReadyTimeout: readyTO,
			}
			if _, _, err := ctx.Durations(); err != nil {
				return err
			}
			cfg.Set(name, ctx)

			if err := cfg.Save(); err != nil {
				return err
			}

			fmt.Println(ui.SuccessMsg("Context %s saved.", ui.Bold(name)))
			return nil
		},
	}

	cmd.Flags().StringVar(&host, "host", "", "Engine endpoint (tcp://host:port)")
	cmd.Flags().StringVar(&socket, "socket", "", "Unix socket path")
	cmd.Flags().StringVar(&runTO, "timeout", "", "Default overall run timeout (e.g. 5m)")
	cmd.Flags().StringVar(&readyTO, "ready-timeout", "", "Default readiness timeout (e.g. 2m)")
	return cmd
}

func contextUseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "use <name>",
		Short: "Select the current context",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Use(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Switched to context %s.", ui.Bold(args[0])))
			return nil
		},
	}
}

func contextRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "remove <name>",
		Short:   "Remove a context",
		Aliases: []string{"rm"},
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Remove(args[0]); err != nil {
				return err
			}
			if err := cfg.Save(); err != nil {
				return err
			}
			fmt.Println(ui.SuccessMsg("Context %s removed.", ui.Bold(args[0])))
			return nil
		},
	}
}
