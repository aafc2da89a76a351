package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"devcheck/cmd/devcheck/ui"
	"devcheck/internal/logging"
)

func main() {
	var (
		debug       bool
		plain       bool
		host        string
		contextName string
	)
	if err := logging.Configure(logging.LevelWarn); err != nil {
		_, _ = os.Stderr.WriteString("configure logger: " + err.Error() + "\n")
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:           "devcheck",
		Short:         "Validate containerized development environments",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := logging.LevelWarn
			if debug {
				level = logging.LevelDebug
			}
			if err := logging.Configure(level); err != nil {
				return err
			}
			ui.ConfigureInteraction(plain)
			return nil
		},
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&plain, "plain", false, "Disable colors and terminal redraw")

	// Connection flags — available to all subcommands.
	root.PersistentFlags().StringVar(&host, "host", "", "Engine endpoint (unix:///path or tcp://host:port)")
	root.PersistentFlags().StringVar(&contextName, "context", "", "Context name to use")

	conn := &connection{host: &host, context: &contextName}

	root.AddCommand(validateCmd(conn))
	root.AddCommand(monitorCmd(conn))
	root.AddCommand(doctorCmd(conn))
	root.AddCommand(historyCmd())
	root.AddCommand(contextCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
