package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configEnv names the environment variable holding the config file path.
const configEnv = "SHADOWSYNC_CONFIG"

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

// newRootCommand creates the shadowsync command tree. Without a subcommand
// it runs the agent.
func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "shadowsync",
		Short: "Device shadow synchronisation agent",
		Long: `shadowsync reports local sensor state to a cloud device shadow and
applies desired-state deltas to local actuators.

Configuration is read from --config (or $SHADOWSYNC_CONFIG). Without a file
the built-in defaults run a simulated board against a local broker.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts.ConfigPath)
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", os.Getenv(configEnv),
		fmt.Sprintf("path to config.yaml (default $%s, else built-in defaults)", configEnv))

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newReportCommand(opts))
	cmd.AddCommand(newJournalCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "shadowsync %s (commit %s, built %s)\n", version, commit, date)
			return err
		},
	}
}
