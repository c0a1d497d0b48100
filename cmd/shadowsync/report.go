package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/nerrad567/shadowsync/internal/device"
	"github.com/nerrad567/shadowsync/internal/hal"
	"github.com/nerrad567/shadowsync/internal/infrastructure/config"
	"github.com/nerrad567/shadowsync/internal/infrastructure/logging"
	"github.com/nerrad567/shadowsync/internal/shadow"
)

func newReportCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print one report document built from the local hardware",
		Long: `Report reads every sensor once and prints the shadow update document
the agent would publish, without connecting to the broker.

Example:
  shadowsync report
  shadowsync report --config configs/config.example.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return printReport(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
}

// offlineSubscriber accepts delta subscriptions without a session.
type offlineSubscriber struct{}

func (offlineSubscriber) SubscribeDelta(string) error { return nil }

// printReport refreshes every sensor once and writes the report document.
func printReport(ctx context.Context, w io.Writer, cfg *config.Config) error {
	board, err := hal.Open(cfg.Hardware)
	if err != nil {
		return fmt.Errorf("opening hardware: %w", err)
	}
	defer board.Close() //nolint:errcheck // Read-only use

	log := logging.Discard()
	ctrl := device.NewController(&device.State{}, board, cfg.Hardware)
	ctrl.SetLogger(log)

	for _, refresh := range []func() error{ctrl.RefreshLight, ctrl.RefreshTemperature, ctrl.RefreshMotion} {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := refresh(); err != nil {
			return err
		}
	}

	reg := shadow.NewRegistry(cfg.Shadow.Capacity, offlineSubscriber{})
	if err := ctrl.Register(reg); err != nil {
		return err
	}

	doc, err := shadow.BuildReport(make([]byte, 0, cfg.Shadow.ReportBufferSize), reg)
	if err != nil {
		return fmt.Errorf("building report: %w", err)
	}
	_, err = fmt.Fprintf(w, "%s\n", doc)
	return err
}
