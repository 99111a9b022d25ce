package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2thetop/scalar/config"
	"github.com/2thetop/scalar/ipc"
	"github.com/2thetop/scalar/maintenance"
)

type clientFlags struct {
	socketPath string
	timeout    time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.socketPath, "socket", "", "request socket path (default from configuration)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 30*time.Second, "request timeout")
}

func (f *clientFlags) client() (*ipc.Client, error) {
	path := f.socketPath
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("loading configuration: %w", err)
		}
		path = cfg.IPCSocketPath()
	}
	c := ipc.NewClient(path)
	c.SetTimeout(f.timeout)
	return c, nil
}

func newRunCommand() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:       "run <task>",
		Short:     "Queue a one-time maintenance step on the running service",
		Args:      cobra.ExactArgs(1),
		ValidArgs: taskNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			requestID, err := client.RunMaintenance(commandContext(cmd), args[0])
			if err != nil {
				return fmt.Errorf("run %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "queued %s (request %s)\n", args[0], requestID)
			return nil
		},
	}
	flags.register(cmd)
	return cmd
}

func newStatusCommand() *cobra.Command {
	var flags clientFlags
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Print the running service's queue and timers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := flags.client()
			if err != nil {
				return err
			}
			status, err := client.GetStatus(commandContext(cmd))
			if err != nil {
				return fmt.Errorf("status: %w", err)
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	flags.register(cmd)
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func taskNames() []string {
	kinds := maintenance.Kinds()
	names := make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
	}
	return names
}
