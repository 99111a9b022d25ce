// Package main is the entry point for the scalar maintenance service.
//
// The serve command runs the background maintenance scheduler for one
// enlistment and listens for on-demand requests on a Unix socket. The run
// and status commands talk to a running service over that socket.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "scalar-maintenance",
		Short:         "Background object maintenance for a scalar enlistment",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newRunCommand(),
		newStatusCommand(),
	)
	return root
}

// newLogger creates a JSON logger on stdout at the given level.
func newLogger(level slog.Level) *slog.Logger {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     level,
		AddSource: false,
	})
	return slog.New(handler)
}
