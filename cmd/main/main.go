package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/BartekS5/taprun/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := cli.NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		cli.ReportError(err)
		stop()
		os.Exit(1)
	}
}
