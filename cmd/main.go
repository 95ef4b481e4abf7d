package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/soden46/hyperlux-balance/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.RunCLI(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
