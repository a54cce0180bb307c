// Command spotify-wrapped builds year-in-review summaries from Spotify
// streaming history exports.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/justestif/go-spotify-wrapped/internal/cli"
)

func main() {
	os.Exit(run())
}

func run() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return cli.Execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
}
