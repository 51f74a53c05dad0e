// Command rconfd is a secret-driven configuration materializer: it fetches
// secrets from pluggable backends, renders jsonnet templates against them,
// and keeps the rendered files fresh as leased secrets are renewed.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eburghar/rconfd/command/agent"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := agent.Run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "rconfd:", err)
		os.Exit(1)
	}
}
