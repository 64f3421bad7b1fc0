// Command riskctl runs the offline half of blockrisk: dataset generation, training,
// and artifact inspection and scoring.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp(os.Stdout).command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "riskctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
