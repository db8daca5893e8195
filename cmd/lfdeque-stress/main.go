// Command lfdeque-stress runs the owner/stealer drain workload against LFQueue.
//
// Usage:
//
//	go run ./cmd/lfdeque-stress --rounds 100000 --stealers 7
//	LFDEQUE_FIXED=true LFDEQUE_CAPACITY=64 go run ./cmd/lfdeque-stress
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/aradilov/lfdeque/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cli.Execute(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
