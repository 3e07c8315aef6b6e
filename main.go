// wsbridge - hides an SSH daemon behind an HTTP/WebSocket upgrade handshake.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"wsbridge/cmd"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "wsbridge: %v\n", err)
		os.Exit(1)
	}
}
