package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/tebeka/atexit"

	"dicom-deidentify/internal/cli"
)

func main() {
	// On a signal no new record is started. Records in flight still get an
	// audit entry, in a side file if the ledger lock is not taken in time.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	cli.Execute(ctx)
	stop()
	atexit.Exit(0)
}
