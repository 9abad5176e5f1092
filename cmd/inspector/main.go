package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"log-inspection/internal/app"
)

func main() {
	application, err := app.New()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		application.Logger().Error("exited with error", "error", err)
		stop()
		os.Exit(1)
	}
}
