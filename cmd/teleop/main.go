// Command teleop runs the remote server of spec §5: it accepts client
// websocket connections, negotiates a session per connection, and routes
// commands to whatever hardware the configured comm managers discover.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/xmidt-org/teleop/internal/xlog"
	"github.com/xmidt-org/teleop/server"
)

func teleop(arguments []string) int {
	cfg, err := server.LoadConfig(arguments)
	if err != nil {
		fmt.Fprintf(os.Stderr, "unable to load configuration: %s\n", err)
		return 1
	}

	logger := xlog.New()
	xlog.Info(logger).Log(xlog.MessageKey(), "starting", "listenAddress", cfg.ListenAddress)

	srv, err := server.New(cfg, logger)
	if err != nil {
		xlog.Error(logger).Log(xlog.MessageKey(), "unable to build server", xlog.ErrorKey(), err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		xlog.Error(logger).Log(xlog.MessageKey(), "server exited with error", xlog.ErrorKey(), err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(teleop(os.Args[1:]))
}
