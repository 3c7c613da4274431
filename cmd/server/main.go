// The server command is the entrypoint for running the multiplayer server.
// It loads the configuration produced by the setup tool, initializes the
// shared resources, and serves until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/lienxo/tfsmp/internal/core"
	"github.com/lienxo/tfsmp/internal/server"
)

const version = "1.0"

var configFlag = pflag.String("config", "./", "Path to the directory containing the server config file")

func main() {
	pflag.Parse()

	fmt.Printf("TFS Multiplayer Server v%s\n\n", version)

	config, err := core.LoadConfig(*configFlag)
	if err != nil {
		fmt.Println("error loading config:", err)
		os.Exit(1)
	}

	logger, err := core.NewLogger(config)
	if err != nil {
		fmt.Println("error initializing logger:", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// Bind the server to one top-level context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(context.Background())

	// Ctrl-C shuts the server down gracefully; a second signal hard exits.
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signals
		logger.Info("shutdown initiated by user")
		cancel()
		<-signals
		logger.Warn("hard exiting (killed)")
		os.Exit(1)
	}()

	srv := server.New(config, logger)
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
}
