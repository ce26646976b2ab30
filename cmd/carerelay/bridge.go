package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"carerelay/internal/relay"
	"carerelay/internal/store"

	"github.com/spf13/cobra"
)

func bridgeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "bridge",
		Short: "Host the shared store and the WebSocket bridge",
		Long:  "Starts the broker that owns the shared state store. The doctor and\npatient commands attach to it over WebSocket. Press Ctrl+C to stop.",
		RunE:  runBridge,
	}
}

func runBridge(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewSQLite(cfg.Store.DBPath, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	broker := relay.NewBroker(st, logger)
	server := relay.NewBridgeServer(broker, relay.BridgeConfig{
		Host:   cfg.Bridge.Host,
		Port:   cfg.Bridge.Port,
		Logger: logger,
	})

	logger.Info("bridge ready. Press Ctrl+C to stop.")
	return server.Start(ctx)
}
