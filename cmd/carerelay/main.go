package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"carerelay/internal/config"
	"carerelay/internal/conversation"
	"carerelay/internal/domain"
	"carerelay/internal/relay"
	"carerelay/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "carerelay",
		Short: "CareRelay: doctor-patient voice message relay",
		Long:  "CareRelay relays voice and text messages between a doctor and a patient,\ntranslating outgoing audio and analyzing patient responses along the way.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: ~/.carerelay/config.yaml)")

	root.AddCommand(initCmd())
	root.AddCommand(bridgeCmd())
	root.AddCommand(doctorCmd())
	root.AddCommand(patientCmd())
	root.AddCommand(statusCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		return config.Defaults()
	}
	applyLogLevel(cfg.General.LogLevel)
	return cfg
}

func applyLogLevel(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l}))
}

func initCmd() *cobra.Command {
	var seed bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize config and state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			if cfgPath == config.DefaultConfigPath() {
				if err := os.MkdirAll(config.DefaultConfigDir(), 0o755); err != nil {
					return err
				}
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)

			if !seed {
				return nil
			}
			st, err := store.NewSQLite(cfg.Store.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			broker := relay.NewBroker(st, logger)
			relayCtx := broker.Attach("init")
			defer relayCtx.Close()

			if err := relayCtx.Publish(domain.KeyConversation, conversation.Seed(time.Now())); err != nil {
				return err
			}
			logger.Info("seeded starter conversation", "db", cfg.Store.DBPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&seed, "seed", false, "write a starter conversation into the store")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and store status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}
			logger.Info("bridge", "host", cfg.Bridge.Host, "port", cfg.Bridge.Port, "url", cfg.Bridge.URL)

			st, err := store.NewSQLite(cfg.Store.DBPath, logger)
			if err != nil {
				logger.Info("store", "path", cfg.Store.DBPath, "reachable", false, "err", err)
				return nil
			}
			defer st.Close()

			broker := relay.NewBroker(st, logger)
			relayCtx := broker.Attach("status")
			defer relayCtx.Close()

			var entries []domain.ConversationEntry
			if ok, err := relayCtx.Read(domain.KeyConversation, &entries); err == nil && ok {
				logger.Info("store", "path", cfg.Store.DBPath, "conversation_entries", len(entries))
			} else {
				logger.Info("store", "path", cfg.Store.DBPath, "conversation_entries", 0)
			}
			logger.Info("version", "carerelay", version)
			return nil
		},
	}
}

// openChannel attaches this process to the shared channel. With a bridge URL
// configured it dials the bridge; otherwise it opens the store directly and
// runs an in-process broker (single-process mode).
func openChannel(ctx context.Context, cfg config.Config, name string) (domain.Channel, func(), error) {
	if cfg.Bridge.URL != "" {
		remote, err := relay.Dial(ctx, cfg.Bridge.URL, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("attach to bridge: %w", err)
		}
		return remote, func() { remote.Close() }, nil
	}

	st, err := store.NewSQLite(cfg.Store.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}
	broker := relay.NewBroker(st, logger)
	relayCtx := broker.Attach(name)
	return relayCtx, func() {
		relayCtx.Close()
		st.Close()
	}, nil
}

// sparkline renders a waveform as a short unicode bar strip.
func sparkline(levels []float64) string {
	const bars = "▁▂▃▄▅▆▇█"
	runes := []rune(bars)
	var b strings.Builder
	step := 1
	if len(levels) > 24 {
		step = len(levels) / 24
	}
	for i := 0; i < len(levels); i += step {
		v := levels[i]
		if v < 0 {
			v = 0
		}
		if v > 0.999 {
			v = 0.999
		}
		b.WriteRune(runes[int(v*float64(len(runes)))])
	}
	return b.String()
}

func printHistory(out *os.File, entries []domain.ConversationEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "(no messages yet)")
		return
	}
	for _, e := range entries {
		ts := time.UnixMilli(e.Timestamp).Format("15:04:05")
		switch e.Content.Kind {
		case domain.ContentText:
			fmt.Fprintf(out, "%s %-7s %s\n", ts, e.Sender, e.Content.Text)
		default:
			fmt.Fprintf(out, "%s %-7s %s %s\n", ts, e.Sender, sparkline(e.Waveform), shortRef(e.Content.AudioRef))
		}
	}
}

// shortRef truncates long data-URI references for terminal display.
func shortRef(ref string) string {
	if len(ref) <= 48 {
		return ref
	}
	return ref[:45] + "..."
}
