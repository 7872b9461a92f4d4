// synkd is the PTY pool and session daemon: a warm pool of pre-spawned
// shells, a session manager that bootstraps and launches agent CLIs inside
// them, and a control socket exposing the daemon's command surface.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/trybotster/synkd/internal/config"
	"github.com/trybotster/synkd/internal/control"
	"github.com/trybotster/synkd/internal/ptypool"
	"github.com/trybotster/synkd/internal/session"
	"github.com/trybotster/synkd/internal/synklog"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:     "synkd",
		Short:   "PTY pool and session daemon",
		Version: Version,
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the daemon until signaled",
		RunE:  runDaemon,
	}
	rootCmd.AddCommand(runCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE:  runConfig,
	}
	rootCmd.AddCommand(configCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println(Version)
			return nil
		},
	}
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	fmt.Printf("socket_path = %s\n", cfg.SocketPath)
	fmt.Printf("log_level = %s\n", cfg.LogLevel)
	fmt.Printf("default_shell = %s\n", cfg.DefaultShell)
	fmt.Printf("pool.initial_pool_size = %d\n", cfg.Pool.InitialPoolSize)
	fmt.Printf("pool.max_pool_size = %d\n", cfg.Pool.MaxPoolSize)
	fmt.Printf("pool.max_active = %d\n", cfg.Pool.MaxActive)
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log := synklog.New(os.Stderr, cfg.LogLevel, false)
	instanceID := uuid.NewString()
	log = log.With().Str("instance_id", instanceID).Logger()
	log.Info().Str("version", Version).Msg("starting synkd")

	pool := ptypool.New(cfg.PoolConfig(), log)
	pool.WarmupInBackground()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := session.DetectAgents(ctx)
	for _, d := range registry.List() {
		log.Debug().Str("agent", string(d.AgentType)).Bool("found", d.Found).Str("version", d.Version).Msg("agent detection")
	}

	mgr := session.New(pool, registry, cfg.PoolConfig().DefaultRows, cfg.PoolConfig().DefaultCols, log)

	srv := control.NewServer(cfg.SocketPath, mgr, pool, log)

	watcher, err := config.WatchForChanges(ctx, log, func(newCfg *config.Config) {
		pool.Reconfigure(newCfg.PoolConfig())
	})
	if err != nil {
		log.Warn().Err(err).Msg("config watcher unavailable; reconfigure disabled")
	} else {
		defer watcher.Close()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Serve()
	}()

	select {
	case <-sigCh:
		log.Info().Msg("received shutdown signal")
	case err := <-serveErr:
		log.Error().Err(err).Msg("control server exited")
	}

	cancel()
	srv.Close()
	mgr.Shutdown()
	pool.Shutdown()

	log.Info().Msg("synkd stopped")
	return nil
}
