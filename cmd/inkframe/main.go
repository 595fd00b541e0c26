// Command inkframe runs the e-paper frame daemon.
//
// Logging:
//   - Base logger is created here with output format and level
//   - Logger is passed to all components via dependency injection
//   - No global slog configuration (no slog.SetDefault)
//   - Components scope loggers with their own attributes
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"inkframe/internal/clock"
	"inkframe/internal/config"
	"inkframe/internal/display"
	"inkframe/internal/home"
	"inkframe/internal/instance"
	"inkframe/internal/orchestrator"
	"inkframe/internal/plugin"
	"inkframe/internal/plugin/builtin"
	"inkframe/internal/schedule"
	"inkframe/internal/server"
)

var version = "dev"

// dataDirEnv overrides the default data directory when --data is not given.
const dataDirEnv = "INKFRAME_DATA"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	rootCmd := &cobra.Command{
		Use:   "inkframe",
		Short: "E-paper frame daemon",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			pprofAddr, _ := cmd.Flags().GetString("pprof")
			if pprofAddr != "" {
				go func() {
					logger.Info("pprof server listening", "addr", pprofAddr)
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						logger.Error("pprof server error", "error", err)
					}
				}()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("data", "", "data directory (default: $"+dataDirEnv+" or platform config dir)")
	rootCmd.PersistentFlags().String("pprof", "", "pprof HTTP server address (e.g. localhost:6060); bind to loopback only")

	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Start the inkframe daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			dataFlag, _ := cmd.Flags().GetString("data")
			addrFlag, _ := cmd.Flags().GetString("addr")

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			return run(ctx, logger, dataFlag, addrFlag)
		},
	}
	serverCmd.Flags().String("addr", "", "listen address (host:port, overrides config)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(version)
		},
	}

	rootCmd.AddCommand(serverCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger, dataFlag, addrFlag string) error {
	hd, err := resolveDataDir(dataFlag)
	if err != nil {
		return fmt.Errorf("resolve data directory: %w", err)
	}
	if err := hd.EnsureExists(); err != nil {
		return err
	}
	logger.Info("data directory", "path", hd.Root())

	// An invalid config (unknown timezone, bad rotation) is a fatal boot
	// error: better to exit than to drive the panel on wrong assumptions.
	cfgMgr, err := config.NewManager(hd.ConfigPath(), hd.ConfigBackupPath())
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := cfgMgr.Current()

	clk, err := clock.New(cfg.Timezone)
	if err != nil {
		return err
	}

	registry := plugin.NewRegistry(builtin.Factories(clk), logger)
	pluginsRoot := cfg.PluginsDir
	if !filepath.IsAbs(pluginsRoot) {
		pluginsRoot = filepath.Join(hd.Root(), pluginsRoot)
	}
	if n, err := registry.LoadAll(pluginsRoot); err != nil {
		return fmt.Errorf("load plugins: %w", err)
	} else {
		logger.Info("plugins loaded", "count", n, "root", pluginsRoot)
	}

	instances := instance.NewStore(hd.InstancesPath(), clk, registry, logger)
	schedules := schedule.NewStore(hd.SchedulesPath(), clk, logger)

	driver, err := buildDriver(cfg)
	if err != nil {
		return err
	}
	controller := display.NewController(display.Config{
		Driver:          driver,
		Clock:           clk,
		MinPushInterval: cfg.MinPushInterval(),
		Logger:          logger,
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Clock:         clk,
		Schedule:      schedules,
		Instances:     instances,
		Registry:      registry,
		Display:       controller,
		Logger:        logger,
		DeepCleanCron: cfg.Maintenance.DeepCleanCron,
		RescanCron:    cfg.Maintenance.RescanCron,
	})
	if err != nil {
		return err
	}

	logger.Info("starting orchestrator")
	if err := orch.Start(ctx); err != nil {
		return err
	}

	// Manifest hot reload runs for the life of the process.
	var watchWg sync.WaitGroup
	watchWg.Go(func() {
		if err := registry.Watch(ctx, pluginsRoot, logger); err != nil {
			logger.Warn("manifest watcher stopped", "error", err)
		}
	})

	addr := addrFlag
	if addr == "" {
		addr = cfg.ListenAddr
	}
	srv := server.New(server.Config{
		Orchestrator: orch,
		ConfigMgr:    cfgMgr,
		Instances:    instances,
		Schedule:     schedules,
		Registry:     registry,
		Display:      controller,
		DataDir:      hd.Root(),
		Version:      version,
		Logger:       logger,
	})

	var serverWg sync.WaitGroup
	serverWg.Go(func() {
		if err := srv.ServeTCP(addr); err != nil {
			logger.Error("server error", "error", err)
		}
	})

	<-ctx.Done()

	logger.Info("stopping server")
	if err := srv.Stop(context.Background()); err != nil {
		logger.Error("server stop error", "error", err)
	}
	serverWg.Wait()

	logger.Info("shutting down orchestrator")
	if err := orch.Stop(); err != nil {
		return err
	}
	watchWg.Wait()
	logger.Info("shutdown complete")
	return nil
}

// resolveDataDir returns a Dir from the flag, the environment, or the
// platform default, in that order.
func resolveDataDir(flagValue string) (home.Dir, error) {
	if flagValue != "" {
		return home.New(flagValue), nil
	}
	if env := os.Getenv(dataDirEnv); env != "" {
		return home.New(env), nil
	}
	return home.Default()
}

// buildDriver constructs the configured panel driver. Hardware drivers
// register here; the null driver keeps development hosts working.
func buildDriver(cfg config.Config) (display.Driver, error) {
	switch cfg.Driver {
	case "null", "":
		return display.NewNullDriver(display.DeviceConfig{
			Rotation: cfg.Display.Rotation,
		}), nil
	default:
		return nil, fmt.Errorf("unknown display driver %q", cfg.Driver)
	}
}
