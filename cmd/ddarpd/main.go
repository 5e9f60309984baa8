// Command ddarpd runs one DDARP mesh node: the fused measurement,
// topology and routing engine (spec §1) plus its admin/metrics surface.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"syscall"

	"github.com/ddarp-project/ddarpd/internal/config"
	"github.com/ddarp-project/ddarpd/internal/db"
	"github.com/ddarp-project/ddarpd/internal/maintenance"
	"github.com/ddarp-project/ddarpd/internal/metrics"
	"github.com/ddarp-project/ddarpd/internal/node"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe()
	case "migrate":
		runMigrate()
	case "maintenance":
		runMaintenance()
	case "--help", "-h", "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: ddarpd <command> [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve         Start the routing daemon")
	fmt.Println("  migrate       Run database migrations for the audit history schema")
	fmt.Println("  maintenance   Run partition maintenance (create new, drop old)")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config <path>   Path to configuration YAML file")
	fmt.Println("  --log-level <lvl> Override log level (debug, info, warn, error)")
}

func parseFlags(args []string) (configPath string, logLevel string) {
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--config":
			if i+1 < len(args) {
				configPath = args[i+1]
				i++
			}
		case "--log-level":
			if i+1 < len(args) {
				logLevel = args[i+1]
				i++
			}
		}
	}
	return
}

func loadConfig(args []string) (*config.Config, *zap.Logger) {
	configPath, logLevelOverride := parseFlags(args)

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	if logLevelOverride != "" {
		cfg.Service.LogLevel = logLevelOverride
	}

	logger := initLogger(cfg.Service.LogLevel)
	return cfg, logger
}

func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zap.DebugLevel
	case "warn":
		zapLevel = zap.WarnLevel
	case "error":
		zapLevel = zap.ErrorLevel
	default:
		zapLevel = zap.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(zapLevel)
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zapCfg.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func runServe() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	metrics.Register()

	logger.Info("starting ddarpd",
		zap.String("node_id", cfg.Service.NodeID),
		zap.String("listen_addr", cfg.Service.ListenAddr),
		zap.String("admin_listen", cfg.Service.AdminListen),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.History.RetentionDays, cfg.History.Timezone, logger.Named("maintenance"))
	if err := pm.CreatePartitions(ctx); err != nil {
		logger.Fatal("failed to create history partitions on startup", zap.Error(err))
	}

	n, err := node.New(cfg, pool, logger)
	if err != nil {
		logger.Fatal("failed to construct node", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	if err := n.Run(ctx); err != nil {
		logger.Fatal("node stopped with error", zap.Error(err))
	}

	logger.Info("ddarpd stopped")
}

func runMigrate() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running migrations", zap.String("dsn", redactDSN(cfg.Postgres.DSN)))

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrationsDir(), logger); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	logger.Info("migrations complete")
}

func runMaintenance() {
	cfg, logger := loadConfig(os.Args[2:])
	defer logger.Sync()

	logger.Info("running partition maintenance",
		zap.Int("retention_days", cfg.History.RetentionDays),
		zap.String("timezone", cfg.History.Timezone),
	)

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns, cfg.Postgres.MinConns)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	pm := maintenance.NewPartitionManager(pool, cfg.History.RetentionDays, cfg.History.Timezone, logger)
	if err := pm.Run(ctx); err != nil {
		logger.Fatal("maintenance failed", zap.Error(err))
	}

	logger.Info("partition maintenance complete")
}

// migrationsDir returns the path to the migrations directory relative to
// the binary, the same layout convention as the teacher's ingester.
func migrationsDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "migrations"
	}
	return exe[:strings.LastIndex(exe, "/")] + "/migrations"
}

func redactDSN(dsn string) string {
	if !strings.Contains(dsn, "://") {
		re := regexp.MustCompile(`password\s*=\s*\S+`)
		return re.ReplaceAllString(dsn, "password=***")
	}
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}
