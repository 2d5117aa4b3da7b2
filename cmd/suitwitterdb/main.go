package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/elfofmaxwell/sui-twitter-db/internal/config"
	"github.com/elfofmaxwell/sui-twitter-db/internal/jobs"
	"github.com/elfofmaxwell/sui-twitter-db/internal/metrics"
	"github.com/elfofmaxwell/sui-twitter-db/internal/notify"
	"github.com/elfofmaxwell/sui-twitter-db/internal/store"
	"github.com/elfofmaxwell/sui-twitter-db/internal/xclient"
)

func main() {
	cmd := ""
	if len(os.Args) > 1 {
		cmd = os.Args[1]
	}
	switch cmd {
	case "init":
		cmdInit()
	case "initdb":
		cmdInitDB()
	case "seed":
		cmdSeed()
	case "monitor":
		cmdMonitor()
	default:
		printHelp()
	}
}

func printHelp() {
	fmt.Println("Usage: suitwitterdb <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  init      Create a config file at ./suitwitterdb.yaml")
	fmt.Println("  initdb    Create (or wipe and recreate) the database schema")
	fmt.Println("  seed      Run the one-shot initial sync of every monitored account")
	fmt.Println("  monitor   Run the long-lived per-account, per-feed polling tasks")
}

func newLogger(verbose bool) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func mustLoadConfig(path string, logger *log.Logger) config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatal("load config", "path", path, "err", err)
	}
	cfg.ResolveEnv()
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", "path", path, "err", err)
	}
	return cfg
}

func mustOpenDB(cfg config.Config, logger *log.Logger) *store.DB {
	db, err := store.Open(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("open database", "path", cfg.Storage.DBPath, "err", err)
	}
	return db
}

func buildNotifier(cfg config.Config) notify.Notifier {
	if !cfg.Notification.Enabled() {
		return nil
	}
	return notify.NewTelegram(cfg.Credentials.BotToken, cfg.Notification.ChatIDs)
}

func cmdInit() {
	fs := flag.NewFlagSet("init", flag.ExitOnError)
	path := fs.String("path", "./suitwitterdb.yaml", "path to write config")
	_ = fs.Parse(os.Args[2:])
	if err := config.Save(*path, config.Default()); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
	abs, _ := filepath.Abs(*path)
	fmt.Println("Config written to:", abs)
}

func cmdInitDB() {
	fs := flag.NewFlagSet("initdb", flag.ExitOnError)
	cfgPath := fs.String("config", "./suitwitterdb.yaml", "config path")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(os.Args[2:])
	logger := newLogger(*verbose)
	cfg := mustLoadConfig(*cfgPath, logger)
	db := mustOpenDB(cfg, logger)
	defer db.Close()
	if err := db.InitSchema(context.Background()); err != nil {
		logger.Fatal("init schema", "err", err)
	}
	logger.Info("schema created", "path", cfg.Storage.DBPath)
}

func cmdSeed() {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	cfgPath := fs.String("config", "./suitwitterdb.yaml", "config path")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(os.Args[2:])
	logger := newLogger(*verbose)
	cfg := mustLoadConfig(*cfgPath, logger)
	db := mustOpenDB(cfg, logger)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runner := jobs.NewRunner(db, xclient.New(cfg.Credentials.BearerToken), buildNotifier(cfg), cfg, logger)
	if err := runner.RunInitial(ctx); err != nil {
		logger.Fatal("initial sync", "err", err)
	}
	logger.Info("initial sync complete", "accounts", len(cfg.MonitoringUsernames))
}

func cmdMonitor() {
	fs := flag.NewFlagSet("monitor", flag.ExitOnError)
	cfgPath := fs.String("config", "./suitwitterdb.yaml", "config path")
	verbose := fs.Bool("verbose", false, "debug logging")
	_ = fs.Parse(os.Args[2:])
	logger := newLogger(*verbose)
	cfg := mustLoadConfig(*cfgPath, logger)
	db := mustOpenDB(cfg, logger)
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(cfg.MetricsAddr)

	runner := jobs.NewRunner(db, xclient.New(cfg.Credentials.BearerToken), buildNotifier(cfg), cfg, logger)
	if err := runner.RunMonitor(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("monitor", "err", err)
	}
	logger.Info("shut down")
}
