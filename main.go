package main

import (
	"context"
	"flag"
	"io"
	"os"
	"os/signal"
	"syscall"

	"sentinel/commands"
	"sentinel/config"

	"gopkg.in/natefinch/lumberjack.v2"

	log "github.com/sirupsen/logrus"
)

func setLogLevel(level string) {
	l, err := log.ParseLevel(level)
	if err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	log.SetLevel(l)
}

// setLogOutput mirrors the log into a rotated file when one is configured.
func setLogOutput(cfg *config.Config) {
	if cfg.Log.File == "" {
		return
	}
	log.SetOutput(io.MultiWriter(os.Stderr, &lumberjack.Logger{
		Filename:   cfg.Log.File,
		MaxSize:    cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
	}))
}

func registerGlobalFlags(fset *flag.FlagSet) {
	flag.VisitAll(func(f *flag.Flag) {
		fset.Var(f.Value, f.Name, f.Usage)
	})
}

func checkConfig(cfg string) {
	if cfg == "" {
		log.Fatal("Config file not specified")
	}
}

func loadConfig(path string) *config.Config {
	cfg, err := config.NewConfigFromFile(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	setLogOutput(cfg)
	return cfg
}

// main is the entry point of the application.
func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	configFile := flag.String("config", "", "Path to config file")
	logLevel := flag.String("loglevel", "info", "Log level")

	initCmd := flag.NewFlagSet("init", flag.ExitOnError)
	registerGlobalFlags(initCmd)

	serveCmd := flag.NewFlagSet("serve", flag.ExitOnError)
	registerGlobalFlags(serveCmd)

	infoCmd := flag.NewFlagSet("info", flag.ExitOnError)
	infoTracker := infoCmd.String("tracker", "", "Tracker address (defaults to the configured one)")
	infoWatch := infoCmd.String("watch", "", "Outpoint (txid:vout) to look up spenders for")
	registerGlobalFlags(infoCmd)

	mempoolCmd := flag.NewFlagSet("mempool", flag.ExitOnError)
	mempoolTxID := mempoolCmd.String("txid", "", "Record this transaction in the local mempool index")
	mempoolSpends := mempoolCmd.String("spends", "", "Comma-separated outpoints (txid:vout) spent by -txid")
	registerGlobalFlags(mempoolCmd)

	if len(os.Args) < 2 {
		log.WithField("args", os.Args).Fatal("Expected a subcommand")
	}
	cmd, args := os.Args[1], os.Args[2:]

	switch cmd {
	case "init":
		initCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		cfg := config.NewEmptyConfig(*configFile)
		commands.RunInit(ctx, cfg, *configFile)
	case "serve":
		serveCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		commands.RunServe(ctx, loadConfig(*configFile))
	case "info":
		infoCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		commands.RunInfo(ctx, loadConfig(*configFile), *infoTracker, *infoWatch)
	case "mempool":
		mempoolCmd.Parse(args)
		checkConfig(*configFile)
		setLogLevel(*logLevel)
		commands.RunMempool(ctx, loadConfig(*configFile), *mempoolTxID, *mempoolSpends)
	default:
		log.Fatalf("Invalid subcommand '%s'", os.Args[1])
	}
}
