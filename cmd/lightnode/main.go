package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lightnode/internal/config"
	"lightnode/internal/data"
	"lightnode/internal/identity"
	"lightnode/internal/kadstore"
	"lightnode/internal/logging"
)

var logger = logging.For("main")

const defaultCleanupInterval = time.Minute

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		log.Fatalf("lightnode: %v", err)
	}
}

// run starts the node, or runs one inspect command when positional
// arguments are given.
func run(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("lightnode", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file")
	dataDir := fs.String("data-dir", "", "data directory (overrides config)")
	logLevel := fs.String("log-level", "", "log level: debug, info, warn, error (overrides config)")
	fs.Usage = func() {
		out := fs.Output()
		fmt.Fprintf(out, "usage: lightnode [flags] [command [args]]\n\ncommands:\n")
		printCommands(out)
		fmt.Fprintf(out, "\nflags:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	// CLI flags override config file values
	if *dataDir != "" {
		cfg.Node.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	logging.Init(cfg.Logging)

	cfg.Node.DataDir = config.ExpandHome(cfg.Node.DataDir)
	if err := os.MkdirAll(cfg.Node.DataDir, 0700); err != nil {
		return fmt.Errorf("creating data dir: %w", err)
	}

	id, err := identity.Load(cfg.Node.DataDir)
	if err != nil {
		return fmt.Errorf("identity: %w", err)
	}

	if fs.NArg() > 0 {
		return inspect(cfg, id, fs.Args(), stdout)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return runNode(ctx, cfg, id)
}

// runNode opens the database, rebuilds the DHT record table and keeps it
// clean until ctx is done.
func runNode(ctx context.Context, cfg *config.Config, id *identity.Identity) error {
	logger.Info("starting node", "name", cfg.Node.Name, "peer_id", id.PeerID, "data_dir", cfg.Node.DataDir)

	db, err := data.Open(cfg.DBPath(), data.Options{
		Timeout: cfg.Storage.OpenTimeout.Duration,
		NoSync:  cfg.Storage.NoSync,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	records := kadstore.New(db, id.PeerID, kadstore.Options{
		MaxRecords: cfg.Kademlia.MaxRecords,
		RecordTTL:  cfg.Kademlia.RecordTTL.Duration,
	})
	n, err := records.Bootstrap()
	if err != nil {
		return fmt.Errorf("bootstrapping record store: %w", err)
	}
	logger.Info("record store ready", "records", n)

	interval := cfg.Kademlia.CleanupInterval.Duration
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		records.CleanupLoop(done, interval)
		close(stopped)
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	close(done)
	<-stopped
	return nil
}
