package commands

import (
	"context"
	"net"

	"sentinel/config"
	"sentinel/tracker/monitor"
	"sentinel/tracker/node"

	log "github.com/sirupsen/logrus"
)

func RunServe(ctx context.Context, cfg *config.Config) {
	log.Infof("Starting tracker...")

	store, err := newMempoolStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open mempool index: %v", err)
	}
	defer store.Close()

	conn, err := newConnector(cfg)
	if err != nil {
		log.Fatalf("Failed to create connector: %v", err)
	}

	l, err := net.Listen("tcp", cfg.Tracker.ListenAddress)
	if err != nil {
		log.Fatalf("Failed to create listener: %v", err)
	}

	n := node.New(node.Config{
		Monitor: monitor.Config{
			OnionAddress:   cfg.Tracker.OnionAddress,
			Port:           cfg.Tracker.Port,
			Cooldown:       cfg.Monitor.Cooldown,
			Attempts:       cfg.Monitor.Attempts,
			RetryBackoff:   cfg.Monitor.RetryBackoff,
			AttemptTimeout: cfg.Monitor.AttemptTimeout,
		},
		MetricsAddress: cfg.Metrics.ListenAddress,
	}, store, conn, l)

	if err := n.Run(ctx); err != nil {
		log.Errorf("Tracker stopped: %v", err)
		return
	}

	log.Info("Tracker stopped")
}
