package commands

import (
	"context"
	"time"

	"sentinel/config"
	"sentinel/datamodel/mempool"
	"sentinel/tracker/client"

	log "github.com/sirupsen/logrus"
)

// RunInfo queries a running tracker for its active peers and, if watch is set, for spenders of that outpoint.
func RunInfo(ctx context.Context, cfg *config.Config, tracker string, watch string) {
	conn, err := newConnector(cfg)
	if err != nil {
		log.Fatalf("Failed to create connector: %v", err)
	}

	if tracker == "" {
		tracker = trackerAddress(cfg)
	}
	c := client.New(conn, tracker)

	cctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	peers, err := c.ActivePeers(cctx)
	if err != nil {
		log.Fatalf("Failed to query active peers: %v", err)
	}
	log.Infof("Tracker %s: %d active peers", tracker, len(peers))
	for _, p := range peers {
		log.Infof("Peer: %s", p)
	}

	if watch == "" {
		return
	}

	o, err := mempool.ParseOutpoint(watch)
	if err != nil {
		log.Fatalf("Failed to parse outpoint: %v", err)
	}

	txs, err := c.Watch(cctx, o)
	if err != nil {
		log.Fatalf("Failed to watch %s: %v", o.String(), err)
	}
	log.Infof("Outpoint %s: %d unconfirmed spenders", o.String(), len(txs))
	for _, tx := range txs {
		log.Infof("Spender: %s, seen %v ago", tx.TxID.String(), time.Since(tx.SeenAt).Round(time.Second))
	}
}
