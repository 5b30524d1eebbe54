package commands

import (
	"context"
	"strings"
	"time"

	"sentinel/config"
	"sentinel/datamodel/mempool"

	"github.com/libsv/go-p2p/chaincfg/chainhash"

	log "github.com/sirupsen/logrus"
)

// RunMempool lists the local mempool index, or records txid as spending the comma-separated outpoints in spends.
// The index must not be open by a running tracker.
func RunMempool(ctx context.Context, cfg *config.Config, txid string, spends string) {
	store, err := newMempoolStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open mempool index: %v", err)
	}
	defer store.Close()

	if txid != "" {
		hash, err := chainhash.NewHashFromStr(txid)
		if err != nil {
			log.Fatalf("Invalid txid %q: %v", txid, err)
		}

		var inputs []mempool.Outpoint
		for _, s := range strings.Split(spends, ",") {
			if s == "" {
				continue
			}
			o, err := mempool.ParseOutpoint(s)
			if err != nil {
				log.Fatalf("Failed to parse outpoint: %v", err)
			}
			inputs = append(inputs, o)
		}
		if len(inputs) == 0 {
			log.Fatal("A transaction needs at least one spent outpoint (-spends)")
		}

		if err := store.Put(ctx, mempool.Tx{TxID: *hash, SeenAt: time.Now()}, inputs); err != nil {
			log.Fatalf("Failed to store transaction: %v", err)
		}
		log.Infof("Stored %s spending %d outpoints", hash.String(), len(inputs))
	}

	txs, err := store.Enumerate(ctx)
	if err != nil {
		log.Fatalf("Failed to enumerate mempool index: %v", err)
	}
	log.Infof("Mempool index: %d transactions known", len(txs))
	for _, tx := range txs {
		log.Infof("Tx: %s, seen: %v", tx.TxID.String(), tx.SeenAt)
	}
}
