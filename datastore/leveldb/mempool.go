package leveldb

import (
	"context"
	"strings"

	"sentinel/datamodel/mempool"

	"github.com/fxamacker/cbor/v2"
	"github.com/libsv/go-p2p/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/util"

	log "github.com/sirupsen/logrus"
)

const (
	keyPrefixTx      = "TXN" // Mempool transaction indexed by txid. Followed by the display-hex txid
	keyPrefixSpender = "SPD" // Spend index. Followed by "<txid>:<vout>/<spender txid>", value is empty
)

var _ mempool.Store = (*MempoolIndex)(nil)

// Keep sub-second precision of SeenAt
var encMode, _ = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()

type MempoolIndex struct {
	levelDB
}

func NewMempoolIndex(path string) (*MempoolIndex, error) {
	ldb, err := initLevelDb(path)
	if err != nil {
		return nil, err
	}

	return &MempoolIndex{
		levelDB: levelDB{
			path: path,
			db:   ldb,
		},
	}, nil
}

func keyFromTxID(txid *chainhash.Hash) []byte {
	return append([]byte(keyPrefixTx), []byte(txid.String())...)
}

func spenderPrefix(o mempool.Outpoint) []byte {
	return []byte(keyPrefixSpender + o.String() + "/")
}

func keyFromSpend(o mempool.Outpoint, spender *chainhash.Hash) []byte {
	return append(spenderPrefix(o), []byte(spender.String())...)
}

func (l *MempoolIndex) Put(ctx context.Context, tx mempool.Tx, inputs []mempool.Outpoint) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	raw, err := encMode.Marshal(&tx)
	if err != nil {
		return err
	}

	// Transaction and its spend entries are written atomically
	batch := new(leveldb.Batch)
	batch.Put(keyFromTxID(&tx.TxID), raw)
	for _, in := range inputs {
		batch.Put(keyFromSpend(in, &tx.TxID), nil)
	}

	return l.db.Write(batch, nil)
}

func (l *MempoolIndex) get(txid *chainhash.Hash) (*mempool.Tx, error) {
	raw, err := l.db.Get(keyFromTxID(txid), nil)
	if err != nil {
		return nil, err
	}

	tx := &mempool.Tx{}
	if err := cbor.Unmarshal(raw, tx); err != nil {
		return nil, err
	}

	// Compare the txid just in case
	if tx.TxID != *txid {
		log.Errorf("MempoolIndex: txid mismatch: %s != %s", txid.String(), tx.TxID.String())
		return nil, ErrCorrupted
	}

	return tx, nil
}

func (l *MempoolIndex) QuerySpenders(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	prefix := spenderPrefix(o)
	iter := l.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()

	var results []mempool.Tx
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		spender, err := chainhash.NewHashFromStr(strings.TrimPrefix(string(iter.Key()), string(prefix)))
		if err != nil {
			log.Errorf("MempoolIndex: malformed spend key %q: %v", iter.Key(), err)
			return nil, ErrCorrupted
		}

		tx, err := l.get(spender)
		if err == errors.ErrNotFound {
			log.Warnf("MempoolIndex: spend entry for %s references missing tx %s", o.String(), spender.String())
			continue
		}
		if err != nil {
			return nil, err
		}

		results = append(results, *tx)
	}

	if err := iter.Error(); err != nil {
		return nil, err
	}

	return results, nil
}

func (l *MempoolIndex) Enumerate(ctx context.Context) ([]mempool.Tx, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	iter := l.db.NewIterator(util.BytesPrefix([]byte(keyPrefixTx)), nil)
	defer iter.Release()

	var results []mempool.Tx
	for iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		tx := mempool.Tx{}
		if err := cbor.Unmarshal(iter.Value(), &tx); err != nil {
			return nil, err
		}

		results = append(results, tx)
	}

	return results, iter.Error()
}
