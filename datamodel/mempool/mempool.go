package mempool

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
)

var ErrInvalidOutpoint = errors.New("invalid outpoint")

// Outpoint identifies a transaction output whose spenders are of interest.
type Outpoint struct {
	TxID chainhash.Hash `cbor:"1,keyasint"`
	Vout uint32         `cbor:"2,keyasint"`
}

func (o Outpoint) String() string {
	return fmt.Sprintf("%s:%d", o.TxID.String(), o.Vout)
}

// ParseOutpoint parses the "txid:vout" form produced by Outpoint.String.
func ParseOutpoint(s string) (Outpoint, error) {
	txid, vout, ok := strings.Cut(s, ":")
	if !ok {
		return Outpoint{}, fmt.Errorf("%w: %q", ErrInvalidOutpoint, s)
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: %v", ErrInvalidOutpoint, err)
	}

	n, err := strconv.ParseUint(vout, 10, 32)
	if err != nil {
		return Outpoint{}, fmt.Errorf("%w: %v", ErrInvalidOutpoint, err)
	}

	return Outpoint{TxID: *hash, Vout: uint32(n)}, nil
}

// Tx is an unconfirmed transaction observed in the local mempool.
type Tx struct {
	TxID   chainhash.Hash `cbor:"1,keyasint"`
	SeenAt time.Time      `cbor:"2,keyasint,omitempty"`
}

// Store defines the interface of the local mempool index.
type Store interface {
	// QuerySpenders returns every locally observed unconfirmed transaction with an input spending the outpoint.
	// The result is neither sorted nor deduplicated.
	QuerySpenders(context.Context, Outpoint) ([]Tx, error)

	// Put records a transaction together with the outpoints its inputs spend.
	Put(context.Context, Tx, []Outpoint) error

	// Enumerate returns all transactions currently in the index.
	Enumerate(context.Context) ([]Tx, error)

	// Close releases any resources held by the Store.
	Close() error
}
