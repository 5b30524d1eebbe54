package registry

import (
	"context"

	"sentinel/datamodel/mempool"
	"sentinel/datamodel/peer"
)

type command interface {
	name() string
}

type addCmd struct {
	addr peer.Address
	rec  peer.Record
}

type updateCmd struct {
	addr peer.Address
	rec  peer.Record
}

type queryResult struct {
	rec peer.Record
	ok  bool
}

type queryCmd struct {
	addr  peer.Address
	reply chan<- queryResult
}

type queryAllCmd struct {
	reply chan<- []Entry
}

type queryActiveCmd struct {
	reply chan<- []peer.Address
}

type watchResult struct {
	txs []mempool.Tx
	err error
}

type watchUtxoCmd struct {
	ctx      context.Context
	outpoint mempool.Outpoint
	reply    chan<- watchResult
}

func (addCmd) name() string         { return "add" }
func (updateCmd) name() string      { return "update" }
func (queryCmd) name() string       { return "query" }
func (queryAllCmd) name() string    { return "query_all" }
func (queryActiveCmd) name() string { return "query_active" }
func (watchUtxoCmd) name() string   { return "watch_utxo" }
