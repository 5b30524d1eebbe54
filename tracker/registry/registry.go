// Package registry owns the in-memory map of known peers.
//
// A single goroutine (Run) holds the map and processes commands strictly in
// arrival order. Everything else talks to it through a Client, which sends
// commands over a channel and, for queries, waits on a per-request reply channel.
package registry

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"sentinel/datamodel/mempool"
	"sentinel/datamodel/peer"
	"sentinel/metrics"
	"sentinel/status"

	log "github.com/sirupsen/logrus"
)

const DefaultQueueSize = 64

var (
	ErrRegistryUnavailable = errors.New("registry unavailable")
	ErrWatchFailed         = errors.New("mempool watch failed")
)

// Entry is one (address, record) pair of the roster.
type Entry struct {
	Address peer.Address
	Record  peer.Record
}

type Registry struct {
	peers map[peer.Address]peer.Record
	store mempool.Store

	inbox     chan command
	closing   chan struct{}
	closeOnce sync.Once
	done      chan struct{}

	statusTx status.Sender
}

func New(store mempool.Store, statusTx status.Sender, queueSize int) *Registry {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &Registry{
		peers:    make(map[peer.Address]peer.Record),
		store:    store,
		inbox:    make(chan command, queueSize),
		closing:  make(chan struct{}),
		done:     make(chan struct{}),
		statusTx: statusTx,
	}
}

// Client returns a handle for issuing commands. Clients are safe for concurrent use.
func (r *Registry) Client() *Client {
	return &Client{inbox: r.inbox, done: r.done}
}

// Close marks the command source as exhausted. Commands already queued are still processed.
func (r *Registry) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
	})
}

// Done is closed once Run has returned.
func (r *Registry) Done() <-chan struct{} {
	return r.done
}

// Run processes commands until Close is called or ctx is cancelled,
// then reports DBShutdown exactly once.
func (r *Registry) Run(ctx context.Context) error {
	log.Info("Peer registry started")

	defer func() {
		close(r.done)
		log.Info("Peer registry stopped")
		r.statusTx.Send(status.Status{State: status.DBShutdown, Err: status.ErrDBManagerExited})
	}()

	for {
		select {
		case cmd := <-r.inbox:
			r.handle(ctx, cmd)
		case <-r.closing:
			r.drain(ctx)
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

func (r *Registry) drain(ctx context.Context) {
	for {
		select {
		case cmd := <-r.inbox:
			r.handle(ctx, cmd)
		default:
			return
		}
	}
}

func (r *Registry) handle(ctx context.Context, cmd command) {
	metrics.RegistryCommands.WithLabelValues(cmd.name()).Inc()

	switch c := cmd.(type) {
	case addCmd:
		log.WithFields(log.Fields{"address": c.addr, "stale": c.rec.Stale}).Debug("registry: add")
		r.peers[c.addr] = c.rec
		r.updateGauges()

	case updateCmd:
		log.WithFields(log.Fields{"address": c.addr, "stale": c.rec.Stale}).Debug("registry: update")
		r.peers[c.addr] = c.rec
		r.updateGauges()

	case queryCmd:
		log.WithField("address", c.addr).Debug("registry: query")
		rec, ok := r.peers[c.addr]
		deliver(c.reply, queryResult{rec: rec, ok: ok}, cmd.name())

	case queryAllCmd:
		log.Debug("registry: query all")
		entries := make([]Entry, 0, len(r.peers))
		for addr, rec := range r.peers {
			entries = append(entries, Entry{Address: addr, Record: rec})
		}
		deliver(c.reply, entries, cmd.name())

	case queryActiveCmd:
		log.Debug("registry: query active")
		var active []peer.Address
		for addr, rec := range r.peers {
			if !rec.Stale {
				active = append(active, addr)
			}
		}
		deliver(c.reply, active, cmd.name())

	case watchUtxoCmd:
		log.WithField("outpoint", c.outpoint.String()).Debug("registry: watch utxo")
		txs, err := r.watchUtxo(c.ctx, c.outpoint)
		deliver(c.reply, watchResult{txs: txs, err: err}, cmd.name())

	default:
		log.Errorf("registry: unknown command %T", cmd)
	}
}

func (r *Registry) watchUtxo(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error) {
	txs, err := r.store.QuerySpenders(ctx, o)
	if err != nil {
		log.Errorf("registry: failed to query spenders of %s: %v", o.String(), err)
		return nil, fmt.Errorf("%w: %v", ErrWatchFailed, err)
	}
	return dedupByTxID(txs), nil
}

// dedupByTxID sorts by txid (display order) and keeps one row per txid.
// Among rows sharing a txid the earliest SeenAt survives.
func dedupByTxID(txs []mempool.Tx) []mempool.Tx {
	slices.SortStableFunc(txs, func(a, b mempool.Tx) int {
		if c := strings.Compare(a.TxID.String(), b.TxID.String()); c != 0 {
			return c
		}
		return a.SeenAt.Compare(b.SeenAt)
	})
	return slices.CompactFunc(txs, func(a, b mempool.Tx) bool {
		return a.TxID == b.TxID
	})
}

func (r *Registry) updateGauges() {
	var stale int
	for _, rec := range r.peers {
		if rec.Stale {
			stale++
		}
	}
	metrics.RegistryPeers.WithLabelValues("active").Set(float64(len(r.peers) - stale))
	metrics.RegistryPeers.WithLabelValues("stale").Set(float64(stale))
}

// deliver never blocks: reply channels are buffered and an abandoned reply is dropped.
func deliver[T any](reply chan<- T, v T, what string) {
	select {
	case reply <- v:
	default:
		log.Debugf("registry: discarding %s reply, nobody is listening", what)
	}
}
