package registry

import (
	"context"
	"fmt"

	"sentinel/datamodel/mempool"
	"sentinel/datamodel/peer"
)

// Client issues commands to a Registry.
//
// Add and Update are fire-and-forget: a nil error only means the command was queued.
// Queries block until the reply arrives; ErrRegistryUnavailable means the answer is unknown,
// not that the peer is down.
type Client struct {
	inbox chan<- command
	done  <-chan struct{}
}

func (c *Client) Add(ctx context.Context, addr peer.Address, rec peer.Record) error {
	return c.send(ctx, addCmd{addr: addr, rec: rec})
}

// Update replaces the whole record stored at addr.
func (c *Client) Update(ctx context.Context, addr peer.Address, rec peer.Record) error {
	return c.send(ctx, updateCmd{addr: addr, rec: rec})
}

func (c *Client) Query(ctx context.Context, addr peer.Address) (peer.Record, bool, error) {
	reply := make(chan queryResult, 1)
	if err := c.send(ctx, queryCmd{addr: addr, reply: reply}); err != nil {
		return peer.Record{}, false, err
	}

	res, err := await(ctx, c.done, reply)
	if err != nil {
		return peer.Record{}, false, err
	}
	return res.rec, res.ok, nil
}

// QueryAll returns every entry of the roster in no particular order.
func (c *Client) QueryAll(ctx context.Context) ([]Entry, error) {
	reply := make(chan []Entry, 1)
	if err := c.send(ctx, queryAllCmd{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, c.done, reply)
}

// QueryActive returns the addresses of all peers not flagged stale.
func (c *Client) QueryActive(ctx context.Context) ([]peer.Address, error) {
	reply := make(chan []peer.Address, 1)
	if err := c.send(ctx, queryActiveCmd{reply: reply}); err != nil {
		return nil, err
	}
	return await(ctx, c.done, reply)
}

// WatchUtxo returns the unconfirmed transactions spending o, sorted by txid, one per txid.
func (c *Client) WatchUtxo(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error) {
	reply := make(chan watchResult, 1)
	if err := c.send(ctx, watchUtxoCmd{ctx: ctx, outpoint: o, reply: reply}); err != nil {
		return nil, err
	}

	res, err := await(ctx, c.done, reply)
	if err != nil {
		return nil, err
	}
	return res.txs, res.err
}

func (c *Client) send(ctx context.Context, cmd command) error {
	select {
	case <-c.done:
		return ErrRegistryUnavailable
	default:
	}

	select {
	case c.inbox <- cmd:
		return nil
	case <-c.done:
		return ErrRegistryUnavailable
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrRegistryUnavailable, ctx.Err())
	}
}

func await[T any](ctx context.Context, done <-chan struct{}, reply <-chan T) (T, error) {
	var zero T
	select {
	case v := <-reply:
		return v, nil
	case <-done:
		// The registry may have answered right before stopping
		select {
		case v := <-reply:
			return v, nil
		default:
			return zero, ErrRegistryUnavailable
		}
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", ErrRegistryUnavailable, ctx.Err())
	}
}
