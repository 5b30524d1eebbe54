// Package client talks to a tracker server.
package client

import (
	"bufio"
	"context"
	"fmt"
	"net"

	"sentinel/datamodel/mempool"
	"sentinel/net/connector"
	"sentinel/net/framing"
	"sentinel/tracker/protocol"
)

type Client struct {
	connector connector.Connector
	address   string
}

func New(conn connector.Connector, trackerAddress string) *Client {
	return &Client{connector: conn, address: trackerAddress}
}

// Register announces ownAddress to the tracker.
func (c *Client) Register(ctx context.Context, ownAddress string) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	return framing.WriteMessage(bufio.NewWriter(conn), protocol.NewPost(ownAddress))
}

// ActivePeers returns the addresses of the peers the tracker currently considers reachable.
func (c *Client) ActivePeers(ctx context.Context) ([]string, error) {
	res, err := c.call(ctx, protocol.NewGet())
	if err != nil {
		return nil, err
	}
	if res.Address == nil {
		return nil, fmt.Errorf("expected Address, got %q", res.Kind())
	}
	return res.Address.Addresses, nil
}

// Watch returns the unconfirmed transactions the tracker has seen spending o.
func (c *Client) Watch(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error) {
	res, err := c.call(ctx, protocol.NewWatch(o))
	if err != nil {
		return nil, err
	}
	if res.WatchResponse == nil {
		return nil, fmt.Errorf("expected WatchResponse, got %q", res.Kind())
	}
	return res.WatchResponse.MempoolTx, nil
}

func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	conn, err := c.connector.Connect(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to tracker %s: %w", c.address, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return conn, nil
}

func (c *Client) call(ctx context.Context, req *protocol.ClientMessage) (*protocol.ServerMessage, error) {
	conn, err := c.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if err := framing.WriteMessage(bufio.NewWriter(conn), req); err != nil {
		return nil, err
	}

	res := &protocol.ServerMessage{}
	if err := framing.ReadMessage(bufio.NewReader(conn), res); err != nil {
		return nil, err
	}
	return res, nil
}
