package server_test

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"sentinel/datamodel/mempool"
	"sentinel/datamodel/peer"
	"sentinel/datastore/memory"
	"sentinel/net/connector"
	"sentinel/net/framing"
	"sentinel/tracker/client"
	"sentinel/tracker/protocol"
	"sentinel/tracker/registry"
	"sentinel/tracker/server"

	"github.com/libsv/go-p2p/chaincfg/chainhash"
	"github.com/stretchr/testify/require"
)

const txidO = "0e3e2357e806b6cdb1f70b54c3a3a17b6714ee1f0e68bebb44a74b1efd512098"

type fixture struct {
	client *client.Client
	reg    *registry.Client
	store  *memory.MempoolIndex
	addr   string
	served chan error
	cancel context.CancelFunc
}

func startServer(t *testing.T) *fixture {
	t.Helper()

	store := memory.New()
	r := registry.New(store, nil, 0)

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	srv := server.New(l, r.Client(), server.WithConnTimeout(5*time.Second))

	go r.Run(ctx)
	served := make(chan error, 1)
	go func() { served <- srv.Serve(ctx) }()

	t.Cleanup(func() {
		cancel()
		<-r.Done()
	})

	return &fixture{
		client: client.New(connector.NewDirect(), srv.Addr().String()),
		reg:    r.Client(),
		store:  store,
		addr:   srv.Addr().String(),
		served: served,
		cancel: cancel,
	}
}

func TestRegisterThenActivePeers(t *testing.T) {
	// given
	f := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// when
	require.NoError(t, f.client.Register(ctx, "peerX.onion:9000"))
	require.NoError(t, f.client.Register(ctx, "peerY.onion:9000"))

	// then
	require.Eventually(t, func() bool {
		active, err := f.client.ActivePeers(ctx)
		return err == nil && len(active) == 2
	}, 5*time.Second, 10*time.Millisecond)

	rec, ok, err := f.reg.Query(ctx, "peerX.onion:9000")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "peerX.onion:9000", rec.OnionAddress)
	require.False(t, rec.Stale)
}

func TestActivePeersEmptyRoster(t *testing.T) {
	// given
	f := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// when
	active, err := f.client.ActivePeers(ctx)

	// then
	require.NoError(t, err)
	require.Empty(t, active)
}

func TestWatch(t *testing.T) {
	// given
	f := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	h, err := chainhash.NewHashFromStr(txidO)
	require.NoError(t, err)
	outpoint := mempool.Outpoint{TxID: *h, Vout: 0}

	spender := mempool.Tx{TxID: chainhash.DoubleHashH([]byte("spender")), SeenAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)}
	require.NoError(t, f.store.Put(ctx, spender, []mempool.Outpoint{outpoint}))
	require.NoError(t, f.store.Put(ctx, spender, []mempool.Outpoint{outpoint}))

	// when
	txs, err := f.client.Watch(ctx, outpoint)

	// then
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, spender.TxID, txs[0].TxID)
	require.True(t, spender.SeenAt.Equal(txs[0].SeenAt))
}

func TestMalformedRequestIsDropped(t *testing.T) {
	// given
	f := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// when
	require.NoError(t, framing.WriteMessage(conn, map[string]int{"Nonsense": 1}))

	// then the server hangs up without replying
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)

	// and keeps serving
	_, err = f.client.ActivePeers(ctx)
	require.NoError(t, err)
}

func TestUnsolicitedPongGetsNoReply(t *testing.T) {
	// given
	f := startServer(t)

	conn, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// when
	require.NoError(t, framing.WriteMessage(conn, protocol.NewPong("peerX")))

	// then
	_, err = conn.Read(make([]byte, 1))
	require.ErrorIs(t, err, io.EOF)
}

func TestServeStopsOnCancel(t *testing.T) {
	// given
	f := startServer(t)

	// when
	f.cancel()

	// then
	select {
	case err := <-f.served:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}

	_, err := net.DialTimeout("tcp", f.addr, time.Second)
	require.Error(t, err)
}

func TestBareGetIsAnswered(t *testing.T) {
	// given
	f := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, f.reg.Add(ctx, "peerX.onion:9000", peer.Alive("peerX.onion:9000", time.Now())))

	conn, err := net.Dial("tcp", f.addr)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// when
	require.NoError(t, framing.WriteMessage(conn, "Get"))

	// then
	var res protocol.ServerMessage
	require.NoError(t, framing.ReadMessage(conn, &res))
	require.NotNil(t, res.Address)
	require.Equal(t, []string{"peerX.onion:9000"}, res.Address.Addresses)
}
