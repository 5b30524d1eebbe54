package monitor_test

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"sentinel/datamodel/peer"
	"sentinel/net/connector"
	"sentinel/net/framing"
	"sentinel/tracker/monitor"
	"sentinel/tracker/protocol"
	"sentinel/tracker/registry"

	"github.com/benbjohnson/clock"
)

var (
	_ connector.Connector  = (*ConnectorMock)(nil)
	_ monitor.PeerRegistry = (*RegistryMock)(nil)
)

type ConnectorMock struct {
	mu    sync.Mutex
	calls []string

	ConnectFunc func(ctx context.Context, addr string) (net.Conn, error)
}

func (c *ConnectorMock) Connect(ctx context.Context, addr string) (net.Conn, error) {
	c.mu.Lock()
	c.calls = append(c.calls, addr)
	c.mu.Unlock()

	return c.ConnectFunc(ctx, addr)
}

func (c *ConnectorMock) Calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.calls...)
}

type UpdateCall struct {
	Address peer.Address
	Record  peer.Record
}

type RegistryMock struct {
	mu            sync.Mutex
	updates       []UpdateCall
	queryAllCalls int

	Entries      []registry.Entry
	QueryAllFunc func(ctx context.Context) ([]registry.Entry, error)
}

func (r *RegistryMock) QueryAll(ctx context.Context) ([]registry.Entry, error) {
	r.mu.Lock()
	r.queryAllCalls++
	r.mu.Unlock()

	if r.QueryAllFunc != nil {
		return r.QueryAllFunc(ctx)
	}
	return r.Entries, nil
}

func (r *RegistryMock) Update(ctx context.Context, addr peer.Address, rec peer.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updates = append(r.updates, UpdateCall{Address: addr, Record: rec})
	return nil
}

func (r *RegistryMock) Updates() []UpdateCall {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]UpdateCall(nil), r.updates...)
}

func (r *RegistryMock) QueryAllCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.queryAllCalls
}

// fakePeer returns the client end of an in-memory connection whose far end reads one
// framed Ping, hands it to pings (if not nil) and answers with reply (if not nil).
func fakePeer(reply any, pings chan<- *protocol.ServerMessage) net.Conn {
	client, server := net.Pipe()

	go func() {
		defer server.Close()

		var msg protocol.ServerMessage
		if err := framing.ReadMessage(server, &msg); err != nil {
			return
		}
		if pings != nil {
			pings <- &msg
		}
		if reply != nil {
			_ = framing.WriteMessage(server, reply)
		}
	}()

	return client
}

// silentPeer accepts the Ping and never answers.
func silentPeer() net.Conn {
	client, server := net.Pipe()

	go func() {
		var msg protocol.ServerMessage
		_ = framing.ReadMessage(server, &msg)
		// keep the far end open until the monitor gives up
		buf := make([]byte, 1)
		_, _ = server.Read(buf)
		server.Close()
	}()

	return client
}

// timerClock is a mock clock that reports every timer it creates,
// so a test knows a pause has begun before advancing time.
type timerClock struct {
	*clock.Mock
	timers chan time.Duration
}

func newTimerClock() *timerClock {
	return &timerClock{Mock: clock.NewMock(), timers: make(chan time.Duration, 16)}
}

func (c *timerClock) Timer(d time.Duration) *clock.Timer {
	t := c.Mock.Timer(d)
	c.timers <- d
	return t
}

func (c *timerClock) awaitTimer(t *testing.T) time.Duration {
	t.Helper()

	select {
	case d := <-c.timers:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("no timer was started")
		return 0
	}
}
