package client_test

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"sentinel/net/framing"
	"sentinel/tracker/client"
	"sentinel/tracker/protocol"

	"github.com/stretchr/testify/require"
)

type ConnectorMock struct {
	ConnectFunc func(ctx context.Context, addr string) (net.Conn, error)
}

func (c *ConnectorMock) Connect(ctx context.Context, addr string) (net.Conn, error) {
	return c.ConnectFunc(ctx, addr)
}

// tracker answers one request with reply and hands the request to requests.
func tracker(reply any, requests chan<- *protocol.ClientMessage) *ConnectorMock {
	return &ConnectorMock{ConnectFunc: func(ctx context.Context, addr string) (net.Conn, error) {
		c, s := net.Pipe()
		go func() {
			defer s.Close()
			var req protocol.ClientMessage
			if err := framing.ReadMessage(s, &req); err != nil {
				return
			}
			requests <- &req
			if reply != nil {
				_ = framing.WriteMessage(s, reply)
			}
		}()
		return c, nil
	}}
}

func TestActivePeers(t *testing.T) {
	tt := []struct {
		name          string
		reply         any
		expected      []string
		expectedError bool
	}{
		{
			name:     "address reply",
			reply:    protocol.NewAddress([]string{"a.onion:1", "b.onion:2"}),
			expected: []string{"a.onion:1", "b.onion:2"},
		},
		{
			name:          "wrong variant",
			reply:         protocol.NewPing("a.onion", 1),
			expectedError: true,
		},
		{
			name:          "no reply",
			expectedError: true,
		},
	}

	for _, tc := range tt {
		t.Run(tc.name, func(t *testing.T) {
			// given
			requests := make(chan *protocol.ClientMessage, 1)
			c := client.New(tracker(tc.reply, requests), "tracker.onion:8080")
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			// when
			active, err := c.ActivePeers(ctx)

			// then
			req := <-requests
			require.NotNil(t, req.Get)
			if tc.expectedError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, active)
		})
	}
}

func TestRegisterSendsPost(t *testing.T) {
	// given
	requests := make(chan *protocol.ClientMessage, 1)
	c := client.New(tracker(nil, requests), "tracker.onion:8080")

	// when
	err := c.Register(context.Background(), "me.onion:9000")

	// then
	require.NoError(t, err)
	req := <-requests
	require.NotNil(t, req.Post)
	require.Equal(t, "me.onion:9000", req.Post.Address)
}

func TestConnectFailure(t *testing.T) {
	// given
	refused := errors.New("refused")
	c := client.New(&ConnectorMock{ConnectFunc: func(ctx context.Context, addr string) (net.Conn, error) {
		return nil, refused
	}}, "tracker.onion:8080")

	// when
	_, err := c.ActivePeers(context.Background())

	// then
	require.ErrorIs(t, err, refused)
}
