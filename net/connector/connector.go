// Package connector establishes outbound byte-stream connections to peers.
package connector

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/net/proxy"

	log "github.com/sirupsen/logrus"
)

var ErrNoContextDialer = errors.New("proxy dialer does not support contexts")

// Connector opens a connection to a peer address (host:port).
type Connector interface {
	Connect(ctx context.Context, addr string) (net.Conn, error)
}

var (
	_ Connector = (*Direct)(nil)
	_ Connector = (*SOCKS5)(nil)
)

// Direct dials peers without a proxy. Used for tests and local integration setups.
type Direct struct {
	dialer net.Dialer
}

func NewDirect() *Direct {
	return &Direct{}
}

func (d *Direct) Connect(ctx context.Context, addr string) (net.Conn, error) {
	return d.dialer.DialContext(ctx, "tcp", addr)
}

// SOCKS5 dials peers through a local SOCKS5 proxy, typically a Tor daemon.
// Hostnames are passed to the proxy unresolved so .onion addresses work.
type SOCKS5 struct {
	proxyAddr string
	dialer    proxy.ContextDialer
}

func NewSOCKS5(proxyAddr string) (*SOCKS5, error) {
	d, err := proxy.SOCKS5("tcp", proxyAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("failed to create SOCKS5 dialer for %s: %w", proxyAddr, err)
	}

	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, ErrNoContextDialer
	}

	log.Infof("Using SOCKS5 proxy at %s", proxyAddr)

	return &SOCKS5{proxyAddr: proxyAddr, dialer: cd}, nil
}

func (s *SOCKS5) Connect(ctx context.Context, addr string) (net.Conn, error) {
	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("socks5 %s: %w", s.proxyAddr, err)
	}
	return conn, nil
}
