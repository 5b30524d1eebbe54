// Package server accepts inbound peer connections: self-registration, roster lookups and mempool watches.
// Each connection carries exactly one framed request and at most one framed reply.
package server

import (
	"bufio"
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"sentinel/datamodel/mempool"
	"sentinel/datamodel/peer"
	"sentinel/metrics"
	"sentinel/net/framing"
	"sentinel/tracker/protocol"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"
)

const DefaultConnTimeout = 30 * time.Second

// PeerRegistry is the part of the registry the server needs.
type PeerRegistry interface {
	Add(ctx context.Context, addr peer.Address, rec peer.Record) error
	QueryActive(ctx context.Context) ([]peer.Address, error)
	WatchUtxo(ctx context.Context, o mempool.Outpoint) ([]mempool.Tx, error)
}

type Server struct {
	listener    net.Listener
	registry    PeerRegistry
	clock       clock.Clock
	connTimeout time.Duration
	wg          sync.WaitGroup

	// Concurrent roster requests share one registry query
	sg singleflight.Group
}

type Option func(*Server)

func WithClock(clk clock.Clock) Option {
	return func(s *Server) {
		s.clock = clk
	}
}

// WithConnTimeout bounds the lifetime of a single inbound connection.
func WithConnTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.connTimeout = d
	}
}

func New(listener net.Listener, reg PeerRegistry, opts ...Option) *Server {
	s := &Server{
		listener:    listener,
		registry:    reg,
		clock:       clock.New(),
		connTimeout: DefaultConnTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Serve accepts connections until ctx is cancelled, then waits for in-flight connections to finish.
func (s *Server) Serve(ctx context.Context) error {
	defer s.wg.Wait()

	// Closing the listener unblocks Accept
	go func() {
		<-ctx.Done()
		log.Infof("server: context cancelled, closing listener %s", s.listener.Addr())
		if err := s.listener.Close(); err != nil {
			log.Warnf("server: error closing listener %s: %v", s.listener.Addr(), err)
		}
	}()

	log.Infof("Tracker server listening on %s", s.listener.Addr())

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				log.Warnf("server: accept error on %s: %v; retrying in %v", s.listener.Addr(), err, tempDelay)
				s.clock.Sleep(tempDelay)
				continue
			}

			log.Errorf("server: critical accept error on %s: %v", s.listener.Addr(), err)
			return err
		}

		tempDelay = 0
		log.Debugf("server: accepted connection from %s", conn.RemoteAddr())

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	cctx, cancel := context.WithTimeout(ctx, s.connTimeout)
	defer cancel()

	if deadline, ok := cctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	var req protocol.ClientMessage
	if err := framing.ReadMessage(bufio.NewReader(conn), &req); err != nil {
		if errors.Is(err, framing.ErrDecode) {
			log.Errorf("server: malformed request from %s: %v", conn.RemoteAddr(), err)
		} else {
			log.Debugf("server: failed to read request from %s: %v", conn.RemoteAddr(), err)
		}
		return
	}

	metrics.ServerRequests.WithLabelValues(req.Kind()).Inc()

	reply, err := s.handle(cctx, &req)
	if err != nil {
		log.Errorf("server: %s request from %s failed: %v", req.Kind(), conn.RemoteAddr(), err)
		return
	}
	if reply == nil {
		return
	}

	if err := framing.WriteMessage(bufio.NewWriter(conn), reply); err != nil {
		log.Warnf("server: failed to reply to %s: %v", conn.RemoteAddr(), err)
	}
}

// handle dispatches one request. A nil reply means nothing is sent back.
func (s *Server) handle(ctx context.Context, req *protocol.ClientMessage) (*protocol.ServerMessage, error) {
	switch {
	case req.Post != nil:
		addr := req.Post.Address
		if addr == "" {
			return nil, errors.New("registration without an address")
		}
		log.Infof("Registering peer %s", addr)
		return nil, s.registry.Add(ctx, addr, peer.Alive(addr, s.clock.Now()))

	case req.Get != nil:
		active, err := s.activePeers(ctx)
		if err != nil {
			return nil, err
		}
		return protocol.NewAddress(active), nil

	case req.Watch != nil:
		txs, err := s.registry.WatchUtxo(ctx, req.Watch.Outpoint)
		if err != nil {
			return nil, err
		}
		return protocol.NewWatchResponse(txs), nil

	case req.Pong != nil:
		log.Debugf("server: ignoring unsolicited Pong from %s", req.Pong.Address)
		return nil, nil
	}

	return nil, protocol.ErrNoVariant
}

// activePeers returns the active roster. Concurrent callers share one registry query,
// which runs detached from any single connection; each caller still waits only until its own ctx is done.
func (s *Server) activePeers(ctx context.Context) ([]peer.Address, error) {
	ch := s.sg.DoChan("active", func() (any, error) {
		qctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.connTimeout)
		defer cancel()
		return s.registry.QueryActive(qctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]peer.Address), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
