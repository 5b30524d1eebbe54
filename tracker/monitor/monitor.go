// Package monitor periodically re-verifies the liveness of every registered peer.
package monitor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"time"

	"sentinel/datamodel/peer"
	"sentinel/helper/timer"
	"sentinel/metrics"
	"sentinel/net/connector"
	"sentinel/net/framing"
	"sentinel/tracker/protocol"
	"sentinel/tracker/registry"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultCooldown       = 15 * time.Minute
	DefaultAttempts       = 3
	DefaultRetryBackoff   = 1 * time.Second
	DefaultAttemptTimeout = 30 * time.Second
)

var ErrUnexpectedMessage = errors.New("unexpected message")

type Config struct {
	OnionAddress   string        // Our own address, announced in every Ping
	Port           uint16        // Our own port, announced in every Ping
	Cooldown       time.Duration // Minimum age of a peer's last transition before it is probed again; also the scan period
	Attempts       uint64        // Probe attempts per peer per scan
	RetryBackoff   time.Duration // Pause between failed attempts
	AttemptTimeout time.Duration // Deadline for one connect+ping+pong exchange
}

func DefaultConfig() Config {
	return Config{
		Cooldown:       DefaultCooldown,
		Attempts:       DefaultAttempts,
		RetryBackoff:   DefaultRetryBackoff,
		AttemptTimeout: DefaultAttemptTimeout,
	}
}

// PeerRegistry is the part of the registry the monitor needs.
type PeerRegistry interface {
	QueryAll(ctx context.Context) ([]registry.Entry, error)
	Update(ctx context.Context, addr peer.Address, rec peer.Record) error
}

type Monitor struct {
	cfg       Config
	registry  PeerRegistry
	connector connector.Connector
	clock     clock.Clock
}

type Option func(*Monitor)

// WithClock replaces the wall clock, mostly for tests.
func WithClock(clk clock.Clock) Option {
	return func(m *Monitor) {
		m.clock = clk
	}
}

func New(cfg Config, reg PeerRegistry, conn connector.Connector, opts ...Option) *Monitor {
	if cfg.Attempts == 0 {
		cfg.Attempts = 1
	}

	m := &Monitor{
		cfg:       cfg,
		registry:  reg,
		connector: conn,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Run scans the roster, then sleeps for the cooldown period, until ctx is cancelled.
// A scan that cannot reach the registry is skipped and retried after the retry backoff.
func (m *Monitor) Run(ctx context.Context) error {
	log.Infof("Starting to monitor peers (cooldown %v, %d attempts)", m.cfg.Cooldown, m.cfg.Attempts)

	for {
		wait := m.cfg.Cooldown
		if err := m.Scan(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("monitor: skipping scan: %v", err)
			wait = m.cfg.RetryBackoff
		}

		if err := timer.Sleep(ctx, m.clock, wait); err != nil {
			log.Debugf("monitor: stopping: %v", err)
			return err
		}
	}
}

// Scan probes, one after another, every peer whose last transition is older than the cooldown period.
func (m *Monitor) Scan(ctx context.Context) error {
	start := m.clock.Now()

	entries, err := m.registry.QueryAll(ctx)
	if err != nil {
		return err
	}

	probed := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		if !e.Record.DueForProbe(m.clock.Now(), m.cfg.Cooldown) {
			continue
		}

		probed++
		m.checkPeer(ctx, e)
	}

	metrics.ScanDuration.Observe(m.clock.Since(start).Seconds())
	log.Debugf("monitor: scan done, %d peers known, %d probed", len(entries), probed)

	return nil
}

// checkPeer probes one peer and writes the outcome back to the registry.
func (m *Monitor) checkPeer(ctx context.Context, e registry.Entry) {
	log.Infof("Probing %s", e.Address)

	var (
		attempt uint64
		pong    *protocol.Pong
	)

	operation := func() error {
		attempt++
		p, err := m.probe(ctx, e.Address)
		if err != nil {
			m.logFailure(e.Address, attempt, err)
			return err
		}
		pong = p
		return nil
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(m.cfg.RetryBackoff), m.cfg.Attempts-1),
		ctx,
	)

	err := backoff.RetryNotifyWithTimer(operation, policy, nil, timer.NewBackoffTimer(m.clock))
	if err == nil {
		metrics.Probes.WithLabelValues(resultSuccess).Inc()
		log.Infof("Peer %s is alive (announced as %s)", e.Address, pong.Address)
		if err := m.registry.Update(ctx, pong.Address, peer.Alive(pong.Address, m.clock.Now())); err != nil {
			log.Warnf("monitor: failed to record %s as alive: %v", pong.Address, err)
		}
		return
	}

	if ctx.Err() != nil {
		return
	}

	if e.Record.Stale {
		log.Debugf("monitor: %s still unreachable, already stale", e.Address)
		return
	}

	log.Warnf("Peer %s unreachable after %d attempts, marking stale", e.Address, attempt)
	metrics.MarkedStale.Inc()
	if err := m.registry.Update(ctx, e.Address, e.Record.MarkStale(m.clock.Now())); err != nil {
		log.Warnf("monitor: failed to mark %s stale: %v", e.Address, err)
	}
}

// probe performs one connect, Ping, Pong exchange.
func (m *Monitor) probe(ctx context.Context, addr peer.Address) (*protocol.Pong, error) {
	actx := ctx
	if m.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		actx, cancel = context.WithTimeout(ctx, m.cfg.AttemptTimeout)
		defer cancel()
	}

	conn, err := m.connector.Connect(actx, addr)
	if err != nil {
		return nil, &probeError{result: resultConnectError, err: err}
	}
	defer conn.Close()

	if deadline, ok := actx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			return nil, &probeError{result: resultTransportError, err: err}
		}
	}

	w := bufio.NewWriter(conn)
	if err := framing.WriteMessage(w, protocol.NewPing(m.cfg.OnionAddress, m.cfg.Port)); err != nil {
		return nil, &probeError{result: resultTransportError, err: err}
	}

	var msg protocol.ClientMessage
	if err := framing.ReadMessage(bufio.NewReader(conn), &msg); err != nil {
		if errors.Is(err, framing.ErrDecode) {
			return nil, &probeError{result: resultDecodeError, err: err}
		}
		return nil, &probeError{result: resultTransportError, err: err}
	}

	if msg.Pong == nil || msg.Pong.Address == "" {
		return nil, &probeError{
			result: resultDecodeError,
			err:    fmt.Errorf("%w: %q instead of a Pong", ErrUnexpectedMessage, msg.Kind()),
		}
	}

	return msg.Pong, nil
}

func (m *Monitor) logFailure(addr peer.Address, attempt uint64, err error) {
	result := resultTransportError
	var pe *probeError
	if errors.As(err, &pe) {
		result = pe.result
	}
	metrics.Probes.WithLabelValues(result).Inc()

	l := log.WithFields(log.Fields{"peer": addr, "attempt": fmt.Sprintf("%d/%d", attempt, m.cfg.Attempts)})
	switch result {
	case resultConnectError:
		l.Warnf("Failed to connect: %v", err)
	case resultDecodeError:
		l.Errorf("Protocol mismatch: %v", err)
	default:
		l.Warnf("Ping exchange failed: %v", err)
	}
}
