// Package node wires the registry, the health monitor and the inbound server into one running tracker.
package node

import (
	"context"
	"errors"
	"net"

	"sentinel/datamodel/mempool"
	"sentinel/metrics"
	"sentinel/net/connector"
	"sentinel/status"
	"sentinel/tracker/monitor"
	"sentinel/tracker/registry"
	"sentinel/tracker/server"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"
)

type Config struct {
	Monitor        monitor.Config
	MetricsAddress string // Empty disables the metrics endpoint
}

type Node struct {
	Registry *registry.Registry
	Monitor  *monitor.Monitor
	Server   *server.Server

	cfg      Config
	statusTx status.Sender
	statusRx <-chan status.Status
}

func New(cfg Config, store mempool.Store, conn connector.Connector, listener net.Listener, monitorOpts ...monitor.Option) *Node {
	// One slot per task that may report
	statusTx, statusRx := status.NewChannel(3)

	reg := registry.New(store, statusTx, registry.DefaultQueueSize)

	n := &Node{
		Registry: reg,
		Monitor:  monitor.New(cfg.Monitor, reg.Client(), conn, monitorOpts...),
		Server:   server.New(listener, reg.Client()),
		cfg:      cfg,
		statusTx: statusTx,
		statusRx: statusRx,
	}

	log.Infof("I am %s:%d, accepting peers on %s", cfg.Monitor.OnionAddress, cfg.Monitor.Port, listener.Addr())

	return n
}

// Run blocks until ctx is cancelled or one of the tracker's tasks stops.
func (n *Node) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return n.Registry.Run(cctx)
	})

	wg.Go(func() error {
		err := n.Monitor.Run(cctx)
		n.statusTx.Send(status.Status{State: status.MonitorShutdown, Err: status.ErrMonitorExited})
		return err
	})

	wg.Go(func() error {
		err := n.Server.Serve(cctx)
		n.statusTx.Send(status.Status{State: status.ServerShutdown, Err: status.ErrServerExited})
		return err
	})

	if n.cfg.MetricsAddress != "" {
		wg.Go(func() error {
			return metrics.Serve(cctx, n.cfg.MetricsAddress)
		})
	}

	// Supervisor: the first terminal status takes everything down
	wg.Go(func() error {
		select {
		case st := <-n.statusRx:
			log.Warnf("Received %s (%v), shutting down", st.State, st.Err)
			return st.Err
		case <-cctx.Done():
			return nil
		}
	})

	err := wg.Wait()
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
