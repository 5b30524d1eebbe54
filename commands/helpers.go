package commands

import (
	"fmt"
	"net"
	"strconv"

	"sentinel/config"
	"sentinel/datamodel/mempool"
	"sentinel/datastore/leveldb"
	"sentinel/datastore/memory"
	"sentinel/net/connector"

	log "github.com/sirupsen/logrus"
)

func newConnector(cfg *config.Config) (connector.Connector, error) {
	switch cfg.Network.Mode {
	case config.NetworkModeDirect:
		log.Warn("Network mode is direct, peers are dialed without Tor")
		return connector.NewDirect(), nil
	case config.NetworkModeTor:
		return connector.NewSOCKS5(cfg.Network.SocksAddress)
	}
	return nil, fmt.Errorf("%w: unknown network mode %q", config.ErrInvalidConfig, cfg.Network.Mode)
}

// newMempoolStore opens the LevelDB mempool index, or an empty in-memory one when no path is configured.
func newMempoolStore(cfg *config.Config) (mempool.Store, error) {
	if cfg.DataStore.MempoolPath == "" {
		log.Warn("No mempool path configured, using an empty in-memory index")
		return memory.New(), nil
	}
	return leveldb.NewMempoolIndex(cfg.DataStore.MempoolPath)
}

// trackerAddress is where clients reach the tracker: the onion endpoint over Tor, the listener otherwise.
func trackerAddress(cfg *config.Config) string {
	if cfg.Network.Mode == config.NetworkModeDirect {
		return cfg.Tracker.ListenAddress
	}
	return net.JoinHostPort(cfg.Tracker.OnionAddress, strconv.Itoa(int(cfg.Tracker.Port)))
}
