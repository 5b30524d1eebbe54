// Package status carries terminal signals from long-running tasks to the process supervisor.
package status

import (
	"errors"

	log "github.com/sirupsen/logrus"
)

var (
	ErrDBManagerExited = errors.New("registry command processing ended")
	ErrMonitorExited   = errors.New("health monitor exited")
	ErrServerExited    = errors.New("tracker server exited")
)

type State int

const (
	DBShutdown State = iota + 1
	MonitorShutdown
	ServerShutdown
)

func (s State) String() string {
	switch s {
	case DBShutdown:
		return "DBShutdown"
	case MonitorShutdown:
		return "MonitorShutdown"
	case ServerShutdown:
		return "ServerShutdown"
	}
	return "Unknown"
}

type Status struct {
	State State
	Err   error
}

// Sender is the write end handed to tasks.
type Sender chan<- Status

// NewChannel creates a buffered status channel. size should cover every task that may report.
func NewChannel(size int) (Sender, <-chan Status) {
	ch := make(chan Status, size)
	return ch, ch
}

// Send reports s without blocking. A full or nil channel drops the status.
func (s Sender) Send(st Status) {
	if s == nil {
		log.Warnf("status: no supervisor, dropping %s: %v", st.State, st.Err)
		return
	}
	select {
	case s <- st:
	default:
		log.Warnf("status: channel full, dropping %s: %v", st.State, st.Err)
	}
}
