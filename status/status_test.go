package status

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSendDoesNotBlock(t *testing.T) {
	// given
	tx, rx := NewChannel(1)

	// when
	tx.Send(Status{State: DBShutdown, Err: ErrDBManagerExited})
	tx.Send(Status{State: MonitorShutdown, Err: ErrMonitorExited})

	// then
	require.Len(t, rx, 1)
	st := <-rx
	require.Equal(t, DBShutdown, st.State)
	require.ErrorIs(t, st.Err, ErrDBManagerExited)
}

func TestSendOnNilSender(t *testing.T) {
	var tx Sender
	require.NotPanics(t, func() {
		tx.Send(Status{State: ServerShutdown, Err: ErrServerExited})
	})
}

func TestStateString(t *testing.T) {
	require.Equal(t, "DBShutdown", DBShutdown.String())
	require.Equal(t, "MonitorShutdown", MonitorShutdown.String())
	require.Equal(t, "ServerShutdown", ServerShutdown.String())
	require.Equal(t, "Unknown", State(0).String())
}
