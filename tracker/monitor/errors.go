package monitor

const (
	resultSuccess        = "success"
	resultConnectError   = "connect_error"
	resultTransportError = "transport_error"
	resultDecodeError    = "decode_error"
)

// probeError tags a failed attempt with its outcome, for logging and metrics.
type probeError struct {
	result string
	err    error
}

func (e *probeError) Error() string {
	return e.result + ": " + e.err.Error()
}

func (e *probeError) Unwrap() error {
	return e.err
}
