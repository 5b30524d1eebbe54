// Package framing reads and writes length-prefixed CBOR messages.
// A frame is a 4-byte big-endian payload length followed by the CBOR payload.
package framing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/fxamacker/cbor/v2"
)

// MaxMessageSize bounds the payload of a single frame (1MB)
const MaxMessageSize = 1 << 20

var (
	ErrDecode        = errors.New("malformed message")
	ErrFrameTooLarge = errors.New("frame exceeds maximum message size")
	ErrShortWrite    = errors.New("short write")
	encMode, _       = cbor.EncOptions{Time: cbor.TimeRFC3339Nano}.EncMode()
	decMode, _       = cbor.DecOptions{MaxArrayElements: 65536, MaxMapPairs: 65536}.DecMode()
)

// Validator is implemented by messages that need checks beyond what CBOR decoding provides.
type Validator interface {
	Validate() error
}

type flusher interface {
	Flush() error
}

// WriteMessage encodes v, writes the length prefix and the payload, and flushes w when it is buffered.
func WriteMessage(w io.Writer, v any) error {
	data, err := encMode.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	if len(data) > MaxMessageSize {
		return ErrFrameTooLarge
	}

	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(data)))
	if err := writeFull(w, lenBuf); err != nil {
		return fmt.Errorf("failed to write length: %w", err)
	}

	if err := writeFull(w, data); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	if f, ok := w.(flusher); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush message: %w", err)
		}
	}

	return nil
}

func writeFull(w io.Writer, b []byte) error {
	n, err := w.Write(b)
	if err != nil {
		return err
	}
	if n != len(b) {
		return ErrShortWrite
	}
	return nil
}

// ReadFrame reads one length-prefixed frame and returns its raw payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	lenBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		return nil, fmt.Errorf("failed to read length: %w", err)
	}

	length := binary.BigEndian.Uint32(lenBuf)
	if length > MaxMessageSize {
		return nil, fmt.Errorf("%w: %w (%d bytes)", ErrDecode, ErrFrameTooLarge, length)
	}

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		// The peer promised more bytes than it sent
		if errors.Is(err, io.ErrUnexpectedEOF) || (errors.Is(err, io.EOF) && length > 0) {
			return nil, fmt.Errorf("%w: truncated payload: %v", ErrDecode, err)
		}
		return nil, fmt.Errorf("failed to read message: %w", err)
	}

	return data, nil
}

// ReadMessage reads one frame and decodes it into v.
// A frame that is oversized, truncated, does not decode or fails validation is reported as ErrDecode.
// Anything else is a transport error.
func ReadMessage(r io.Reader, v any) error {
	data, err := ReadFrame(r)
	if err != nil {
		return err
	}

	if err := decMode.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}

	if val, ok := v.(Validator); ok {
		if err := val.Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrDecode, err)
		}
	}

	return nil
}
