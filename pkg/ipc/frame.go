package ipc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds a single payload. Samples and history pages are far smaller.
const MaxFrameSize = 8 << 20

// ErrFrameTooLarge is returned when a length prefix exceeds MaxFrameSize.
var ErrFrameTooLarge = errors.New("ipc frame too large")

// ReadFrame reads a length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	return readFrame(r)
}

// WriteFrame writes payload to w with a 4-byte little-endian length prefix.
func WriteFrame(w io.Writer, payload []byte) error {
	return writeFrame(w, payload)
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, length)
	}
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// writeFrame issues one Write so concurrent writers on a conn never interleave
// a header with another frame's body.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}
