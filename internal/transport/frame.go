package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// Stream transports delimit payloads with a two-byte magic followed by a
// big-endian uint16 length. The HTTP transport never frames: each request
// body is already one whole payload.
var streamMagic = [2]byte{0x94, 0xC3}

func encodeStreamFrame(payload []byte) ([]byte, error) {
	if len(payload) > math.MaxUint16 {
		return nil, fmt.Errorf("payload too large for stream frame: %d", len(payload))
	}

	frame := make([]byte, 4+len(payload))
	frame[0] = streamMagic[0]
	frame[1] = streamMagic[1]
	// #nosec G115 -- length is bounded by math.MaxUint16 above.
	binary.BigEndian.PutUint16(frame[2:4], uint16(len(payload)))
	copy(frame[4:], payload)

	return frame, nil
}

// decodeStreamFrame skips noise bytes until the magic, then reads one
// length-prefixed payload from r.
func decodeStreamFrame(r io.Reader) ([]byte, error) {
	if err := seekStreamMagic(r); err != nil {
		return nil, err
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("read stream frame length: %w", err)
	}
	n := int(binary.BigEndian.Uint16(lenBuf[:]))
	if n <= 0 {
		return nil, fmt.Errorf("invalid stream frame length: %d", n)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read stream frame payload: %w", err)
	}

	return payload, nil
}

func seekStreamMagic(r io.Reader) error {
	var b [1]byte
	for {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return fmt.Errorf("seek stream frame magic: %w", err)
		}
		if b[0] != streamMagic[0] {
			continue
		}
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return fmt.Errorf("seek stream frame magic: %w", err)
		}
		if b[0] == streamMagic[1] {
			return nil
		}
	}
}
