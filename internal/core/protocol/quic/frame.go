package quic

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const headerSize = 4

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// writeFrame writes p prefixed with its big-endian uint32 length. A zero
// length frame is a keep-alive and carries nothing.
func writeFrame(w io.Writer, p []byte) error {
	if uint64(len(p)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(p))
	}
	buf := make([]byte, headerSize+len(p))
	binary.BigEndian.PutUint32(buf, uint32(len(p)))
	copy(buf[headerSize:], p)
	_, err := w.Write(buf)
	return err
}

// readFrame reads the next non-empty frame. limit <= 0 disables the size
// check.
func readFrame(r io.Reader, limit int64) ([]byte, error) {
	var header [headerSize]byte
	for {
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return nil, err
		}
		n := binary.BigEndian.Uint32(header[:])
		if n == 0 {
			continue
		}
		if limit > 0 && int64(n) > limit {
			return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
		}
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			if errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}
		return buf, nil
	}
}
