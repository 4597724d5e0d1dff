package cramfs

import (
	"encoding/binary"
	"fmt"
	"io"
)

func toUint32(b []byte, start int, to *uint32) (int, error) {
	if len(b) < start+4 {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+4, len(b))
	}
	*to = binary.LittleEndian.Uint32(b[start:])
	return start + 4, nil
}

func toString(b []byte, start, length int, to *string) (int, error) {
	if len(b) < start+length {
		return 0, fmt.Errorf("%w: expected at least %d bytes, received: %d", io.EOF, start+length, len(b))
	}
	*to = string(b[start : start+length])
	return start + length, nil
}
