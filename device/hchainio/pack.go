package hchainio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// Pack serializes fixed size values (or pointers to them) little endian, in order.
func Pack(elts ...interface{}) ([]byte, error) {
	var buf bytes.Buffer
	for _, e := range elts {
		if e == nil {
			return nil, errors.New("cannot pack nil")
		}
		if err := binary.Write(&buf, binary.LittleEndian, e); err != nil {
			return nil, fmt.Errorf("pack %T: %w", e, err)
		}
	}
	return buf.Bytes(), nil
}

// Unpack fills elts, which must be pointers, from b and returns the number of bytes consumed.
func Unpack(b []byte, elts ...interface{}) (int, error) {
	r := bytes.NewReader(b)
	for _, e := range elts {
		if err := binary.Read(r, binary.LittleEndian, e); err != nil {
			return len(b) - r.Len(), fmt.Errorf("unpack %T: %w", e, err)
		}
	}
	return len(b) - r.Len(), nil
}
