package packet

import (
	"bytes"
	"fmt"
	"io"

	robustmqerrors "github.com/robustmq/robustmq/pkg/errors"
)

// maxVarIntBytes bounds the MQTT variable byte integer encoding to its
// spec-defined four-byte maximum (value <= 268,435,455).
const maxVarIntBytes = 4

// encodeVarInt encodes n as an MQTT variable byte integer.
func encodeVarInt(n int) []byte {
	var out []byte
	for {
		b := byte(n % 128)
		n /= 128
		if n > 0 {
			b |= 0x80
		}
		out = append(out, b)
		if n == 0 {
			break
		}
	}
	return out
}

// decodeVarInt reads an MQTT variable byte integer from r.
func decodeVarInt(r io.Reader) (int, error) {
	var value, multiplier int
	buf := make([]byte, 1)
	for i := 0; i < maxVarIntBytes; i++ {
		if _, err := io.ReadFull(r, buf); err != nil {
			return 0, err
		}
		value += int(buf[0]&0x7f) * pow128(multiplier)
		if buf[0]&0x80 == 0 {
			return value, nil
		}
		multiplier++
	}
	return 0, fmt.Errorf("%w: variable byte integer exceeds 4 bytes", robustmqerrors.ErrDecodeError)
}

func pow128(exp int) int {
	result := 1
	for i := 0; i < exp; i++ {
		result *= 128
	}
	return result
}

// readUint16 reads a 2-byte big-endian integer.
func readUint16(r io.Reader) (uint16, error) {
	buf := make([]byte, 2)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return uint16(buf[0])<<8 | uint16(buf[1]), nil
}

// readUint32 reads a 4-byte big-endian integer.
func readUint32(r io.Reader) (uint32, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return 0, err
	}
	return uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3]), nil
}

// readString reads a length-prefixed UTF-8 string.
func readString(r io.Reader) (string, error) {
	n, err := readUint16(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// readBinary reads a length-prefixed binary blob.
func readBinary(r io.Reader) ([]byte, error) {
	n, err := readUint16(r)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeUint16(w *bytes.Buffer, v uint16) {
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v))
}

func writeUint32(w *bytes.Buffer, v uint32) {
	w.WriteByte(byte(v >> 24))
	w.WriteByte(byte(v >> 16))
	w.WriteByte(byte(v >> 8))
	w.WriteByte(byte(v))
}

func writeString(w *bytes.Buffer, s string) {
	writeUint16(w, uint16(len(s)))
	w.WriteString(s)
}

func writeBinary(w *bytes.Buffer, b []byte) {
	writeUint16(w, uint16(len(b)))
	w.Write(b)
}
