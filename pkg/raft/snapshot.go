package raft

import (
	"encoding/binary"
	"fmt"
	"io"
)

// snapshotEncoder/snapshotDecoder frame a sequence of (cf, key, value)
// triples as length-prefixed fields, so a snapshot can be streamed to and
// from a raft.SnapshotSink without holding the whole store in memory.
type snapshotEncoder struct {
	w io.Writer
}

func newSnapshotEncoder(w io.Writer) *snapshotEncoder {
	return &snapshotEncoder{w: w}
}

func (e *snapshotEncoder) encode(cf, key string, value []byte) error {
	for _, field := range [][]byte{[]byte(cf), []byte(key), value} {
		var length [4]byte
		binary.BigEndian.PutUint32(length[:], uint32(len(field)))
		if _, err := e.w.Write(length[:]); err != nil {
			return fmt.Errorf("write field length: %w", err)
		}
		if _, err := e.w.Write(field); err != nil {
			return fmt.Errorf("write field: %w", err)
		}
	}
	return nil
}

type snapshotDecoder struct {
	r io.Reader
}

func newSnapshotDecoder(r io.Reader) *snapshotDecoder {
	return &snapshotDecoder{r: r}
}

func (d *snapshotDecoder) readField() ([]byte, error) {
	var length [4]byte
	if _, err := io.ReadFull(d.r, length[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(length[:])
	buf := make([]byte, n)
	if n > 0 {
		if _, err := io.ReadFull(d.r, buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// decodeAll reads every (cf, key, value) triple and yields it, stopping at
// EOF (a clean end of stream) or the first error either readField or yield
// returns.
func (d *snapshotDecoder) decodeAll(yield func(cf, key string, value []byte) error) error {
	for {
		cf, err := d.readField()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read cf field: %w", err)
		}
		key, err := d.readField()
		if err != nil {
			return fmt.Errorf("read key field: %w", err)
		}
		value, err := d.readField()
		if err != nil {
			return fmt.Errorf("read value field: %w", err)
		}
		if err := yield(string(cf), string(key), value); err != nil {
			return err
		}
	}
}
