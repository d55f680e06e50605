// Package encoding holds the compact binary forms used on the wire: run-length
// coded block arrays and compressed selection payloads.
package encoding

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"voxeledit.ai/internal/sim/blocks"
)

// EncodeRLE encodes blocks as repeated uvarint triples (id, meta, run).
func EncodeRLE(cells []blocks.Block) []byte {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	put := func(v uint64) {
		n := binary.PutUvarint(tmp[:], v)
		buf.Write(tmp[:n])
	}
	for i := 0; i < len(cells); {
		b := cells[i]
		run := 1
		for j := i + 1; j < len(cells) && cells[j] == b && run < 1<<31; j++ {
			run++
		}
		put(uint64(b.ID))
		put(uint64(b.Meta))
		put(uint64(run))
		i += run
	}
	return buf.Bytes()
}

// DecodeRLE decodes at most limit cells; longer streams are an error.
func DecodeRLE(raw []byte, limit int) ([]blocks.Block, error) {
	var out []blocks.Block
	next := func(i int) (uint64, int, error) {
		v, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return 0, 0, fmt.Errorf("bad varint at %d", i)
		}
		return v, i + n, nil
	}
	for i := 0; i < len(raw); {
		id, j, err := next(i)
		if err != nil {
			return nil, err
		}
		meta, j, err := next(j)
		if err != nil {
			return nil, err
		}
		run, j, err := next(j)
		if err != nil {
			return nil, err
		}
		i = j
		if id > 0xFFFF || meta > 0xFF {
			return nil, fmt.Errorf("block %d:%d out of range", id, meta)
		}
		if run == 0 || run > uint64(limit-len(out)) {
			return nil, fmt.Errorf("run of %d exceeds the %d cell limit", run, limit)
		}
		b := blocks.Block{ID: uint16(id), Meta: uint8(meta)}
		for k := uint64(0); k < run; k++ {
			out = append(out, b)
		}
	}
	return out, nil
}
