package voxel

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrBadPayload = errors.New("voxel: bad selection payload")

var magic = [4]byte{'V', 'S', 'L', '1'}

const headerLen = 4 + 3

// MarshalBinary encodes the extent followed by the voxel bits, x fastest.
func (s *Selection) MarshalBinary() ([]byte, error) {
	if !ValidSize(s.xs, s.ys, s.zs) {
		return nil, fmt.Errorf("voxel: cannot encode %dx%dx%d selection", s.xs, s.ys, s.zs)
	}
	n := s.xs * s.ys * s.zs
	out := make([]byte, headerLen+(n+7)/8)
	copy(out, magic[:])
	out[4] = byte(s.xs - 1)
	out[5] = byte(s.ys - 1)
	out[6] = byte(s.zs - 1)
	body := out[headerLen:]
	var tmp [8]byte
	for i, w := range s.words {
		binary.LittleEndian.PutUint64(tmp[:], w)
		copy(body[i*8:], tmp[:])
	}
	return out, nil
}

func (s *Selection) UnmarshalBinary(b []byte) error {
	if len(b) < headerLen || [4]byte(b[:4]) != magic {
		return ErrBadPayload
	}
	xs, ys, zs := int(b[4])+1, int(b[5])+1, int(b[6])+1
	n := xs * ys * zs
	body := b[headerLen:]
	if len(body) != (n+7)/8 {
		return fmt.Errorf("%w: body is %d bytes, want %d", ErrBadPayload, len(body), (n+7)/8)
	}
	s.ResizeAndClear(xs, ys, zs)
	var tmp [8]byte
	for i := range s.words {
		clear(tmp[:])
		copy(tmp[:], body[i*8:])
		s.words[i] = binary.LittleEndian.Uint64(tmp[:])
	}
	s.trimTail()
	return nil
}

// Decode is a convenience wrapper around UnmarshalBinary.
func Decode(b []byte) (*Selection, error) {
	s := &Selection{}
	if err := s.UnmarshalBinary(b); err != nil {
		return nil, err
	}
	return s, nil
}
