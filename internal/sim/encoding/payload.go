package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"voxeledit.ai/internal/sim/blocks"
	"voxeledit.ai/internal/sim/fragment"
	"voxeledit.ai/internal/sim/voxel"
)

var ErrPayloadTooLarge = errors.New("encoding: payload too large")

const (
	flagSubstrate byte = 1 << 0
)

// EncodePayload packs a selection and an optional substrate into the base64
// zstd blob carried by SELECTION messages. The substrate must be captured on
// exactly the selection's voxels.
func EncodePayload(sel *voxel.Selection, substrate *fragment.Fragment) (string, error) {
	selBytes, err := sel.MarshalBinary()
	if err != nil {
		return "", err
	}
	var body bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte
	body.Write(tmp[:binary.PutUvarint(tmp[:], uint64(len(selBytes)))])
	body.Write(selBytes)
	if substrate == nil {
		body.WriteByte(0)
	} else {
		if !substrate.Mask().Equal(sel) {
			return "", fmt.Errorf("encoding: substrate does not match the selection")
		}
		body.WriteByte(flagSubstrate)
		cells := make([]blocks.Block, 0, substrate.Count())
		substrate.Each(func(_, _, _ int, b blocks.Block) { cells = append(cells, b) })
		body.Write(EncodeRLE(cells))
	}

	var out bytes.Buffer
	zw, err := zstd.NewWriter(&out, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return "", err
	}
	if _, err := zw.Write(body.Bytes()); err != nil {
		zw.Close()
		return "", err
	}
	if err := zw.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(out.Bytes()), nil
}

// DecodePayload reverses EncodePayload. Payloads whose compressed or
// decompressed size exceeds maxBytes fail with ErrPayloadTooLarge.
func DecodePayload(s string, maxBytes int) (*voxel.Selection, *fragment.Fragment, error) {
	if base64.StdEncoding.DecodedLen(len(s)) > maxBytes {
		return nil, nil, ErrPayloadTooLarge
	}
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", voxel.ErrBadPayload, err)
	}
	zr, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, nil, err
	}
	defer zr.Close()
	body, err := io.ReadAll(io.LimitReader(zr, int64(maxBytes)+1))
	if len(body) > maxBytes {
		return nil, nil, ErrPayloadTooLarge
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", voxel.ErrBadPayload, err)
	}

	n, k := binary.Uvarint(body)
	if k <= 0 || n > uint64(len(body)-k) {
		return nil, nil, fmt.Errorf("%w: bad selection length", voxel.ErrBadPayload)
	}
	sel, err := voxel.Decode(body[k : k+int(n)])
	if err != nil {
		return nil, nil, err
	}
	rest := body[k+int(n):]
	if len(rest) == 0 {
		return nil, nil, fmt.Errorf("%w: missing flags", voxel.ErrBadPayload)
	}
	if rest[0]&flagSubstrate == 0 {
		return sel, nil, nil
	}
	count := sel.Count()
	cells, err := DecodeRLE(rest[1:], count)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: substrate: %v", voxel.ErrBadPayload, err)
	}
	if len(cells) != count {
		return nil, nil, fmt.Errorf("%w: substrate has %d cells, selection %d", voxel.ErrBadPayload, len(cells), count)
	}
	f := fragment.New(sel.XSize(), sel.YSize(), sel.ZSize())
	i := 0
	sel.Each(func(x, y, z int) {
		f.Set(x, y, z, cells[i])
		i++
	})
	return sel, f, nil
}
