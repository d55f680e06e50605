package encoding

import (
	"testing"

	"voxeledit.ai/internal/sim/blocks"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := []blocks.Block{{ID: 1}, {ID: 1}, {ID: 1}, {ID: 2, Meta: 3}, {ID: 2, Meta: 3}, {ID: 2, Meta: 4}}
	for i := 0; i < 50; i++ {
		in = append(in, blocks.Block{ID: 700})
	}
	in = append(in, blocks.Air, blocks.Block{ID: 10, Meta: 15})

	out, err := DecodeRLE(EncodeRLE(in), len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %+v want %+v", i, out[i], in[i])
		}
	}
}

func TestRLE_RejectsOverLimit(t *testing.T) {
	in := make([]blocks.Block, 100)
	if _, err := DecodeRLE(EncodeRLE(in), 99); err == nil {
		t.Fatalf("expected limit error")
	}
}

func TestRLE_RejectsTruncated(t *testing.T) {
	enc := EncodeRLE([]blocks.Block{{ID: 300, Meta: 1}})
	if _, err := DecodeRLE(enc[:1], 10); err == nil {
		t.Fatalf("expected error for truncated stream")
	}
}
