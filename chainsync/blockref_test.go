package chainsync

import (
	"encoding/hex"
	"testing"
)

func TestParseBlockIDKeywords(t *testing.T) {
	expr, err := ParseBlockID("head")
	if err != nil || expr.Kind != BlockIDHead {
		t.Fatalf("ParseBlockID(head) = %+v, %v", expr, err)
	}
	expr, err = ParseBlockID("genesis")
	if err != nil || expr.Kind != BlockIDGenesis {
		t.Fatalf("ParseBlockID(genesis) = %+v, %v", expr, err)
	}
}

func TestParseBlockIDLevel(t *testing.T) {
	expr, err := ParseBlockID("42")
	if err != nil {
		t.Fatalf("ParseBlockID(42): %v", err)
	}
	if expr.Kind != BlockIDLevel || expr.Level != 42 {
		t.Fatalf("expected level 42, got %+v", expr)
	}
}

func TestParseBlockIDHash(t *testing.T) {
	raw := make([]byte, HashLength)
	for i := range raw {
		raw[i] = byte(i)
	}
	s := hex.EncodeToString(raw)

	expr, err := ParseBlockID(s)
	if err != nil {
		t.Fatalf("ParseBlockID(hash): %v", err)
	}
	if expr.Kind != BlockIDHash {
		t.Fatalf("expected BlockIDHash, got %+v", expr)
	}
	for i := range raw {
		if expr.Hash[i] != raw[i] {
			t.Fatalf("hash mismatch at byte %d", i)
		}
	}
}

func TestParseBlockIDOffsetForms(t *testing.T) {
	cases := []struct {
		expr       string
		wantOffset int
	}{
		{"head+5", -5},
		{"head-5", 5},
		{"head~5", 5},
	}
	for _, c := range cases {
		expr, err := ParseBlockID(c.expr)
		if err != nil {
			t.Fatalf("ParseBlockID(%q): %v", c.expr, err)
		}
		if expr.Kind != BlockIDOffset {
			t.Fatalf("ParseBlockID(%q): expected BlockIDOffset, got %+v", c.expr, expr)
		}
		if expr.Base != "head" {
			t.Fatalf("ParseBlockID(%q): expected base %q, got %q", c.expr, "head", expr.Base)
		}
		if expr.Offset != c.wantOffset {
			t.Fatalf("ParseBlockID(%q): expected offset %d, got %d", c.expr, c.wantOffset, expr.Offset)
		}
	}
}

// TestParseBlockIDOffsetDoesNotMisparsePlusAsTilde pins down the fix for
// the reference implementation's bug noted in spec.md §9: a hash followed
// by "+N" must split on the '+' that is actually present, not silently
// treat '~' as the separator when there is none.
func TestParseBlockIDOffsetDoesNotMisparsePlusAsTilde(t *testing.T) {
	raw := make([]byte, HashLength)
	for i := range raw {
		raw[i] = byte(i + 1)
	}
	base := hex.EncodeToString(raw)

	expr, err := ParseBlockID(base + "+3")
	if err != nil {
		t.Fatalf("ParseBlockID: %v", err)
	}
	if expr.Kind != BlockIDOffset || expr.Base != base || expr.Offset != -3 {
		t.Fatalf("expected offset -3 against base %q, got %+v", base, expr)
	}
}

func TestParseBlockIDRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "not-a-hash", "deadbeef"} {
		if _, err := ParseBlockID(s); err == nil {
			t.Fatalf("ParseBlockID(%q): expected error", s)
		}
	}
}

func TestResolveBlockIDHeadAndGenesis(t *testing.T) {
	head := Head{Hash: BlockHash{9}, Header: BlockHeader{Level: 10}}
	genesis := BlockHash{0}
	meta := NewMemoryBlockMetaStorage()

	h, err := ResolveBlockID(BlockIDExpr{Kind: BlockIDHead}, head, genesis, meta, nil)
	if err != nil || h != head.Hash {
		t.Fatalf("ResolveBlockID(head) = %v, %v", h, err)
	}
	h, err = ResolveBlockID(BlockIDExpr{Kind: BlockIDGenesis}, head, genesis, meta, nil)
	if err != nil || h != genesis {
		t.Fatalf("ResolveBlockID(genesis) = %v, %v", h, err)
	}
}

func TestResolveBlockIDLevelWalksPredecessors(t *testing.T) {
	meta := NewMemoryBlockMetaStorage()
	genesis := BlockHash{0}
	b1 := BlockHash{1}
	b2 := BlockHash{2}

	_ = meta.Put(genesis, &BlockMeta{Level: 0})
	_ = meta.Put(b1, &BlockMeta{Level: 1, Predecessor: genesis})
	_ = meta.Put(b2, &BlockMeta{Level: 2, Predecessor: b1})

	head := Head{Hash: b2, Header: BlockHeader{Level: 2}}

	h, err := ResolveBlockID(BlockIDExpr{Kind: BlockIDLevel, Level: 0}, head, genesis, meta, nil)
	if err != nil {
		t.Fatalf("ResolveBlockID(level 0): %v", err)
	}
	if h != genesis {
		t.Fatalf("expected genesis, got %v", h)
	}
}

func TestResolveBlockIDOffsetRecursesThroughBase(t *testing.T) {
	meta := NewMemoryBlockMetaStorage()
	genesis := BlockHash{0}
	b1 := BlockHash{1}
	b2 := BlockHash{2}

	_ = meta.Put(genesis, &BlockMeta{Level: 0})
	_ = meta.Put(b1, &BlockMeta{Level: 1, Predecessor: genesis})
	_ = meta.Put(b2, &BlockMeta{Level: 2, Predecessor: b1})

	head := Head{Hash: b2, Header: BlockHeader{Level: 2}}

	h, err := ResolveBlockID(BlockIDExpr{Kind: BlockIDOffset, Base: "head", Offset: 2}, head, genesis, meta, nil)
	if err != nil {
		t.Fatalf("ResolveBlockID(head~2): %v", err)
	}
	if h != genesis {
		t.Fatalf("expected genesis at head~2, got %v", h)
	}
}
