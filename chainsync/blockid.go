// Package chainsync implements the chain synchronizer: the actor-like
// component that coordinates peers to download block headers, operations,
// and mempool operations, decides when a block is applicable, dispatches
// block application, and tracks local/remote head (spec.md §4.2).
package chainsync

import (
	"encoding/hex"

	"github.com/tzgo/tezos-node/context"
)

// HashLength is the width of a block identifier, matching context.HashLength
// (spec.md §3: "All content addresses ... use this width").
const HashLength = context.HashLength

// BlockHash identifies a block header. It is a distinct type from
// context.Hash even though both are 32 bytes: a block hash is produced and
// verified by the wire/peer layer (an external collaborator per spec.md §1),
// not by the Merkle hashing scheme in package context.
type BlockHash [HashLength]byte

// ZeroBlockHash is used as the predecessor of the genesis block.
var ZeroBlockHash = BlockHash{}

// IsZero reports whether h is the zero hash.
func (h BlockHash) IsZero() bool { return h == ZeroBlockHash }

// Hex returns the hex-encoded string representation of h.
func (h BlockHash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h BlockHash) String() string { return h.Hex() }

// OperationHash identifies a mempool operation.
type OperationHash [HashLength]byte

// Hex returns the hex-encoded string representation of h.
func (h OperationHash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h OperationHash) String() string { return h.Hex() }

// ChainID identifies the (single, per spec.md Non-goals) chain this
// synchronizer instance serves.
type ChainID [4]byte

// Hex returns the hex-encoded string representation of id.
func (id ChainID) Hex() string { return hex.EncodeToString(id[:]) }

// Fitness is an ordered vector of byte strings, compared lexicographically
// to rank competing heads at the same level (spec.md GLOSSARY).
type Fitness [][]byte

// Compare returns -1, 0, or 1 as f is less than, equal to, or greater than
// other, comparing element by element and, for a common prefix, the
// shorter vector is less (lexicographic tuple order over byte strings).
func (f Fitness) Compare(other Fitness) int {
	n := len(f)
	if len(other) < n {
		n = len(other)
	}
	for i := 0; i < n; i++ {
		if c := compareBytes(f[i], other[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(f) < len(other):
		return -1
	case len(f) > len(other):
		return 1
	default:
		return 0
	}
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// StrictlyDominates reports whether f strictly outranks other, used when
// CurrentBranch announcements and head-advancement decisions need a strict
// dominance test rather than a three-way compare (spec.md §4.2 "Peer
// protocol (inbound)": "or fitness fails a strict dominance test").
func (f Fitness) StrictlyDominates(other Fitness) bool {
	return f.Compare(other) > 0
}

// BlockHeader is the immutable header data of a block (spec.md §3 "Block
// identity"). Headers never mutate once ingested; only a block's metadata
// does.
type BlockHeader struct {
	Level          int32
	Predecessor    BlockHash
	Fitness        Fitness
	OperationsHash [HashLength]byte
	Context        context.Hash // commit hash the block's MCS state roots at
	Proto          uint8
	ValidationPass uint8
	Timestamp      int64 // Unix seconds
	ProtocolData   []byte
}

// OperationKey addresses one validation pass's worth of operations for a
// block (spec.md §4.3 OperationsStorage: keyed by (block_hash,
// validation_pass)).
type OperationKey struct {
	Block BlockHash
	Pass  int8
}
