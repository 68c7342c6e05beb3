package chainsync

import (
	"time"

	"github.com/tzgo/tezos-node/context"
)

// BlockStorage is keyed by block hash and returns a header plus its JSON
// sidecar (spec.md §4.3). The synchronizer writes headers into it as they
// are ingested (and rewrites them with the new context hash once applied)
// and reads them back; package context does not use it.
type BlockStorage interface {
	Get(hash BlockHash) (header *BlockHeader, sidecar []byte, err error)
	Put(hash BlockHash, header *BlockHeader, sidecar []byte) error
}

// BlockMeta is the per-block metadata the synchronizer mutates as blocks
// are applied (spec.md §4.3). Headers are immutable; only this struct
// changes over a block's lifetime.
type BlockMeta struct {
	Level            int32
	Applied          bool
	Successors       []BlockHash
	Predecessor      BlockHash
	MaxOperationsTTL int
}

// BlockMetaStorage is the metadata store backing applicability decisions,
// live-block-range queries, and block-id resolution (spec.md §4.3,
// §6 "find_block_at_distance", §2 "Live blocks").
type BlockMetaStorage interface {
	Get(hash BlockHash) (*BlockMeta, error)
	Put(hash BlockHash, meta *BlockMeta) error

	// FindBlockAtDistance resolves the block at the given distance from
	// from (positive: predecessor direction, toward genesis; negative:
	// successor direction, toward head). Used by blockref.go to resolve
	// <base>+N/<base>-N/<base>~N block-id expressions.
	FindBlockAtDistance(from BlockHash, distance int) (BlockHash, error)

	// GetLiveBlocks returns the blocks within maxOperationsTTL of head
	// (spec.md GLOSSARY "Live blocks"), used for operation-inclusion
	// validation and exercised directly by Testable Properties 12-13.
	GetLiveBlocks(head BlockHash, maxOperationsTTL int) ([]BlockHash, error)
}

// OperationsStorage is keyed by (block_hash, validation_pass) and returns
// the operations messages for that pass (spec.md §4.3).
type OperationsStorage interface {
	Get(key OperationKey) ([][]byte, error)
	Put(key OperationKey, operations [][]byte) error
	// Has reports whether a validation pass has been stored, without
	// paying for a full read — used by the applicability check.
	Has(key OperationKey) (bool, error)
}

// MempoolOperationTTL is the time a mempool-stored operation remains valid
// before eviction (spec.md §4.3 "MempoolStorage ... TTL (60 s)").
const MempoolOperationTTL = 60 * time.Second

// MempoolStorage is keyed by operation hash; puts carry an insertion time
// and TTL (spec.md §4.3).
type MempoolStorage interface {
	Put(hash OperationHash, data []byte, insertedAt time.Time) error
	Get(hash OperationHash) ([]byte, bool, error)
	Delete(hash OperationHash) error
}

// Classification is the outcome of prevalidating a mempool operation
// (spec.md §4.3 "Prevalidator").
type Classification int

const (
	ClassApplied Classification = iota
	ClassRefused
	ClassBranchRefused
	ClassBranchDelayed
	ClassUnknownBranch
	ClassBranchNotAppliedYet
)

// String renders the classification name, used in log messages.
func (c Classification) String() string {
	switch c {
	case ClassApplied:
		return "applied"
	case ClassRefused:
		return "refused"
	case ClassBranchRefused:
		return "branch_refused"
	case ClassBranchDelayed:
		return "branch_delayed"
	case ClassUnknownBranch:
		return "unknown_branch"
	case ClassBranchNotAppliedYet:
		return "branch_not_applied_yet"
	default:
		return "unknown"
	}
}

// Transient reports whether a classification should be silently swallowed
// rather than surfaced as an error (spec.md §7 "Transient prevalidation":
// UnknownBranch and BranchNotAppliedYet "will be re-sent").
func (c Classification) Transient() bool {
	return c == ClassUnknownBranch || c == ClassBranchNotAppliedYet
}

// Prevalidator classifies a mempool operation against the current mempool
// state (spec.md §4.3). It is an opaque collaborator: protocol-specific
// validation logic is explicitly out of scope (spec.md §1).
type Prevalidator interface {
	Prevalidate(chainID ChainID, opHash OperationHash, op []byte, mempool MempoolSnapshot, headContext context.Hash) (Classification, error)
}

// ApplyBlockRequest is the input to BlockApplier.Apply (spec.md §4.3).
type ApplyBlockRequest struct {
	ChainID          ChainID
	BlockHash        BlockHash
	BlockHeader      BlockHeader
	PredHash         BlockHash
	PredHeader       BlockHeader
	Operations       [][][]byte // indexed by validation pass
	MaxOperationsTTL int
}

// BlockApplier drives protocol application of a block: given a request, it
// runs the (out-of-scope) protocol logic, commits the resulting state into
// the Merkle context store, and reports the new context root (spec.md
// §4.3 "BlockApplier").
type BlockApplier interface {
	Apply(req ApplyBlockRequest) (newContext context.Hash, err error)
}
