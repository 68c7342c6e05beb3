package chainsync

// The twelve wire messages of spec.md §6, as Go structs. The framing that
// puts these on the wire (encoding, signatures, chunking) is an external
// collaborator per spec.md §1 ("wire-level peer handshake/framing"); this
// package only defines the payload shapes its handlers consume and
// produce, and the Submit/outbound-send seams a peer-layer adapter calls
// into (see synchronizer.go's Outbound interface).

// GetCurrentBranch requests the sender's current branch for chainID.
type GetCurrentBranch struct {
	ChainID ChainID
}

// CurrentBranch announces a peer's current head plus a history of block
// hashes leading to it, used to seed block-header downloads.
type CurrentBranch struct {
	ChainID ChainID
	Head    BlockHeader
	HeadID  BlockHash
	History []BlockHash
}

// GetCurrentHead requests the sender's current head and mempool snapshot.
type GetCurrentHead struct {
	ChainID ChainID
}

// CurrentHead announces a peer's current head and (possibly empty)
// mempool snapshot.
type CurrentHead struct {
	ChainID ChainID
	Head    BlockHeader
	HeadID  BlockHash
	Mempool MempoolSnapshot
}

// MempoolSnapshot is a point-in-time view of unconfirmed operations,
// grouped as known-valid and pending (spec.md GLOSSARY "Mempool").
type MempoolSnapshot struct {
	KnownValid []OperationHash
	Pending    []OperationHash
}

// Empty reports whether the snapshot carries no operations at all.
func (m MempoolSnapshot) Empty() bool {
	return len(m.KnownValid) == 0 && len(m.Pending) == 0
}

// GetBlockHeaders requests the headers for the given hashes.
type GetBlockHeaders struct {
	Hashes []BlockHash
}

// BlockHeaderMsg carries one block header and its identity hash (named
// with a Msg suffix to avoid colliding with the BlockHeader data type).
type BlockHeaderMsg struct {
	Hash   BlockHash
	Header BlockHeader
}

// GetOperationsForBlocks requests operations for the given (block,
// validation pass) keys.
type GetOperationsForBlocks struct {
	Keys []OperationKey
}

// OperationsForBlocks carries the operations for one validation pass of
// one block.
type OperationsForBlocks struct {
	Key        OperationKey
	Operations [][]byte
}

// GetOperations requests mempool operations by hash.
type GetOperations struct {
	Hashes []OperationHash
}

// Operation carries one mempool operation.
type Operation struct {
	Hash OperationHash
	Data []byte
}

// Bootstrap announces that the sender considers itself bootstrapped.
type Bootstrap struct{}

// Disconnect notifies the synchronizer that a peer connection ended.
type Disconnect struct {
	Reason string
}
