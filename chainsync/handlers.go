package chainsync

import (
	"time"
)

// handleGetCurrentBranch implements spec.md §4.2: "reply with local head
// plus a deterministic history built from a seeded step function using
// (local_peer_id, remote_peer_id) as the seed."
func (s *Synchronizer) handleGetCurrentBranch(peer *PeerState, msg GetCurrentBranch) {
	if !s.chain.hasLocalHead {
		return
	}
	history := deterministicHistory(s.localPeerID, peer.ID, s.chain.localHead.Hash, s.deps.BlockMeta)
	s.send(peer.ID, CurrentBranch{
		ChainID: msg.ChainID,
		Head:    s.chain.localHead.Header,
		HeadID:  s.chain.localHead.Hash,
		History: history,
	})
}

// deterministicHistory builds the announced history for GetCurrentBranch
// replies using a seeded step function over (localID, remoteID), per
// spec.md §4.2. The first step (1 to 4) is chosen by the seed and each
// later step doubles it, walking back from head via FindBlockAtDistance, a standard way to give a peer a
// sparse but bounded-size sketch of the chain without enumerating every
// block.
func deterministicHistory(localID, remoteID string, head BlockHash, metaStorage BlockMetaStorage) []BlockHash {
	seed := seedFromIDs(localID, remoteID)
	const maxEntries = 10

	var history []BlockHash
	distance := 0
	step := 1 + int(seed%4)
	for i := 0; i < maxEntries; i++ {
		distance += step
		h, err := metaStorage.FindBlockAtDistance(head, distance)
		if err != nil {
			break
		}
		history = append(history, h)
		step *= 2
	}
	return history
}

func seedFromIDs(a, b string) uint64 {
	var seed uint64 = 1469598103934665603 // FNV offset basis
	for _, c := range a + "|" + b {
		seed ^= uint64(c)
		seed *= 1099511628211 // FNV prime
	}
	return seed
}

// handleCurrentBranch implements spec.md §4.2: ignore announcements below
// our local head level, and those at our local head level whose fitness
// does not strictly dominate ours; otherwise schedule the history for download, bump the peer's
// head, and advance remote head if this exceeds it.
func (s *Synchronizer) handleCurrentBranch(peer *PeerState, msg CurrentBranch) {
	if s.chain.hasLocalHead {
		if msg.Head.Level < s.chain.localHead.Header.Level {
			return
		}
		if msg.Head.Level == s.chain.localHead.Header.Level &&
			!msg.Head.Fitness.StrictlyDominates(s.chain.localHead.Header.Fitness) {
			return
		}
	}

	peer.UpdateHead(msg.Head.Level, msg.Head.Fitness, s.now())
	s.scheduleHeaderDownloads(peer, append([]BlockHash{msg.HeadID}, msg.History...))

	if !s.chain.hasRemoteHead || msg.Head.Level > s.chain.remoteHead.Header.Level {
		s.chain.updateRemoteHead(msg.HeadID, msg.Head)
	}
}

// scheduleHeaderDownloads enqueues GetBlockHeaders requests for any hash
// we don't already have a header for, respecting the peer's queue
// capacity (spec.md §4.2 "Peer state": batch size 10 per category).
func (s *Synchronizer) scheduleHeaderDownloads(peer *PeerState, hashes []BlockHash) {
	var toRequest []BlockHash
	for _, h := range hashes {
		if existing, _, _ := s.deps.Blocks.Get(h); existing != nil {
			continue
		}
		if peer.AvailableBlockHeaderSlots() <= 0 {
			break
		}
		if err := peer.QueueBlockHeader(h, s.now()); err != nil {
			break
		}
		toRequest = append(toRequest, h)
	}
	if len(toRequest) > 0 {
		s.send(peer.ID, GetBlockHeaders{Hashes: toRequest})
	}
}

// handleGetCurrentHead implements spec.md §4.2: reply with local head plus
// a peer-tailored mempool snapshot (empty when our mempool is empty).
func (s *Synchronizer) handleGetCurrentHead(peer *PeerState, msg GetCurrentHead) {
	if !s.chain.hasLocalHead {
		return
	}
	mp, _ := composeMempoolBroadcast(peer, s.mempool, s.chain.localHead.Hash)
	s.send(peer.ID, CurrentHead{
		ChainID: msg.ChainID,
		Head:    s.chain.localHead.Header,
		HeadID:  s.chain.localHead.Hash,
		Mempool: mp,
	})
}

// handleBlockHeader implements spec.md §4.2: only accept a header if its
// hash was in this peer's queued_block_headers; ingest, dequeue, mark
// response time; if the header needs zero operation passes, it completes
// its operation set immediately and is checked for applicability.
func (s *Synchronizer) handleBlockHeader(peer *PeerState, msg BlockHeaderMsg) error {
	if !peer.DequeueBlockHeader(msg.Hash, s.now()) {
		return ErrNotQueued
	}

	if err := s.deps.Blocks.Put(msg.Hash, &msg.Header, nil); err != nil {
		return err
	}
	if err := s.deps.BlockMeta.Put(msg.Hash, &BlockMeta{
		Level:       msg.Header.Level,
		Predecessor: msg.Header.Predecessor,
	}); err != nil {
		return err
	}
	s.linkSuccessor(msg.Header.Predecessor, msg.Hash)
	s.scheduleOperationDownloads(peer, msg.Hash, msg.Header.ValidationPass)

	if msg.Header.ValidationPass == 0 {
		s.tryApply(msg.Hash)
	}
	return nil
}

// linkSuccessor registers child as a successor of parent in block
// metadata, so applicability cascades (applicability.go) can find it.
func (s *Synchronizer) linkSuccessor(parent, child BlockHash) {
	meta, err := s.deps.BlockMeta.Get(parent)
	if err != nil || meta == nil {
		return
	}
	for _, existing := range meta.Successors {
		if existing == child {
			return
		}
	}
	meta.Successors = append(meta.Successors, child)
	_ = s.deps.BlockMeta.Put(parent, meta)
}

func (s *Synchronizer) scheduleOperationDownloads(peer *PeerState, block BlockHash, passCount uint8) {
	for pass := int8(0); pass < int8(passCount); pass++ {
		key := OperationKey{Block: block, Pass: pass}
		if has, _ := s.deps.Operations.Has(key); has {
			continue
		}
		if peer.AvailableBlockOperationSlots() <= 0 {
			break
		}
		if err := peer.QueueBlockOperations(key, s.now()); err != nil {
			break
		}
		s.send(peer.ID, GetOperationsForBlocks{Keys: []OperationKey{key}})
	}
}

// handleGetBlockHeaders implements spec.md §4.2: serve any locally known
// headers.
func (s *Synchronizer) handleGetBlockHeaders(peer *PeerState, msg GetBlockHeaders) {
	for _, h := range msg.Hashes {
		header, _, err := s.deps.Blocks.Get(h)
		if err != nil || header == nil {
			continue
		}
		s.send(peer.ID, BlockHeaderMsg{Hash: h, Header: *header})
	}
}

// handleOperationsForBlocks implements spec.md §4.2: only accept if
// (block_hash, validation_pass) was queued; store, mark the pass
// complete; when all passes complete, publish AllBlockOperationsReceived
// (modeled as trying applicability) and try to mark applicable.
func (s *Synchronizer) handleOperationsForBlocks(peer *PeerState, msg OperationsForBlocks) error {
	if !peer.DequeueBlockOperations(msg.Key, s.now()) {
		return ErrNotQueued
	}
	if err := s.deps.Operations.Put(msg.Key, msg.Operations); err != nil {
		return err
	}
	s.tryApply(msg.Key.Block)
	return nil
}

// handleGetOperationsForBlocks implements spec.md §4.2: serve if known;
// negative validation-pass values MUST be ignored.
func (s *Synchronizer) handleGetOperationsForBlocks(peer *PeerState, msg GetOperationsForBlocks) {
	for _, key := range msg.Keys {
		if key.Pass < 0 {
			continue
		}
		ops, err := s.deps.Operations.Get(key)
		if err != nil || ops == nil {
			continue
		}
		s.send(peer.ID, OperationsForBlocks{Key: key, Operations: ops})
	}
}

// handleCurrentHead implements spec.md §4.2: enqueue the advertised
// mempool operation hashes (known-valid and pending both go to pending),
// respecting the peer's bounded missing-ops backlog.
func (s *Synchronizer) handleCurrentHead(peer *PeerState, msg CurrentHead) {
	for _, h := range msg.Mempool.KnownValid {
		s.enqueueMissingMempoolOp(peer, h)
	}
	for _, h := range msg.Mempool.Pending {
		s.enqueueMissingMempoolOp(peer, h)
	}
}

func (s *Synchronizer) enqueueMissingMempoolOp(peer *PeerState, h OperationHash) {
	if _, ok, _ := s.deps.Mempool.Get(h); ok {
		return
	}
	if peer.AvailableMempoolOperationSlots() <= 0 {
		peer.EnqueueMissingMempoolOp(h)
		return
	}
	if err := peer.QueueMempoolOperation(h, s.now()); err != nil {
		peer.EnqueueMissingMempoolOp(h)
		return
	}
	s.send(peer.ID, GetOperations{Hashes: []OperationHash{h}})
}

// handleOperation implements spec.md §4.2: only accept if its hash is in
// queued_mempool_operations; prevalidate; UnknownBranch/
// BranchNotAppliedYet are silently dropped; other failures close the
// peer's request slot with an error; otherwise persist and publish
// MempoolOperationReceived.
func (s *Synchronizer) handleOperation(peer *PeerState, msg Operation) error {
	if !peer.DequeueMempoolOperation(msg.Hash, s.now()) {
		return ErrNotQueued
	}

	headContext := s.currentHeadContext()
	class, err := s.deps.Prevalidator.Prevalidate(s.cfg.ChainID, msg.Hash, msg.Data, s.mempool.Snapshot, headContext)
	if err != nil {
		return err
	}
	if class.Transient() {
		return nil
	}
	if class != ClassApplied {
		return &PrevalidationError{Hash: msg.Hash, Classification: class}
	}

	if err := s.deps.Mempool.Put(msg.Hash, msg.Data, s.now()); err != nil {
		return err
	}
	s.mempool.Snapshot.KnownValid = append(s.mempool.Snapshot.KnownValid, msg.Hash)
	s.publishMempoolOperationReceived(msg.Hash)
	return nil
}

// handleGetOperations implements spec.md §4.2: serve from mempool storage
// only.
func (s *Synchronizer) handleGetOperations(peer *PeerState, msg GetOperations) {
	for _, h := range msg.Hashes {
		data, ok, err := s.deps.Mempool.Get(h)
		if err != nil || !ok {
			continue
		}
		s.send(peer.ID, Operation{Hash: h, Data: data})
	}
}

// PrevalidationError is the "other prevalidation failures" class of
// spec.md §4.2, which closes the peer's request slot with an error
// (the slot is already closed by DequeueMempoolOperation by the time this
// is returned; the caller of handleOperation is responsible for stopping
// the peer).
type PrevalidationError struct {
	Hash           OperationHash
	Classification Classification
}

func (e *PrevalidationError) Error() string {
	return "chainsync: operation " + e.Hash.Hex() + " prevalidation: " + e.Classification.String()
}

func (s *Synchronizer) now() time.Time {
	if s.clock != nil {
		return s.clock()
	}
	return time.Now()
}
