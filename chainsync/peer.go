package chainsync

import (
	"errors"
	"sync"
	"time"
)

// BatchSize is the fixed capacity of each per-peer outstanding-request
// queue (headers, operations, mempool operations), per spec.md §4.2 "Peer
// state": "Queue capacities are fixed (batch sizes: 10 for each
// category)".
const BatchSize = 10

// MissingMempoolOpsBacklog bounds the per-peer backlog of mempool
// operation hashes a peer has advertised but we haven't yet requested,
// mirroring the original's bounded missing-operations queue.
const MissingMempoolOpsBacklog = 1000

var (
	// ErrQueueFull is returned when a request queue is already at
	// BatchSize and cannot accept another outstanding request.
	ErrQueueFull = errors.New("chainsync: peer request queue full")
	// ErrNotQueued is the peer-protocol error of spec.md §7: a response
	// arrived for something this peer was never asked for.
	ErrNotQueued = errors.New("chainsync: unsolicited response")
)

// requestCategory names one of the three outstanding-request queues a peer
// has, used for the stalled-peer timeout bookkeeping of spec.md §4.2.
type requestCategory int

const (
	categoryBlockHeaders requestCategory = iota
	categoryBlockOperations
	categoryMempoolOperations
)

// PeerState holds everything the synchronizer tracks about one connected
// peer (spec.md §4.2 "Peer state"). All mutation goes through the
// synchronizer's single-threaded message loop, so PeerState itself does
// not need its own lock — but it does expose safe accessors for
// diagnostics code (e.g. log-stats) that may run concurrently.
type PeerState struct {
	mu sync.Mutex

	ID             string
	MempoolEnabled bool
	Bootstrapped   bool

	HeadLevel   int32
	HeadFitness Fitness

	queuedBlockHeaders      map[BlockHash]struct{}
	queuedBlockOperations   map[OperationKey]struct{}
	queuedMempoolOperations map[OperationHash]struct{}

	missingMempoolOps []OperationHash

	lastRequest  [3]time.Time
	lastResponse [3]time.Time

	// currentHeadUpdateLast is bumped whenever the peer's HeadLevel
	// changes, used by the 120s "no head update" stalled check.
	currentHeadUpdateLast time.Time
}

// NewPeerState creates a PeerState for a newly connected peer with empty
// queues, timestamped at now.
func NewPeerState(id string, mempoolEnabled bool, now time.Time) *PeerState {
	return &PeerState{
		ID:                      id,
		MempoolEnabled:          mempoolEnabled,
		queuedBlockHeaders:      make(map[BlockHash]struct{}),
		queuedBlockOperations:   make(map[OperationKey]struct{}),
		queuedMempoolOperations: make(map[OperationHash]struct{}),
		currentHeadUpdateLast:   now,
	}
}

// AvailableBlockHeaderSlots returns how many more block-header requests
// this peer can accept before hitting BatchSize.
func (p *PeerState) AvailableBlockHeaderSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BatchSize - len(p.queuedBlockHeaders)
}

// AvailableBlockOperationSlots returns how many more operations-for-blocks
// requests this peer can accept.
func (p *PeerState) AvailableBlockOperationSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BatchSize - len(p.queuedBlockOperations)
}

// AvailableMempoolOperationSlots returns how many more mempool-operation
// requests this peer can accept.
func (p *PeerState) AvailableMempoolOperationSlots() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return BatchSize - len(p.queuedMempoolOperations)
}

// QueueBlockHeader records hash as an outstanding header request to this
// peer, failing if the queue is already full.
func (p *PeerState) QueueBlockHeader(hash BlockHash, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queuedBlockHeaders) >= BatchSize {
		return ErrQueueFull
	}
	p.queuedBlockHeaders[hash] = struct{}{}
	p.lastRequest[categoryBlockHeaders] = now
	return nil
}

// DequeueBlockHeader removes hash from the outstanding set, reporting
// whether it was present (ErrNotQueued semantics live in the handler,
// which decides what an absent entry means for this message type).
func (p *PeerState) DequeueBlockHeader(hash BlockHash, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queuedBlockHeaders[hash]; !ok {
		return false
	}
	delete(p.queuedBlockHeaders, hash)
	p.lastResponse[categoryBlockHeaders] = now
	return true
}

// QueueBlockOperations records key as an outstanding operations-for-blocks
// request.
func (p *PeerState) QueueBlockOperations(key OperationKey, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queuedBlockOperations) >= BatchSize {
		return ErrQueueFull
	}
	p.queuedBlockOperations[key] = struct{}{}
	p.lastRequest[categoryBlockOperations] = now
	return nil
}

// DequeueBlockOperations removes key from the outstanding set.
func (p *PeerState) DequeueBlockOperations(key OperationKey, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queuedBlockOperations[key]; !ok {
		return false
	}
	delete(p.queuedBlockOperations, key)
	p.lastResponse[categoryBlockOperations] = now
	return true
}

// QueueMempoolOperation records hash as an outstanding mempool-operation
// request.
func (p *PeerState) QueueMempoolOperation(hash OperationHash, now time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queuedMempoolOperations) >= BatchSize {
		return ErrQueueFull
	}
	p.queuedMempoolOperations[hash] = struct{}{}
	p.lastRequest[categoryMempoolOperations] = now
	return nil
}

// DequeueMempoolOperation removes hash from the outstanding set.
func (p *PeerState) DequeueMempoolOperation(hash OperationHash, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.queuedMempoolOperations[hash]; !ok {
		return false
	}
	delete(p.queuedMempoolOperations, hash)
	p.lastResponse[categoryMempoolOperations] = now
	return true
}

// EnqueueMissingMempoolOp appends hash to the bounded missing-mempool-ops
// backlog, dropping the oldest entry if already at capacity.
func (p *PeerState) EnqueueMissingMempoolOp(hash OperationHash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.missingMempoolOps) >= MissingMempoolOpsBacklog {
		p.missingMempoolOps = p.missingMempoolOps[1:]
	}
	p.missingMempoolOps = append(p.missingMempoolOps, hash)
}

// UpdateHead records a new announced head level/fitness for the peer,
// bumping currentHeadUpdateLast so the stalled-peer check sees the
// update.
func (p *PeerState) UpdateHead(level int32, fitness Fitness, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.HeadLevel = level
	p.HeadFitness = fitness
	p.currentHeadUpdateLast = now
}

// snapshot captures the fields the stalled-peer and log-stats checks need,
// taken under the lock so callers never race with concurrent queue
// mutation.
type peerSnapshot struct {
	id                     string
	headLevel              int32
	bootstrapped           bool
	queuedBlockHeaders     int
	queuedBlockOperations  int
	queuedMempoolOps       int
	lastRequest            [3]time.Time
	lastResponse           [3]time.Time
	currentHeadUpdateLast  time.Time
}

func (p *PeerState) snapshot() peerSnapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return peerSnapshot{
		id:                    p.ID,
		headLevel:             p.HeadLevel,
		bootstrapped:          p.Bootstrapped,
		queuedBlockHeaders:    len(p.queuedBlockHeaders),
		queuedBlockOperations: len(p.queuedBlockOperations),
		queuedMempoolOps:      len(p.queuedMempoolOperations),
		lastRequest:           p.lastRequest,
		lastResponse:          p.lastResponse,
		currentHeadUpdateLast: p.currentHeadUpdateLast,
	}
}

// setBootstrapped marks the peer bootstrapped; sticky, like the node-level
// flag (spec.md §4.2 "Bootstrapped flag").
func (p *PeerState) setBootstrapped() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Bootstrapped = true
}
