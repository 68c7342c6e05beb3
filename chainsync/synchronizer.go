package chainsync

import (
	"context"
	"sync"
	"time"

	gocontext "github.com/tzgo/tezos-node/context"
	"github.com/tzgo/tezos-node/internal/log"
	"github.com/tzgo/tezos-node/internal/metrics"
)

// Periodic scheduling intervals, per spec.md §4.2 "Scheduling loops" and
// grounded on the original's chain_manager.rs constants
// (CHECK_CHAIN_COMPLETENESS_INTERVAL, ASK_CURRENT_BRANCH_INTERVAL,
// LOG_INTERVAL).
const (
	CheckChainCompletenessInterval = 30 * time.Second
	AskCurrentBranchInterval       = 15 * time.Second
	LogStatsInterval               = 60 * time.Second
	DisconnectStalledInterval      = 15 * time.Second
)

// Config holds the synchronizer's tunables. Per Design Notes ("Global
// environment singletons ... pass a dependency record explicitly"), these
// are passed to NewSynchronizer rather than read from ambient config.
type Config struct {
	ChainID            ChainID
	Genesis            BlockHash
	LocalPeerID        string
	BootstrapThreshold int
	Sandbox            bool
	MaxConcurrentApply int

	// Clock overrides time.Now, for deterministic tests. Nil means
	// time.Now.
	Clock func() time.Time
}

// DefaultConfig returns the synchronizer's default tunables, mirroring the
// teacher's Config/DefaultConfig pattern (pkg/sync/sync.go).
func DefaultConfig() Config {
	return Config{
		BootstrapThreshold: 1,
		MaxConcurrentApply: 4,
	}
}

// Outbound is the send-side seam into the (out-of-scope) peer/wire layer:
// given a peer ID and a message value from messages.go, it is responsible
// for framing and transmission.
type Outbound interface {
	Send(peerID string, msg interface{}) error
	Disconnect(peerID string, reason string)
}

// Deps bundles the external collaborators of spec.md §4.3 plus the
// outbound transport seam and ambient logging/metrics.
type Deps struct {
	Blocks       BlockStorage
	BlockMeta    BlockMetaStorage
	Operations   OperationsStorage
	Mempool      MempoolStorage
	Prevalidator Prevalidator
	Applier      BlockApplier
	Rehydrator   Rehydrator
	Outbound     Outbound

	Log     *log.Logger
	Metrics *metrics.Registry
}

// inboundEnvelope pairs a peer ID with an inbound wire message, the unit
// of work the single message loop dispatches (spec.md §5 "Ordering
// guarantees": "Within a single peer, messages are processed in arrival
// order.").
type inboundEnvelope struct {
	peerID string
	msg    interface{}
}

type registerPeerCmd struct {
	id             string
	mempoolEnabled bool
}

type unregisterPeerCmd struct {
	id     string
	reason string
}

type applyResultMsg struct {
	block   BlockHash
	context gocontext.Hash
	err     error
}

type tickKind int

const (
	tickCheckChainCompleteness tickKind = iota
	tickAskCurrentBranch
	tickLogStats
	tickDisconnectStalled
)

// NewCurrentHeadEvent is published to subscribers whenever local head
// changes, as a HeadIncrement or a HeadBranchSwitch. Separately, only a
// HeadIncrement on a bootstrapped node also broadcasts CurrentHead to all
// peers (spec.md §4.2).
type NewCurrentHeadEvent struct {
	Head    Head
	Outcome HeadOutcome
}

// Synchronizer is the chain synchronizer of spec.md §4.2: a single
// message-loop actor coordinating peers, storage, and block application.
// Its exported surface is Submit (inbound messages), RegisterPeer/
// UnregisterPeer, SubscribeNewCurrentHead (local-head change events), and
// Run (the blocking message loop). All mutable state is owned by the
// goroutine running Run; Submit/RegisterPeer/UnregisterPeer only enqueue
// work, matching spec.md §5's single-threaded dispatch guarantee.
type Synchronizer struct {
	cfg  Config
	deps Deps

	localPeerID string
	clock       func() time.Time

	peersMu sync.RWMutex
	peers   map[string]*PeerState

	chain   *chainState
	clocks  *rehydrateClocks
	mempool mempoolState

	inbound      chan inboundEnvelope
	control      chan interface{}
	applyResults chan applyResultMsg
	ticks        chan tickKind
	applySem     chan struct{}

	headSubMu sync.Mutex
	headSubs  []chan NewCurrentHeadEvent

	metrics *stats
}

// stats holds the gauges/counters the log-stats loop reports, adapting
// internal/metrics.Registry the way context/stats.go does for the Merkle
// store.
type stats struct {
	registry        *metrics.Registry
	peerCount       *metrics.Gauge
	bootstrapped    *metrics.Gauge
	localHeadLevel  *metrics.Gauge
	remoteHeadLevel *metrics.Gauge
	appliedBlocks   *metrics.Counter
	stoppedPeers    *metrics.Counter
}

func newStats(r *metrics.Registry) *stats {
	if r == nil {
		r = metrics.NewRegistry()
	}
	return &stats{
		registry:        r,
		peerCount:       r.Gauge("chainsync.peers"),
		bootstrapped:    r.Gauge("chainsync.bootstrapped"),
		localHeadLevel:  r.Gauge("chainsync.local_head_level"),
		remoteHeadLevel: r.Gauge("chainsync.remote_head_level"),
		appliedBlocks:   r.Counter("chainsync.applied_blocks"),
		stoppedPeers:    r.Counter("chainsync.stopped_peers"),
	}
}

// NewSynchronizer constructs a Synchronizer. Call Run to start its
// message loop; inbound traffic can be submitted any time after
// construction (it buffers until Run starts draining it).
func NewSynchronizer(cfg Config, deps Deps) *Synchronizer {
	if cfg.BootstrapThreshold <= 0 {
		cfg.BootstrapThreshold = 1
	}
	if cfg.MaxConcurrentApply <= 0 {
		cfg.MaxConcurrentApply = 4
	}
	if deps.Log == nil {
		deps.Log = log.Default()
	}

	return &Synchronizer{
		cfg:          cfg,
		deps:         deps,
		localPeerID:  cfg.LocalPeerID,
		clock:        cfg.Clock,
		peers:        make(map[string]*PeerState),
		chain:        newChainState(cfg.BootstrapThreshold),
		clocks:       newRehydrateClocks(),
		inbound:      make(chan inboundEnvelope, 4096),
		control:      make(chan interface{}, 256),
		applyResults: make(chan applyResultMsg, 64),
		ticks:        make(chan tickKind, 16),
		applySem:     make(chan struct{}, cfg.MaxConcurrentApply),
		metrics:      newStats(deps.Metrics),
	}
}

// Submit enqueues an inbound wire message from peerID for processing by
// the message loop. Safe to call from any goroutine (the peer/transport
// layer).
func (s *Synchronizer) Submit(peerID string, msg interface{}) {
	s.inbound <- inboundEnvelope{peerID: peerID, msg: msg}
}

// RegisterPeer admits a newly connected peer.
func (s *Synchronizer) RegisterPeer(id string, mempoolEnabled bool) {
	s.control <- registerPeerCmd{id: id, mempoolEnabled: mempoolEnabled}
}

// UnregisterPeer removes a disconnected peer.
func (s *Synchronizer) UnregisterPeer(id string, reason string) {
	s.control <- unregisterPeerCmd{id: id, reason: reason}
}

// SubscribeNewCurrentHead returns a channel receiving every
// NewCurrentHeadEvent the synchronizer publishes.
func (s *Synchronizer) SubscribeNewCurrentHead() <-chan NewCurrentHeadEvent {
	ch := make(chan NewCurrentHeadEvent, 16)
	s.headSubMu.Lock()
	s.headSubs = append(s.headSubs, ch)
	s.headSubMu.Unlock()
	return ch
}

func (s *Synchronizer) publishNewCurrentHead(ev NewCurrentHeadEvent) {
	s.headSubMu.Lock()
	defer s.headSubMu.Unlock()
	for _, ch := range s.headSubs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// publishMempoolOperationReceived is a hook point for MempoolOperationReceived
// (spec.md §4.2); in this module it only triggers the mempool-broadcast
// recomposition, since no external subscriber surface is in scope.
func (s *Synchronizer) publishMempoolOperationReceived(h OperationHash) {
	s.mempool.HeadHash = s.currentHeadHash()
}

func (s *Synchronizer) currentHeadHash() BlockHash {
	if s.chain.hasLocalHead {
		return s.chain.localHead.Hash
	}
	return BlockHash{}
}

func (s *Synchronizer) currentHeadContext() gocontext.Hash {
	if s.chain.hasLocalHead {
		return s.chain.localHead.Header.Context
	}
	return gocontext.Hash{}
}

func (s *Synchronizer) send(peerID string, msg interface{}) {
	if s.deps.Outbound == nil {
		return
	}
	if err := s.deps.Outbound.Send(peerID, msg); err != nil {
		s.deps.Log.Module("chainsync").Warn("send failed", "peer", peerID, "err", err)
	}
}

func (s *Synchronizer) disconnect(peerID, reason string) {
	s.peersMu.Lock()
	delete(s.peers, peerID)
	s.peersMu.Unlock()
	s.metrics.stoppedPeers.Inc()
	if s.deps.Outbound != nil {
		s.deps.Outbound.Disconnect(peerID, reason)
	}
}

func (s *Synchronizer) getPeer(id string) (*PeerState, bool) {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	p, ok := s.peers[id]
	return p, ok
}

// Run drives the message loop until ctx is cancelled (spec.md §5
// "Cancellation": "On shutdown, the synchronizer stops acting on new
// messages ... and lets in-flight block applications finish.").
func (s *Synchronizer) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	tickerCtx, cancelTickers := context.WithCancel(ctx)
	defer cancelTickers()

	s.startTicker(tickerCtx, &wg, CheckChainCompletenessInterval, tickCheckChainCompleteness)
	s.startTicker(tickerCtx, &wg, AskCurrentBranchInterval, tickAskCurrentBranch)
	s.startTicker(tickerCtx, &wg, LogStatsInterval, tickLogStats)
	s.startTicker(tickerCtx, &wg, s.stalledInterval(), tickDisconnectStalled)

	s.checkChainCompleteness() // "On start ... reload" (rehydrate trigger)

	for {
		select {
		case <-ctx.Done():
			cancelTickers()
			wg.Wait()
			return ctx.Err()

		case env := <-s.inbound:
			s.dispatchInbound(env)

		case cmd := <-s.control:
			s.dispatchControl(cmd)

		case res := <-s.applyResults:
			s.onApplyResult(res)

		case tk := <-s.ticks:
			s.onTick(tk)
		}
	}
}

func (s *Synchronizer) stalledInterval() time.Duration {
	if s.cfg.Sandbox {
		return SilentPeerTimeoutSandbox
	}
	return DisconnectStalledInterval
}

func (s *Synchronizer) startTicker(ctx context.Context, wg *sync.WaitGroup, interval time.Duration, kind tickKind) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				select {
				case s.ticks <- kind:
				default:
				}
			}
		}
	}()
}

func (s *Synchronizer) dispatchControl(cmd interface{}) {
	switch c := cmd.(type) {
	case registerPeerCmd:
		s.peersMu.Lock()
		s.peers[c.id] = NewPeerState(c.id, c.mempoolEnabled, s.now())
		s.peersMu.Unlock()
	case unregisterPeerCmd:
		s.peersMu.Lock()
		delete(s.peers, c.id)
		s.peersMu.Unlock()
	}
}

func (s *Synchronizer) dispatchInbound(env inboundEnvelope) {
	peer, ok := s.getPeer(env.peerID)
	if !ok {
		return
	}

	var err error
	switch m := env.msg.(type) {
	case GetCurrentBranch:
		s.handleGetCurrentBranch(peer, m)
	case CurrentBranch:
		s.handleCurrentBranch(peer, m)
	case GetCurrentHead:
		s.handleGetCurrentHead(peer, m)
	case CurrentHead:
		s.handleCurrentHead(peer, m)
	case GetBlockHeaders:
		s.handleGetBlockHeaders(peer, m)
	case BlockHeaderMsg:
		err = s.handleBlockHeader(peer, m)
	case GetOperationsForBlocks:
		s.handleGetOperationsForBlocks(peer, m)
	case OperationsForBlocks:
		err = s.handleOperationsForBlocks(peer, m)
	case GetOperations:
		s.handleGetOperations(peer, m)
	case Operation:
		err = s.handleOperation(peer, m)
	case Bootstrap:
		peer.setBootstrapped()
	case Disconnect:
		s.disconnect(env.peerID, m.Reason)
		return
	default:
		return
	}

	if err != nil {
		// spec.md §7: "unexpected message ... causes that peer to be
		// stopped." Protocol violations (ErrNotQueued, PrevalidationError,
		// and any other handler error) all result in disconnection; other
		// recoverable errors are logged and the loop continues (propagation
		// policy in spec.md §7).
		s.deps.Log.Module("chainsync").Warn("peer protocol error", "peer", env.peerID, "err", err)
		s.disconnect(env.peerID, err.Error())
	}
}

// tryApply checks blockHash for applicability and, if applicable, runs the
// BlockApplier asynchronously, bounded by applySem (spec.md §5 "Scheduling
// model": "Message-passing actors over a shared worker pool").
func (s *Synchronizer) tryApply(blockHash BlockHash) {
	meta, err := s.deps.BlockMeta.Get(blockHash)
	if err != nil || meta == nil || meta.Applied {
		return
	}
	header, _, err := s.deps.Blocks.Get(blockHash)
	if err != nil || header == nil {
		return
	}

	var predMeta *BlockMeta
	if header.Level == 0 {
		predMeta = &BlockMeta{Applied: true}
	} else {
		predMeta, err = s.deps.BlockMeta.Get(header.Predecessor)
		if err != nil {
			return
		}
	}

	ok, err := checkApplicable(meta, predMeta, s.deps.Operations, blockHash, header.ValidationPass)
	if err != nil || !ok {
		return
	}

	s.dispatchApply(blockHash, *header, predMeta)
}

func (s *Synchronizer) dispatchApply(blockHash BlockHash, header BlockHeader, predMeta *BlockMeta) {
	var predHeader BlockHeader
	if header.Level > 0 {
		if h, _, err := s.deps.Blocks.Get(header.Predecessor); err == nil && h != nil {
			predHeader = *h
		}
	}

	ops := make([][][]byte, header.ValidationPass)
	for pass := int8(0); pass < int8(header.ValidationPass); pass++ {
		msgs, _ := s.deps.Operations.Get(OperationKey{Block: blockHash, Pass: pass})
		ops[pass] = msgs
	}

	maxTTL := 0
	if predMeta != nil {
		maxTTL = predMeta.MaxOperationsTTL
	}

	req := ApplyBlockRequest{
		ChainID:          s.cfg.ChainID,
		BlockHash:        blockHash,
		BlockHeader:      header,
		PredHash:         header.Predecessor,
		PredHeader:       predHeader,
		Operations:       ops,
		MaxOperationsTTL: maxTTL,
	}

	select {
	case s.applySem <- struct{}{}:
	default:
		// Worker pool saturated; the block stays un-applied and will be
		// retried on the next check-chain-completeness tick.
		return
	}

	applier := s.deps.Applier
	go func() {
		defer func() { <-s.applySem }()
		newCtx, err := applier.Apply(req)
		s.applyResults <- applyResultMsg{block: blockHash, context: newCtx, err: err}
	}()
}

// onApplyResult processes a completed block application: updates
// metadata, advances head per spec.md §4.2, and cascades the
// applicability rescan to successors.
func (s *Synchronizer) onApplyResult(res applyResultMsg) {
	if res.err != nil {
		s.deps.Log.Module("chainsync").Warn("block application failed", "block", res.block.Hex(), "err", res.err)
		return
	}

	meta, err := s.deps.BlockMeta.Get(res.block)
	if err != nil || meta == nil {
		return
	}
	meta.Applied = true
	if err := s.deps.BlockMeta.Put(res.block, meta); err != nil {
		return
	}
	s.clocks.markApplied(s.now())
	s.metrics.appliedBlocks.Inc()

	header, _, err := s.deps.Blocks.Get(res.block)
	if err != nil || header == nil {
		return
	}
	header.Context = res.context
	_ = s.deps.Blocks.Put(res.block, header, nil)

	outcome := s.chain.applyNewHead(res.block, *header)
	if outcome != HeadUnchanged {
		s.publishNewCurrentHead(NewCurrentHeadEvent{Head: s.chain.localHead, Outcome: outcome})
		s.mempool.HeadHash = res.block
	}
	if outcome == HeadIncrement && s.chain.bootstrapped {
		s.broadcastCurrentHead()
	}

	newlyApplicable, err := cascadeRescan(s.deps.BlockMeta, s.deps.Operations, func(h BlockHash) (*BlockHeader, error) {
		hdr, _, e := s.deps.Blocks.Get(h)
		return hdr, e
	}, res.block)
	if err == nil {
		for _, h := range newlyApplicable {
			s.tryApply(h)
		}
	}

	s.resolveBootstrapped()
}

// broadcastCurrentHead implements spec.md §4.2: "on HeadIncrement a
// CurrentHead is broadcast to all peers (mempool-enabled peers get a
// populated mempool, others get empty)."
func (s *Synchronizer) broadcastCurrentHead() {
	s.peersMu.RLock()
	peers := make([]*PeerState, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.peersMu.RUnlock()

	for _, p := range peers {
		mp, _ := composeMempoolBroadcast(p, s.mempool, s.chain.localHead.Hash)
		s.send(p.ID, CurrentHead{
			ChainID: s.cfg.ChainID,
			Head:    s.chain.localHead.Header,
			HeadID:  s.chain.localHead.Hash,
			Mempool: mp,
		})
	}
}

// resolveBootstrapped implements spec.md §4.2 "Bootstrapped flag":
// re-evaluates each not-yet-bootstrapped peer against the current local
// head, then checks the node-level sticky threshold.
func (s *Synchronizer) resolveBootstrapped() {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	for _, p := range s.peers {
		snap := p.snapshot()
		if snap.bootstrapped {
			continue
		}
		if s.chain.peerIsBootstrapped(snap.headLevel) {
			p.setBootstrapped()
			s.chain.markPeerBootstrapped(snap.id)
		}
	}
}

func (s *Synchronizer) onTick(tk tickKind) {
	switch tk {
	case tickCheckChainCompleteness:
		s.checkChainCompleteness()
	case tickAskCurrentBranch:
		s.askPeersForCurrentBranch()
	case tickLogStats:
		s.logStats()
	case tickDisconnectStalled:
		s.disconnectStalledPeers()
	}
}

// checkChainCompleteness implements the "check-chain-completeness" loop
// of spec.md §4.2: re-evaluate whether rehydration is due, and give the
// local head and its direct successors another applicability check (via
// cascadeRescan starting from local head, mirroring how apply-result-driven
// cascades already work). Blocks further from local head are not rescanned
// here.
func (s *Synchronizer) checkChainCompleteness() {
	now := s.now()
	if s.clocks.shouldRehydrate(now) {
		s.rehydrate()
	}
	if s.chain.hasLocalHead {
		s.tryApply(s.chain.localHead.Hash)
		newlyApplicable, err := cascadeRescan(s.deps.BlockMeta, s.deps.Operations, func(h BlockHash) (*BlockHeader, error) {
			hdr, _, e := s.deps.Blocks.Get(h)
			return hdr, e
		}, s.chain.localHead.Hash)
		if err == nil {
			for _, h := range newlyApplicable {
				s.tryApply(h)
			}
		}
	}
}

func (s *Synchronizer) rehydrate() {
	if s.deps.Rehydrator == nil {
		s.clocks.markHydrated(s.now())
		return
	}
	res, err := s.deps.Rehydrator.Rehydrate(s.cfg.ChainID)
	if err != nil {
		s.deps.Log.Module("chainsync").Warn("rehydrate failed", "err", err)
		return
	}
	if res.HasHead {
		s.chain.localHead = res.Head
		s.chain.hasLocalHead = true
	}
	s.clocks.markHydrated(s.now())
}

// askPeersForCurrentBranch implements the "ask-peers-for-current-branch"
// loop of spec.md §4.2.
func (s *Synchronizer) askPeersForCurrentBranch() {
	s.peersMu.RLock()
	defer s.peersMu.RUnlock()
	for id := range s.peers {
		s.send(id, GetCurrentBranch{ChainID: s.cfg.ChainID})
	}
}

// logStats implements the "log-stats" loop of spec.md §4.2, refreshing
// the gauges in s.metrics from current state.
func (s *Synchronizer) logStats() {
	s.peersMu.RLock()
	n := len(s.peers)
	s.peersMu.RUnlock()

	s.metrics.peerCount.Set(int64(n))
	if s.chain.bootstrapped {
		s.metrics.bootstrapped.Set(1)
	} else {
		s.metrics.bootstrapped.Set(0)
	}
	if s.chain.hasLocalHead {
		s.metrics.localHeadLevel.Set(int64(s.chain.localHead.Header.Level))
	}
	if s.chain.hasRemoteHead {
		s.metrics.remoteHeadLevel.Set(int64(s.chain.remoteHead.Header.Level))
	}

	s.deps.Log.Module("chainsync").Info("stats",
		"peers", n,
		"bootstrapped", s.chain.bootstrapped,
		"local_head_level", s.localHeadLevelOrZero(),
		"remote_head_level", s.remoteHeadLevelOrZero(),
	)
}

func (s *Synchronizer) localHeadLevelOrZero() int32 {
	if s.chain.hasLocalHead {
		return s.chain.localHead.Header.Level
	}
	return 0
}

func (s *Synchronizer) remoteHeadLevelOrZero() int32 {
	if s.chain.hasRemoteHead {
		return s.chain.remoteHead.Header.Level
	}
	return 0
}

// disconnectStalledPeers implements the "disconnect-stalled-peers" loop
// of spec.md §4.2.
func (s *Synchronizer) disconnectStalledPeers() {
	now := s.now()
	s.peersMu.RLock()
	var toDrop []string
	for id, p := range s.peers {
		if isStalled(p.snapshot(), now, s.cfg.Sandbox) {
			toDrop = append(toDrop, id)
		}
	}
	s.peersMu.RUnlock()

	for _, id := range toDrop {
		s.disconnect(id, "stalled")
	}
}
