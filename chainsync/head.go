package chainsync

// Head is a (hash, header) pair naming a block the synchronizer treats as
// a head candidate, local or remote (spec.md GLOSSARY "Head").
type Head struct {
	Hash   BlockHash
	Header BlockHeader
}

// HeadOutcome distinguishes how a newly applied block changes local head,
// per spec.md §4.2 "Head management": "Two outcomes distinguished:
// HeadIncrement ... vs BranchSwitch (reorg)."
type HeadOutcome int

const (
	// HeadUnchanged means the candidate does not become the new head.
	HeadUnchanged HeadOutcome = iota
	// HeadIncrement is a linear advance from the current head's successor.
	HeadIncrement
	// HeadBranchSwitch is a reorg: the new head is not a direct successor
	// of the previous local head.
	HeadBranchSwitch
)

// decideHeadOutcome implements spec.md §4.2's head-advancement rule: a
// newly applied block becomes head when its level exceeds the current
// head's, or fitness strictly dominates at equal level; ties go to the
// incumbent. current may be the zero Head (no head yet), in which case any
// candidate wins as a HeadIncrement.
func decideHeadOutcome(current Head, hasCurrent bool, candidateHash BlockHash, candidate BlockHeader) HeadOutcome {
	if !hasCurrent {
		return HeadIncrement
	}

	switch {
	case candidate.Level > current.Header.Level:
		// falls through to outcome classification below
	case candidate.Level == current.Header.Level:
		if !candidate.Fitness.StrictlyDominates(current.Header.Fitness) {
			return HeadUnchanged
		}
	default:
		return HeadUnchanged
	}

	if candidate.Predecessor == current.Hash && candidate.Level == current.Header.Level+1 {
		return HeadIncrement
	}
	return HeadBranchSwitch
}

// chainState holds the synchronizer's view of local and remote head plus
// the bootstrapped flags (spec.md §4.2 "Head management").
type chainState struct {
	localHead    Head
	hasLocalHead bool

	remoteHead    Head
	hasRemoteHead bool

	bootstrapThreshold int
	bootstrappedPeers  map[string]struct{}
	bootstrapped       bool // sticky once true
}

func newChainState(bootstrapThreshold int) *chainState {
	return &chainState{
		bootstrapThreshold: bootstrapThreshold,
		bootstrappedPeers:  make(map[string]struct{}),
	}
}

// updateRemoteHead applies spec.md §4.2's remote-head monotonicity rule:
// "a lower-level announcement never lowers it." Returns whether remote
// head actually advanced.
func (cs *chainState) updateRemoteHead(hash BlockHash, header BlockHeader) bool {
	if cs.hasRemoteHead && header.Level <= cs.remoteHead.Header.Level {
		return false
	}
	cs.remoteHead = Head{Hash: hash, Header: header}
	cs.hasRemoteHead = true
	return true
}

// applyNewHead records candidate as the new local head if decideHeadOutcome
// says it should become one, returning the outcome.
func (cs *chainState) applyNewHead(hash BlockHash, header BlockHeader) HeadOutcome {
	outcome := decideHeadOutcome(cs.localHead, cs.hasLocalHead, hash, header)
	if outcome != HeadUnchanged {
		cs.localHead = Head{Hash: hash, Header: header}
		cs.hasLocalHead = true
	}
	return outcome
}

// markPeerBootstrapped records peerID as bootstrapped and re-evaluates the
// node-level sticky flag once bootstrapThreshold distinct peers have
// reached it (spec.md §4.2 "Bootstrapped flag").
func (cs *chainState) markPeerBootstrapped(peerID string) {
	cs.bootstrappedPeers[peerID] = struct{}{}
	if !cs.bootstrapped && len(cs.bootstrappedPeers) >= cs.bootstrapThreshold {
		cs.bootstrapped = true
	}
}

// peerIsBootstrapped reports whether a peer announcing headLevel counts as
// bootstrapped against the current local head: "0 < peer.level <=
// local.level" (spec.md §4.2).
func (cs *chainState) peerIsBootstrapped(headLevel int32) bool {
	if headLevel <= 0 {
		return false
	}
	if !cs.hasLocalHead {
		return false
	}
	return headLevel <= cs.localHead.Header.Level
}
