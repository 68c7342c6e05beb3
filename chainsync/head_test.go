package chainsync

import "testing"

func TestFitnessCompareLexicographic(t *testing.T) {
	cases := []struct {
		a, b Fitness
		want int
	}{
		{Fitness{{1}}, Fitness{{1}}, 0},
		{Fitness{{1}}, Fitness{{2}}, -1},
		{Fitness{{2}}, Fitness{{1}}, 1},
		{Fitness{{1}}, Fitness{{1}, {0}}, -1},
		{Fitness{{1}, {0}}, Fitness{{1}}, 1},
		{Fitness{}, Fitness{}, 0},
	}
	for _, c := range cases {
		if got := c.a.Compare(c.b); got != c.want {
			t.Errorf("Compare(%v, %v) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestFitnessStrictlyDominates(t *testing.T) {
	equal := Fitness{{1}}
	if equal.StrictlyDominates(Fitness{{1}}) {
		t.Fatal("equal fitness must not strictly dominate")
	}
	higher := Fitness{{2}}
	if !higher.StrictlyDominates(Fitness{{1}}) {
		t.Fatal("expected {2} to strictly dominate {1}")
	}
}

func TestDecideHeadOutcomeNoCurrentHead(t *testing.T) {
	outcome := decideHeadOutcome(Head{}, false, BlockHash{1}, BlockHeader{Level: 0})
	if outcome != HeadIncrement {
		t.Fatalf("expected HeadIncrement with no current head, got %v", outcome)
	}
}

func TestDecideHeadOutcomeLinearIncrement(t *testing.T) {
	current := Head{Hash: BlockHash{1}, Header: BlockHeader{Level: 5, Fitness: Fitness{{1}}}}
	candidate := BlockHeader{Level: 6, Predecessor: BlockHash{1}, Fitness: Fitness{{2}}}

	outcome := decideHeadOutcome(current, true, BlockHash{2}, candidate)
	if outcome != HeadIncrement {
		t.Fatalf("expected HeadIncrement, got %v", outcome)
	}
}

func TestDecideHeadOutcomeBranchSwitch(t *testing.T) {
	current := Head{Hash: BlockHash{1}, Header: BlockHeader{Level: 5, Fitness: Fitness{{1}}}}
	candidate := BlockHeader{Level: 6, Predecessor: BlockHash{9}, Fitness: Fitness{{2}}}

	outcome := decideHeadOutcome(current, true, BlockHash{2}, candidate)
	if outcome != HeadBranchSwitch {
		t.Fatalf("expected HeadBranchSwitch, got %v", outcome)
	}
}

func TestDecideHeadOutcomeLowerLevelUnchanged(t *testing.T) {
	current := Head{Hash: BlockHash{1}, Header: BlockHeader{Level: 5, Fitness: Fitness{{1}}}}
	candidate := BlockHeader{Level: 4, Predecessor: BlockHash{1}, Fitness: Fitness{{9}}}

	outcome := decideHeadOutcome(current, true, BlockHash{2}, candidate)
	if outcome != HeadUnchanged {
		t.Fatalf("expected HeadUnchanged for lower level, got %v", outcome)
	}
}

func TestDecideHeadOutcomeEqualLevelRequiresStrictDominance(t *testing.T) {
	current := Head{Hash: BlockHash{1}, Header: BlockHeader{Level: 5, Fitness: Fitness{{5}}}}

	sameFitness := BlockHeader{Level: 5, Predecessor: BlockHash{1}, Fitness: Fitness{{5}}}
	if outcome := decideHeadOutcome(current, true, BlockHash{2}, sameFitness); outcome != HeadUnchanged {
		t.Fatalf("expected HeadUnchanged for equal fitness, got %v", outcome)
	}

	higherFitness := BlockHeader{Level: 5, Predecessor: BlockHash{1}, Fitness: Fitness{{9}}}
	if outcome := decideHeadOutcome(current, true, BlockHash{2}, higherFitness); outcome != HeadBranchSwitch {
		t.Fatalf("expected HeadBranchSwitch for dominant equal-level fitness, got %v", outcome)
	}
}

func TestChainStateUpdateRemoteHeadMonotone(t *testing.T) {
	cs := newChainState(1)

	if !cs.updateRemoteHead(BlockHash{1}, BlockHeader{Level: 10}) {
		t.Fatal("expected first remote head update to advance")
	}
	if cs.updateRemoteHead(BlockHash{2}, BlockHeader{Level: 10}) {
		t.Fatal("expected equal-level remote head update to be rejected")
	}
	if cs.updateRemoteHead(BlockHash{3}, BlockHeader{Level: 5}) {
		t.Fatal("expected lower-level remote head update to be rejected")
	}
	if !cs.updateRemoteHead(BlockHash{4}, BlockHeader{Level: 11}) {
		t.Fatal("expected higher-level remote head update to advance")
	}
	if cs.remoteHead.Hash != (BlockHash{4}) {
		t.Fatalf("expected remote head hash {4}, got %v", cs.remoteHead.Hash)
	}
}

func TestChainStateBootstrappedThreshold(t *testing.T) {
	cs := newChainState(2)
	cs.hasLocalHead = true
	cs.localHead = Head{Header: BlockHeader{Level: 100}}

	if !cs.peerIsBootstrapped(50) {
		t.Fatal("expected peer at level 50 <= local 100 to count as bootstrapped")
	}
	if cs.peerIsBootstrapped(0) {
		t.Fatal("level 0 must never count as bootstrapped")
	}
	if cs.peerIsBootstrapped(200) {
		t.Fatal("peer ahead of local head must not count as bootstrapped")
	}

	cs.markPeerBootstrapped("peer-a")
	if cs.bootstrapped {
		t.Fatal("threshold is 2; one peer must not flip the sticky flag")
	}
	cs.markPeerBootstrapped("peer-b")
	if !cs.bootstrapped {
		t.Fatal("expected bootstrapped flag set once threshold reached")
	}

	// Sticky: must remain true even if peers are later removed/reset.
	cs.bootstrappedPeers = map[string]struct{}{}
	if !cs.bootstrapped {
		t.Fatal("bootstrapped flag must be sticky")
	}
}
