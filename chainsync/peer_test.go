package chainsync

import (
	"testing"
	"time"
)

func TestPeerStateQueueCapacity(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPeerState("peer-a", true, now)

	for i := 0; i < BatchSize; i++ {
		var h BlockHash
		h[0] = byte(i)
		if err := p.QueueBlockHeader(h, now); err != nil {
			t.Fatalf("QueueBlockHeader %d: %v", i, err)
		}
	}
	if p.AvailableBlockHeaderSlots() != 0 {
		t.Fatalf("expected 0 available slots, got %d", p.AvailableBlockHeaderSlots())
	}

	var overflow BlockHash
	overflow[0] = 0xff
	if err := p.QueueBlockHeader(overflow, now); err != ErrQueueFull {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
}

func TestPeerStateDequeueUnknown(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPeerState("peer-a", true, now)

	var h BlockHash
	h[0] = 1
	if p.DequeueBlockHeader(h, now) {
		t.Fatal("expected dequeue of unqueued hash to fail")
	}

	if err := p.QueueBlockHeader(h, now); err != nil {
		t.Fatalf("QueueBlockHeader: %v", err)
	}
	if !p.DequeueBlockHeader(h, now) {
		t.Fatal("expected dequeue of queued hash to succeed")
	}
	if p.DequeueBlockHeader(h, now) {
		t.Fatal("expected second dequeue to fail")
	}
}

func TestPeerStateOperationsAndMempoolQueues(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPeerState("peer-a", true, now)

	key := OperationKey{Block: BlockHash{1}, Pass: 0}
	if err := p.QueueBlockOperations(key, now); err != nil {
		t.Fatalf("QueueBlockOperations: %v", err)
	}
	if p.AvailableBlockOperationSlots() != BatchSize-1 {
		t.Fatalf("expected %d slots, got %d", BatchSize-1, p.AvailableBlockOperationSlots())
	}
	if !p.DequeueBlockOperations(key, now) {
		t.Fatal("expected dequeue to succeed")
	}

	var opHash OperationHash
	opHash[0] = 9
	if err := p.QueueMempoolOperation(opHash, now); err != nil {
		t.Fatalf("QueueMempoolOperation: %v", err)
	}
	if !p.DequeueMempoolOperation(opHash, now) {
		t.Fatal("expected mempool dequeue to succeed")
	}
}

func TestPeerStateMissingMempoolOpsBacklogBounded(t *testing.T) {
	now := time.Unix(1000, 0)
	p := NewPeerState("peer-a", true, now)

	for i := 0; i < MissingMempoolOpsBacklog+10; i++ {
		var h OperationHash
		h[0] = byte(i)
		h[1] = byte(i >> 8)
		p.EnqueueMissingMempoolOp(h)
	}
	if len(p.missingMempoolOps) != MissingMempoolOpsBacklog {
		t.Fatalf("expected backlog capped at %d, got %d", MissingMempoolOpsBacklog, len(p.missingMempoolOps))
	}
}

func TestPeerStateUpdateHeadBumpsActivity(t *testing.T) {
	t0 := time.Unix(1000, 0)
	p := NewPeerState("peer-a", false, t0)

	t1 := t0.Add(5 * time.Second)
	p.UpdateHead(42, Fitness{{1}}, t1)

	snap := p.snapshot()
	if snap.headLevel != 42 {
		t.Fatalf("expected head level 42, got %d", snap.headLevel)
	}
	if !snap.currentHeadUpdateLast.Equal(t1) {
		t.Fatalf("expected currentHeadUpdateLast %v, got %v", t1, snap.currentHeadUpdateLast)
	}
}
