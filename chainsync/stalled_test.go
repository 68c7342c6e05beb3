package chainsync

import (
	"testing"
	"time"
)

func freshSnapshot(now time.Time) peerSnapshot {
	return peerSnapshot{
		id:                    "peer-a",
		currentHeadUpdateLast: now,
	}
}

func TestIsStalledFreshPeerNotStalled(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	if isStalled(snap, now, false) {
		t.Fatal("a freshly connected peer must not be stalled")
	}
}

func TestIsStalledNoHeadUpdateTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	later := now.Add(HeadUpdateTimeout + time.Second)
	if !isStalled(snap, later, false) {
		t.Fatal("expected stalled after exceeding head update timeout")
	}
}

func TestIsStalledPendingRequestExceedsSilentTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	snap.lastResponse[categoryBlockHeaders] = now
	snap.lastRequest[categoryBlockHeaders] = now.Add(SilentPeerTimeout + time.Second)

	check := snap.lastRequest[categoryBlockHeaders].Add(time.Second)
	if !isStalled(snap, check, false) {
		t.Fatal("expected stalled when a request has outstanding for longer than the silent timeout")
	}
}

func TestIsStalledQueuedWithoutResponseExceedsSilentTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	snap.lastResponse[categoryBlockOperations] = now
	snap.lastRequest[categoryBlockOperations] = now.Add(time.Millisecond)
	snap.queuedBlockOperations = 3

	check := now.Add(SilentPeerTimeout + time.Second)
	if !isStalled(snap, check, false) {
		t.Fatal("expected stalled with a non-empty queue and no response for longer than silent timeout")
	}
}

func TestIsStalledSandboxStretchesSilentTimeout(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	snap.lastResponse[categoryMempoolOperations] = now
	snap.lastRequest[categoryMempoolOperations] = now.Add(SilentPeerTimeout + time.Second)
	// Keep the head-update clock fresh relative to the check time so only
	// the per-category silent timeout is under test.
	snap.currentHeadUpdateLast = now.Add(time.Hour)

	check := snap.lastRequest[categoryMempoolOperations].Add(time.Hour)
	if isStalled(snap, check, true) {
		t.Fatal("sandbox mode must stretch the silent-peer timeout far beyond an hour")
	}
}

func TestIsStalledNoPendingRequestsIsFine(t *testing.T) {
	now := time.Unix(1000, 0)
	snap := freshSnapshot(now)
	snap.lastRequest[categoryBlockHeaders] = now
	snap.lastResponse[categoryBlockHeaders] = now.Add(time.Millisecond)

	check := now.Add(HeadUpdateTimeout - time.Second)
	if isStalled(snap, check, false) {
		t.Fatal("a peer with no outstanding requests and a recent head update must not be stalled")
	}
}
