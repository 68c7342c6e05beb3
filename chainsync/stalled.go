package chainsync

import "time"

// Stalled-peer timing constants, grounded on the original's chain_manager.rs
// (CURRENT_HEAD_LEVEL_UPDATE_TIMEOUT, SILENT_PEER_TIMEOUT,
// SILENT_PEER_TIMEOUT_SANDBOX) and spec.md §4.2 "Stalled-peer policy".
const (
	HeadUpdateTimeout        = 120 * time.Second
	SilentPeerTimeout        = 30 * time.Second
	SilentPeerTimeoutSandbox = 365 * 24 * time.Hour
)

// isStalled implements spec.md §4.2's disconnect policy: a peer is dropped
// if any of: no head-level update for 120s; an outstanding request
// category whose request-time exceeds response-time by more than 30s; or
// a non-empty queue combined with 30s since last response. sandbox
// stretches the 30s timeouts to effectively disable them.
func isStalled(s peerSnapshot, now time.Time, sandbox bool) bool {
	silent := SilentPeerTimeout
	if sandbox {
		silent = SilentPeerTimeoutSandbox
	}

	if now.Sub(s.currentHeadUpdateLast) > HeadUpdateTimeout {
		return true
	}

	queued := [3]int{s.queuedBlockHeaders, s.queuedBlockOperations, s.queuedMempoolOps}
	for cat := 0; cat < 3; cat++ {
		req, resp := s.lastRequest[cat], s.lastResponse[cat]
		pending := req.After(resp)

		if pending && req.Sub(resp) > silent {
			return true
		}
		if pending && queued[cat] > 0 && now.Sub(resp) > silent {
			return true
		}
	}
	return false
}
