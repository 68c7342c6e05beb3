package chainsync

// mempoolState is the snapshot type produced by the prevalidator and
// published on the mempool topic (Design Notes: "Shared mutable mempool
// state ... model as a snapshot type produced by the prevalidator, cheaply
// cloneable"). HeadHash names the local head the snapshot was computed
// against, used to decide which peers a broadcast should carry a populated
// mempool to.
type mempoolState struct {
	HeadHash BlockHash
	Snapshot MempoolSnapshot
}

// composeMempoolBroadcast implements spec.md §4.2 "Mempool broadcast":
// "composes a CurrentHead snapshot ... and sends it only to peers whose
// mempool_enabled=true and whose expected head matches the mempool's head;
// otherwise sends an empty mempool (or nothing if the mempool is empty)."
//
// peerExpectedHead is the head the peer is assumed to be building against
// (ordinarily the synchronizer's own current local head, since the
// mempool is only ever prevalidated against that head). It returns
// (snapshot, send) — send is false when nothing should be sent at all.
func composeMempoolBroadcast(peer *PeerState, mp mempoolState, peerExpectedHead BlockHash) (MempoolSnapshot, bool) {
	if mp.Snapshot.Empty() {
		return MempoolSnapshot{}, false
	}
	if !peer.MempoolEnabled || mp.HeadHash != peerExpectedHead {
		return MempoolSnapshot{}, true
	}
	return mp.Snapshot, true
}
