package chainsync

import (
	"sync"

	"github.com/tzgo/tezos-node/context"
)

// fakeOutbound records every message sent/disconnect issued by the
// synchronizer, for assertions in handler/synchronizer tests. Mirrors the
// teacher's pattern of a recording fake for its transport seam in tests.
type fakeOutbound struct {
	mu          sync.Mutex
	sent        []sentMessage
	disconnects []string
}

type sentMessage struct {
	peerID string
	msg    interface{}
}

func newFakeOutbound() *fakeOutbound {
	return &fakeOutbound{}
}

func (f *fakeOutbound) Send(peerID string, msg interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{peerID: peerID, msg: msg})
	return nil
}

func (f *fakeOutbound) Disconnect(peerID string, reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, peerID)
}

func (f *fakeOutbound) messagesTo(peerID string) []interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []interface{}
	for _, m := range f.sent {
		if m.peerID == peerID {
			out = append(out, m.msg)
		}
	}
	return out
}

// fixedPrevalidator always returns the configured classification, for
// tests that don't care about real prevalidation logic (out of scope per
// spec.md §1).
type fixedPrevalidator struct {
	class Classification
	err   error
}

func (p *fixedPrevalidator) Prevalidate(chainID ChainID, opHash OperationHash, op []byte, mempool MempoolSnapshot, headContext context.Hash) (Classification, error) {
	return p.class, p.err
}

// fixedApplier returns a configured context hash/error without running any
// real protocol logic. done, if non-nil, receives one value per Apply call
// so tests can synchronize with the synchronizer's async apply dispatch
// instead of racing on a plain counter.
type fixedApplier struct {
	mu      sync.Mutex
	newRoot context.Hash
	err     error
	applied []BlockHash
	done    chan BlockHash
}

func (a *fixedApplier) Apply(req ApplyBlockRequest) (context.Hash, error) {
	a.mu.Lock()
	a.applied = append(a.applied, req.BlockHash)
	a.mu.Unlock()
	if a.done != nil {
		a.done <- req.BlockHash
	}
	return a.newRoot, a.err
}

// nopRehydrator never reports a head to restore.
type nopRehydrator struct{}

func (nopRehydrator) Rehydrate(chainID ChainID) (RehydrationResult, error) {
	return RehydrationResult{}, nil
}
