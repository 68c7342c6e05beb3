package context

import (
	"strings"
	"sync"
)

// splitKey turns a "/"-separated key into path segments, rejecting the
// empty key per the public contract ("non-empty key" for every mutating and
// point-read operation).
func splitKey(key string) ([]string, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}
	return strings.Split(key, "/"), nil
}

// Store is the Merkle context store: a persistent, content-addressed map
// from key paths to byte values, versioned by commits. The zero value is
// not usable; construct with NewStore.
//
// Store holds one exclusive-or-shared lock guarding the whole staging
// session (spec.md §4.1 "Shared-resource policy"): set/copy/delete/commit/
// checkout/get take the exclusive side because they read or mutate the
// live staging Tree; get_history and the prefix queries take the shared
// side because they only ever resolve an already-persisted commit hash
// against the backend and never touch live staging state — which is also
// what gives them read isolation from concurrent mutation (Testable
// Property 8).
type Store struct {
	mu sync.RWMutex

	backend KVStore
	arena   *stagingArena

	// staged is the materialized root Tree of the current staging area.
	// The spec describes staging as an action log replayed lazily at
	// commit time; this implementation instead applies each action to
	// staged immediately, using the exact rebuild-on-change algorithm a
	// lazy replay would run per log entry anyway, and keeps the log
	// (actionLog) purely for introspection. The two are observably
	// equivalent — get() must see staged writes before commit either
	// way — and applying eagerly means commit only has to hash the
	// (already current) root and walk its closure, rather than re-derive
	// it from scratch.
	staged    *Tree
	actionLog []action

	lastCommit *Hash

	stats *storeStats
}

// NewStore creates a Store backed by backend, with empty staging and no
// checked-out commit.
func NewStore(backend KVStore) *Store {
	return &Store{
		backend: backend,
		arena:   newStagingArena(),
		staged:  newTree(),
		stats:   newStoreStats(),
	}
}

// loadEntry resolves hash to its Entry, checking the in-flight staging
// arena before falling back to the backend.
func (s *Store) loadEntry(hash Hash) (*entry, error) {
	if e, ok := s.arena.get(hash); ok {
		return e, nil
	}
	data, err := s.backend.Get(hash)
	if err != nil {
		return nil, err
	}
	return decodeEntry(data)
}

func (s *Store) loadTree(hash Hash) (*Tree, error) {
	e, err := s.loadEntry(hash)
	if err != nil {
		return nil, err
	}
	if e.kind != entryTree {
		return nil, ErrWrongEntryKind
	}
	return e.tree, nil
}

func (s *Store) loadCommit(hash Hash) (*Commit, error) {
	data, err := s.backend.Get(hash)
	if err != nil {
		return nil, ErrUnknownCommit
	}
	e, err := decodeEntry(data)
	if err != nil || e.kind != entryCommit {
		return nil, ErrUnknownCommit
	}
	return e.commit, nil
}

// walkGet performs the path-walk read algorithm of spec.md §4.1: at each
// segment look up the child; if it is absent, or an intermediate segment
// resolves to a Blob instead of a Tree, the key is considered not found.
func (s *Store) walkGet(root *Tree, path []string) ([]byte, error) {
	cur := root
	for i, seg := range path {
		n, ok := cur.get(seg)
		if !ok {
			return nil, ErrKeyNotFound
		}
		last := i == len(path)-1
		if last {
			if n.Kind != KindLeaf {
				return nil, ErrNotABlob
			}
			e, err := s.loadEntry(n.Hash)
			if err != nil {
				return nil, err
			}
			return e.blob, nil
		}
		if n.Kind != KindNonLeaf {
			return nil, ErrKeyNotFound
		}
		next, err := s.loadTree(n.Hash)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return nil, ErrKeyNotFound
}

// stageTree hashes t, memoizes it in the arena, and returns the resulting
// Node. Releasing the hash it replaces, if any, is left to the caller.
func (s *Store) stageTree(t *Tree) Node {
	h := t.hash()
	s.arena.put(h, &entry{kind: entryTree, tree: t})
	return Node{Kind: KindNonLeaf, Hash: h}
}

func (s *Store) stageBlob(data []byte) Node {
	h := hashBlob(data)
	s.arena.put(h, &entry{kind: entryBlob, blob: data})
	return Node{Kind: KindLeaf, Hash: h}
}

// rebuildSet implements "rebuild on change" for a write: locate or create
// the Tree at each level, set the blob at the final segment, and rehash
// upward.
func (s *Store) rebuildSet(root *Tree, path []string, value []byte) *Tree {
	seg, rest := path[0], path[1:]

	if len(rest) == 0 {
		next := root.clone()
		leaf := s.stageBlob(value)
		if old, ok := next.get(seg); ok {
			s.arena.release(old.Hash)
		}
		next.set(seg, leaf)
		return next
	}

	child := newTree()
	if n, ok := root.get(seg); ok && n.Kind == KindNonLeaf {
		if t, err := s.loadTree(n.Hash); err == nil {
			child = t
		}
	}
	newChild := s.rebuildSet(child, rest, value)

	next := root.clone()
	if old, ok := next.get(seg); ok {
		s.arena.release(old.Hash)
	}
	next.set(seg, s.stageTree(newChild))
	return next
}

// rebuildDelete implements "rebuild on change" for a removal: if the Tree
// at a level becomes empty after the removal, the segment is dropped from
// its own parent and the emptiness recurses upward (Invariant 1: no
// reachable Tree is ever empty).
func (s *Store) rebuildDelete(root *Tree, path []string) *Tree {
	seg, rest := path[0], path[1:]

	n, ok := root.get(seg)
	if !ok {
		return root
	}

	if len(rest) == 0 {
		if n.Kind != KindLeaf {
			return root
		}
		next := root.clone()
		s.arena.release(n.Hash)
		next.remove(seg)
		return next
	}

	if n.Kind != KindNonLeaf {
		return root
	}
	child, err := s.loadTree(n.Hash)
	if err != nil {
		return root
	}
	newChild := s.rebuildDelete(child, rest)

	next := root.clone()
	s.arena.release(n.Hash)
	if newChild.Len() == 0 {
		next.remove(seg)
	} else {
		next.set(seg, s.stageTree(newChild))
	}
	return next
}

// resolveNode walks root along path and returns the Node it names, without
// materializing intermediate trees beyond what's needed to continue the
// walk. Used by copy to capture the source subtree's Node by reference.
func (s *Store) resolveNode(root *Tree, path []string) (Node, bool) {
	cur := root
	for i, seg := range path {
		n, ok := cur.get(seg)
		if !ok {
			return Node{}, false
		}
		if i == len(path)-1 {
			return n, true
		}
		if n.Kind != KindNonLeaf {
			return Node{}, false
		}
		next, err := s.loadTree(n.Hash)
		if err != nil {
			return Node{}, false
		}
		cur = next
	}
	return Node{}, false
}

// rebuildCopy inserts a Node at `to` that points at the same hash as the
// Node at `from`, per spec.md §4.1's O(1) copy: no new Blob or source Tree
// is created, only the ancestors of `to` are rehashed, and the copied
// hash's refcount is incremented rather than the object rebuilt.
func (s *Store) rebuildCopy(root *Tree, from, to []string) *Tree {
	srcNode, ok := s.resolveNode(root, from)
	if !ok {
		return root
	}
	return s.rebuildSetNode(root, to, srcNode)
}

func (s *Store) rebuildSetNode(root *Tree, path []string, node Node) *Tree {
	seg, rest := path[0], path[1:]

	if len(rest) == 0 {
		next := root.clone()
		if old, ok := next.get(seg); ok {
			s.arena.release(old.Hash)
		}
		s.arena.refs[node.Hash]++ // reference the copied subtree/blob by hash
		next.set(seg, node)
		return next
	}

	child := newTree()
	if n, ok := root.get(seg); ok && n.Kind == KindNonLeaf {
		if t, err := s.loadTree(n.Hash); err == nil {
			child = t
		}
	}
	newChild := s.rebuildSetNode(child, rest, node)

	next := root.clone()
	if old, ok := next.get(seg); ok {
		s.arena.release(old.Hash)
	}
	next.set(seg, s.stageTree(newChild))
	return next
}

// Set stages a write of value under key.
func (s *Store) Set(key string, value []byte) error {
	path, err := splitKey(key)
	if err != nil {
		return err
	}
	stop := s.stats.start("set", path[0])
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = s.rebuildSet(s.staged, path, value)
	s.actionLog = append(s.actionLog, action{kind: actionSet, key: path, value: value})
	return nil
}

// Delete stages removal of key.
func (s *Store) Delete(key string) error {
	path, err := splitKey(key)
	if err != nil {
		return err
	}
	stop := s.stats.start("delete", path[0])
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = s.rebuildDelete(s.staged, path)
	s.actionLog = append(s.actionLog, action{kind: actionDelete, key: path})
	return nil
}

// Copy stages a subtree copy from `from` to `to`, by reference.
func (s *Store) Copy(from, to string) error {
	fromPath, err := splitKey(from)
	if err != nil {
		return err
	}
	toPath, err := splitKey(to)
	if err != nil {
		return err
	}
	stop := s.stats.start("copy", toPath[0])
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = s.rebuildCopy(s.staged, fromPath, toPath)
	s.actionLog = append(s.actionLog, action{kind: actionCopy, key: toPath, from: fromPath})
	return nil
}

// Checkout discards any staged mutations and sets the staging area to the
// tree recorded by commitHash.
func (s *Store) Checkout(commitHash Hash) error {
	stop := s.stats.start("checkout", "")
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.loadCommit(commitHash)
	if err != nil {
		return err
	}
	root, err := s.loadTreeFromBackend(c.Root)
	if err != nil {
		return err
	}

	s.staged = root
	s.actionLog = nil
	s.arena.reset()
	hc := commitHash
	s.lastCommit = &hc
	return nil
}

// loadTreeFromBackend loads a Tree directly from the backend, bypassing
// the staging arena; used when establishing a fresh staging session so an
// empty-root commit can't accidentally pick up a stale arena entry.
func (s *Store) loadTreeFromBackend(hash Hash) (*Tree, error) {
	data, err := s.backend.Get(hash)
	if err != nil {
		return nil, err
	}
	e, err := decodeEntry(data)
	if err != nil {
		return nil, err
	}
	if e.kind != entryTree {
		return nil, ErrWrongEntryKind
	}
	return e.tree, nil
}

// collectClosure gathers the serialized form of every object reachable
// from hash that is still only held in the staging arena (i.e. not yet
// persisted). An object absent from the arena is assumed already
// persisted — by construction every hash reachable from a previously
// committed root is either freshly staged (and thus in the arena) or was
// copied from an existing, already-persisted subtree. This is what makes
// copy's O(1) write cost (Testable Property 7) hold regardless of the
// arena's refcount bookkeeping: the closure walk below is the actual
// mechanism that decides what gets written, the refcounts merely let the
// arena forget objects early.
func (s *Store) collectClosure(hash Hash, out map[Hash][]byte, visited map[Hash]bool) {
	if visited[hash] {
		return
	}
	visited[hash] = true

	e, ok := s.arena.get(hash)
	if !ok {
		return
	}
	out[hash] = encodeEntry(e)
	if e.kind == entryTree {
		for _, te := range e.tree.sortedEntries() {
			s.collectClosure(te.node.Hash, out, visited)
		}
	}
}

// Commit persists the current staging area as a new Commit, atomically
// writing every object reachable from its root that wasn't already
// persisted. If the staged root is unchanged from the last commit's root,
// no new commit is written and the previous commit hash is returned
// (spec.md §4.1, Testable Properties 4 and 6).
func (s *Store) Commit(t uint64, author, message string) (Hash, error) {
	stop := s.stats.start("commit", "")
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	rootHash := s.staged.hash()

	if s.lastCommit != nil {
		prev, err := s.loadCommit(*s.lastCommit)
		if err == nil && prev.Root == rootHash {
			return *s.lastCommit, nil
		}
	}

	// rebuildSet, rebuildDelete and rebuildSetNode stage every rebuilt
	// subtree but return the new root without staging it, so this is where
	// the root Tree itself is put into the arena (it also covers a root
	// that was never mutated, e.g. the first commit of an empty store).
	if _, ok := s.arena.get(rootHash); !ok {
		s.arena.put(rootHash, &entry{kind: entryTree, tree: s.staged})
	}

	c := &Commit{Root: rootHash, Parent: s.lastCommit, Time: t, Author: author, Message: message}
	commitHash := c.Hash()

	closure := make(map[Hash][]byte)
	visited := make(map[Hash]bool)
	s.collectClosure(rootHash, closure, visited)
	closure[commitHash] = encodeEntry(&entry{kind: entryCommit, commit: c})

	if err := s.backend.BatchPut(closure); err != nil {
		return Hash{}, err
	}

	s.arena.reset()
	s.actionLog = nil
	s.lastCommit = &commitHash
	return commitHash, nil
}

// Get reads value at key from the current staging root.
func (s *Store) Get(key string) ([]byte, error) {
	path, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	stop := s.stats.start("get", path[0])
	defer stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.walkGet(s.staged, path)
}

// GetHistory reads value at key as of commitHash, independent of the
// current staging area's state.
func (s *Store) GetHistory(commitHash Hash, key string) ([]byte, error) {
	path, err := splitKey(key)
	if err != nil {
		return nil, err
	}
	stop := s.stats.start("get_history", path[0])
	defer stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.loadCommit(commitHash)
	if err != nil {
		return nil, err
	}
	root, err := s.loadTreeFromBackend(c.Root)
	if err != nil {
		return nil, err
	}
	return s.walkGetBackendOnly(root, path)
}

// walkGetBackendOnly is walkGet restricted to backend-resolved trees, used
// by GetHistory so history reads never consult the live staging arena.
func (s *Store) walkGetBackendOnly(root *Tree, path []string) ([]byte, error) {
	cur := root
	for i, seg := range path {
		n, ok := cur.get(seg)
		if !ok {
			return nil, ErrKeyNotFound
		}
		last := i == len(path)-1
		if last {
			if n.Kind != KindLeaf {
				return nil, ErrNotABlob
			}
			data, err := s.backend.Get(n.Hash)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(data)
			if err != nil {
				return nil, err
			}
			return e.blob, nil
		}
		if n.Kind != KindNonLeaf {
			return nil, ErrKeyNotFound
		}
		next, err := s.loadTreeFromBackend(n.Hash)
		if err != nil {
			return nil, err
		}
		cur = next
	}
	return nil, ErrKeyNotFound
}
