package context

import "sort"

// Kind distinguishes the two kinds of child a Tree entry can reference.
type Kind uint8

const (
	// KindNonLeaf marks a child that is itself a Tree.
	KindNonLeaf Kind = iota
	// KindLeaf marks a child that is a Blob.
	KindLeaf
)

// Node is the value side of a Tree entry: what kind of Entry the child is,
// and its content hash.
type Node struct {
	Kind Kind
	Hash Hash
}

// Tree is an ordered mapping from path segment to Node. Segment order is
// part of the hash (§4.1); entries are held in a map and sorted by segment
// bytes whenever the Tree is hashed or iterated (sortedEntries). A Tree is
// never empty when reachable (Invariant 1 of spec.md §3).
type Tree struct {
	entries map[string]Node
}

// treeEntry pairs a segment with its Node, used when iterating a Tree in
// sorted order for hashing or traversal.
type treeEntry struct {
	segment string
	node    Node
}

// newTree returns an empty Tree.
func newTree() *Tree {
	return &Tree{entries: make(map[string]Node)}
}

// clone returns a shallow copy of t (Nodes are small value types, so a
// shallow copy of the map is a full structural copy from the caller's
// point of view; no Tree sharing is observable through mutation).
func (t *Tree) clone() *Tree {
	n := newTree()
	for k, v := range t.entries {
		n.entries[k] = v
	}
	return n
}

// Len returns the number of direct children.
func (t *Tree) Len() int { return len(t.entries) }

// get returns the Node stored under segment, if any.
func (t *Tree) get(segment string) (Node, bool) {
	n, ok := t.entries[segment]
	return n, ok
}

// set stores or replaces the Node under segment.
func (t *Tree) set(segment string, n Node) {
	t.entries[segment] = n
}

// remove deletes the entry for segment, if present.
func (t *Tree) remove(segment string) {
	delete(t.entries, segment)
}

// sortedEntries returns the Tree's entries ordered by segment bytes, the
// order required by the hashing rules in spec.md §4.1.
func (t *Tree) sortedEntries() []treeEntry {
	out := make([]treeEntry, 0, len(t.entries))
	for k, v := range t.entries {
		out = append(out, treeEntry{segment: k, node: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].segment < out[j].segment })
	return out
}

// hash computes this Tree's content hash per spec.md §4.1.
func (t *Tree) hash() Hash {
	return hashTreeEntries(t.sortedEntries())
}

// Commit is an immutable, content-addressed snapshot of the context: a
// root Tree hash, an optional parent commit, and metadata.
type Commit struct {
	Root    Hash
	Parent  *Hash
	Time    uint64
	Author  string
	Message string
}

// Hash computes this Commit's content hash per spec.md §4.1.
func (c *Commit) Hash() Hash { return hashCommit(c) }

// entryKind tags which of Blob/Tree/Commit a decoded Entry is, mirroring
// spec.md §3's tagged union and giving callers a way to detect the
// "structural" error class (§7) when a hash resolves to the wrong variant.
type entryKind uint8

const (
	entryBlob entryKind = iota
	entryTree
	entryCommit
)

// entry is the content-addressed unit persisted in the KV backend: exactly
// one of blob, tree, or commit is populated, selected by kind.
type entry struct {
	kind   entryKind
	blob   []byte
	tree   *Tree
	commit *Commit
}
