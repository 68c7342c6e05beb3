package context

import "encoding/hex"

// KeyValue is one (key, value) pair returned by GetKeyValuesByPrefix, with
// key rejoined with "/" for the caller's convenience.
type KeyValue struct {
	Key   string
	Value []byte
}

// GetKeyValuesByPrefix walks the subtree at prefix as of commitHash and
// returns every blob path beneath it, ordered segment-lexicographically
// within each Tree (spec.md §4.1 "Prefix queries"). An empty result is
// returned, not an error, when prefix resolves to nothing.
func (s *Store) GetKeyValuesByPrefix(commitHash Hash, prefix string) ([]KeyValue, error) {
	stop := s.stats.start("get_key_values_by_prefix", "")
	defer stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	root, err := s.rootAt(commitHash)
	if err != nil {
		return nil, err
	}

	var path []string
	if prefix != "" {
		path = splitPrefix(prefix)
	}
	sub, ok := s.subtreeAt(root, path)
	if !ok {
		return nil, nil
	}

	var out []KeyValue
	s.collectKeyValues(sub, path, &out)
	return out, nil
}

// TreeNode is one node of the nested mapping returned by
// GetContextTreeByPrefix: exactly one of Blob or Children is set.
type TreeNode struct {
	Blob     string // hex-encoded, only set for leaves
	Children map[string]*TreeNode
}

// GetContextTreeByPrefix returns the subtree at prefix as of commitHash as
// a nested string tree suitable for JSON rendering, with blob leaves
// hex-encoded (spec.md §4.1).
func (s *Store) GetContextTreeByPrefix(commitHash Hash, prefix string) (*TreeNode, error) {
	stop := s.stats.start("get_context_tree_by_prefix", "")
	defer stop()

	s.mu.RLock()
	defer s.mu.RUnlock()

	root, err := s.rootAt(commitHash)
	if err != nil {
		return nil, err
	}

	var path []string
	if prefix != "" {
		path = splitPrefix(prefix)
	}
	sub, ok := s.subtreeAt(root, path)
	if !ok {
		return &TreeNode{Children: map[string]*TreeNode{}}, nil
	}
	return s.buildTreeNode(sub)
}

func splitPrefix(prefix string) []string {
	return splitOrEmpty(prefix)
}

func splitOrEmpty(s string) []string {
	if s == "" {
		return nil
	}
	out, _ := splitKey(s)
	return out
}

func (s *Store) rootAt(commitHash Hash) (*Tree, error) {
	c, err := s.loadCommit(commitHash)
	if err != nil {
		return nil, err
	}
	return s.loadTreeFromBackend(c.Root)
}

// subtreeAt resolves path against root, returning the Tree found there.
// An empty path resolves to root itself.
func (s *Store) subtreeAt(root *Tree, path []string) (*Tree, bool) {
	cur := root
	for _, seg := range path {
		n, ok := cur.get(seg)
		if !ok || n.Kind != KindNonLeaf {
			return nil, false
		}
		next, err := s.loadTreeFromBackend(n.Hash)
		if err != nil {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

func (s *Store) collectKeyValues(t *Tree, prefixPath []string, out *[]KeyValue) {
	for _, te := range t.sortedEntries() {
		full := append(append([]string{}, prefixPath...), te.segment)
		if te.node.Kind == KindLeaf {
			data, err := s.backend.Get(te.node.Hash)
			if err != nil {
				continue
			}
			e, err := decodeEntry(data)
			if err != nil {
				continue
			}
			*out = append(*out, KeyValue{Key: joinKey(full), Value: e.blob})
			continue
		}
		child, err := s.loadTreeFromBackend(te.node.Hash)
		if err != nil {
			continue
		}
		s.collectKeyValues(child, full, out)
	}
}

func (s *Store) buildTreeNode(t *Tree) (*TreeNode, error) {
	node := &TreeNode{Children: make(map[string]*TreeNode)}
	for _, te := range t.sortedEntries() {
		if te.node.Kind == KindLeaf {
			data, err := s.backend.Get(te.node.Hash)
			if err != nil {
				return nil, err
			}
			e, err := decodeEntry(data)
			if err != nil {
				return nil, err
			}
			node.Children[te.segment] = &TreeNode{Blob: hex.EncodeToString(e.blob)}
			continue
		}
		child, err := s.loadTreeFromBackend(te.node.Hash)
		if err != nil {
			return nil, err
		}
		childNode, err := s.buildTreeNode(child)
		if err != nil {
			return nil, err
		}
		node.Children[te.segment] = childNode
	}
	return node, nil
}

func joinKey(segments []string) string {
	out := segments[0]
	for _, seg := range segments[1:] {
		out += "/" + seg
	}
	return out
}
