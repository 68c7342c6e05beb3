package context

import (
	"bytes"
	"testing"
)

func TestPrefixQueries(t *testing.T) {
	s := NewStore(NewMemoryKV())
	must(t, s.Set("data/a/x", []byte{1}))
	must(t, s.Set("data/a/y", []byte{2}))
	must(t, s.Set("data/b", []byte{3}))
	must(t, s.Set("other/z", []byte{9}))
	c, err := s.Commit(0, "Tezos", "base")
	if err != nil {
		t.Fatal(err)
	}

	kvs, err := s.GetKeyValuesByPrefix(c, "data")
	if err != nil {
		t.Fatal(err)
	}
	if len(kvs) != 3 {
		t.Fatalf("got %d kv pairs, want 3: %+v", len(kvs), kvs)
	}
	want := []KeyValue{
		{Key: "data/a/x", Value: []byte{1}},
		{Key: "data/a/y", Value: []byte{2}},
		{Key: "data/b", Value: []byte{3}},
	}
	for i, w := range want {
		if kvs[i].Key != w.Key || !bytes.Equal(kvs[i].Value, w.Value) {
			t.Fatalf("kvs[%d] = %+v, want %+v", i, kvs[i], w)
		}
	}

	tree, err := s.GetContextTreeByPrefix(c, "data")
	if err != nil {
		t.Fatal(err)
	}
	aNode, ok := tree.Children["a"]
	if !ok || aNode.Children["x"].Blob != "01" {
		t.Fatalf("unexpected tree shape: %+v", tree)
	}

	// Unknown prefix yields an empty result, not an error.
	empty, err := s.GetKeyValuesByPrefix(c, "nope")
	if err != nil || len(empty) != 0 {
		t.Fatalf("GetKeyValuesByPrefix(nope) = %v, %v", empty, err)
	}
}

func TestGetHistoryErrors(t *testing.T) {
	s := NewStore(NewMemoryKV())
	must(t, s.Set("a", []byte{1}))
	c, err := s.Commit(0, "Tezos", "base")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.GetHistory(ZeroHash, "a"); err != ErrUnknownCommit {
		t.Fatalf("GetHistory(unknown) = %v, want ErrUnknownCommit", err)
	}
	if _, err := s.GetHistory(c, "missing"); err != ErrKeyNotFound {
		t.Fatalf("GetHistory(missing key) = %v, want ErrKeyNotFound", err)
	}

	must(t, s.Set("tree/x", []byte{1}))
	c2, err := s.Commit(0, "Tezos", "second")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetHistory(c2, "tree"); err != ErrNotABlob {
		t.Fatalf("GetHistory(tree-as-blob) = %v, want ErrNotABlob", err)
	}
}

func TestSetDeleteEmptyKeyRejected(t *testing.T) {
	s := NewStore(NewMemoryKV())
	if err := s.Set("", []byte{1}); err != ErrEmptyKey {
		t.Fatalf("Set(\"\") = %v, want ErrEmptyKey", err)
	}
	if err := s.Delete(""); err != ErrEmptyKey {
		t.Fatalf("Delete(\"\") = %v, want ErrEmptyKey", err)
	}
	if _, err := s.Get(""); err != ErrEmptyKey {
		t.Fatalf("Get(\"\") = %v, want ErrEmptyKey", err)
	}
}
