package context

import (
	"encoding/binary"
	"fmt"
)

// Entry serialization is implementation-chosen (spec.md §6: "An Entry is
// serialized (implementation-chosen binary encoding) and stored under its
// 32-byte content hash"); only the hash *inputs* are wire-visible. This
// encoding deliberately mirrors the field order of the hashing rules in
// hash.go so the two stay easy to read side by side.
const (
	tagBlob   byte = 0
	tagTree   byte = 1
	tagCommit byte = 2
)

func putU64(buf []byte, n uint64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], n)
	return append(buf, tmp[:]...)
}

func readU64(b []byte) (uint64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("context: truncated u64")
	}
	return binary.BigEndian.Uint64(b[:8]), b[8:], nil
}

// encodeEntry serializes an Entry to bytes for storage.
func encodeEntry(e *entry) []byte {
	switch e.kind {
	case entryBlob:
		buf := make([]byte, 0, 9+len(e.blob))
		buf = append(buf, tagBlob)
		buf = putU64(buf, uint64(len(e.blob)))
		buf = append(buf, e.blob...)
		return buf
	case entryTree:
		entries := e.tree.sortedEntries()
		buf := make([]byte, 0, 64*len(entries))
		buf = append(buf, tagTree)
		buf = putU64(buf, uint64(len(entries)))
		for _, te := range entries {
			buf = append(buf, byte(te.node.Kind))
			buf = append(buf, byte(len(te.segment)))
			buf = append(buf, te.segment...)
			buf = append(buf, te.node.Hash[:]...)
		}
		return buf
	case entryCommit:
		c := e.commit
		buf := make([]byte, 0, 128+len(c.Author)+len(c.Message))
		buf = append(buf, tagCommit)
		buf = append(buf, c.Root[:]...)
		if c.Parent == nil {
			buf = append(buf, 0)
		} else {
			buf = append(buf, 1)
			buf = append(buf, c.Parent[:]...)
		}
		buf = putU64(buf, c.Time)
		buf = putU64(buf, uint64(len(c.Author)))
		buf = append(buf, c.Author...)
		buf = putU64(buf, uint64(len(c.Message)))
		buf = append(buf, c.Message...)
		return buf
	default:
		panic("context: encodeEntry: unknown entry kind")
	}
}

// decodeEntry deserializes bytes produced by encodeEntry.
func decodeEntry(data []byte) (*entry, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("context: empty entry data")
	}
	tag, rest := data[0], data[1:]

	switch tag {
	case tagBlob:
		n, rest, err := readU64(rest)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest)) < n {
			return nil, fmt.Errorf("context: truncated blob")
		}
		blob := make([]byte, n)
		copy(blob, rest[:n])
		return &entry{kind: entryBlob, blob: blob}, nil

	case tagTree:
		n, rest, err := readU64(rest)
		if err != nil {
			return nil, err
		}
		t := newTree()
		for i := uint64(0); i < n; i++ {
			if len(rest) < 2 {
				return nil, fmt.Errorf("context: truncated tree entry header")
			}
			kind := Kind(rest[0])
			segLen := int(rest[1])
			rest = rest[2:]
			if len(rest) < segLen+HashLength {
				return nil, fmt.Errorf("context: truncated tree entry body")
			}
			segment := string(rest[:segLen])
			rest = rest[segLen:]
			h, err := HashFromBytes(rest[:HashLength])
			if err != nil {
				return nil, err
			}
			rest = rest[HashLength:]
			t.set(segment, Node{Kind: kind, Hash: h})
		}
		return &entry{kind: entryTree, tree: t}, nil

	case tagCommit:
		if len(rest) < HashLength+1 {
			return nil, fmt.Errorf("context: truncated commit")
		}
		root, err := HashFromBytes(rest[:HashLength])
		if err != nil {
			return nil, err
		}
		rest = rest[HashLength:]
		hasParent := rest[0]
		rest = rest[1:]

		c := &Commit{Root: root}
		if hasParent == 1 {
			if len(rest) < HashLength {
				return nil, fmt.Errorf("context: truncated commit parent")
			}
			p, err := HashFromBytes(rest[:HashLength])
			if err != nil {
				return nil, err
			}
			rest = rest[HashLength:]
			c.Parent = &p
		}

		t, rest2, err := readU64(rest)
		if err != nil {
			return nil, err
		}
		c.Time = t
		rest = rest2

		alen, rest2, err := readU64(rest)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest2)) < alen {
			return nil, fmt.Errorf("context: truncated commit author")
		}
		c.Author = string(rest2[:alen])
		rest = rest2[alen:]

		mlen, rest2, err := readU64(rest)
		if err != nil {
			return nil, err
		}
		if uint64(len(rest2)) < mlen {
			return nil, fmt.Errorf("context: truncated commit message")
		}
		c.Message = string(rest2[:mlen])

		return &entry{kind: entryCommit, commit: c}, nil

	default:
		return nil, fmt.Errorf("context: unknown entry tag %d", tag)
	}
}
