// Package context implements the Merkle context store: a persistent,
// content-addressed map from key paths to byte values, versioned by
// commits, with a hashing scheme fixed for interoperability with a
// reference implementation.
package context

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// HashLength is the fixed width of every content address used by the
// store: blobs, trees, commits, and block identifiers all hash to this
// size.
const HashLength = 32

// Hash is a 32-byte content address.
type Hash [HashLength]byte

// ZeroHash is the hash value used to mean "no parent commit".
var ZeroHash = Hash{}

// IsZero reports whether h is the zero hash.
func (h Hash) IsZero() bool { return h == ZeroHash }

// Bytes returns the raw bytes of the hash.
func (h Hash) Bytes() []byte { return h[:] }

// Hex returns the hex-encoded string representation of the hash.
func (h Hash) Hex() string { return hex.EncodeToString(h[:]) }

// String implements fmt.Stringer.
func (h Hash) String() string { return h.Hex() }

// HashFromBytes copies b (which must be HashLength bytes) into a Hash.
func HashFromBytes(b []byte) (Hash, error) {
	var h Hash
	if len(b) != HashLength {
		return h, fmt.Errorf("context: hash must be %d bytes, got %d", HashLength, len(b))
	}
	copy(h[:], b)
	return h, nil
}

// newDigest returns a BLAKE2b hasher configured to produce HashLength
// bytes of output, matching the reference implementation's variable-length
// BLAKE2b digest.
func newDigest() interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
} {
	h, err := blake2b.New(HashLength, nil)
	if err != nil {
		// Only returns an error for invalid key/size combinations; HashLength
		// is always valid for blake2b.
		panic("context: blake2b.New: " + err.Error())
	}
	return h
}

// hashBlob computes the content hash of a blob: u64 len || bytes.
func hashBlob(data []byte) Hash {
	d := newDigest()
	var lenBuf [8]byte
	binary.BigEndian.PutUint64(lenBuf[:], uint64(len(data)))
	d.Write(lenBuf[:])
	d.Write(data)
	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}

// leafKindTag and nonLeafKindTag are the 8-byte tags used when hashing a
// tree entry's node kind. These exact byte sequences are part of the
// wire-visible hashing contract and MUST NOT change.
var (
	nonLeafKindTag = [8]byte{0, 0, 0, 0, 0, 0, 0, 0}
	leafKindTag    = [8]byte{0xFF, 0, 0, 0, 0, 0, 0, 0}
)

// hashTreeEntries computes the content hash of a Tree from its entries,
// which MUST already be sorted by segment bytes (segment order is part of
// the hash).
func hashTreeEntries(entries []treeEntry) Hash {
	d := newDigest()
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(entries)))
	d.Write(buf[:])
	for _, e := range entries {
		if e.node.Kind == KindLeaf {
			d.Write(leafKindTag[:])
		} else {
			d.Write(nonLeafKindTag[:])
		}
		d.Write([]byte{byte(len(e.segment))})
		d.Write([]byte(e.segment))
		binary.BigEndian.PutUint64(buf[:], uint64(HashLength))
		d.Write(buf[:])
		d.Write(e.node.Hash[:])
	}
	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}

// hashCommit computes the content hash of a Commit.
func hashCommit(c *Commit) Hash {
	d := newDigest()
	var buf [8]byte

	binary.BigEndian.PutUint64(buf[:], uint64(HashLength))
	d.Write(buf[:])
	d.Write(c.Root[:])

	if c.Parent == nil {
		binary.BigEndian.PutUint64(buf[:], 0)
		d.Write(buf[:])
	} else {
		binary.BigEndian.PutUint64(buf[:], 1)
		d.Write(buf[:])
		binary.BigEndian.PutUint64(buf[:], uint64(HashLength))
		d.Write(buf[:])
		d.Write(c.Parent[:])
	}

	binary.BigEndian.PutUint64(buf[:], c.Time)
	d.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(len(c.Author)))
	d.Write(buf[:])
	d.Write([]byte(c.Author))
	binary.BigEndian.PutUint64(buf[:], uint64(len(c.Message)))
	d.Write(buf[:])
	d.Write([]byte(c.Message))

	var out Hash
	copy(out[:], d.Sum(nil))
	return out
}
