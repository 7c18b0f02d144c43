// Package digest provides the 32-byte hash value used throughout the node.
// All consensus-relevant identifiers (block hashes, commitments, accumulator
// roots, storage keys) are digests over canonical encodings.
package digest

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Size is the length of a Digest in bytes.
const Size = 32

type Digest [Size]byte

// Empty is the all-zero digest.
var Empty = Digest{}

// Hash returns the SHA3-256 digest of the concatenation of the given byte
// slices. The concatenation order is part of the canonical encoding.
func Hash(data ...[]byte) Digest {
	h := sha3.New256()
	for _, d := range data {
		h.Write(d)
	}

	var out Digest
	copy(out[:], h.Sum(nil))

	return out
}

// HashPair hashes the canonical concatenation of two digests.
func HashPair(left, right Digest) Digest {
	return Hash(left[:], right[:])
}

// HashUint64 hashes a digest together with a big-endian uint64. Used for
// counter-mode index derivation.
func HashUint64(d Digest, v uint64) Digest {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)

	return Hash(d[:], buf[:])
}

func FromBytes(b []byte) (Digest, error) {
	var d Digest
	if len(b) != Size {
		return d, errInvalidLength(len(b))
	}

	copy(d[:], b)

	return d, nil
}

func FromString(s string) (Digest, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Digest{}, err
	}

	return FromBytes(b)
}

func (d Digest) Bytes() []byte {
	out := make([]byte, Size)
	copy(out, d[:])

	return out
}

func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

func (d Digest) IsEmpty() bool {
	return d == Empty
}

// Compare returns -1, 0 or 1 by lexicographic byte order. This order is the
// protocol's tie-break rule for equal-work chain tips and must be identical
// on every node.
func (d Digest) Compare(other Digest) int {
	return bytes.Compare(d[:], other[:])
}

// Uint64 interprets the first 8 bytes as a big-endian integer. Used to
// derive Bloom filter indices from counter-mode hashes.
func (d Digest) Uint64() uint64 {
	return binary.BigEndian.Uint64(d[:8])
}
