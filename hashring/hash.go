package hashring

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/zeebo/xxh3"
)

// HashAlgorithm computes a digest of a key. The ring reduces the digest to a 32-bit
// position by taking its first four bytes, so digests must be at least 4 bytes long.
// Implementations must be safe for concurrent use.
type HashAlgorithm interface {
	Hash(key []byte) []byte
}

// HashFunc adapts a plain function to HashAlgorithm.
type HashFunc func(key []byte) []byte

func (f HashFunc) Hash(key []byte) []byte {
	return f(key)
}

var (
	// MD5 is the default algorithm.
	MD5 HashAlgorithm = HashFunc(func(key []byte) []byte {
		var sum = md5.Sum(key)
		return sum[:]
	})

	SHA1 HashAlgorithm = HashFunc(func(key []byte) []byte {
		var sum = sha1.Sum(key)
		return sum[:]
	})

	SHA256 HashAlgorithm = HashFunc(func(key []byte) []byte {
		var sum = sha256.Sum256(key)
		return sum[:]
	})

	// XXH3 is a fast non-cryptographic algorithm with an 8-byte big-endian digest.
	XXH3 HashAlgorithm = HashFunc(func(key []byte) []byte {
		return binary.BigEndian.AppendUint64(make([]byte, 0, 8), xxh3.Hash(key))
	})

	// XXHash64 is a fast non-cryptographic algorithm with an 8-byte big-endian digest.
	XXHash64 HashAlgorithm = HashFunc(func(key []byte) []byte {
		return binary.BigEndian.AppendUint64(make([]byte, 0, 8), xxhash.Sum64(key))
	})

	hashAlgorithms = map[string]HashAlgorithm{
		"md5":    MD5,
		"sha1":   SHA1,
		"sha256": SHA256,
		"xxh3":   XXH3,
		"xxhash": XXHash64,
	}
)

// HashAlgorithmByName looks up a built-in algorithm by case-insensitive name.
func HashAlgorithmByName(name string) (HashAlgorithm, error) {
	var alg, ok = hashAlgorithms[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown hash algorithm %q (known: %s)", name, strings.Join(HashAlgorithmNames(), ", "))
	}
	return alg, nil
}

// HashAlgorithmNames returns the names accepted by HashAlgorithmByName.
func HashAlgorithmNames() []string {
	var names = make([]string, 0, len(hashAlgorithms))
	for name := range hashAlgorithms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// hashPosition reduces the algorithm's digest of key to a ring position.
func hashPosition(alg HashAlgorithm, key []byte) (uint32, error) {
	var digest = alg.Hash(key)
	if len(digest) < 4 {
		return 0, fmt.Errorf("%w: got %d", ErrDigestTooShort, len(digest))
	}
	return binary.BigEndian.Uint32(digest[:4]), nil
}

// virtualNodeKey is the hashed identity of a server's i-th virtual node.
func virtualNodeKey(server string, index int) []byte {
	return []byte(fmt.Sprintf("%s:%d", server, index))
}
