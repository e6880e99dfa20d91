package hashring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashPosition(t *testing.T) {
	var algorithms = map[string]HashAlgorithm{
		"md5":    MD5,
		"sha1":   SHA1,
		"sha256": SHA256,
		"xxh3":   XXH3,
		"xxhash": XXHash64,
	}

	for name, alg := range algorithms {
		t.Run(name+" is deterministic", func(t *testing.T) {
			pos1, err := hashPosition(alg, []byte("key-1"))
			require.NoError(t, err)
			pos2, err := hashPosition(alg, []byte("key-1"))
			require.NoError(t, err)
			assert.Equal(t, pos1, pos2, "same input should produce same hash")
		})

		t.Run(name+" spreads different keys", func(t *testing.T) {
			pos1, err := hashPosition(alg, virtualNodeKey("server-1", 0))
			require.NoError(t, err)
			pos2, err := hashPosition(alg, virtualNodeKey("server-1", 1))
			require.NoError(t, err)
			assert.NotEqual(t, pos1, pos2, "different vnode indices should hash differently")
		})
	}

	t.Run("should take the first four digest bytes big-endian", func(t *testing.T) {
		// Arrange
		var alg = HashFunc(func([]byte) []byte {
			return []byte{0x01, 0x02, 0x03, 0x04, 0xff}
		})

		// Act
		var pos, err = hashPosition(alg, []byte("anything"))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, uint32(0x01020304), pos)
	})

	t.Run("should reject digests shorter than four bytes", func(t *testing.T) {
		// Arrange
		var alg = HashFunc(func([]byte) []byte {
			return []byte{0x01, 0x02}
		})

		// Act
		var _, err = hashPosition(alg, []byte("anything"))

		// Assert
		assert.ErrorIs(t, err, ErrDigestTooShort)
	})

	t.Run("should look up algorithms by name", func(t *testing.T) {
		alg, err := HashAlgorithmByName("XXH3")
		require.NoError(t, err)
		assert.NotNil(t, alg)

		_, err = HashAlgorithmByName("crc8")
		assert.Error(t, err)
		assert.Equal(t, []string{"md5", "sha1", "sha256", "xxh3", "xxhash"}, HashAlgorithmNames())
	})
}
