package hashring

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRing(t *testing.T) {
	var (
		newRing = func(t *testing.T, opts ...Option) *Ring {
			var r, err = NewRing(opts...)
			require.NoError(t, err)
			return r
		}
		newKeys = func(n int) [][]byte {
			var keys = make([][]byte, n)
			for i := range n {
				keys[i] = []byte(fmt.Sprintf("key-%d", i))
			}
			return keys
		}
	)

	t.Run("should create new ring with correct defaults", func(t *testing.T) {
		// Arrange & Act
		var sut = newRing(t)

		// Assert
		assert.Equal(t, "default", sut.options.name)
		assert.Equal(t, 42, sut.options.virtualNodeCount)
		assert.Equal(t, 3, sut.options.maxHistorySize)
		assert.False(t, sut.HistoryEnabled())
		assert.Nil(t, sut.History())
		assert.Equal(t, 0, sut.ServerCount())
		assert.Equal(t, 0, sut.VirtualNodeCount())
	})

	t.Run("should reject invalid construction options", func(t *testing.T) {
		_, err := NewRing(WithVirtualNodeCount(0))
		assert.ErrorIs(t, err, ErrInvalidVirtualNodeCount)

		_, err = NewRing(WithHashAlgorithm(nil))
		assert.ErrorIs(t, err, ErrInvalidHashAlgorithm)

		_, err = NewRing(WithHashAlgorithm(HashFunc(func([]byte) []byte { return []byte{1} })))
		assert.ErrorIs(t, err, ErrDigestTooShort)
	})

	t.Run("should add servers with default and explicit virtual node counts", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)

		// Act
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2", 10))

		// Assert
		assert.Equal(t, []string{"server-1", "server-2"}, sut.Servers())
		assert.Equal(t, 52, sut.VirtualNodeCount())
		assert.True(t, sut.Contains("server-2"))
	})

	t.Run("should keep virtual nodes sorted by hash", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2"))

		// Act
		var vnodes = sut.VirtualNodes()

		// Assert
		for i := 1; i < len(vnodes); i++ {
			assert.LessOrEqual(t, vnodes[i-1].Hash, vnodes[i].Hash)
		}
	})

	t.Run("should update the virtual node count of an existing server", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)
		require.NoError(t, sut.Add("server-1", 5))

		// Act
		require.NoError(t, sut.Add("server-1", 7))

		// Assert
		assert.Equal(t, 1, sut.ServerCount())
		assert.Equal(t, 7, sut.VirtualNodeCount())
	})

	t.Run("should reject invalid add arguments", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)

		// Act & Assert
		assert.ErrorIs(t, sut.Add(""), ErrInvalidServer)
		assert.ErrorIs(t, sut.Add("server-1", 0), ErrInvalidVirtualNodeCount)
		assert.ErrorIs(t, sut.Add("server-1", -3), ErrInvalidVirtualNodeCount)
		assert.Equal(t, 0, sut.ServerCount())
	})

	t.Run("should remove servers and report absent ones", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2"))

		// Act
		var removed = sut.Remove("server-1")
		var removedAgain = sut.Remove("server-1")

		// Assert
		assert.True(t, removed)
		assert.False(t, removedAgain)
		assert.Equal(t, []string{"server-2"}, sut.Servers())
		assert.Equal(t, 42, sut.VirtualNodeCount())
	})

	t.Run("should fail lookups on an empty ring", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)

		// Act
		var _, err = sut.GetServer([]byte("key"))
		var _, ok = sut.TryGetServer([]byte("key"))
		var _, serversErr = sut.GetServers([]byte("key"), 2)
		var _, candidatesErr = sut.GetServerCandidates([]byte("key"))

		// Assert
		assert.ErrorIs(t, err, ErrNoServers)
		assert.False(t, ok)
		assert.ErrorIs(t, serversErr, ErrNoServers)
		assert.ErrorIs(t, candidatesErr, ErrNoServersAnywhere)
	})

	t.Run("should resolve keys deterministically across rebuilds", func(t *testing.T) {
		// Arrange
		var (
			first  = newRing(t)
			second = newRing(t)
			keys   = newKeys(500)
		)
		require.NoError(t, first.Add("server-1"))
		require.NoError(t, first.Add("server-2"))
		require.NoError(t, first.Add("server-3"))

		// Different insertion order, plus a no-op update
		require.NoError(t, second.Add("server-3"))
		require.NoError(t, second.Add("server-1"))
		require.NoError(t, second.Add("server-2"))
		require.NoError(t, second.Add("server-2"))

		// Act & Assert
		for _, key := range keys {
			var s1, err1 = first.GetServer(key)
			var s2, err2 = second.GetServer(key)
			var s3, err3 = first.GetServer(key)
			require.NoError(t, err1)
			require.NoError(t, err2)
			require.NoError(t, err3)
			assert.Equal(t, s1, s2)
			assert.Equal(t, s1, s3)
		}
	})

	t.Run("should wrap to the first virtual node past the highest hash", func(t *testing.T) {
		// Arrange
		var (
			position = uint32(0)
			alg      = HashFunc(func(key []byte) []byte {
				switch string(key) {
				case "low:0":
					return []byte{0x10, 0, 0, 0}
				case "high:0":
					return []byte{0x80, 0, 0, 0}
				default:
					return []byte{byte(position >> 24), byte(position >> 16), byte(position >> 8), byte(position)}
				}
			})
			sut = newRing(t, WithHashAlgorithm(alg), WithVirtualNodeCount(1))
		)
		require.NoError(t, sut.Add("low"))
		require.NoError(t, sut.Add("high"))

		// Act & Assert
		position = 0x05000000
		var server, _ = sut.GetServer([]byte("k"))
		assert.Equal(t, "low", server)

		position = 0x10000000
		server, _ = sut.GetServer([]byte("k"))
		assert.Equal(t, "low", server, "exact match owns the key")

		position = 0x40000000
		server, _ = sut.GetServer([]byte("k"))
		assert.Equal(t, "high", server)

		position = 0x90000000
		server, _ = sut.GetServer([]byte("k"))
		assert.Equal(t, "low", server, "keys past the last vnode wrap around")
	})

	t.Run("should break hash ties by insertion order", func(t *testing.T) {
		// Arrange
		var (
			constant = HashFunc(func([]byte) []byte { return []byte{0, 0, 0, 7} })
			sut      = newRing(t, WithHashAlgorithm(constant), WithVirtualNodeCount(2))
		)
		require.NoError(t, sut.Add("b"))
		require.NoError(t, sut.Add("a"))

		// Act
		var vnodes = sut.VirtualNodes()
		var server, err = sut.GetServer([]byte("key"))

		// Assert
		require.NoError(t, err)
		assert.Equal(t, []VirtualNode{{7, "a"}, {7, "a"}, {7, "b"}, {7, "b"}}, vnodes)
		assert.Equal(t, "a", server)
	})

	t.Run("should only move keys owned by a removed server", func(t *testing.T) {
		// Arrange
		var (
			sut    = newRing(t)
			keys   = newKeys(10000)
			before = make(map[string]string, len(keys))
		)
		for i := range 4 {
			require.NoError(t, sut.Add(fmt.Sprintf("server-%d", i)))
		}
		for _, key := range keys {
			before[string(key)], _ = sut.GetServer(key)
		}

		// Act
		sut.Remove("server-2")

		// Assert
		var moved = 0
		for _, key := range keys {
			var after, err = sut.GetServer(key)
			require.NoError(t, err)
			if after != before[string(key)] {
				moved++
				assert.Equal(t, "server-2", before[string(key)], "only keys of the removed server may move")
			}
		}

		var fraction = float64(moved) / float64(len(keys))
		assert.InDelta(t, 0.25, fraction, 0.12, "about 1/N of keys should move")
	})

	t.Run("should only move keys to an added server", func(t *testing.T) {
		// Arrange
		var (
			sut    = newRing(t)
			keys   = newKeys(5000)
			before = make(map[string]string, len(keys))
		)
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2"))
		for _, key := range keys {
			before[string(key)], _ = sut.GetServer(key)
		}

		// Act
		require.NoError(t, sut.Add("server-3"))

		// Assert
		for _, key := range keys {
			var after, _ = sut.GetServer(key)
			if after != before[string(key)] {
				assert.Equal(t, "server-3", after)
			}
		}
	})

	t.Run("should return distinct servers walking the ring", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2"))
		require.NoError(t, sut.Add("server-3"))

		for _, key := range newKeys(100) {
			// Act
			var owner, _ = sut.GetServer(key)
			var two, err = sut.GetServers(key, 2)
			require.NoError(t, err)
			var all, allErr = sut.GetServers(key, 10)
			require.NoError(t, allErr)

			// Assert
			require.Len(t, two, 2)
			assert.Equal(t, owner, two[0])
			assert.NotEqual(t, two[0], two[1])
			assert.ElementsMatch(t, []string{"server-1", "server-2", "server-3"}, all)
			assert.Equal(t, two, all[:2])
		}

		var _, err = sut.GetServers([]byte("key"), 0)
		assert.ErrorIs(t, err, ErrInvalidCount)
	})

	t.Run("should spread ownership across servers", func(t *testing.T) {
		// Arrange
		var sut = newRing(t, WithVirtualNodeCount(160))
		for i := range 4 {
			require.NoError(t, sut.Add(fmt.Sprintf("server-%d", i)))
		}

		// Act
		var shares = sut.Distribution()

		// Assert
		var total float64
		for _, share := range shares {
			total += share
			assert.InDelta(t, 0.25, share, 0.1)
		}
		assert.InDelta(t, 1.0, total, 1e-9)
	})

	t.Run("should fail history operations when history is disabled", func(t *testing.T) {
		// Arrange
		var sut = newRing(t)
		require.NoError(t, sut.Add("server-1"))

		// Act
		var _, snapErr = sut.CreateConfigurationSnapshot()
		var clearErr = sut.ClearHistory()

		// Assert
		assert.ErrorIs(t, snapErr, ErrHistoryDisabled)
		assert.ErrorIs(t, clearErr, ErrHistoryDisabled)
	})

	t.Run("should not snapshot an empty ring", func(t *testing.T) {
		var sut = newRing(t, WithHistory(3))
		_, err := sut.CreateConfigurationSnapshot()
		assert.ErrorIs(t, err, ErrNoServers)
		assert.Equal(t, 0, sut.History().Count())
	})

	t.Run("should capture snapshots with id, timestamp and topology", func(t *testing.T) {
		// Arrange
		var (
			now   = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			clock = clockwork.NewFakeClockAt(now)
			sut   = newRing(t, WithHistory(3), WithClock(clock))
		)
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2"))

		// Act
		var snapshot, err = sut.CreateConfigurationSnapshot()
		require.NoError(t, err)
		require.NoError(t, sut.Add("server-3"))

		// Assert
		assert.NotEmpty(t, snapshot.ID())
		assert.Equal(t, now, snapshot.CreatedAt())
		assert.Equal(t, []string{"server-1", "server-2"}, snapshot.Servers())
		assert.Len(t, snapshot.VirtualNodes(), 84)
		assert.True(t, snapshot.ContainsServer("server-2"))
		assert.False(t, snapshot.ContainsServer("server-3"), "later mutations must not leak into snapshots")
		assert.True(t, snapshot.Equal(snapshot))
		for _, vnode := range snapshot.VirtualNodes() {
			assert.True(t, snapshot.ContainsServer(vnode.Server))
		}
	})

	t.Run("should reject the snapshot past the history limit", func(t *testing.T) {
		// Arrange
		var sut = newRing(t, WithHistory(3))
		require.NoError(t, sut.Add("server-1"))
		for range 3 {
			_, err := sut.CreateConfigurationSnapshot()
			require.NoError(t, err)
		}

		// Act
		var _, err = sut.CreateConfigurationSnapshot()

		// Assert
		var limitErr *HistoryLimitExceededError
		require.ErrorAs(t, err, &limitErr)
		assert.Equal(t, 3, limitErr.MaxSize)
		assert.Equal(t, 3, limitErr.CurrentCount)
		assert.Equal(t, 3, sut.History().Count())
	})

	t.Run("should evict the oldest snapshot past the history limit", func(t *testing.T) {
		// Arrange
		var (
			sut   = newRing(t, WithHistory(3), WithOverflowPolicy(EvictOldest))
			first *ConfigurationSnapshot
		)
		require.NoError(t, sut.Add("server-1"))
		for i := range 3 {
			var snapshot, err = sut.CreateConfigurationSnapshot()
			require.NoError(t, err)
			if i == 0 {
				first = snapshot
			}
		}

		// Act
		var _, err = sut.CreateConfigurationSnapshot()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 3, sut.History().Count())
		for _, snapshot := range sut.History().Snapshots() {
			assert.NotEqual(t, first.ID(), snapshot.ID())
		}
	})

	t.Run("should clear history and keep the live configuration", func(t *testing.T) {
		// Arrange
		var sut = newRing(t, WithHistory(3))
		require.NoError(t, sut.Add("server-1"))
		_, err := sut.CreateConfigurationSnapshot()
		require.NoError(t, err)

		// Act
		err = sut.ClearHistory()

		// Assert
		require.NoError(t, err)
		assert.Equal(t, 0, sut.History().Count())
		assert.Equal(t, 1, sut.ServerCount())
	})

	t.Run("should handle concurrent adds and lookups", func(t *testing.T) {
		// Arrange
		var (
			sut = newRing(t, WithVirtualNodeCount(8))
			wg  sync.WaitGroup
		)
		require.NoError(t, sut.Add("seed"))

		// Act
		for i := range 16 {
			wg.Add(2)
			go func() {
				defer wg.Done()
				assert.NoError(t, sut.Add(fmt.Sprintf("server-%d", i)))
			}()
			go func() {
				defer wg.Done()
				for _, key := range newKeys(50) {
					var _, err = sut.GetServer(key)
					assert.NoError(t, err)
				}
			}()
		}
		wg.Wait()

		// Assert
		assert.Equal(t, 17, sut.ServerCount())
		assert.Equal(t, 17*8, sut.VirtualNodeCount())
	})

	t.Run("should print visual representation of ring", func(t *testing.T) {
		// Arrange
		var sut = newRing(t, WithName("cache"), WithHistory(2))
		require.NoError(t, sut.Add("server-1"))
		require.NoError(t, sut.Add("server-2", 10))
		_, err := sut.CreateConfigurationSnapshot()
		require.NoError(t, err)

		// Act
		var output = sut.String()

		// Assert
		assert.Contains(t, output, "Ring: cache")
		assert.Contains(t, output, "Servers: 2 | VNodes: 52")
		assert.Contains(t, output, "History: 1/2 (reject)")
		assert.Contains(t, output, "server-1")
		assert.Contains(t, output, "server-2")

		t.Logf("\n%s", output)
	})

	t.Run("should print empty ring", func(t *testing.T) {
		var sut = newRing(t)
		assert.Contains(t, sut.String(), "[Empty Ring]")
	})
}
