package election

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// testLeaseStoreContract runs the behavior every LeaseStore must have. newStore must build a
// store whose lease timestamps come from clock.
func testLeaseStoreContract(t *testing.T, newStore func(t *testing.T, clock clockwork.Clock) LeaseStore) {
	var (
		start    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		newClock = func() *clockwork.FakeClock {
			return clockwork.NewFakeClockAt(start)
		}
		newCtx = func() context.Context {
			return context.Background()
		}
		precision = time.Millisecond
	)

	t.Run("should acquire a free election", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)

		// Act
		var lease, err = sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, map[string]string{"zone": "a"})

		// Assert
		require.NoError(t, err)
		require.NotNil(t, lease)
		assert.Equal(t, "node-1", lease.ParticipantID)
		assert.WithinDuration(t, start, lease.AcquiredAt, precision)
		assert.WithinDuration(t, start.Add(10*time.Second), lease.ExpiresAt, precision)
		assert.Equal(t, map[string]string{"zone": "a"}, lease.Metadata)
	})

	t.Run("should refuse acquisition while another participant holds a live lease", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		clock.Advance(5 * time.Second)
		var lease, acquireErr = sut.TryAcquireLease(newCtx(), "orders", "node-2", 10*time.Second, nil)

		// Assert
		require.NoError(t, acquireErr)
		assert.Nil(t, lease)
	})

	t.Run("should treat an expired lease as absent", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		clock.Advance(11 * time.Second)
		var lease, acquireErr = sut.TryAcquireLease(newCtx(), "orders", "node-2", 10*time.Second, nil)

		// Assert
		require.NoError(t, acquireErr)
		require.NotNil(t, lease)
		assert.Equal(t, "node-2", lease.ParticipantID)
		assert.WithinDuration(t, start.Add(11*time.Second), lease.AcquiredAt, precision)
	})

	t.Run("should keep acquired time when the holder acquires again", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		clock.Advance(3 * time.Second)
		var lease, acquireErr = sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)

		// Assert
		require.NoError(t, acquireErr)
		require.NotNil(t, lease)
		assert.WithinDuration(t, start, lease.AcquiredAt, precision)
		assert.WithinDuration(t, start.Add(13*time.Second), lease.ExpiresAt, precision)
	})

	t.Run("should renew preserving acquired time", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		var acquired, err = sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, map[string]string{"zone": "a"})
		require.NoError(t, err)

		// Act
		clock.Advance(4 * time.Second)
		var renewed, renewErr = sut.TryRenewLease(newCtx(), "orders", "node-1", 10*time.Second, nil)

		// Assert
		require.NoError(t, renewErr)
		require.NotNil(t, renewed)
		assert.WithinDuration(t, acquired.AcquiredAt, renewed.AcquiredAt, precision)
		assert.WithinDuration(t, start.Add(14*time.Second), renewed.ExpiresAt, precision)
		assert.True(t, renewed.ExpiresAt.After(acquired.ExpiresAt))
		assert.Equal(t, map[string]string{"zone": "a"}, renewed.Metadata)
	})

	t.Run("should replace metadata on renewal when given", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, map[string]string{"zone": "a"})
		require.NoError(t, err)

		// Act
		var renewed, renewErr = sut.TryRenewLease(newCtx(), "orders", "node-1", 10*time.Second, map[string]string{"zone": "b"})

		// Assert
		require.NoError(t, renewErr)
		require.NotNil(t, renewed)
		assert.Equal(t, map[string]string{"zone": "b"}, renewed.Metadata)
	})

	t.Run("should not renew a lease held by someone else", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		var renewed, renewErr = sut.TryRenewLease(newCtx(), "orders", "node-2", 10*time.Second, nil)
		var current, getErr = sut.GetCurrentLease(newCtx(), "orders")

		// Assert
		require.NoError(t, renewErr)
		require.NoError(t, getErr)
		assert.Nil(t, renewed)
		require.NotNil(t, current)
		assert.Equal(t, "node-1", current.ParticipantID)
		assert.WithinDuration(t, start.Add(10*time.Second), current.ExpiresAt, precision)
	})

	t.Run("should not renew an expired lease", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		clock.Advance(10 * time.Second)
		var renewed, renewErr = sut.TryRenewLease(newCtx(), "orders", "node-1", 10*time.Second, nil)

		// Assert
		require.NoError(t, renewErr)
		assert.Nil(t, renewed)
	})

	t.Run("should not renew without a lease", func(t *testing.T) {
		// Arrange
		var sut = newStore(t, newClock())

		// Act
		var renewed, err = sut.TryRenewLease(newCtx(), "orders", "node-1", 10*time.Second, nil)

		// Assert
		require.NoError(t, err)
		assert.Nil(t, renewed)
	})

	t.Run("should release only the holder's lease", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		var foreign, foreignErr = sut.ReleaseLease(newCtx(), "orders", "node-2")
		var held, heldErr = sut.HasValidLease(newCtx(), "orders")
		var own, ownErr = sut.ReleaseLease(newCtx(), "orders", "node-1")
		var again, againErr = sut.ReleaseLease(newCtx(), "orders", "node-1")
		var after, afterErr = sut.HasValidLease(newCtx(), "orders")

		// Assert
		require.NoError(t, foreignErr)
		require.NoError(t, heldErr)
		require.NoError(t, ownErr)
		require.NoError(t, againErr)
		require.NoError(t, afterErr)
		assert.False(t, foreign)
		assert.True(t, held)
		assert.True(t, own)
		assert.False(t, again)
		assert.False(t, after)
	})

	t.Run("should report no current lease once expired", func(t *testing.T) {
		// Arrange
		var (
			clock = newClock()
			sut   = newStore(t, clock)
		)
		_, err := sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		require.NoError(t, err)

		// Act
		clock.Advance(10 * time.Second)
		var current, getErr = sut.GetCurrentLease(newCtx(), "orders")
		var valid, validErr = sut.HasValidLease(newCtx(), "orders")

		// Assert
		require.NoError(t, getErr)
		require.NoError(t, validErr)
		assert.Nil(t, current)
		assert.False(t, valid)
	})

	t.Run("should keep elections independent", func(t *testing.T) {
		// Arrange
		var sut = newStore(t, newClock())

		// Act
		var first, firstErr = sut.TryAcquireLease(newCtx(), "orders", "node-1", 10*time.Second, nil)
		var second, secondErr = sut.TryAcquireLease(newCtx(), "billing", "node-2", 10*time.Second, nil)

		// Assert
		require.NoError(t, firstErr)
		require.NoError(t, secondErr)
		assert.NotNil(t, first)
		assert.NotNil(t, second)
	})

	t.Run("should grant exactly one of a simultaneous batch", func(t *testing.T) {
		// Arrange
		var (
			sut     = newStore(t, newClock())
			g       errgroup.Group
			winners atomic.Int32
		)

		// Act
		for i := range 20 {
			g.Go(func() error {
				var lease, err = sut.TryAcquireLease(newCtx(), "contended", fmt.Sprintf("node-%d", i), 10*time.Second, nil)
				if err != nil {
					return err
				}
				if lease != nil {
					winners.Add(1)
				}
				return nil
			})
		}

		// Assert
		require.NoError(t, g.Wait())
		assert.Equal(t, int32(1), winners.Load())
	})

	t.Run("should validate arguments", func(t *testing.T) {
		// Arrange
		var sut = newStore(t, newClock())

		// Act
		var _, emptyElection = sut.TryAcquireLease(newCtx(), " ", "node-1", time.Second, nil)
		var _, emptyParticipant = sut.TryAcquireLease(newCtx(), "orders", "", time.Second, nil)
		var _, zeroDuration = sut.TryRenewLease(newCtx(), "orders", "node-1", 0, nil)
		var _, releaseErr = sut.ReleaseLease(newCtx(), "", "node-1")
		var _, getErr = sut.GetCurrentLease(newCtx(), "")

		// Assert
		assert.ErrorIs(t, emptyElection, ErrInvalidElection)
		assert.ErrorIs(t, emptyParticipant, ErrInvalidParticipant)
		assert.ErrorIs(t, zeroDuration, ErrInvalidDuration)
		assert.ErrorIs(t, releaseErr, ErrInvalidElection)
		assert.ErrorIs(t, getErr, ErrInvalidElection)
	})
}
