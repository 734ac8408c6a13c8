package concurrency

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGovernor_AcquireReleaseWithinLimit(t *testing.T) {
	g := NewGovernor(2, 1)
	require.NoError(t, g.Acquire(context.Background()))
	require.NoError(t, g.Acquire(context.Background()))
	g.Release(nil)
	g.Release(nil)
	require.Equal(t, 2, g.Limit())
}

func TestGovernor_AcquireBlocksUntilReleaseFreesAPermit(t *testing.T) {
	g := NewGovernor(1, 1)
	require.NoError(t, g.Acquire(context.Background()))

	acquired := make(chan struct{})
	go func() {
		g.Acquire(context.Background())
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second Acquire should have blocked while at the limit")
	case <-time.After(100 * time.Millisecond):
	}

	g.Release(nil)
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("second Acquire never unblocked after Release")
	}
}

func TestGovernor_AcquireRespectsContextCancellation(t *testing.T) {
	g := NewGovernor(1, 1)
	require.NoError(t, g.Acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := g.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestGovernor_DegradesAfterConsecutiveConnectionFailures(t *testing.T) {
	g := NewGovernor(4, 2)
	connErr := errors.New("connection reset by peer")

	for i := 0; i < 4; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release(connErr)
	}

	require.Equal(t, 2, g.Limit())
}

func TestGovernor_NonConnectionErrorDoesNotDegrade(t *testing.T) {
	g := NewGovernor(4, 2)
	otherErr := errors.New("invalid request payload")

	for i := 0; i < 10; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release(otherErr)
	}

	require.Equal(t, 4, g.Limit())
}

func TestGovernor_RecoversAfterSuccessesAndCooldown(t *testing.T) {
	g := NewGovernor(4, 2)
	fakeNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return fakeNow }

	connErr := errors.New("i/o timeout")
	for i := 0; i < 4; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release(connErr)
	}
	require.Equal(t, 2, g.Limit())

	// successes before the cooldown elapses do not recover the limit.
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release(nil)
	}
	require.Equal(t, 2, g.Limit())

	fakeNow = fakeNow.Add(121 * time.Second)
	for i := 0; i < 6; i++ {
		require.NoError(t, g.Acquire(context.Background()))
		g.Release(nil)
	}
	require.Equal(t, 4, g.Limit())
}

func TestGovernor_DefaultsAppliedForInvalidLimits(t *testing.T) {
	g := NewGovernor(0, 0)
	require.Equal(t, 4, g.Limit())

	g2 := NewGovernor(3, 10)
	require.Equal(t, 3, g2.Limit())
}
