package redis

import (
	"context"
	"testing"
)

func TestRunLockAcquireRelease(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	lock, err := NewRunLock(rdb, "proc-1")
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}

	ok, err := lock.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if !ok {
		t.Fatal("first acquire should succeed")
	}

	other, err := NewRunLock(rdb, "proc-2")
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}

	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("second acquire while held should fail")
	}

	if err := lock.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	ok, err = other.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() after release error = %v", err)
	}
	if !ok {
		t.Fatal("acquire after release should succeed")
	}
}

func TestRunLockReleaseDoesNotStealForeignLock(t *testing.T) {
	t.Parallel()

	rdb := newTestRedisClient(t)

	holder, err := NewRunLock(rdb, "holder")
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}
	stranger, err := NewRunLock(rdb, "stranger")
	if err != nil {
		t.Fatalf("NewRunLock() error = %v", err)
	}

	ok, err := holder.Acquire(context.Background())
	if err != nil || !ok {
		t.Fatalf("Acquire() = %v, %v; want true, nil", ok, err)
	}

	// Releasing a lock another process holds must be a no-op.
	if err := stranger.Release(context.Background()); err != nil {
		t.Fatalf("Release() error = %v", err)
	}

	ok, err = stranger.Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}
	if ok {
		t.Fatal("lock should still be held by the original owner")
	}
}
