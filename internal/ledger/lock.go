package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const lockPollInterval = 5 * time.Millisecond

// pathLocks serialises writers of the same ledger inside this process. The
// lockfile alone cannot: it treats a second TryLock from the owning PID as
// success.
var pathLocks sync.Map // path -> chan struct{}

func pathLock(path string) chan struct{} {
	ch, _ := pathLocks.LoadOrStore(path, make(chan struct{}, 1))
	return ch.(chan struct{})
}

// withLock runs fn while holding both the in-process and the inter-process
// lock on the ledger. Both are released on every return path.
func (l *Ledger) withLock(ctx context.Context, fn func() error) error {
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	sem := pathLock(l.path)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return lockError(ctx)
	}
	defer func() { <-sem }()

	locker, err := l.newLocker(l.lockPath)
	if err != nil {
		return fmt.Errorf("could not create lock %s: %w", l.lockPath, err)
	}
	if err := tryLockUntil(ctx, locker); err != nil {
		return err
	}
	defer func() {
		if err := locker.Unlock(); err != nil {
			l.logger.Warnf("could not release ledger lock %s: %v", l.lockPath, err)
		}
	}()

	return fn()
}

type temporary interface {
	Temporary() bool
}

// tryLockUntil polls locker until it is acquired, a permanent error occurs or
// ctx is done.
func tryLockUntil(ctx context.Context, locker Locker) error {
	ticker := time.NewTicker(lockPollInterval)
	defer ticker.Stop()

	for {
		err := locker.TryLock()
		if err == nil {
			return nil
		}
		var temp temporary
		if !errors.As(err, &temp) || !temp.Temporary() {
			return fmt.Errorf("could not lock ledger: %w", err)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return lockError(ctx)
		}
	}
}

func lockError(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrLockTimeout
	}
	return fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
}
