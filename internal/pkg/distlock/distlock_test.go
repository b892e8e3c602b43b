package distlock

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client, mr
}

func TestRedisLock_ExclusiveUntilReleased(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	a := NewRedisLock(client, "sheet:abc", time.Minute)
	b := NewRedisLock(client, "sheet:abc", time.Minute)

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second holder must not acquire")

	// b releasing must not free a's lock
	require.NoError(t, b.Release(ctx))
	ok, _ = b.Acquire(ctx)
	assert.False(t, ok)

	require.NoError(t, a.Release(ctx))
	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRedisLock_ExtendRequiresOwnership(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	l := NewRedisLock(client, "sheet:ext", time.Second)
	ok, err := l.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, l.Extend(ctx, time.Minute))

	mr.FastForward(2 * time.Minute)
	assert.Error(t, l.Extend(ctx, time.Minute))
}

func TestGuard_TimesOutWhenHeld(t *testing.T) {
	client, _ := setupTestRedis(t)
	ctx := context.Background()

	holder := NewRedisLock(client, "sheet:busy", time.Minute)
	ok, _ := holder.Acquire(ctx)
	require.True(t, ok)

	ran := false
	err := Guard(ctx, NewRedisLock(client, "sheet:busy", time.Minute), 30*time.Millisecond, 5*time.Millisecond,
		func(ctx context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, ran)
}

func TestGuard_ReleasesAfterRun(t *testing.T) {
	client, mr := setupTestRedis(t)
	ctx := context.Background()

	wantErr := errors.New("append failed")
	err := Guard(ctx, NewRedisLock(client, "sheet:run", time.Minute), time.Second, 0,
		func(ctx context.Context) error { return wantErr })
	assert.ErrorIs(t, err, wantErr)
	assert.False(t, mr.Exists("lock:sheet:run"))
}

func TestGuard_NilLockRunsUnguarded(t *testing.T) {
	ran := false
	require.NoError(t, Guard(context.Background(), nil, 0, 0, func(ctx context.Context) error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
}

func TestAdvisoryLock(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "sheet:pg")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(true))
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, l.Release(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNew_PicksBackend(t *testing.T) {
	client, _ := setupTestRedis(t)
	assert.IsType(t, &RedisLock{}, New(client, nil, "k", time.Second))

	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	assert.IsType(t, &AdvisoryLock{}, New(nil, db, "k", time.Second))
	assert.Nil(t, New(nil, nil, "k", time.Second))
}

func TestGuard_AdvisoryLockReturnsConnWhenHeld(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "sheet:busy")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(false))

	ran := false
	err = Guard(context.Background(), l, 0, time.Millisecond, func(ctx context.Context) error { ran = true; return nil })
	assert.ErrorIs(t, err, ErrNotAcquired)
	assert.False(t, ran)
	assert.Zero(t, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGuard_AdvisoryLockReturnsConnOnQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "sheet:err")
	mock.ExpectQuery("SELECT pg_try_advisory_lock").
		WithArgs(l.lockID).
		WillReturnError(errors.New("connection reset"))

	err = Guard(context.Background(), l, time.Second, time.Millisecond, func(ctx context.Context) error { return nil })
	assert.Error(t, err)
	assert.Zero(t, db.Stats().InUse)
}

func TestGuard_AdvisoryLockPollsUntilFree(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	l := NewAdvisoryLock(db, "sheet:poll")
	for _, got := range []bool{false, false, true} {
		mock.ExpectQuery("SELECT pg_try_advisory_lock").
			WithArgs(l.lockID).
			WillReturnRows(sqlmock.NewRows([]string{"pg_try_advisory_lock"}).AddRow(got))
	}
	mock.ExpectExec("SELECT pg_advisory_unlock").
		WithArgs(l.lockID).
		WillReturnResult(sqlmock.NewResult(0, 0))

	var inUse int
	err = Guard(context.Background(), l, time.Second, time.Millisecond, func(ctx context.Context) error {
		inUse = db.Stats().InUse
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, inUse, "only the lock holder's conn is pinned")
	assert.Zero(t, db.Stats().InUse)
	assert.NoError(t, mock.ExpectationsWereMet())
}

type countingLock struct {
	ttl     time.Duration
	extends atomic.Int32
}

func (c *countingLock) Acquire(context.Context) (bool, error) { return true, nil }
func (c *countingLock) Release(context.Context) error         { return nil }
func (c *countingLock) TTL() time.Duration                    { return c.ttl }
func (c *countingLock) Extend(context.Context, time.Duration) error {
	c.extends.Add(1)
	return nil
}

func TestGuard_ExtendsWhileRunning(t *testing.T) {
	l := &countingLock{ttl: 20 * time.Millisecond}
	err := Guard(context.Background(), l, time.Second, 0, func(ctx context.Context) error {
		time.Sleep(80 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, l.extends.Load(), int32(2))

	after := l.extends.Load()
	time.Sleep(40 * time.Millisecond)
	assert.Equal(t, after, l.extends.Load(), "no extends after fn returns")
}

func TestGuard_KeepsRedisLockPastTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	l := NewRedisLock(client, "sheet:long", 40*time.Millisecond)

	err := Guard(context.Background(), l, time.Second, 0, func(ctx context.Context) error {
		// 60ms of lock time against a 40ms TTL; the extends keep it alive
		for i := 0; i < 2; i++ {
			time.Sleep(30 * time.Millisecond)
			mr.FastForward(30 * time.Millisecond)
		}
		assert.True(t, mr.Exists("lock:sheet:long"))
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("lock:sheet:long"))
}
