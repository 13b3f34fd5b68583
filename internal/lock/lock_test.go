package lock

import (
	"context"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func newTestStore(t *testing.T) *FileStore {
	t.Helper()
	s := NewFileStore(filepath.Join(t.TempDir(), "locks"), Options{
		MaxAge:          time.Hour,
		ReservedMaxAge:  time.Minute,
		LivenessTimeout: 100 * time.Millisecond,
	}, nil)
	s.probe = func(context.Context, int, time.Time) bool { return true }
	return s
}

func writeLock(t *testing.T, s *FileStore, sessionID string, info Info) {
	t.Helper()
	require.NoError(t, os.MkdirAll(s.dir, 0o700))
	data, err := json.Marshal(info)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.path(sessionID), data, 0o600))
}

func TestAcquireIsMutuallyExclusive(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	ctx := t.Context()

	ok, err := s.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Release("s1"))

	ok, err = s.Acquire(ctx, "s1")
	require.NoError(t, err)
	require.True(t, ok)

	info, err := s.Read("s1")
	require.NoError(t, err)
	require.Equal(t, StatusReserved, info.Status)
	require.Equal(t, os.Getpid(), info.PID)
}

func TestAcquireConcurrent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	var won atomic.Int32
	var g errgroup.Group
	for range 16 {
		g.Go(func() error {
			ok, err := s.Acquire(t.Context(), "s1")
			if ok {
				won.Add(1)
			}
			return err
		})
	}
	require.NoError(t, g.Wait())
	require.EqualValues(t, 1, won.Load())
}

func TestAcquireRunningLock(t *testing.T) {
	t.Parallel()

	t.Run("持有者存活", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		writeLock(t, s, "s1", Info{PID: 42, StartedAt: time.Now(), Status: StatusRunning})

		ok, err := s.Acquire(t.Context(), "s1")
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("持有者已退出", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		s.probe = func(context.Context, int, time.Time) bool { return false }
		writeLock(t, s, "s1", Info{PID: 42, StartedAt: time.Now(), Status: StatusRunning})

		ok, err := s.Acquire(t.Context(), "s1")
		require.NoError(t, err)
		require.True(t, ok)

		info, err := s.Read("s1")
		require.NoError(t, err)
		require.Equal(t, StatusReserved, info.Status)
	})

	t.Run("检查超时按存活处理", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		s.probe = func(ctx context.Context, _ int, _ time.Time) bool {
			<-ctx.Done()
			time.Sleep(time.Second)
			return false
		}
		writeLock(t, s, "s1", Info{PID: 42, StartedAt: time.Now(), Status: StatusRunning})

		start := time.Now()
		ok, err := s.Acquire(t.Context(), "s1")
		require.NoError(t, err)
		require.False(t, ok)
		require.Less(t, time.Since(start), time.Second)
	})

	t.Run("超过最大年龄", func(t *testing.T) {
		t.Parallel()
		s := newTestStore(t)
		writeLock(t, s, "s1", Info{PID: 42, StartedAt: time.Now().Add(-2 * time.Hour), Status: StatusRunning})

		ok, err := s.Acquire(t.Context(), "s1")
		require.NoError(t, err)
		require.True(t, ok)
	})
}

func TestAcquireStaleLockRace(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "locks")
	opts := Options{MaxAge: time.Hour, ReservedMaxAge: time.Minute, LivenessTimeout: 10 * time.Second}
	a := NewFileStore(dir, opts, nil)
	b := NewFileStore(dir, opts, nil)

	// a 判定持有者已退出之后、删除之前停住
	entered := make(chan struct{})
	resume := make(chan struct{})
	a.probe = func(context.Context, int, time.Time) bool {
		close(entered)
		<-resume
		return false
	}
	b.probe = func(context.Context, int, time.Time) bool { return false }
	writeLock(t, a, "s1", Info{PID: 42, StartedAt: time.Now(), Status: StatusRunning})

	type result struct {
		ok  bool
		err error
	}
	aDone := make(chan result, 1)
	go func() {
		ok, err := a.Acquire(context.Background(), "s1")
		aDone <- result{ok, err}
	}()
	<-entered

	okB, err := b.Acquire(t.Context(), "s1")
	require.NoError(t, err)
	require.True(t, okB)
	held, err := os.ReadFile(b.path("s1"))
	require.NoError(t, err)

	close(resume)
	ra := <-aDone
	require.NoError(t, ra.err)
	require.False(t, ra.ok, "b already replaced the stale lock")

	// b 的锁原样保留，没有残留的墓碑文件
	got, err := os.ReadFile(b.path("s1"))
	require.NoError(t, err)
	require.Equal(t, held, got)
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestCleanupStaleRemovesOldTombstones(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dir, 0o700))
	oldTomb := filepath.Join(s.dir, "s1.lock.42.1"+tombExt)
	newTomb := filepath.Join(s.dir, "s2.lock.42.2"+tombExt)
	require.NoError(t, os.WriteFile(oldTomb, []byte("{}"), 0o600))
	require.NoError(t, os.WriteFile(newTomb, []byte("{}"), 0o600))
	old := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldTomb, old, old))

	removed, err := s.CleanupStale(time.Hour)
	require.NoError(t, err)
	require.Zero(t, removed)
	require.NoFileExists(t, oldTomb)
	require.FileExists(t, newTomb)
}

func TestAcquireReservedLock(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	writeLock(t, s, "fresh", Info{PID: 42, StartedAt: time.Now(), Status: StatusReserved})
	writeLock(t, s, "old", Info{PID: 42, StartedAt: time.Now().Add(-5 * time.Minute), Status: StatusReserved})

	ok, err := s.Acquire(t.Context(), "fresh")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = s.Acquire(t.Context(), "old")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestAcquireUnreadableLock(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dir, 0o700))
	require.NoError(t, os.WriteFile(s.path("s1"), []byte(`{"pid":4`), 0o600))

	ok, err := s.Acquire(t.Context(), "s1")
	require.NoError(t, err)
	require.False(t, ok, "partially written lock counts as reserved")

	old := time.Now().Add(-10 * time.Minute)
	require.NoError(t, os.Chtimes(s.path("s1"), old, old))

	ok, err = s.Acquire(t.Context(), "s1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPromote(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	ok, err := s.Acquire(t.Context(), "s1")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Promote("s1", os.Getpid()))

	info, err := s.Read("s1")
	require.NoError(t, err)
	require.Equal(t, StatusRunning, info.Status)
	require.Equal(t, os.Getpid(), info.PID)
	require.False(t, info.StartedAt.IsZero())

	// 只有 .lock 文件，没有残留的临时文件
	entries, err := os.ReadDir(s.dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestReleaseMissing(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Release("nope"))

	_, err := s.Read("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCleanupStale(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	now := time.Now()
	writeLock(t, s, "old-running", Info{PID: os.Getpid(), StartedAt: now.Add(-2 * time.Hour), Status: StatusRunning})
	writeLock(t, s, "old-reserved", Info{PID: 1, StartedAt: now.Add(-90 * time.Minute), Status: StatusReserved})
	writeLock(t, s, "fresh", Info{PID: 1, StartedAt: now, Status: StatusRunning})
	require.NoError(t, os.WriteFile(filepath.Join(s.dir, "notes.txt"), []byte("x"), 0o600))

	removed, err := s.CleanupStale(time.Hour)
	require.NoError(t, err)
	require.Equal(t, 2, removed)

	_, err = s.Read("fresh")
	require.NoError(t, err)
	_, err = s.Read("old-running")
	require.ErrorIs(t, err, ErrNotFound)
	require.FileExists(t, filepath.Join(s.dir, "notes.txt"))
}

func TestCleanupStaleMissingDir(t *testing.T) {
	t.Parallel()
	s := NewFileStore(filepath.Join(t.TempDir(), "absent"), Options{}, nil)
	removed, err := s.CleanupStale(time.Minute)
	require.NoError(t, err)
	require.Zero(t, removed)
}

func TestSameProcess(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("start time is not available on windows")
	}
	if _, err := exec.LookPath("ps"); err != nil {
		t.Skip("ps not available")
	}
	t.Parallel()
	ctx := t.Context()

	started, err := processStartTime(ctx, os.Getpid())
	require.NoError(t, err)

	require.True(t, sameProcess(ctx, os.Getpid(), started))
	// 同一个 pid，但记录的启动时间不同：pid 已被复用
	require.False(t, sameProcess(ctx, os.Getpid(), started.Add(-time.Hour)))
	require.False(t, sameProcess(ctx, -1, started))
}

func TestStartMatches(t *testing.T) {
	t.Parallel()
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.True(t, startMatches(base, base))
	require.True(t, startMatches(base.Add(900*time.Millisecond), base))
	require.False(t, startMatches(base.Add(5*time.Second), base))
	require.False(t, startMatches(base.Add(-5*time.Second), base))
}
