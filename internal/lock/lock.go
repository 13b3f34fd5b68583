// Package lock provides the per-session reservation lock that keeps at most
// one background worker alive for a session.
//
// Locks are plain files under a directory shared by every process on the
// host. Creation is exclusive at the filesystem level; everything else is a
// best-effort judgement about whether an existing lock is still meaningful.
package lock

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/purpose168/mnemo/internal/fsext"
)

// Status 锁的状态
type Status string

const (
	// StatusReserved stop 钩子已占位，worker 尚未启动
	StatusReserved Status = "reserved"
	// StatusRunning worker 已启动并接管了锁
	StatusRunning Status = "running"
)

const (
	ext = ".lock"
	// tombExt 过期锁在删除前被改名为 {id}.lock.<pid>.<nanos>.stale
	tombExt = ".stale"
)

// ErrNotFound 锁文件不存在
var ErrNotFound = errors.New("lock not found")

// Info 锁文件内容
type Info struct {
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
	Status    Status    `json:"status"`
}

// Store 是跨进程的会话锁。
// 冲突不是错误：Acquire 在锁被占用时返回 false, nil。
type Store interface {
	Acquire(ctx context.Context, sessionID string) (bool, error)
	Promote(sessionID string, pid int) error
	Release(sessionID string) error
	Read(sessionID string) (Info, error)
	CleanupStale(maxAge time.Duration) (int, error)
}

// Options 控制锁何时被视为过期。
type Options struct {
	// MaxAge 超过此时长的锁无论持有者是否存活都视为过期
	MaxAge time.Duration
	// ReservedMaxAge reserved 状态的锁超过此时长视为 spawn 失败
	ReservedMaxAge time.Duration
	// LivenessTimeout 进程存活检查的上限，超时按存活处理
	LivenessTimeout time.Duration
}

// DefaultOptions returns the lock timings used when none are configured.
func DefaultOptions() Options {
	return Options{
		MaxAge:          30 * time.Minute,
		ReservedMaxAge:  time.Minute,
		LivenessTimeout: 2 * time.Second,
	}
}

// FileStore keeps one JSON lock file per session in a directory.
type FileStore struct {
	dir    string
	opts   Options
	logger *slog.Logger
	now    func() time.Time
	// probe 报告 pid 是否仍是 startedAt 时启动的那个进程
	probe func(ctx context.Context, pid int, startedAt time.Time) bool
}

var _ Store = (*FileStore)(nil)

// NewFileStore returns a lock store rooted at dir. Zero option fields take
// their defaults.
func NewFileStore(dir string, opts Options, logger *slog.Logger) *FileStore {
	def := DefaultOptions()
	if opts.MaxAge <= 0 {
		opts.MaxAge = def.MaxAge
	}
	if opts.ReservedMaxAge <= 0 {
		opts.ReservedMaxAge = def.ReservedMaxAge
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = def.LivenessTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		opts:   opts,
		logger: logger.With("component", "lock"),
		now:    time.Now,
		probe:  sameProcess,
	}
}

// Dir returns the lock directory.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+ext)
}

// Acquire 以排他方式创建锁文件。锁已存在时根据其内容判断是否过期；
// 过期的锁会被移走并重试一次。
func (s *FileStore) Acquire(ctx context.Context, sessionID string) (bool, error) {
	if err := fsext.EnsurePrivateDir(s.dir); err != nil {
		return false, err
	}
	info := Info{PID: os.Getpid(), StartedAt: s.now(), Status: StatusReserved}
	for attempt := range 2 {
		err := s.create(sessionID, info)
		if err == nil {
			s.logger.Debug("Acquired lock", "session_id", sessionID)
			return true, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return false, fmt.Errorf("acquire lock for %s: %w", sessionID, err)
		}
		if attempt > 0 {
			return false, nil
		}
		judged, stale := s.stale(ctx, sessionID)
		if !stale {
			return false, nil
		}
		removed, err := s.removeIfUnchanged(sessionID, judged)
		if err != nil {
			return false, err
		}
		if !removed {
			return false, nil
		}
	}
	return false, nil
}

// removeIfUnchanged 把锁改名为墓碑文件后再核对内容，只有内容仍是判定过期时
// 读到的那一份才删除。判定和删除之间别的进程可能已经换上了新锁，
// 这时把它放回原处并返回 false。
func (s *FileStore) removeIfUnchanged(sessionID string, judged []byte) (bool, error) {
	path := s.path(sessionID)
	tomb := fmt.Sprintf("%s.%d.%d%s", path, os.Getpid(), time.Now().UnixNano(), tombExt)
	if err := os.Rename(path, tomb); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// 已被释放
			return true, nil
		}
		return false, fmt.Errorf("remove stale lock for %s: %w", sessionID, err)
	}
	got, err := os.ReadFile(tomb)
	if err == nil && bytes.Equal(got, judged) {
		_ = os.Remove(tomb)
		s.logger.Info("Removed stale lock", "session_id", sessionID)
		return true, nil
	}

	// 不是我们判定过期的那把锁。Link 不会覆盖已存在的文件。
	if err := os.Link(tomb, path); err != nil && !errors.Is(err, fs.ErrExist) {
		s.logger.Warn("Failed to restore lock", "session_id", sessionID, "error", err)
	}
	_ = os.Remove(tomb)
	return false, nil
}

func (s *FileStore) create(sessionID string, info Info) error {
	data, err := json.Marshal(info)
	if err != nil {
		return err
	}
	path := s.path(sessionID)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, fsext.PrivateFileMode)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = os.Remove(path)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

// stale 判断已存在的锁能否被删除，并返回判定时读到的原始内容。
// 无法解析的锁（例如写到一半）按 reserved 处理。
func (s *FileStore) stale(ctx context.Context, sessionID string) ([]byte, bool) {
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		// 在我们读取之前被释放了
		return nil, true
	}
	if err != nil {
		return nil, false
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		mtime, statErr := s.modTime(sessionID)
		if statErr != nil {
			return data, false
		}
		return data, s.now().Sub(mtime) > s.opts.ReservedMaxAge
	}

	age := s.now().Sub(info.StartedAt)
	if age > s.opts.MaxAge {
		return data, true
	}
	switch info.Status {
	case StatusRunning:
		return data, !s.holderAlive(ctx, info)
	default:
		return data, age > s.opts.ReservedMaxAge
	}
}

// holderAlive 在 LivenessTimeout 内检查持有者；超时按存活处理，
// 宁可少启动一个 worker 也不要重复启动。
func (s *FileStore) holderAlive(ctx context.Context, info Info) bool {
	ctx, cancel := context.WithTimeout(ctx, s.opts.LivenessTimeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() {
		result <- s.probe(ctx, info.PID, info.StartedAt)
	}()
	select {
	case alive := <-result:
		return alive
	case <-ctx.Done():
		s.logger.Warn("Liveness check timed out", "pid", info.PID)
		return true
	}
}

func (s *FileStore) modTime(sessionID string) (time.Time, error) {
	st, err := os.Stat(s.path(sessionID))
	if err != nil {
		return time.Time{}, err
	}
	return st.ModTime(), nil
}

// Promote 将锁改写为 running，记录 worker 的 pid 和进程启动时间。
func (s *FileStore) Promote(sessionID string, pid int) error {
	if err := fsext.EnsurePrivateDir(s.dir); err != nil {
		return err
	}
	startedAt, err := processStartTime(context.Background(), pid)
	if err != nil {
		startedAt = s.now()
	}
	data, err := json.Marshal(Info{PID: pid, StartedAt: startedAt, Status: StatusRunning})
	if err != nil {
		return err
	}
	if err := fsext.WriteFileAtomic(s.path(sessionID), data); err != nil {
		return fmt.Errorf("promote lock for %s: %w", sessionID, err)
	}
	return nil
}

// Release 删除锁文件；文件不存在不算错误。
func (s *FileStore) Release(sessionID string) error {
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("release lock for %s: %w", sessionID, err)
	}
	return nil
}

func (s *FileStore) Read(sessionID string) (Info, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return Info{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Info{}, err
	}
	var info Info
	if err := json.Unmarshal(data, &info); err != nil {
		return Info{}, fmt.Errorf("parse lock for %s: %w", sessionID, err)
	}
	return info, nil
}

// CleanupStale 删除所有超过 maxAge 的锁，不检查持有者是否存活。
// 无法解析的锁按文件修改时间计算年龄。
func (s *FileStore) CleanupStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read lock dir: %w", err)
	}
	now := s.now()
	removed := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), tombExt) {
			s.removeTomb(e, now, maxAge)
			continue
		}
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		sessionID := strings.TrimSuffix(e.Name(), ext)
		started, err := s.lockTime(sessionID)
		if err != nil {
			s.logger.Warn("Skipping lock", "session_id", sessionID, "error", err)
			continue
		}
		if now.Sub(started) <= maxAge {
			continue
		}
		if err := s.Release(sessionID); err != nil {
			s.logger.Warn("Failed to remove stale lock", "session_id", sessionID, "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.logger.Info("Cleaned up stale locks", "count", removed)
	}
	return removed, nil
}

// removeTomb 删除进程在移走锁之后崩溃留下的墓碑文件
func (s *FileStore) removeTomb(e fs.DirEntry, now time.Time, maxAge time.Duration) {
	fi, err := e.Info()
	if err != nil || now.Sub(fi.ModTime()) <= maxAge {
		return
	}
	if err := os.Remove(filepath.Join(s.dir, e.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("Failed to remove lock tombstone", "file", e.Name(), "error", err)
	}
}

func (s *FileStore) lockTime(sessionID string) (time.Time, error) {
	info, err := s.Read(sessionID)
	if err == nil && !info.StartedAt.IsZero() {
		return info.StartedAt, nil
	}
	return s.modTime(sessionID)
}

// sameProcess 检查 pid 存活，且（能取得时）启动时间与记录一致。
// PID 会被系统复用，只检查 pid 不够。
func sameProcess(ctx context.Context, pid int, startedAt time.Time) bool {
	if pid <= 0 || !processAlive(pid) {
		return false
	}
	actual, err := processStartTime(ctx, pid)
	if err != nil {
		return true
	}
	return startMatches(startedAt, actual)
}

// ps 只给出秒级时间
const startTolerance = 2 * time.Second

func startMatches(recorded, actual time.Time) bool {
	d := recorded.Sub(actual)
	return d > -startTolerance && d < startTolerance
}
