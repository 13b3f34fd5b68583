package db

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) (*sql.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "mnemo.db")
	conn, err := Connect(t.Context(), path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(conn, nil) })
	return conn, path
}

func TestConnectAppliesPragmas(t *testing.T) {
	t.Parallel()
	conn, _ := openTestDB(t)
	ctx := t.Context()

	var journal string
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal))
	require.Equal(t, "wal", journal)

	var fk int
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk))
	require.Equal(t, 1, fk)

	var busy int
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&busy))
	require.Equal(t, 5000, busy)

	// NORMAL = 1
	var sync int
	require.NoError(t, conn.QueryRowContext(ctx, "PRAGMA synchronous").Scan(&sync))
	require.Equal(t, 1, sync)
}

func TestConnectRestrictsPermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("Windows 上没有 Unix 权限位")
	}
	t.Parallel()
	_, path := openTestDB(t)

	info, err := os.Stat(path)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	dirInfo, err := os.Stat(filepath.Dir(path))
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o700), dirInfo.Mode().Perm())
}

func TestConnectEmptyPath(t *testing.T) {
	t.Parallel()
	_, err := Connect(t.Context(), "", nil)
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	t.Parallel()
	conn, _ := openTestDB(t)
	ctx := t.Context()

	schema := func() []string {
		rows, err := conn.QueryContext(ctx, "SELECT type || ':' || name FROM sqlite_master WHERE name NOT LIKE 'sqlite_%' ORDER BY name")
		require.NoError(t, err)
		defer rows.Close()
		var out []string
		for rows.Next() {
			var s string
			require.NoError(t, rows.Scan(&s))
			out = append(out, s)
		}
		require.NoError(t, rows.Err())
		return out
	}

	before := schema()
	require.Contains(t, before, "table:sessions")
	require.Contains(t, before, "table:pending_messages")
	require.Contains(t, before, "table:observations_fts")
	require.Contains(t, before, "trigger:tool_uses_au")

	for range 3 {
		require.NoError(t, Migrate(ctx, conn, nil))
	}
	require.Equal(t, before, schema())

	// 追加的列只会存在一份
	var n int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info('tool_uses') WHERE name = 'tool_output_redacted'").Scan(&n))
	require.Equal(t, 1, n)
}

func TestReconnectSameFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "mnemo.db")
	for range 2 {
		conn, err := Connect(t.Context(), path, nil)
		require.NoError(t, err)
		require.NoError(t, Close(conn, nil))
	}
	// 检查点之后 WAL 文件应被截断
	info, err := os.Stat(path + "-wal")
	if err == nil {
		require.Zero(t, info.Size())
	}
}

func TestFTSTriggersKeepIndexInSync(t *testing.T) {
	t.Parallel()
	conn, _ := openTestDB(t)
	ctx := t.Context()
	q := New(conn)
	now := time.Now()

	_, err := q.CreateSession(ctx, CreateSessionParams{
		SessionID:      "s1",
		Project:        "p",
		StartedAt:      now.Format(time.RFC3339),
		StartedAtEpoch: now.UnixMilli(),
	})
	require.NoError(t, err)

	obs, err := q.CreateObservation(ctx, CreateObservationParams{
		SessionID:      "s1",
		Type:           "discovery",
		Title:          "goroutine leak in watcher",
		Content:        "the watcher never closes its channel",
		CreatedAt:      now.Format(time.RFC3339),
		CreatedAtEpoch: now.UnixMilli(),
	})
	require.NoError(t, err)

	found, err := q.SearchObservations(ctx, SearchObservationsParams{Query: `"watcher"`, Limit: 10})
	require.NoError(t, err)
	require.Len(t, found, 1)
	require.Equal(t, obs.ID, found[0].ID)

	_, err = conn.ExecContext(ctx, "UPDATE observations SET title = 'renamed', content = 'nothing here' WHERE id = ?", obs.ID)
	require.NoError(t, err)
	found, err = q.SearchObservations(ctx, SearchObservationsParams{Query: `"watcher"`, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, found)

	// 级联删除同样通过触发器同步索引
	require.NoError(t, q.DeleteSession(ctx, "s1"))
	found, err = q.SearchObservations(ctx, SearchObservationsParams{Query: `"renamed"`, Limit: 10})
	require.NoError(t, err)
	require.Empty(t, found)
}

var errBusy = errors.New("database is locked")

func TestRetryWith(t *testing.T) {
	t.Parallel()
	isBusy := func(err error) bool { return errors.Is(err, errBusy) }

	t.Run("瞬时错误后成功", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := retryWith(t.Context(), isBusy, func(context.Context) error {
			calls++
			if calls < 3 {
				return errBusy
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})

	t.Run("重试耗尽后返回原始错误", func(t *testing.T) {
		t.Parallel()
		calls := 0
		start := time.Now()
		err := retryWith(t.Context(), isBusy, func(context.Context) error {
			calls++
			return errBusy
		})
		require.ErrorIs(t, err, errBusy)
		require.Equal(t, errBusy, err)
		require.Equal(t, maxRetries+1, calls)
		// 50ms + 100ms + 200ms
		require.GreaterOrEqual(t, time.Since(start), 350*time.Millisecond)
	})

	t.Run("非瞬时错误不重试", func(t *testing.T) {
		t.Parallel()
		fatal := errors.New("no such table: nope")
		calls := 0
		err := retryWith(t.Context(), isBusy, func(context.Context) error {
			calls++
			return fatal
		})
		require.Equal(t, fatal, err)
		require.Equal(t, 1, calls)
	})
}

func TestIsTransient(t *testing.T) {
	t.Parallel()
	require.False(t, IsTransient(nil))
	require.False(t, IsTransient(errors.New("database is locked")))

	conn, _ := openTestDB(t)
	_, err := conn.ExecContext(t.Context(), "SELECT * FROM missing_table")
	require.Error(t, err)
	require.False(t, IsTransient(err))
}

func TestRetryResult(t *testing.T) {
	t.Parallel()
	conn, _ := openTestDB(t)
	n, err := RetryResult(t.Context(), func(ctx context.Context) (int64, error) {
		return New(conn).CountPendingMessages(ctx, "nobody")
	})
	require.NoError(t, err)
	require.Zero(t, n)
}
