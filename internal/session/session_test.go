package session

import (
	"database/sql"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/purpose168/mnemo/internal/db"
	"github.com/purpose168/mnemo/internal/pubsub"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) (*service, *sql.DB) {
	t.Helper()
	conn, err := db.Connect(t.Context(), filepath.Join(t.TempDir(), "mnemo.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(conn, nil) })
	svc := newService(db.New(conn), conn, nil, Options{MaxToolOutputBytes: 64, MaxReadsPerFile: 2})
	t.Cleanup(svc.Shutdown)
	return svc, conn
}

func TestCreateAndGet(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.Get(ctx, "s1")
	require.ErrorIs(t, err, ErrNotFound)

	created, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)
	require.Equal(t, StatusActive, created.Status)
	require.True(t, created.CompletedAt.IsZero())

	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "p", got.Project)
	require.Equal(t, created.StartedAt.UnixMilli(), got.StartedAt.UnixMilli())

	_, err = svc.Create(ctx, "s1", "p")
	require.ErrorIs(t, err, ErrAlreadyExists)
}

func TestCreatePublishesEvent(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()

	events := svc.Subscribe(ctx)
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	select {
	case ev := <-events:
		require.Equal(t, pubsub.CreatedEvent, ev.Type)
		require.Equal(t, "s1", ev.Payload.ID)
	case <-time.After(time.Second):
		t.Fatal("没有收到创建事件")
	}
}

func TestUpdateStatusKeepsCompletedAtInvariant(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()

	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	require.NoError(t, svc.UpdateStatus(ctx, "s1", StatusCompleted))
	got, err := svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, got.Status)
	require.False(t, got.CompletedAt.IsZero())

	require.NoError(t, svc.UpdateStatus(ctx, "s1", StatusActive))
	got, err = svc.Get(ctx, "s1")
	require.NoError(t, err)
	require.True(t, got.CompletedAt.IsZero())

	require.ErrorIs(t, svc.UpdateStatus(ctx, "nope", StatusFailed), ErrNotFound)
	require.ErrorIs(t, svc.UpdateStatus(ctx, "s1", Status("paused")), ErrInvalidStatus)
}

func TestOrphanSessionsBoundary(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	const timeout = 24 * time.Hour
	now := time.Now()

	svc.now = func() time.Time { return now.Add(-timeout - time.Hour) }
	_, err := svc.Create(ctx, "old", "p")
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(-timeout + time.Hour) }
	_, err = svc.Create(ctx, "young", "p")
	require.NoError(t, err)

	svc.now = func() time.Time { return now }
	orphans, err := svc.OrphanSessions(ctx, timeout)
	require.NoError(t, err)
	require.Len(t, orphans, 1)
	require.Equal(t, "old", orphans[0].ID)

	failed, err := svc.FailOrphans(ctx, timeout)
	require.NoError(t, err)
	require.Len(t, failed, 1)

	got, err := svc.Get(ctx, "old")
	require.NoError(t, err)
	require.Equal(t, StatusFailed, got.Status)

	// 已标记为失败的会话不再是孤儿
	orphans, err = svc.OrphanSessions(ctx, timeout)
	require.NoError(t, err)
	require.Empty(t, orphans)
}

func TestReleaseStaleProcessing(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	now := time.Now()

	for _, id := range []string{"stuck", "busy", "idle"} {
		_, err := svc.Create(ctx, id, "p")
		require.NoError(t, err)
	}

	svc.now = func() time.Time { return now.Add(-time.Hour) }
	require.NoError(t, svc.MarkProcessingStarted(ctx, "stuck"))
	svc.now = func() time.Time { return now.Add(-time.Minute) }
	require.NoError(t, svc.MarkProcessingStarted(ctx, "busy"))
	svc.now = func() time.Time { return now }

	released, err := svc.ReleaseStaleProcessing(ctx, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, released, 1)
	require.Equal(t, "stuck", released[0].ID)

	got, err := svc.Get(ctx, "stuck")
	require.NoError(t, err)
	require.True(t, got.ProcessingStartedAt.IsZero())

	got, err = svc.Get(ctx, "busy")
	require.NoError(t, err)
	require.False(t, got.ProcessingStartedAt.IsZero())
}

func TestCleanupOldKeepsMostRecent(t *testing.T) {
	t.Parallel()
	svc, conn := newTestService(t)
	ctx := t.Context()
	base := time.Now().Add(-time.Hour)

	for i, id := range []string{"a", "b", "c", "d"} {
		svc.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		_, err := svc.Create(ctx, id, "p")
		require.NoError(t, err)
		_, err = svc.AddPrompt(ctx, id, "prompt for "+id)
		require.NoError(t, err)
		require.NoError(t, svc.UpdateStatus(ctx, id, StatusCompleted))
	}
	// active 会话不受保留策略影响
	_, err := svc.Create(ctx, "live", "p")
	require.NoError(t, err)

	deleted, err := svc.CleanupOld(ctx, 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	for _, id := range []string{"a", "b"} {
		_, err := svc.Get(ctx, id)
		require.ErrorIs(t, err, ErrNotFound)
	}
	for _, id := range []string{"c", "d", "live"} {
		_, err := svc.Get(ctx, id)
		require.NoError(t, err)
	}

	// 级联删除不会留下孤立的子记录
	var orphans int
	require.NoError(t, conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM user_prompts WHERE session_id NOT IN (SELECT session_id FROM sessions)").Scan(&orphans))
	require.Zero(t, orphans)

	deleted, err = svc.CleanupOld(ctx, 0)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)
	_, err = svc.Get(ctx, "live")
	require.NoError(t, err)
}

func TestChildRecordForMissingSession(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)

	_, err := svc.AddPrompt(t.Context(), "ghost", "hello")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestAddPromptNumbersAndRedacts(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	first, err := svc.AddPrompt(ctx, "s1", "set api_key=abcdef123456 please")
	require.NoError(t, err)
	second, err := svc.AddPrompt(ctx, "s1", "thanks")
	require.NoError(t, err)

	require.EqualValues(t, 1, first.Number)
	require.EqualValues(t, 2, second.Number)
	require.NotContains(t, first.Text, "abcdef123456")
	require.Contains(t, first.Text, redactedMarker)
}

func TestAddToolUseTruncatesAndHashes(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	output := strings.Repeat("x", 200)
	tu, err := svc.AddToolUse(ctx, ToolUseParams{
		SessionID: "s1",
		ToolName:  "bash",
		Input:     `{"command":"ls"}`,
		Output:    output,
	})
	require.NoError(t, err)
	require.True(t, tu.OutputTruncated)
	require.False(t, tu.OutputRedacted)
	require.Equal(t, contentHash(output), tu.OutputHash)
	require.True(t, strings.HasPrefix(tu.Output, strings.Repeat("x", 64)))

	list, err := svc.ListToolUses(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, tu.OutputHash, list[0].OutputHash)
}

func TestAddFileReadDedupesAndPrunes(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	_, stored, err := svc.AddFileRead(ctx, "s1", "main.go", "v1")
	require.NoError(t, err)
	require.True(t, stored)

	_, stored, err = svc.AddFileRead(ctx, "s1", "main.go", "v1")
	require.NoError(t, err)
	require.False(t, stored)

	for _, v := range []string{"v2", "v3"} {
		_, stored, err = svc.AddFileRead(ctx, "s1", "main.go", v)
		require.NoError(t, err)
		require.True(t, stored)
	}
	_, _, err = svc.AddFileRead(ctx, "s1", "other.go", "v1")
	require.NoError(t, err)

	reads, err := svc.ListFileReads(ctx, "s1")
	require.NoError(t, err)
	var mainReads []string
	for _, r := range reads {
		if r.Path == "main.go" {
			mainReads = append(mainReads, r.Content)
		}
	}
	// MaxReadsPerFile = 2
	require.Equal(t, []string{"v3", "v2"}, mainReads)
	require.Len(t, reads, 3)
}

func TestSearch(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)

	_, err = svc.AddPrompt(ctx, "s1", "fix the flaky websocket reconnect test")
	require.NoError(t, err)
	_, err = svc.AddPrompt(ctx, "s1", "update the changelog")
	require.NoError(t, err)
	_, err = svc.AddToolUse(ctx, ToolUseParams{SessionID: "s1", ToolName: "grep", Input: "reconnect", Output: "client.go:42"})
	require.NoError(t, err)
	_, err = svc.AddObservation(ctx, Observation{SessionID: "s1", Type: "bugfix", Title: "websocket backoff", Content: "reconnect used a fixed delay"})
	require.NoError(t, err)

	prompts, err := svc.SearchPrompts(ctx, "websocket", 0)
	require.NoError(t, err)
	require.Len(t, prompts, 1)
	require.Contains(t, prompts[0].Item.Text, "websocket")

	tools, err := svc.SearchToolUses(ctx, "reconnect", 5)
	require.NoError(t, err)
	require.Len(t, tools, 1)
	require.Equal(t, "grep", tools[0].Item.ToolName)

	obs, err := svc.SearchObservations(ctx, `websocket "backoff`, 5)
	require.NoError(t, err)
	require.Len(t, obs, 1)

	empty, err := svc.SearchPrompts(ctx, "   ", 5)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestActivity(t *testing.T) {
	t.Parallel()
	svc, _ := newTestService(t)
	ctx := t.Context()
	_, err := svc.Create(ctx, "s1", "p")
	require.NoError(t, err)
	_, err = svc.AddPrompt(ctx, "s1", "hi")
	require.NoError(t, err)
	_, _, err = svc.AddFileRead(ctx, "s1", "a.go", "package a")
	require.NoError(t, err)

	act, err := svc.Activity(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, Activity{Prompts: 1, FileReads: 1}, act)
}
