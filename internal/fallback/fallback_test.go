package fallback

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(filepath.Join(t.TempDir(), "fallback"), 32, nil)
}

func TestSessionLifecycle(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	_, err := s.GetSession("s1")
	require.ErrorIs(t, err, session.ErrNotFound)

	created, err := s.CreateSession("s1", "proj")
	require.NoError(t, err)
	require.Equal(t, session.StatusActive, created.Status)

	_, err = s.CreateSession("s1", "proj")
	require.ErrorIs(t, err, session.ErrAlreadyExists)

	require.NoError(t, s.UpdateStatus("s1", session.StatusCompleted))
	got, err := s.GetSession("s1")
	require.NoError(t, err)
	require.Equal(t, session.StatusCompleted, got.Status)
	require.False(t, got.CompletedAt.IsZero())

	require.NoError(t, s.UpdateStatus("s1", session.StatusActive))
	got, err = s.GetSession("s1")
	require.NoError(t, err)
	require.True(t, got.CompletedAt.IsZero())

	require.ErrorIs(t, s.UpdateStatus("s1", "bogus"), session.ErrInvalidStatus)
}

func TestActivityAndQueue(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	_, err := s.CreateSession("s1", "proj")
	require.NoError(t, err)

	p1, err := s.AddPrompt("s1", "first")
	require.NoError(t, err)
	p2, err := s.AddPrompt("s1", "password=hunter22")
	require.NoError(t, err)
	require.EqualValues(t, 1, p1.Number)
	require.EqualValues(t, 2, p2.Number)
	require.NotContains(t, p2.Text, "hunter22")

	tu, err := s.AddToolUse(session.ToolUseParams{
		SessionID: "s1",
		ToolName:  "bash",
		Output:    strings.Repeat("y", 100),
	})
	require.NoError(t, err)
	require.True(t, tu.OutputTruncated)
	require.NotEqual(t, p1.ID, tu.ID)

	_, err = s.Enqueue("s1", queue.ToolUsePayload{ToolName: "bash"})
	require.NoError(t, err)
	_, err = s.Enqueue("s1", queue.SummaryRequestPayload{Reason: "stop"})
	require.NoError(t, err)

	n, err := s.PendingCount("s1")
	require.NoError(t, err)
	require.Equal(t, 2, n)

	pending, err := s.Pending("s1")
	require.NoError(t, err)
	require.Equal(t, queue.TypeToolUse, pending[0].Type)
	payload, err := pending[1].Decode()
	require.NoError(t, err)
	require.Equal(t, queue.SummaryRequestPayload{Reason: "stop"}, payload)

	rec, err := s.Read("s1")
	require.NoError(t, err)
	require.Len(t, rec.Prompts, 2)
	require.Len(t, rec.ToolUses, 1)
}

func TestWritesToUnknownSessionCreateIt(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	// 会话在数据库故障之前开始，没有降级文件
	p, err := s.AddPrompt("s1", "hello")
	require.NoError(t, err)
	require.EqualValues(t, 1, p.Number)
	_, err = s.AddToolUse(session.ToolUseParams{SessionID: "s1", ToolName: "bash"})
	require.NoError(t, err)
	_, err = s.Enqueue("s1", queue.SummaryRequestPayload{Reason: "stop"})
	require.NoError(t, err)

	rec, err := s.Read("s1")
	require.NoError(t, err)
	require.Equal(t, "s1", rec.Session.ID)
	require.Equal(t, session.StatusActive, rec.Session.Status)
	require.Empty(t, rec.Session.Project)
	require.False(t, rec.Session.StartedAt.IsZero())
	require.Len(t, rec.Prompts, 1)
	require.Len(t, rec.ToolUses, 1)
	require.Len(t, rec.Messages, 1)

	require.NoError(t, s.UpdateStatus("s2", session.StatusFailed))
	got, err := s.GetSession("s2")
	require.NoError(t, err)
	require.Equal(t, session.StatusFailed, got.Status)
}

func TestCorruptFileIsNotOverwritten(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.dir, 0o700))
	corrupt := []byte(`{"session": {"session_id": "s1"`)
	require.NoError(t, os.WriteFile(s.path("s1"), corrupt, 0o600))

	_, err := s.AddPrompt("s1", "hello")
	require.Error(t, err)
	_, err = s.CreateSession("s1", "proj")
	require.Error(t, err)
	require.NotErrorIs(t, err, session.ErrAlreadyExists)

	data, err := os.ReadFile(s.path("s1"))
	require.NoError(t, err)
	require.Equal(t, corrupt, data)
}

func TestListAndRemove(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	list, err := s.List()
	require.NoError(t, err)
	require.Empty(t, list)

	for _, id := range []string{"a", "b"} {
		_, err := s.CreateSession(id, "proj")
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(s.path("broken"), []byte("nope"), 0o600))

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.Remove("a"))
	require.NoError(t, s.Remove("a"))

	list, err = s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "b", list[0].ID)
}
