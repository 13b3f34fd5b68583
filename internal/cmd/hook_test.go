package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/purpose168/mnemo/internal/app"
	"github.com/purpose168/mnemo/internal/config"
	"github.com/purpose168/mnemo/internal/lock"
	"github.com/purpose168/mnemo/internal/log"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// 所有命令共用一个日志文件，避免写进各个测试的临时目录
	dir, err := os.MkdirTemp("", "mnemo-cmd-test")
	if err != nil {
		panic(err)
	}
	log.Setup(filepath.Join(dir, "mnemo.log"), false)
	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

func TestParseHookInput(t *testing.T) {
	t.Run("tool use", func(t *testing.T) {
		in, err := parseHookInput([]byte(`{
			"session_id": "abc",
			"cwd": "/src/shop",
			"tool_name": "Read",
			"tool_input": {"file_path": "/src/shop/main.go"},
			"tool_response": "package main"
		}`))
		require.NoError(t, err)
		require.Equal(t, "abc", in.SessionID)
		require.Equal(t, "shop", in.project())
		require.Equal(t, "Read", in.ToolName)
		require.JSONEq(t, `{"file_path": "/src/shop/main.go"}`, in.ToolInput)
		require.Equal(t, "package main", in.ToolOutput)
		require.Equal(t, "/src/shop/main.go", in.FilePath)
	})

	t.Run("tool_output fallback", func(t *testing.T) {
		in, err := parseHookInput([]byte(`{"session_id":"abc","tool_name":"bash","tool_input":"ls","tool_output":{"stdout":"a"}}`))
		require.NoError(t, err)
		require.Equal(t, "ls", in.ToolInput)
		require.JSONEq(t, `{"stdout":"a"}`, in.ToolOutput)
		require.Empty(t, in.project())
	})

	t.Run("missing session", func(t *testing.T) {
		_, err := parseHookInput([]byte(`{"prompt":"hi"}`))
		require.ErrorIs(t, err, errMissingSessionID)
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseHookInput([]byte(`{"session_id":`))
		require.Error(t, err)
	})
}

type spawnRecorder struct {
	mu  sync.Mutex
	ids []string
}

func (r *spawnRecorder) Spawn(_ context.Context, sessionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, sessionID)
	return nil
}

// hookEnv 用临时目录作为数据目录，并把 worker 启动替换为记录器
func hookEnv(t *testing.T) (string, *spawnRecorder) {
	t.Helper()
	t.Setenv("MNEMO_GLOBAL_CONFIG", t.TempDir())
	t.Setenv("MNEMO_GLOBAL_DATA", t.TempDir())

	rec := &spawnRecorder{}
	prev := newSpawner
	newSpawner = func(*cobra.Command, *config.Config) app.Spawner { return rec }
	t.Cleanup(func() { newSpawner = prev })
	return t.TempDir(), rec
}

func runHookCmd(t *testing.T, dataDir, stdin string, strict bool, hook string) error {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	args := []string{"hook", hook, "--data-dir", dataDir}
	if strict {
		args = append(args, "--strict")
	} else {
		args = append(args, "--strict=false")
	}
	rootCmd.SetArgs(args)
	return rootCmd.ExecuteContext(t.Context())
}

func TestHookLifecycle(t *testing.T) {
	dataDir, rec := hookEnv(t)

	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"s1","cwd":"/src/shop"}`, true, "session-start"))
	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"s1","prompt":"fix checkout"}`, true, "prompt"))
	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"s1","tool_name":"bash","tool_input":{"command":"go test"},"tool_response":"ok"}`, true, "tool-use"))
	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"s1","file_path":"cart.go","content":"package cart"}`, true, "file-read"))
	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"s1","last_assistant_message":"fixed"}`, true, "stop"))

	require.Equal(t, []string{"s1"}, rec.ids)

	a := app.Open(t.Context(), config.Defaults(dataDir), nil, nil)
	t.Cleanup(a.Shutdown)
	require.False(t, a.Degraded())
	ctx := t.Context()

	sess, err := a.Sessions.Get(ctx, "s1")
	require.NoError(t, err)
	require.Equal(t, "shop", sess.Project)
	require.Equal(t, session.StatusActive, sess.Status)

	act, err := a.Sessions.Activity(ctx, "s1")
	require.NoError(t, err)
	require.EqualValues(t, 1, act.Prompts)
	require.EqualValues(t, 1, act.ToolUses)
	require.EqualValues(t, 1, act.FileReads)
	// prompt + tool_use + summary_request
	require.EqualValues(t, 3, act.Pending)

	info, err := a.Locks.Read("s1")
	require.NoError(t, err)
	require.Equal(t, lock.StatusReserved, info.Status)
	require.Equal(t, filepath.Join(dataDir, "locks"), a.Locks.Dir())
}

func TestHookErrorsAreSwallowed(t *testing.T) {
	dataDir, _ := hookEnv(t)

	require.NoError(t, runHookCmd(t, dataDir, `not json`, false, "prompt"))
	require.Error(t, runHookCmd(t, dataDir, `not json`, true, "prompt"))

	// 会话不存在时记录失败
	require.NoError(t, runHookCmd(t, dataDir, `{"session_id":"ghost","prompt":"hi"}`, false, "prompt"))
	require.ErrorIs(t, runHookCmd(t, dataDir, `{"session_id":"ghost","prompt":"hi"}`, true, "prompt"), session.ErrNotFound)

	require.ErrorIs(t, runHookCmd(t, dataDir, `{"session_id":"../x"}`, true, "session-start"), app.ErrInvalidSessionID)
}
