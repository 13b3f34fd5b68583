package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/purpose168/mnemo/internal/app"
	"github.com/purpose168/mnemo/internal/log"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

// 钩子必须很快返回，不能拖住宿主
const hookTimeout = 10 * time.Second

var errMissingSessionID = errors.New("钩子输入缺少 session_id")

// hookInput 是宿主通过标准输入传来的 JSON 中我们关心的字段
type hookInput struct {
	SessionID            string
	Cwd                  string
	Prompt               string
	ToolName             string
	ToolInput            string
	ToolOutput           string
	FilePath             string
	Content              string
	LastAssistantMessage string
}

// project 取工作目录的最后一级作为项目名
func (in hookInput) project() string {
	if in.Cwd == "" {
		return ""
	}
	return filepath.Base(in.Cwd)
}

func parseHookInput(data []byte) (hookInput, error) {
	if !gjson.ValidBytes(data) {
		return hookInput{}, errors.New("钩子输入不是合法的 JSON")
	}
	r := gjson.ParseBytes(data)
	in := hookInput{
		SessionID:            r.Get("session_id").String(),
		Cwd:                  r.Get("cwd").String(),
		Prompt:               r.Get("prompt").String(),
		ToolName:             r.Get("tool_name").String(),
		ToolInput:            rawOrString(r.Get("tool_input")),
		ToolOutput:           rawOrString(firstOf(r, "tool_response", "tool_output")),
		FilePath:             firstOf(r, "file_path", "tool_input.file_path").String(),
		Content:              r.Get("content").String(),
		LastAssistantMessage: r.Get("last_assistant_message").String(),
	}
	if in.SessionID == "" {
		return in, errMissingSessionID
	}
	return in, nil
}

// rawOrString 对象和数组保留原始 JSON，其余取字符串值
func rawOrString(v gjson.Result) string {
	if v.IsObject() || v.IsArray() {
		return v.Raw
	}
	return v.String()
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

type hookFunc func(ctx context.Context, a *app.App, in hookInput) error

var hookCmd = &cobra.Command{
	Use:   "hook",
	Short: "宿主钩子入口",
	Long: `从标准输入读取宿主传来的 JSON 并记录到会话中。
存储故障只写日志，不会让钩子以非零状态退出，除非指定了 --strict。`,
	Example: `
# 会话开始
echo '{"session_id":"abc","cwd":"/src/app"}' | mnemo hook session-start

# 会话结束，启动后台 worker
echo '{"session_id":"abc"}' | mnemo hook stop
  `,
}

func newHookCmd(use, short string, fn hookFunc) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := runHook(cmd, use, fn)
			if err == nil {
				return nil
			}
			slog.Error("Hook failed", "hook", use, "error", err)
			if strict, _ := cmd.Flags().GetBool("strict"); strict {
				return err
			}
			return nil
		},
	}
}

func runHook(cmd *cobra.Command, name string, fn hookFunc) (err error) {
	defer log.RecoverPanic("hook-"+name, func() {
		err = fmt.Errorf("钩子 %s panic", name)
	})

	data, err := readStdin(cmd)
	if err != nil {
		return fmt.Errorf("读取标准输入失败: %w", err)
	}
	in, err := parseHookInput(data)
	if err != nil {
		return err
	}

	a, err := setupApp(cmd)
	if err != nil {
		return err
	}
	defer a.Shutdown()

	ctx, cancel := context.WithTimeout(cmd.Context(), hookTimeout)
	defer cancel()
	return fn(ctx, a, in)
}

func hookSessionStart(ctx context.Context, a *app.App, in hookInput) error {
	project := in.project()
	if project == "" {
		project = filepath.Base(a.Config().WorkingDir())
	}
	_, err := a.SessionStart(ctx, in.SessionID, project)
	return err
}

func hookPrompt(ctx context.Context, a *app.App, in hookInput) error {
	if in.Prompt == "" {
		return nil
	}
	_, err := a.RecordPrompt(ctx, in.SessionID, in.Prompt)
	return err
}

func hookToolUse(ctx context.Context, a *app.App, in hookInput) error {
	if in.ToolName == "" {
		return errors.New("钩子输入缺少 tool_name")
	}
	_, err := a.RecordToolUse(ctx, session.ToolUseParams{
		SessionID: in.SessionID,
		ToolName:  in.ToolName,
		Input:     in.ToolInput,
		Output:    in.ToolOutput,
	})
	return err
}

func hookFileRead(ctx context.Context, a *app.App, in hookInput) error {
	if in.FilePath == "" {
		return errors.New("钩子输入缺少 file_path")
	}
	content := in.Content
	if content == "" {
		data, err := os.ReadFile(in.FilePath)
		if err != nil {
			return fmt.Errorf("读取文件失败: %w", err)
		}
		content = string(data)
	}
	_, err := a.RecordFileRead(ctx, in.SessionID, in.FilePath, content)
	return err
}

func hookStop(ctx context.Context, a *app.App, in hookInput) error {
	res, err := a.Stop(ctx, in.SessionID, in.LastAssistantMessage)
	if err != nil {
		return err
	}
	slog.Debug("Stop handled", "session_id", in.SessionID,
		"enqueued", res.Enqueued, "spawned", res.Spawned, "completed", res.Completed)
	return nil
}

func init() {
	hookCmd.PersistentFlags().Bool("strict", false, "失败时以非零状态退出")
	hookCmd.AddCommand(
		newHookCmd("session-start", "会话开始：清理过期状态并创建会话", hookSessionStart),
		newHookCmd("prompt", "记录用户提示词", hookPrompt),
		newHookCmd("tool-use", "记录一次工具调用", hookToolUse),
		newHookCmd("file-read", "记录一次文件读取", hookFileRead),
		newHookCmd("stop", "会话结束：请求摘要并启动后台 worker", hookStop),
	)
}
