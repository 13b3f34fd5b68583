package cmd

import (
	"errors"
	"os"
	"time"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/mnemo/internal/app"
	"github.com/purpose168/mnemo/internal/lock"
	"github.com/purpose168/mnemo/internal/marker"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status [session]",
	Short: "显示会话状态",
	Long:  "不带参数时列出最近的会话；指定会话时显示它的活动统计、锁和完成标记。",
	Example: `
# 列出最近 20 个会话
mnemo status

# 查看一个会话
mnemo status 0d6b8c1e

# 以 JSON 格式输出
mnemo status 0d6b8c1e --json
  `,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format := outputTable
		if v, _ := cmd.Flags().GetBool("json"); v {
			format = outputJSON
		}
		if v, _ := cmd.Flags().GetBool("yaml"); v {
			format = outputYAML
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()
		if a.Degraded() {
			return errDegraded
		}

		if len(args) == 0 {
			limit, _ := cmd.Flags().GetInt("limit")
			return listSessions(cmd, a, limit, format)
		}
		return showSession(cmd, a, args[0], format)
	},
}

func init() {
	statusCmd.Flags().Bool("json", false, "以 JSON 格式输出")
	statusCmd.Flags().Bool("yaml", false, "以 YAML 格式输出")
	statusCmd.MarkFlagsMutuallyExclusive("json", "yaml")
	statusCmd.Flags().IntP("limit", "n", 20, "列出的会话数量")
}

func listSessions(cmd *cobra.Command, a *app.App, limit int, format outputFormat) error {
	sessions, err := a.Sessions.List(cmd.Context(), limit)
	if err != nil {
		return err
	}
	if format != outputTable {
		return printStructured(cmd, format, struct {
			Sessions []session.Session `json:"sessions"`
		}{sessions})
	}
	if len(sessions) == 0 {
		cmd.Println("尚未记录任何会话。")
		return nil
	}

	if term.IsTerminal(os.Stdout.Fd()) {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 2)
			}).
			Headers("会话", "项目", "状态", "开始", "结束")
		for _, s := range sessions {
			t.Row(s.ID, s.Project, string(s.Status), humanize.Time(s.StartedAt), humanTime(s.CompletedAt))
		}
		lipgloss.Println(t)
		return nil
	}

	for _, s := range sessions {
		cmd.Printf("%s\t%s\t%s\t%s\n", s.ID, s.Project, s.Status, s.StartedAt.Format("2006-01-02T15:04:05Z07:00"))
	}
	return nil
}

// sessionStatus 是单个会话的完整状态
type sessionStatus struct {
	Session  session.Session  `json:"session"`
	Activity session.Activity `json:"activity"`
	Lock     *lock.Info       `json:"lock,omitempty"`
	Marker   *marker.Marker   `json:"marker,omitempty"`
}

func loadSessionStatus(cmd *cobra.Command, a *app.App, id string) (sessionStatus, error) {
	var st sessionStatus
	var err error
	if st.Session, err = a.Sessions.Get(cmd.Context(), id); err != nil {
		return st, err
	}
	if st.Activity, err = a.Sessions.Activity(cmd.Context(), id); err != nil {
		return st, err
	}
	if info, err := a.Locks.Read(id); err == nil {
		st.Lock = &info
	} else if !errors.Is(err, lock.ErrNotFound) {
		return st, err
	}
	if m, err := marker.Read(a.Config().ConfigDir, id); err == nil {
		st.Marker = &m
	} else if !errors.Is(err, marker.ErrNotFound) {
		return st, err
	}
	return st, nil
}

func showSession(cmd *cobra.Command, a *app.App, id string, format outputFormat) error {
	st, err := loadSessionStatus(cmd, a, id)
	if err != nil {
		return err
	}
	if format != outputTable {
		return printStructured(cmd, format, st)
	}

	rows := [][2]string{
		{"会话", st.Session.ID},
		{"项目", st.Session.Project},
		{"状态", string(st.Session.Status)},
		{"开始", humanize.Time(st.Session.StartedAt)},
		{"结束", humanTime(st.Session.CompletedAt)},
		{"后台处理", humanTime(st.Session.ProcessingStartedAt)},
		{"提示词", humanize.Comma(st.Activity.Prompts)},
		{"工具调用", humanize.Comma(st.Activity.ToolUses)},
		{"文件读取", humanize.Comma(st.Activity.FileReads)},
		{"观察记录", humanize.Comma(st.Activity.Observations)},
		{"待处理消息", humanize.Comma(st.Activity.Pending)},
	}
	if st.Lock != nil {
		rows = append(rows, [2]string{"锁", string(st.Lock.Status) + " pid " + humanize.Comma(int64(st.Lock.PID)) + ", " + humanize.Time(st.Lock.StartedAt)})
	}
	if st.Marker != nil {
		result := "成功"
		if !st.Marker.Success {
			result = "失败: " + st.Marker.ErrorMessage
		}
		rows = append(rows, [2]string{"完成标记", result + ", " + humanize.Time(st.Marker.CompletedAt)})
	}

	if term.IsTerminal(os.Stdout.Fd()) {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 2)
			})
		for _, r := range rows {
			t.Row(r[0], r[1])
		}
		lipgloss.Println(t)
		return nil
	}
	for _, r := range rows {
		cmd.Printf("%s\t%s\n", r[0], r[1])
	}
	return nil
}

func humanTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return humanize.Time(t)
}
