package cmd

import (
	"errors"
	"os"
	"strings"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/ansi"
	"github.com/charmbracelet/x/term"
	"github.com/dustin/go-humanize"
	"github.com/purpose168/mnemo/internal/app"
	"github.com/spf13/cobra"
)

const snippetLen = 80

var errDegraded = errors.New("数据库不可用")

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "全文检索记录过的内容",
	Example: `
# 检索提示词
mnemo search prompts "login bug"

# 以 JSON 格式输出工具调用的检索结果
mnemo search tools "go test" --json
  `,
}

// searchRow 是一条结果在表格中的展示
type searchRow struct {
	SessionID string
	When      string
	Title     string
	Snippet   string
}

func newSearchCmd(use, short string, search func(cmd *cobra.Command, a *app.App, query string, limit int) (any, []searchRow, error)) *cobra.Command {
	c := &cobra.Command{
		Use:   use + " <query>",
		Short: short,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOutput, _ := cmd.Flags().GetBool("json")
			limit, _ := cmd.Flags().GetInt("limit")

			a, err := setupApp(cmd)
			if err != nil {
				return err
			}
			defer a.Shutdown()
			if a.Degraded() {
				return errDegraded
			}

			hits, rows, err := search(cmd, a, strings.Join(args, " "), limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				return printJSON(cmd, hits)
			}
			printSearchRows(cmd, rows)
			return nil
		},
	}
	c.Flags().Bool("json", false, "以 JSON 格式输出")
	c.Flags().IntP("limit", "n", 10, "最多返回的结果数")
	return c
}

func printSearchRows(cmd *cobra.Command, rows []searchRow) {
	if len(rows) == 0 {
		cmd.Println("没有匹配的结果。")
		return
	}
	if term.IsTerminal(os.Stdout.Fd()) {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			StyleFunc(func(row, col int) lipgloss.Style {
				return lipgloss.NewStyle().Padding(0, 1)
			}).
			Headers("会话", "时间", "标题", "内容")
		for _, r := range rows {
			t.Row(r.SessionID, r.When, r.Title, r.Snippet)
		}
		lipgloss.Println(t)
		return
	}
	for _, r := range rows {
		cmd.Printf("%s\t%s\t%s\t%s\n", r.SessionID, r.When, r.Title, r.Snippet)
	}
}

// snippet 去掉终端转义序列，压成单行并按显示宽度截断
func snippet(s string) string {
	s = strings.Join(strings.Fields(ansi.Strip(s)), " ")
	return ansi.Truncate(s, snippetLen, "…")
}

func init() {
	searchCmd.AddCommand(
		newSearchCmd("prompts", "检索提示词", func(cmd *cobra.Command, a *app.App, q string, n int) (any, []searchRow, error) {
			hits, err := a.Sessions.SearchPrompts(cmd.Context(), q, n)
			rows := make([]searchRow, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, searchRow{h.Item.SessionID, humanize.Time(h.Item.CreatedAt), "#" + humanize.Comma(h.Item.Number), snippet(h.Item.Text)})
			}
			return hits, rows, err
		}),
		newSearchCmd("tools", "检索工具调用", func(cmd *cobra.Command, a *app.App, q string, n int) (any, []searchRow, error) {
			hits, err := a.Sessions.SearchToolUses(cmd.Context(), q, n)
			rows := make([]searchRow, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, searchRow{h.Item.SessionID, humanize.Time(h.Item.CreatedAt), h.Item.ToolName, snippet(h.Item.Input)})
			}
			return hits, rows, err
		}),
		newSearchCmd("observations", "检索观察记录", func(cmd *cobra.Command, a *app.App, q string, n int) (any, []searchRow, error) {
			hits, err := a.Sessions.SearchObservations(cmd.Context(), q, n)
			rows := make([]searchRow, 0, len(hits))
			for _, h := range hits {
				rows = append(rows, searchRow{h.Item.SessionID, humanize.Time(h.Item.CreatedAt), h.Item.Title, snippet(h.Item.Content)})
			}
			return hits, rows, err
		}),
	)
}
