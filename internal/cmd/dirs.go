package cmd

import (
	"os"
	"path/filepath"

	"charm.land/lipgloss/v2"
	"charm.land/lipgloss/v2/table"
	"github.com/charmbracelet/x/term"
	"github.com/purpose168/mnemo/internal/config"
	"github.com/purpose168/mnemo/internal/home"
	"github.com/spf13/cobra"
)

var dirsCmd = &cobra.Command{
	Use:   "dirs",
	Short: "打印 mnemo 使用的目录",
	Long: `打印 mnemo 使用的目录和文件：配置目录、数据目录，
以及按当前配置解析出的数据库、锁、降级文件、完成标记和日志的位置。`,
	Example: `
# 打印所有目录
mnemo dirs

# 仅打印配置目录
mnemo dirs config

# 仅打印锁目录，例如排查卡住的 worker
ls "$(mnemo dirs locks)"
  `,
	Run: func(cmd *cobra.Command, args []string) {
		rows := runtimeDirs(cmd)
		if term.IsTerminal(os.Stdout.Fd()) {
			t := table.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					return lipgloss.NewStyle().Padding(0, 2)
				})
			for _, r := range rows {
				t.Row(r[0], home.Short(r[1]))
			}
			lipgloss.Println(t)
			return
		}
		for _, r := range rows {
			cmd.Println(r[1])
		}
	},
}

// runtimeDirs 按显示顺序返回 (名称, 路径)。配置读取失败时只返回全局目录。
func runtimeDirs(cmd *cobra.Command) [][2]string {
	rows := [][2]string{
		{"Config", filepath.Dir(config.GlobalConfig())},
		{"Data", config.GlobalDataDir()},
	}
	cfg, err := dirsConfig(cmd)
	if err != nil {
		return rows
	}
	rows[0][1] = cfg.ConfigDir
	rows[1][1] = cfg.DataDir
	return append(rows,
		[2]string{"Database", cfg.DBPath},
		[2]string{"Locks", cfg.LocksDir},
		[2]string{"Fallback", cfg.FallbackDir},
		[2]string{"Completed", filepath.Join(cfg.ConfigDir, "completed")},
		[2]string{"Logs", filepath.Dir(cfg.LogFile())},
	)
}

func dirsConfig(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return config.Load(cwd, dataDir, false)
}

var configDirCmd = &cobra.Command{
	Use:   "config",
	Short: "打印 mnemo 使用的配置目录",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(filepath.Dir(config.GlobalConfig()))
	},
}

var dataDirCmd = &cobra.Command{
	Use:   "data",
	Short: "打印 mnemo 使用的数据目录",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println(config.GlobalDataDir())
	},
}

var locksDirCmd = &cobra.Command{
	Use:   "locks",
	Short: "打印会话锁目录",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := dirsConfig(cmd)
		if err != nil {
			return err
		}
		cmd.Println(cfg.LocksDir)
		return nil
	},
}

func init() {
	dirsCmd.AddCommand(configDirCmd, dataDirCmd, locksDirCmd)
}
