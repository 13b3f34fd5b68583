package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/x/exp/charmtone"
	"github.com/charmbracelet/x/term"
	"github.com/purpose168/mnemo/internal/app"
	"github.com/purpose168/mnemo/internal/config"
	"github.com/purpose168/mnemo/internal/version"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().StringP("cwd", "c", "", "当前工作目录")
	rootCmd.PersistentFlags().StringP("data-dir", "D", "", "自定义 mnemo 数据目录")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "调试")
	rootCmd.Flags().BoolP("help", "h", false, "帮助")

	rootCmd.AddCommand(
		hookCmd,
		workerCmd,
		statusCmd,
		searchCmd,
		cleanupCmd,
		configCmd,
		dirsCmd,
		logsCmd,
		schemaCmd,
	)
}

var rootCmd = &cobra.Command{
	Use:   "mnemo",
	Short: "编码助手会话的持久记忆",
	Long: `mnemo 记录编码助手会话中的提示词、工具调用和文件读取，
并在会话结束后由后台 worker 整理成摘要。`,
	Example: `
# 在 Stop 钩子中调用
mnemo hook stop < payload.json

# 查看最近的会话
mnemo status

# 搜索记录过的工具调用
mnemo search tools "go test"

# 使用自定义数据目录
mnemo -D /path/to/data status
  `,
	SilenceUsage: true,
}

var heartbit = lipgloss.NewStyle().Foreground(charmtone.Dolly).SetString(`
    ▄▄▄▄▄▄▄▄    ▄▄▄▄▄▄▄▄
  ███████████  ███████████
████████████████████████████
████████████████████████████
██████████▀██████▀██████████
██████████ ██████ ██████████
▀▀██████▄████▄▄████▄██████▀▀
  ████████████████████████
    ████████████████████
       ▀▀██████████▀▀
           ▀▀▀▀▀▀
`)

// copied from cobra:
const defaultVersionTemplate = `{{with .DisplayName}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`

func Execute() {
	// cobra 没有提供自定义版本输出的钩子，只能把带颜色的 heartbit
	// 渲染进缓冲区，再拼到版本模板前面。
	if term.IsTerminal(os.Stdout.Fd()) {
		var b bytes.Buffer
		w := colorprofile.NewWriter(os.Stdout, os.Environ())
		w.Forward = &b
		_, _ = w.WriteString(heartbit.String())
		rootCmd.SetVersionTemplate(b.String() + "\n" + defaultVersionTemplate)
	}
	v := version.Version
	if version.Commit != "" {
		v += " (" + version.Commit + ")"
	}
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(v),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		os.Exit(1)
	}
}

// loadConfig 读取全局标志，加载配置并初始化日志
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	dataDir, _ := cmd.Flags().GetString("data-dir")

	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}
	return config.Init(cwd, dataDir, debug)
}

// setupApp 加载配置并打开存储。数据库不可用时返回降级模式的 App。
func setupApp(cmd *cobra.Command) (*app.App, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	return app.Open(cmd.Context(), cfg, newSpawner(cmd, cfg), nil), nil
}

// newSpawner 测试中替换为进程内实现
var newSpawner = func(cmd *cobra.Command, cfg *config.Config) app.Spawner {
	return workerSpawner(cmd, cfg)
}

// workerSpawner 让 worker 进程用与当前进程相同的目录和数据目录加载配置
func workerSpawner(cmd *cobra.Command, cfg *config.Config) app.ExecSpawner {
	args := []string{"--cwd", cfg.WorkingDir()}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	if cfg.Debug {
		args = append(args, "--debug")
	}
	return app.ExecSpawner{Args: args}
}

// readStdin 读取管道或重定向进来的标准输入；终端输入返回空
func readStdin(cmd *cobra.Command) ([]byte, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		if term.IsTerminal(f.Fd()) {
			return nil, nil
		}
		fi, err := f.Stat()
		if err != nil {
			return nil, err
		}
		// 检查标准输入是否为命名管道（|）或常规文件（<）
		if fi.Mode()&os.ModeNamedPipe == 0 && !fi.Mode().IsRegular() {
			return nil, nil
		}
	}
	return io.ReadAll(in)
}

func ResolveCwd(cmd *cobra.Command) (string, error) {
	cwd, _ := cmd.Flags().GetString("cwd")
	if cwd != "" {
		err := os.Chdir(cwd)
		if err != nil {
			return "", fmt.Errorf("failed to change directory: %v", err)
		}
		return cwd, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current working directory: %v", err)
	}
	return cwd, nil
}
