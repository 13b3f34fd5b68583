package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"charm.land/log/v2"
	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/x/term"
	"github.com/nxadm/tail"
	"github.com/purpose168/mnemo/internal/config"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

const defaultTailLines = 1000

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "查看 mnemo 日志",
	Long:  `查看钩子和后台 worker 写入的日志。所有进程共用一个日志文件，每行带有 pid。`,
	Example: `
# 查看最后 100 行
mnemo logs -t 100

# 跟踪新的日志
mnemo logs -f

# 只看某个会话
mnemo logs --session 0d6b8c1e
  `,
	RunE: func(cmd *cobra.Command, args []string) error {
		cwd, err := ResolveCwd(cmd)
		if err != nil {
			return err
		}
		dataDir, _ := cmd.Flags().GetString("data-dir")
		follow, _ := cmd.Flags().GetBool("follow")
		tailLines, _ := cmd.Flags().GetInt("tail")
		sessionID, _ := cmd.Flags().GetString("session")

		log.SetLevel(log.DebugLevel)
		log.SetOutput(os.Stdout)
		if !term.IsTerminal(os.Stdout.Fd()) {
			log.SetColorProfile(colorprofile.NoTTY)
		}

		// 不初始化日志，避免把本命令自己的输出写进正在查看的文件
		cfg, err := config.Load(cwd, dataDir, false)
		if err != nil {
			return fmt.Errorf("加载配置失败: %v", err)
		}
		logsFile := cfg.LogFile()
		if _, err := os.Stat(logsFile); os.IsNotExist(err) {
			log.Warn("未找到日志。", "path", logsFile)
			return nil
		}

		filter := func(line string) bool {
			return sessionID == "" || gjson.Get(line, "session_id").String() == sessionID
		}

		lines, err := lastLines(logsFile, tailLines, filter)
		if err != nil {
			return err
		}
		for _, line := range lines {
			printLogLine(line)
		}
		if len(lines) == tailLines {
			fmt.Fprintf(os.Stderr, "\n显示最后 %d 行。完整日志位于: %s\n", tailLines, logsFile)
		}
		if !follow {
			return nil
		}
		fmt.Fprintf(os.Stderr, "正在跟踪新的日志条目...\n\n")
		return followLogs(cmd.Context(), logsFile, filter)
	},
}

func init() {
	logsCmd.Flags().BoolP("follow", "f", false, "跟踪日志输出")
	logsCmd.Flags().IntP("tail", "t", defaultTailLines, "只显示最后 N 行，默认值: 1000（出于性能考虑）")
	logsCmd.Flags().String("session", "", "只显示该会话的日志")
}

// lastLines 返回文件中最后 n 条通过 filter 的行
func lastLines(logsFile string, n int, filter func(string) bool) ([]string, error) {
	t, err := tail.TailFile(logsFile, tail.Config{
		Follow: false,
		ReOpen: false,
		Logger: tail.DiscardingLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("无法追踪日志文件: %v", err)
	}
	defer t.Stop()

	var lines []string
	for line := range t.Lines {
		if line.Err != nil || !filter(line.Text) {
			continue
		}
		lines = append(lines, line.Text)
		if len(lines) > n {
			lines = lines[len(lines)-n:]
		}
	}
	return lines, nil
}

func followLogs(ctx context.Context, logsFile string, filter func(string) bool) error {
	t, err := tail.TailFile(logsFile, tail.Config{
		Follow:   true,
		ReOpen:   true,
		Logger:   tail.DiscardingLogger,
		Location: &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
	})
	if err != nil {
		return fmt.Errorf("无法追踪日志文件: %v", err)
	}
	defer t.Stop()

	for {
		select {
		case line := <-t.Lines:
			if line == nil || line.Err != nil || !filter(line.Text) {
				continue
			}
			printLogLine(line.Text)
		case <-ctx.Done():
			return nil
		}
	}
}

// printLogLine 把 slog 的 JSON 行用 charm log 重新渲染
func printLogLine(lineText string) {
	if !gjson.Valid(lineText) {
		return
	}
	data := gjson.Parse(lineText)
	msg := data.Get("msg").String()

	var keys []string
	fields := map[string]any{}
	data.ForEach(func(k, v gjson.Result) bool {
		switch k.Str {
		case "msg", "level", "time":
		case "source":
			fields["source"] = fmt.Sprintf("%s:%d", v.Get("file").String(), v.Get("line").Int())
			keys = append(keys, k.Str)
		default:
			fields[k.Str] = v.Value()
			keys = append(keys, k.Str)
		}
		return true
	})
	slices.Sort(keys)
	otherData := make([]any, 0, len(keys)*2)
	for _, k := range keys {
		otherData = append(otherData, k, fields[k])
	}

	log.SetTimeFunction(func(_ time.Time) time.Time {
		t, err := time.Parse(time.RFC3339, data.Get("time").String())
		if err != nil {
			return time.Now()
		}
		return t
	})
	switch data.Get("level").String() {
	case "DEBUG":
		log.Debug(msg, otherData...)
	case "ERROR":
		log.Error(msg, otherData...)
	case "WARN":
		log.Warn(msg, otherData...)
	default:
		log.Info(msg, otherData...)
	}
}
