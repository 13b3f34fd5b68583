// Package log 初始化进程级的结构化日志，并提供 panic 恢复。
package log

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/purpose168/mnemo/internal/fsext"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	initOnce    sync.Once
	initialized atomic.Bool
	// panic 报告写在日志文件旁边；未初始化时写到当前目录
	panicDir atomic.Value
)

// Setup 初始化日志系统，每个进程只生效一次。
// 钩子进程和 worker 写同一个文件，lumberjack 负责轮转。
func Setup(logFile string, debug bool) {
	initOnce.Do(func() {
		dir := filepath.Dir(logFile)
		if err := fsext.EnsurePrivateDir(dir); err != nil {
			fmt.Fprintf(os.Stderr, "mnemo: %v\n", err)
		}
		panicDir.Store(dir)

		logRotator := &lumberjack.Logger{
			Filename:   logFile,
			MaxSize:    10, // MB
			MaxBackups: 0,
			MaxAge:     30, // 天
			Compress:   false,
		}

		level := slog.LevelInfo
		if debug {
			level = slog.LevelDebug
		}

		handler := slog.NewJSONHandler(logRotator, &slog.HandlerOptions{
			Level:     level,
			AddSource: true,
		})

		slog.SetDefault(slog.New(handler).With("pid", os.Getpid()))
		initialized.Store(true)
	})
}

// Initialized 报告 Setup 是否已经执行
func Initialized() bool {
	return initialized.Load()
}

// RecoverPanic 在 defer 中调用：记录 panic，写出带堆栈的报告文件，然后执行 cleanup。
func RecoverPanic(name string, cleanup func()) {
	if r := recover(); r != nil {
		slog.Error("Panic recovered", "name", name, "panic", r)
		if path, err := writePanicReport(name, r, time.Now()); err == nil {
			slog.Error("Panic report written", "path", path)
		}
		if cleanup != nil {
			cleanup()
		}
	}
}

func writePanicReport(name string, r any, now time.Time) (string, error) {
	dir, _ := panicDir.Load().(string)
	filename := filepath.Join(dir, fmt.Sprintf("mnemo-panic-%s-%s.log", name, now.Format("20060102-150405")))

	file, err := os.Create(filename)
	if err != nil {
		return "", err
	}
	defer file.Close()

	fmt.Fprintf(file, "Panic in %s: %v\n\n", name, r)
	fmt.Fprintf(file, "Time: %s\n\n", now.Format(time.RFC3339))
	fmt.Fprintf(file, "Stack Trace:\n%s\n", debug.Stack())
	return filename, nil
}
