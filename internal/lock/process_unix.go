//go:build !windows

package lock

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// processAlive 发送信号 0 检查进程是否存在。
// EPERM 说明进程存在，只是属于其他用户。
func processAlive(pid int) bool {
	err := syscall.Kill(pid, 0)
	return err == nil || err == syscall.EPERM
}

// processStartTime 通过 ps 读取进程启动时间（本地时区，秒级）。
func processStartTime(ctx context.Context, pid int) (time.Time, error) {
	out, err := exec.CommandContext(ctx, "ps", "-o", "lstart=", "-p", strconv.Itoa(pid)).Output()
	if err != nil {
		return time.Time{}, err
	}
	// lstart 形如 "Thu Oct  6 10:00:00 2026"，日期左侧补空格
	fields := strings.Join(strings.Fields(string(out)), " ")
	return time.ParseInLocation("Mon Jan 2 15:04:05 2006", fields, time.Local)
}
