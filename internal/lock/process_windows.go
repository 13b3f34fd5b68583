//go:build windows

package lock

import (
	"context"
	"errors"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

var errStartTimeUnknown = errors.New("process start time unavailable")

// processAlive 在 Windows 上 os.FindProcess 总是成功，所以通过 tasklist 检查。
func processAlive(pid int) bool {
	out, err := exec.Command("tasklist", "/FI", "PID eq "+strconv.Itoa(pid), "/NH").Output()
	if err != nil {
		// 无法确认时按存活处理
		return true
	}
	return strings.Contains(string(out), strconv.Itoa(pid))
}

// processStartTime 在 Windows 上不可用，调用方退化为只检查 PID。
func processStartTime(context.Context, int) (time.Time, error) {
	return time.Time{}, errStartTimeUnknown
}
