//go:build !windows

package fsext

import (
	"os"
	"syscall"
)

// Owner 返回 path 所有者的 uid；拿不到时使用当前用户
func Owner(path string) (int, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	var uid int
	if stat, ok := info.Sys().(*syscall.Stat_t); ok {
		uid = int(stat.Uid)
	} else {
		uid = os.Getuid()
	}
	return uid, nil
}
