//go:build !windows

package app

import "syscall"

// 新会话，不受终端挂断影响
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
