package app

import (
	"context"
	"fmt"
	"os"
	"os/exec"
)

// Spawner 在后台启动处理会话队列的 worker
type Spawner interface {
	Spawn(ctx context.Context, sessionID string) error
}

// ExecSpawner 以 `<Executable> worker --session <id>` 启动一个脱离当前进程组的子进程，
// 不等待它结束。
type ExecSpawner struct {
	// Executable 为空时使用当前可执行文件
	Executable string
	// Args 追加在会话参数之后，比如 --data-dir
	Args []string
	// Env 为 nil 时继承当前环境
	Env []string
}

var _ Spawner = ExecSpawner{}

func (s ExecSpawner) Spawn(_ context.Context, sessionID string) error {
	exe := s.Executable
	if exe == "" {
		var err error
		if exe, err = os.Executable(); err != nil {
			return fmt.Errorf("查找可执行文件失败: %w", err)
		}
	}
	args := append([]string{"worker", "--session", sessionID}, s.Args...)

	// worker 要活过 hook 进程，不能跟随 ctx 被杀掉
	cmd := exec.Command(exe, args...)
	cmd.Env = s.Env
	cmd.SysProcAttr = detachAttr()
	// 标准流都指向空设备
	cmd.Stdin, cmd.Stdout, cmd.Stderr = nil, nil, nil

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}
