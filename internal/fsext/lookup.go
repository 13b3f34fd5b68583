package fsext

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Lookup 从 dir 开始逐级向上查找 targets，直到文件系统根目录，
// 返回找到的路径，越靠近 dir 的越靠前。
// 与 dir 所有者不同的文件会被跳过，避免读取其他用户放在上级目录中的配置。
func Lookup(dir string, targets ...string) ([]string, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	var found []string
	err := traverseUp(dir, func(cwd string, owner int) error {
		for _, target := range targets {
			fpath := filepath.Join(cwd, target)
			err := probeEnt(fpath, owner)
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, os.ErrPermission) {
				continue
			}
			if err != nil {
				return fmt.Errorf("探测文件 %s 时出错: %w", fpath, err)
			}
			found = append(found, fpath)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// traverseUp 把每一级目录的绝对路径和 dir 的所有者传给 walkFn
func traverseUp(dir string, walkFn func(dir string, owner int) error) error {
	cwd, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("无法将目录转换为绝对路径: %w", err)
	}
	owner, err := Owner(dir)
	if err != nil {
		return fmt.Errorf("无法获取所有权: %w", err)
	}

	for {
		if err := walkFn(cwd, owner); err != nil {
			if errors.Is(err, filepath.SkipAll) {
				return nil
			}
			return err
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return nil
		}
		cwd = parent
	}
}

// probeEnt 检查 fspath 存在并且属于 owner；owner 为 -1 时不检查
func probeEnt(fspath string, owner int) error {
	if _, err := os.Stat(fspath); err != nil {
		return err
	}
	if owner == -1 {
		return nil
	}
	fowner, err := Owner(fspath)
	if err != nil {
		return fmt.Errorf("无法获取 %s 的所有权: %w", fspath, err)
	}
	if fowner != owner {
		return os.ErrPermission
	}
	return nil
}
