package fsext

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// PrivateDirMode 仅所有者可读写执行
	PrivateDirMode os.FileMode = 0o700
	// PrivateFileMode 仅所有者可读写
	PrivateFileMode os.FileMode = 0o600
)

// EnsurePrivateDir 创建目录（权限 0700）。目录已存在且属于当前用户时，
// 会尝试收紧权限；收紧失败不算错误。
func EnsurePrivateDir(dir string) error {
	if err := os.MkdirAll(dir, PrivateDirMode); err != nil {
		return fmt.Errorf("创建目录 %s 失败: %w", dir, err)
	}
	_ = restrict(dir, PrivateDirMode)
	return nil
}

// RestrictFile 将属于当前用户的文件权限收紧为 0600。
// 不属于当前用户的文件保持不变。
func RestrictFile(path string) error {
	return restrict(path, PrivateFileMode)
}

func restrict(path string, mode os.FileMode) error {
	owner, err := Owner(path)
	if err != nil {
		return err
	}
	// Windows 上 Owner 返回 -1，Chmod 只影响只读位
	if owner != -1 && owner != os.Getuid() {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Mode().Perm() == mode {
		return nil
	}
	return os.Chmod(path, mode)
}

// WriteFileAtomic 先写入同目录下的临时文件（权限 0600）再重命名，
// 读者要么看到旧内容，要么看到完整的新内容。
func WriteFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
