//go:build windows

package fsext

import "os"

// Owner 在 Windows 上不比较所有者，总是返回 -1
func Owner(path string) (int, error) {
	_, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return -1, nil
}
