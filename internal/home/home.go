// Package home 处理路径中的用户主目录。
package home

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

var homedir, homedirErr = os.UserHomeDir()

func init() {
	if homedirErr != nil {
		slog.Error("获取用户主目录失败", "error", homedirErr)
	}
}

// Dir 返回用户主目录
func Dir() string {
	return homedir
}

// Short 把主目录下的路径缩写为 ~ 开头，用于显示。
// 只在路径分隔符边界上替换，/home/bob 不会把 /home/bobby 缩写。
func Short(p string) string {
	if homedir == "" {
		return p
	}
	if p == homedir {
		return "~"
	}
	rest, ok := strings.CutPrefix(p, homedir+string(filepath.Separator))
	if !ok {
		return p
	}
	return filepath.Join("~", rest)
}

// Long 展开开头的 ~ 或 ~/。~user 形式不处理。
func Long(p string) string {
	if homedir == "" {
		return p
	}
	if p == "~" {
		return homedir
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		return filepath.Join(homedir, rest)
	}
	if rest, ok := strings.CutPrefix(p, `~\`); ok && filepath.Separator == '\\' {
		return filepath.Join(homedir, rest)
	}
	return p
}
