// Package marker writes the completion markers left behind by background workers.
package marker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/purpose168/mnemo/internal/fsext"
)

const (
	subdir = "completed"
	ext    = ".marker"
)

// ErrNotFound 标记文件不存在
var ErrNotFound = errors.New("marker not found")

// Marker 记录一次后台处理的结果
type Marker struct {
	CompletedAt  time.Time `json:"completed_at"`
	WrittenNotes []string  `json:"written_notes"`
	Success      bool      `json:"success"`
	ErrorMessage string    `json:"error_message,omitempty"`
	// RunID 对应 worker 日志中的 run_id
	RunID string `json:"run_id,omitempty"`
}

// Path returns {configDir}/completed/{sessionID}.marker.
func Path(configDir, sessionID string) string {
	return filepath.Join(configDir, subdir, sessionID+ext)
}

// Write 原子地写入标记文件，已存在时覆盖
func Write(configDir, sessionID string, m Marker) error {
	if err := fsext.EnsurePrivateDir(filepath.Join(configDir, subdir)); err != nil {
		return err
	}
	if m.WrittenNotes == nil {
		m.WrittenNotes = []string{}
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	if err := fsext.WriteFileAtomic(Path(configDir, sessionID), data); err != nil {
		return fmt.Errorf("写入完成标记失败: %w", err)
	}
	return nil
}

func Read(configDir, sessionID string) (Marker, error) {
	data, err := os.ReadFile(Path(configDir, sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return Marker{}, fmt.Errorf("%w: %s", ErrNotFound, sessionID)
	}
	if err != nil {
		return Marker{}, err
	}
	var m Marker
	if err := json.Unmarshal(data, &m); err != nil {
		return Marker{}, fmt.Errorf("解析完成标记失败: %w", err)
	}
	return m, nil
}

// Remove 删除标记文件；不存在不算错误
func Remove(configDir, sessionID string) error {
	if err := os.Remove(Path(configDir, sessionID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
