//go:build !((darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64)))

package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/ncruces/go-sqlite3"
	"github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// openDB 打开 SQLite 数据库并对每个新连接执行 PRAGMA
// dbPath: 数据库文件的路径
func openDB(dbPath string) (*sql.DB, error) {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000;",    // 引擎内部等待锁 5 秒
		"PRAGMA journal_mode = WAL;",     // 使用WAL（预写式日志）模式
		"PRAGMA foreign_keys = ON;",      // 启用外键约束
		"PRAGMA synchronous = NORMAL;",   // WAL 模式下检查点时才完全同步
		"PRAGMA mmap_size = 268435456;",  // 256MB 内存映射
		"PRAGMA cache_size = -16000;",    // 约 16MB 页缓存
		"PRAGMA temp_store = MEMORY;",    // 临时表放在内存中
	}

	db, err := driver.Open(dbPath, func(c *sqlite3.Conn) error {
		for _, pragma := range pragmas {
			if err := c.Exec(pragma); err != nil {
				return fmt.Errorf("设置数据库参数（PRAGMA）%q 失败: %w", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

// isTransient 判断错误是否为可重试的锁竞争。
// 扩展错误码（如 BUSY_RECOVERY）同样匹配主错误码。
func isTransient(err error) bool {
	return errors.Is(err, sqlite3.BUSY) || errors.Is(err, sqlite3.LOCKED)
}
