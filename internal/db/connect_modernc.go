//go:build (darwin && (amd64 || arm64)) || (freebsd && (amd64 || arm64)) || (linux && (386 || amd64 || arm || arm64 || loong64 || ppc64le || riscv64 || s390x)) || (windows && (386 || amd64 || arm64))

package db

import (
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

func openDB(dbPath string) (*sql.DB, error) {
	// 通过 _pragma 查询参数设置 pragma，每个新连接都会执行。
	// busy_timeout 放在最前面，让 journal_mode(WAL) 本身也会等待锁。
	// 格式：_pragma=name(value)
	params := url.Values{}
	params.Add("_pragma", "busy_timeout(5000)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "foreign_keys(on)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "mmap_size(268435456)")
	params.Add("_pragma", "cache_size(-16000)")
	params.Add("_pragma", "temp_store(memory)")

	dsn := fmt.Sprintf("file:%s?%s", dbPath, params.Encode())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}
	return db, nil
}

// isTransient 判断错误是否为可重试的锁竞争（BUSY、BUSY_RECOVERY、LOCKED 等）。
func isTransient(err error) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	// 扩展错误码的低 8 位是主错误码
	switch serr.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}
