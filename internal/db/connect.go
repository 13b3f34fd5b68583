package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/purpose168/mnemo/internal/fsext"
)

// Connect 打开 SQLite 数据库连接并运行迁移
// Connect opens the SQLite database at dbPath and runs migrations.
//
// 返回的错误属于"存储不可用"一类，调用方应降级到 fallback 存储。
func Connect(ctx context.Context, dbPath string, logger *slog.Logger) (*sql.DB, error) {
	// 检查数据库路径是否已设置
	if dbPath == "" {
		return nil, fmt.Errorf("database path 未设置")
	}
	if logger == nil {
		logger = slog.Default()
	}

	// 父目录仅允许所有者访问
	if err := fsext.EnsurePrivateDir(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	// 打开数据库连接
	db, err := openDB(dbPath)
	if err != nil {
		return nil, err
	}
	// 每个进程只保留一个连接，写锁竞争交给引擎的 busy_timeout 和 Retry
	db.SetMaxOpenConns(1)

	// 第一次建立连接时会执行 PRAGMA，可能与另一个进程的迁移发生竞争
	if err := Retry(ctx, func(ctx context.Context) error {
		return db.PingContext(ctx)
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("连接数据库失败: %w", err)
	}

	if err := fsext.RestrictFile(dbPath); err != nil {
		logger.Warn("收紧数据库文件权限失败", "path", dbPath, "error", err)
	}

	// 执行数据库迁移
	if err := Migrate(ctx, db, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("应用迁移失败: %w", err)
	}

	return db, nil
}

// Close 将 WAL 写回主数据库文件后关闭连接。
// 检查点失败只记录日志，不影响关闭。
func Close(db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	ctx := context.Background()
	if err := Retry(ctx, func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)")
		return err
	}); err != nil {
		logger.Warn("WAL 检查点失败", "error", err)
	}
	return db.Close()
}
