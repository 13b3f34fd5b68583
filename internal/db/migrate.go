package db

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/pressly/goose/v3"
)

// column 描述一个在初始迁移之后追加的列。
type column struct {
	table string
	name  string
	def   string
}

// lateColumns 只能追加，不能删除或修改。
var lateColumns = []column{
	{table: "tool_uses", name: "tool_output_redacted", def: "INTEGER NOT NULL DEFAULT 0"},
}

// Migrate 幂等地创建所有表、索引、FTS5 影子表与触发器，可在每次启动时调用。
func Migrate(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	migrations, err := fs.Sub(FS, "migrations")
	if err != nil {
		return fmt.Errorf("读取嵌入的迁移文件失败: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, migrations)
	if err != nil {
		return fmt.Errorf("创建迁移器失败: %w", err)
	}

	up := func(ctx context.Context) error {
		results, err := provider.Up(ctx)
		if err != nil {
			return err
		}
		if len(results) > 0 {
			logger.Debug("已应用数据库迁移", "count", len(results))
		}
		return nil
	}

	// 两个进程首次同时启动时，版本表的创建可能发生竞争；
	// 所有 DDL 都带 IF NOT EXISTS，所以再执行一次即可。
	if err := Retry(ctx, up); err != nil {
		logger.Warn("首次迁移失败，重试一次", "error", err)
		if err := Retry(ctx, up); err != nil {
			return fmt.Errorf("应用迁移失败: %w", err)
		}
	}

	for _, c := range lateColumns {
		if err := addColumnIfNotExists(ctx, db, c); err != nil {
			return err
		}
	}
	return nil
}

// addColumnIfNotExists 执行 best-effort 的 ALTER TABLE，吞掉"列已存在"错误。
func addColumnIfNotExists(ctx context.Context, db *sql.DB, c column) error {
	stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", c.table, c.name, c.def)
	err := Retry(ctx, func(ctx context.Context) error {
		_, err := db.ExecContext(ctx, stmt)
		return err
	})
	if err == nil || isDuplicateColumn(err) {
		return nil
	}
	return fmt.Errorf("添加列 %s.%s 失败: %w", c.table, c.name, err)
}

func isDuplicateColumn(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "duplicate column name")
}
