// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
	"database/sql"
)

// DBTX 定义数据库事务接口，*sql.DB、*sql.Tx 和 *sql.Conn 都实现了它
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	PrepareContext(context.Context, string) (*sql.Stmt, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// New 创建并返回一个新的 Queries 实例
func New(db DBTX) *Queries {
	return &Queries{db: db}
}

// Queries 封装了所有数据库查询操作
type Queries struct {
	db DBTX
}

// WithTx 返回一个在给定事务中执行查询的 Queries 副本
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{
		db: tx,
	}
}
