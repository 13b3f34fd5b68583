// Package db 提供 SQLite 存储层：连接管理、迁移、重试与类型化查询。
package db

import "embed"

// 数据库迁移脚本，用于创建表、索引、FTS5 影子表和触发器
//
//go:embed migrations/*.sql
var FS embed.FS
