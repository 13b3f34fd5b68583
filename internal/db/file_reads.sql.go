// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: file_reads.sql

package db

import (
	"context"
)

const createFileRead = `-- 名称: CreateFileRead :one
INSERT INTO file_reads (
    session_id,
    file_path,
    content_hash,
    content,
    created_at,
    created_at_epoch
) VALUES (
    ?,
    ?,
    ?,
    ?,
    ?,
    ?
) RETURNING id, session_id, file_path, content_hash, content, created_at, created_at_epoch
`

type CreateFileReadParams struct {
	SessionID      string `json:"session_id"`
	FilePath       string `json:"file_path"`
	ContentHash    string `json:"content_hash"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func (q *Queries) CreateFileRead(ctx context.Context, arg CreateFileReadParams) (FileRead, error) {
	row := q.db.QueryRowContext(ctx, createFileRead,
		arg.SessionID,
		arg.FilePath,
		arg.ContentHash,
		arg.Content,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i FileRead
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.FilePath,
		&i.ContentHash,
		&i.Content,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
	)
	return i, err
}

const fileReadExists = `-- 名称: FileReadExists :one
SELECT EXISTS (
    SELECT 1 FROM file_reads
    WHERE session_id = ? AND file_path = ? AND content_hash = ?
)
`

type FileReadExistsParams struct {
	SessionID   string `json:"session_id"`
	FilePath    string `json:"file_path"`
	ContentHash string `json:"content_hash"`
}

// FileReadExists 检查同一会话中同一路径是否已记录过相同内容
func (q *Queries) FileReadExists(ctx context.Context, arg FileReadExistsParams) (bool, error) {
	row := q.db.QueryRowContext(ctx, fileReadExists, arg.SessionID, arg.FilePath, arg.ContentHash)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

const listFileReadsBySession = `-- 名称: ListFileReadsBySession :many
SELECT id, session_id, file_path, content_hash, content, created_at, created_at_epoch
FROM file_reads
WHERE session_id = ?
ORDER BY file_path ASC, created_at_epoch DESC, id DESC
`

func (q *Queries) ListFileReadsBySession(ctx context.Context, sessionID string) ([]FileRead, error) {
	rows, err := q.db.QueryContext(ctx, listFileReadsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []FileRead{}
	for rows.Next() {
		var i FileRead
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.FilePath,
			&i.ContentHash,
			&i.Content,
			&i.CreatedAt,
			&i.CreatedAtEpoch,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const pruneFileReads = `-- 名称: PruneFileReads :execrows
DELETE FROM file_reads
WHERE session_id = ?1 AND file_path = ?2 AND id NOT IN (
    SELECT id FROM file_reads
    WHERE session_id = ?1 AND file_path = ?2
    ORDER BY created_at_epoch DESC, id DESC
    LIMIT ?3
)
`

type PruneFileReadsParams struct {
	SessionID string `json:"session_id"`
	FilePath  string `json:"file_path"`
	Keep      int64  `json:"keep"`
}

// PruneFileReads 只保留同一路径最近的 Keep 条读取记录
func (q *Queries) PruneFileReads(ctx context.Context, arg PruneFileReadsParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, pruneFileReads, arg.SessionID, arg.FilePath, arg.Keep)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
