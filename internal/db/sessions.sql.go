// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: sessions.sql

package db

import (
	"context"
	"database/sql"
)

const clearProcessingStarted = `-- 名称: ClearProcessingStarted :exec
UPDATE sessions
SET processing_started_at = NULL
WHERE session_id = ?
`

func (q *Queries) ClearProcessingStarted(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, clearProcessingStarted, sessionID)
	return err
}

const countSessionActivity = `-- 名称: CountSessionActivity :one
SELECT
    (SELECT COUNT(*) FROM user_prompts p WHERE p.session_id = ?1) AS prompts,
    (SELECT COUNT(*) FROM tool_uses t WHERE t.session_id = ?1) AS tool_uses,
    (SELECT COUNT(*) FROM file_reads f WHERE f.session_id = ?1) AS file_reads,
    (SELECT COUNT(*) FROM observations o WHERE o.session_id = ?1) AS observations,
    (SELECT COUNT(*) FROM pending_messages m WHERE m.session_id = ?1 AND m.claimed_at_epoch IS NULL) AS pending
`

// CountSessionActivityRow 会话各子表的行数
type CountSessionActivityRow struct {
	Prompts      int64 `json:"prompts"`
	ToolUses     int64 `json:"tool_uses"`
	FileReads    int64 `json:"file_reads"`
	Observations int64 `json:"observations"`
	Pending      int64 `json:"pending"`
}

func (q *Queries) CountSessionActivity(ctx context.Context, sessionID string) (CountSessionActivityRow, error) {
	row := q.db.QueryRowContext(ctx, countSessionActivity, sessionID)
	var i CountSessionActivityRow
	err := row.Scan(
		&i.Prompts,
		&i.ToolUses,
		&i.FileReads,
		&i.Observations,
		&i.Pending,
	)
	return i, err
}

const createSession = `-- 名称: CreateSession :one
INSERT INTO sessions (
    session_id,
    project,
    started_at,
    started_at_epoch,
    status
) VALUES (
    ?,
    ?,
    ?,
    ?,
    'active'
) RETURNING id, session_id, project, started_at, started_at_epoch, completed_at, completed_at_epoch, status, processing_started_at
`

// CreateSessionParams 创建会话参数结构体
type CreateSessionParams struct {
	SessionID      string `json:"session_id"`
	Project        string `json:"project"`
	StartedAt      string `json:"started_at"`
	StartedAtEpoch int64  `json:"started_at_epoch"`
}

// CreateSession 创建新会话，session_id 重复时返回唯一约束错误
func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRowContext(ctx, createSession,
		arg.SessionID,
		arg.Project,
		arg.StartedAt,
		arg.StartedAtEpoch,
	)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Project,
		&i.StartedAt,
		&i.StartedAtEpoch,
		&i.CompletedAt,
		&i.CompletedAtEpoch,
		&i.Status,
		&i.ProcessingStartedAt,
	)
	return i, err
}

const deleteOldSessions = `-- 名称: DeleteOldSessions :execrows
DELETE FROM sessions
WHERE id IN (
    SELECT id FROM sessions
    WHERE status IN ('completed', 'failed')
    ORDER BY completed_at_epoch DESC, id DESC
    LIMIT -1 OFFSET ?
)
`

// DeleteOldSessions 删除超出保留数量的已结束会话，子表通过外键级联删除
func (q *Queries) DeleteOldSessions(ctx context.Context, retention int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deleteOldSessions, retention)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const deleteSession = `-- 名称: DeleteSession :exec
DELETE FROM sessions
WHERE session_id = ?
`

func (q *Queries) DeleteSession(ctx context.Context, sessionID string) error {
	_, err := q.db.ExecContext(ctx, deleteSession, sessionID)
	return err
}

const getSession = `-- 名称: GetSession :one
SELECT id, session_id, project, started_at, started_at_epoch, completed_at, completed_at_epoch, status, processing_started_at
FROM sessions
WHERE session_id = ? LIMIT 1
`

// GetSession 根据 session_id 获取会话
func (q *Queries) GetSession(ctx context.Context, sessionID string) (Session, error) {
	row := q.db.QueryRowContext(ctx, getSession, sessionID)
	var i Session
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Project,
		&i.StartedAt,
		&i.StartedAtEpoch,
		&i.CompletedAt,
		&i.CompletedAtEpoch,
		&i.Status,
		&i.ProcessingStartedAt,
	)
	return i, err
}

const listOrphanSessions = `-- 名称: ListOrphanSessions :many
SELECT id, session_id, project, started_at, started_at_epoch, completed_at, completed_at_epoch, status, processing_started_at
FROM sessions
WHERE status = 'active' AND started_at_epoch < ?
ORDER BY started_at_epoch ASC
`

// ListOrphanSessions 列出早于 cutoff 仍处于 active 的会话
func (q *Queries) ListOrphanSessions(ctx context.Context, cutoff int64) ([]Session, error) {
	return q.listSessions(ctx, listOrphanSessions, cutoff)
}

const listSessions = `-- 名称: ListSessions :many
SELECT id, session_id, project, started_at, started_at_epoch, completed_at, completed_at_epoch, status, processing_started_at
FROM sessions
ORDER BY started_at_epoch DESC, id DESC
LIMIT ?
`

func (q *Queries) ListSessions(ctx context.Context, limit int64) ([]Session, error) {
	return q.listSessions(ctx, listSessions, limit)
}

const listStaleProcessingSessions = `-- 名称: ListStaleProcessingSessions :many
SELECT id, session_id, project, started_at, started_at_epoch, completed_at, completed_at_epoch, status, processing_started_at
FROM sessions
WHERE processing_started_at IS NOT NULL AND processing_started_at < ?
ORDER BY processing_started_at ASC
`

// ListStaleProcessingSessions 列出后台处理开始时间早于 cutoff 的会话
func (q *Queries) ListStaleProcessingSessions(ctx context.Context, cutoff int64) ([]Session, error) {
	return q.listSessions(ctx, listStaleProcessingSessions, cutoff)
}

func (q *Queries) listSessions(ctx context.Context, query string, arg int64) ([]Session, error) {
	rows, err := q.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Session{}
	for rows.Next() {
		var i Session
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Project,
			&i.StartedAt,
			&i.StartedAtEpoch,
			&i.CompletedAt,
			&i.CompletedAtEpoch,
			&i.Status,
			&i.ProcessingStartedAt,
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

const setProcessingStarted = `-- 名称: SetProcessingStarted :exec
UPDATE sessions
SET processing_started_at = ?
WHERE session_id = ?
`

type SetProcessingStartedParams struct {
	ProcessingStartedAt int64  `json:"processing_started_at"`
	SessionID           string `json:"session_id"`
}

func (q *Queries) SetProcessingStarted(ctx context.Context, arg SetProcessingStartedParams) error {
	_, err := q.db.ExecContext(ctx, setProcessingStarted, arg.ProcessingStartedAt, arg.SessionID)
	return err
}

const updateSessionStatus = `-- 名称: UpdateSessionStatus :execrows
UPDATE sessions
SET
    status = ?,
    completed_at = ?,
    completed_at_epoch = ?
WHERE session_id = ?
`

// UpdateSessionStatusParams 更新会话状态参数
// active 状态下 CompletedAt 与 CompletedAtEpoch 必须为空
type UpdateSessionStatusParams struct {
	Status           string         `json:"status"`
	CompletedAt      sql.NullString `json:"completed_at"`
	CompletedAtEpoch sql.NullInt64  `json:"completed_at_epoch"`
	SessionID        string         `json:"session_id"`
}

func (q *Queries) UpdateSessionStatus(ctx context.Context, arg UpdateSessionStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateSessionStatus,
		arg.Status,
		arg.CompletedAt,
		arg.CompletedAtEpoch,
		arg.SessionID,
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
