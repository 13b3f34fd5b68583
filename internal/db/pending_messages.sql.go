// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: pending_messages.sql

package db

import (
	"context"
	"database/sql"
)

const claimPendingMessage = `-- 名称: ClaimPendingMessage :execrows
UPDATE pending_messages
SET claimed_at = ?, claimed_at_epoch = ?
WHERE id = ? AND claimed_at_epoch IS NULL
`

type ClaimPendingMessageParams struct {
	ClaimedAt      sql.NullString `json:"claimed_at"`
	ClaimedAtEpoch sql.NullInt64  `json:"claimed_at_epoch"`
	ID             int64          `json:"id"`
}

// ClaimPendingMessage 仅在消息仍未被认领时标记为已认领
func (q *Queries) ClaimPendingMessage(ctx context.Context, arg ClaimPendingMessageParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, claimPendingMessage, arg.ClaimedAt, arg.ClaimedAtEpoch, arg.ID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const countPendingMessages = `-- 名称: CountPendingMessages :one
SELECT COUNT(*)
FROM pending_messages
WHERE session_id = ? AND claimed_at_epoch IS NULL
`

func (q *Queries) CountPendingMessages(ctx context.Context, sessionID string) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPendingMessages, sessionID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const createPendingMessage = `-- 名称: CreatePendingMessage :one
INSERT INTO pending_messages (
    session_id,
    message_type,
    payload,
    created_at,
    created_at_epoch
) VALUES (
    ?,
    ?,
    ?,
    ?,
    ?
) RETURNING id, session_id, message_type, payload, created_at, created_at_epoch, claimed_at, claimed_at_epoch
`

type CreatePendingMessageParams struct {
	SessionID      string `json:"session_id"`
	MessageType    string `json:"message_type"`
	Payload        string `json:"payload"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func (q *Queries) CreatePendingMessage(ctx context.Context, arg CreatePendingMessageParams) (PendingMessage, error) {
	row := q.db.QueryRowContext(ctx, createPendingMessage,
		arg.SessionID,
		arg.MessageType,
		arg.Payload,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i PendingMessage
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.MessageType,
		&i.Payload,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
		&i.ClaimedAt,
		&i.ClaimedAtEpoch,
	)
	return i, err
}

const deletePendingMessage = `-- 名称: DeletePendingMessage :execrows
DELETE FROM pending_messages
WHERE id = ?
`

func (q *Queries) DeletePendingMessage(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, deletePendingMessage, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const listUnclaimedMessages = `-- 名称: ListUnclaimedMessages :many
SELECT id, session_id, message_type, payload, created_at, created_at_epoch, claimed_at, claimed_at_epoch
FROM pending_messages
WHERE session_id = ? AND claimed_at_epoch IS NULL
ORDER BY created_at_epoch ASC, id ASC
LIMIT ?
`

type ListUnclaimedMessagesParams struct {
	SessionID string `json:"session_id"`
	Limit     int64  `json:"limit"`
}

// ListUnclaimedMessages 按创建顺序列出未认领的消息，Limit 为 -1 表示不限制
func (q *Queries) ListUnclaimedMessages(ctx context.Context, arg ListUnclaimedMessagesParams) ([]PendingMessage, error) {
	rows, err := q.db.QueryContext(ctx, listUnclaimedMessages, arg.SessionID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []PendingMessage{}
	for rows.Next() {
		var i PendingMessage
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.MessageType,
			&i.Payload,
			&i.CreatedAt,
			&i.CreatedAtEpoch,
			&i.ClaimedAt,
			&i.ClaimedAtEpoch,
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

const releasePendingMessage = `-- 名称: ReleasePendingMessage :execrows
UPDATE pending_messages
SET claimed_at = NULL, claimed_at_epoch = NULL
WHERE id = ?
`

func (q *Queries) ReleasePendingMessage(ctx context.Context, id int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, releasePendingMessage, id)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const releaseStaleClaims = `-- 名称: ReleaseStaleClaims :execrows
UPDATE pending_messages
SET claimed_at = NULL, claimed_at_epoch = NULL
WHERE claimed_at_epoch IS NOT NULL AND claimed_at_epoch < ?
`

// ReleaseStaleClaims 将认领时间早于 cutoff 的消息恢复为未认领
func (q *Queries) ReleaseStaleClaims(ctx context.Context, cutoff int64) (int64, error) {
	result, err := q.db.ExecContext(ctx, releaseStaleClaims, cutoff)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
