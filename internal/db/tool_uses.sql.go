// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: tool_uses.sql

package db

import (
	"context"
)

const createToolUse = `-- 名称: CreateToolUse :one
INSERT INTO tool_uses (
    session_id,
    tool_name,
    tool_input,
    tool_output,
    tool_output_truncated,
    tool_output_hash,
    tool_output_redacted,
    created_at,
    created_at_epoch
) VALUES (
    ?,
    ?,
    ?,
    ?,
    ?,
    ?,
    ?,
    ?,
    ?
) RETURNING id, session_id, tool_name, tool_input, tool_output, tool_output_truncated, tool_output_hash, tool_output_redacted, created_at, created_at_epoch
`

type CreateToolUseParams struct {
	SessionID           string `json:"session_id"`
	ToolName            string `json:"tool_name"`
	ToolInput           string `json:"tool_input"`
	ToolOutput          string `json:"tool_output"`
	ToolOutputTruncated int64  `json:"tool_output_truncated"`
	ToolOutputHash      string `json:"tool_output_hash"`
	ToolOutputRedacted  int64  `json:"tool_output_redacted"`
	CreatedAt           string `json:"created_at"`
	CreatedAtEpoch      int64  `json:"created_at_epoch"`
}

func (q *Queries) CreateToolUse(ctx context.Context, arg CreateToolUseParams) (ToolUse, error) {
	row := q.db.QueryRowContext(ctx, createToolUse,
		arg.SessionID,
		arg.ToolName,
		arg.ToolInput,
		arg.ToolOutput,
		arg.ToolOutputTruncated,
		arg.ToolOutputHash,
		arg.ToolOutputRedacted,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i ToolUse
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.ToolName,
		&i.ToolInput,
		&i.ToolOutput,
		&i.ToolOutputTruncated,
		&i.ToolOutputHash,
		&i.ToolOutputRedacted,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
	)
	return i, err
}

const listToolUsesBySession = `-- 名称: ListToolUsesBySession :many
SELECT id, session_id, tool_name, tool_input, tool_output, tool_output_truncated, tool_output_hash, tool_output_redacted, created_at, created_at_epoch
FROM tool_uses
WHERE session_id = ?
ORDER BY created_at_epoch ASC, id ASC
`

func (q *Queries) ListToolUsesBySession(ctx context.Context, sessionID string) ([]ToolUse, error) {
	rows, err := q.db.QueryContext(ctx, listToolUsesBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []ToolUse{}
	for rows.Next() {
		var i ToolUse
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.ToolName,
			&i.ToolInput,
			&i.ToolOutput,
			&i.ToolOutputTruncated,
			&i.ToolOutputHash,
			&i.ToolOutputRedacted,
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

const searchToolUses = `-- 名称: SearchToolUses :many
SELECT t.id, t.session_id, t.tool_name, t.tool_input, t.tool_output, t.tool_output_truncated, t.tool_output_hash, t.tool_output_redacted, t.created_at, t.created_at_epoch, fts.rank
FROM tool_uses_fts fts
JOIN tool_uses t ON t.id = fts.rowid
WHERE tool_uses_fts MATCH ?
ORDER BY fts.rank
LIMIT ?
`

type SearchToolUsesParams struct {
	Query string `json:"query"`
	Limit int64  `json:"limit"`
}

type SearchToolUsesRow struct {
	ToolUse
	Rank float64 `json:"rank"`
}

func (q *Queries) SearchToolUses(ctx context.Context, arg SearchToolUsesParams) ([]SearchToolUsesRow, error) {
	rows, err := q.db.QueryContext(ctx, searchToolUses, arg.Query, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SearchToolUsesRow{}
	for rows.Next() {
		var i SearchToolUsesRow
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.ToolName,
			&i.ToolInput,
			&i.ToolOutput,
			&i.ToolOutputTruncated,
			&i.ToolOutputHash,
			&i.ToolOutputRedacted,
			&i.CreatedAt,
			&i.CreatedAtEpoch,
			&i.Rank,
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
