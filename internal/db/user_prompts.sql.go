// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: user_prompts.sql

package db

import (
	"context"
)

const createUserPrompt = `-- 名称: CreateUserPrompt :one
INSERT INTO user_prompts (
    session_id,
    prompt_number,
    prompt_text,
    created_at,
    created_at_epoch
) VALUES (
    ?1,
    (SELECT COALESCE(MAX(prompt_number), 0) + 1 FROM user_prompts WHERE session_id = ?1),
    ?2,
    ?3,
    ?4
) RETURNING id, session_id, prompt_number, prompt_text, created_at, created_at_epoch
`

// CreateUserPromptParams 提示词编号在会话内自增
type CreateUserPromptParams struct {
	SessionID      string `json:"session_id"`
	PromptText     string `json:"prompt_text"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func (q *Queries) CreateUserPrompt(ctx context.Context, arg CreateUserPromptParams) (UserPrompt, error) {
	row := q.db.QueryRowContext(ctx, createUserPrompt,
		arg.SessionID,
		arg.PromptText,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i UserPrompt
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.PromptNumber,
		&i.PromptText,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
	)
	return i, err
}

const listUserPromptsBySession = `-- 名称: ListUserPromptsBySession :many
SELECT id, session_id, prompt_number, prompt_text, created_at, created_at_epoch
FROM user_prompts
WHERE session_id = ?
ORDER BY prompt_number ASC
`

func (q *Queries) ListUserPromptsBySession(ctx context.Context, sessionID string) ([]UserPrompt, error) {
	rows, err := q.db.QueryContext(ctx, listUserPromptsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []UserPrompt{}
	for rows.Next() {
		var i UserPrompt
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.PromptNumber,
			&i.PromptText,
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

const searchUserPrompts = `-- 名称: SearchUserPrompts :many
SELECT p.id, p.session_id, p.prompt_number, p.prompt_text, p.created_at, p.created_at_epoch, fts.rank
FROM user_prompts_fts fts
JOIN user_prompts p ON p.id = fts.rowid
WHERE user_prompts_fts MATCH ?
ORDER BY fts.rank
LIMIT ?
`

type SearchUserPromptsParams struct {
	Query string `json:"query"`
	Limit int64  `json:"limit"`
}

type SearchUserPromptsRow struct {
	UserPrompt
	Rank float64 `json:"rank"`
}

// SearchUserPrompts 全文检索提示词，按相关度排序
func (q *Queries) SearchUserPrompts(ctx context.Context, arg SearchUserPromptsParams) ([]SearchUserPromptsRow, error) {
	rows, err := q.db.QueryContext(ctx, searchUserPrompts, arg.Query, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SearchUserPromptsRow{}
	for rows.Next() {
		var i SearchUserPromptsRow
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.PromptNumber,
			&i.PromptText,
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
