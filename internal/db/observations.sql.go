// 由 sqlc 自动生成的代码。请勿编辑。
// 版本信息:
//   sqlc v1.30.0
// 源文件: observations.sql

package db

import (
	"context"
)

const createObservation = `-- 名称: CreateObservation :one
INSERT INTO observations (
    session_id,
    type,
    title,
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
) RETURNING id, session_id, type, title, content, created_at, created_at_epoch
`

type CreateObservationParams struct {
	SessionID      string `json:"session_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func (q *Queries) CreateObservation(ctx context.Context, arg CreateObservationParams) (Observation, error) {
	row := q.db.QueryRowContext(ctx, createObservation,
		arg.SessionID,
		arg.Type,
		arg.Title,
		arg.Content,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i Observation
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Type,
		&i.Title,
		&i.Content,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
	)
	return i, err
}

const createSessionSummary = `-- 名称: CreateSessionSummary :one
INSERT INTO session_summaries (
    session_id,
    request,
    investigated,
    learned,
    completed,
    next_steps,
    notes,
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
) RETURNING id, session_id, request, investigated, learned, completed, next_steps, notes, created_at, created_at_epoch
`

type CreateSessionSummaryParams struct {
	SessionID      string `json:"session_id"`
	Request        string `json:"request"`
	Investigated   string `json:"investigated"`
	Learned        string `json:"learned"`
	Completed      string `json:"completed"`
	NextSteps      string `json:"next_steps"`
	Notes          string `json:"notes"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

func (q *Queries) CreateSessionSummary(ctx context.Context, arg CreateSessionSummaryParams) (SessionSummary, error) {
	row := q.db.QueryRowContext(ctx, createSessionSummary,
		arg.SessionID,
		arg.Request,
		arg.Investigated,
		arg.Learned,
		arg.Completed,
		arg.NextSteps,
		arg.Notes,
		arg.CreatedAt,
		arg.CreatedAtEpoch,
	)
	var i SessionSummary
	err := row.Scan(
		&i.ID,
		&i.SessionID,
		&i.Request,
		&i.Investigated,
		&i.Learned,
		&i.Completed,
		&i.NextSteps,
		&i.Notes,
		&i.CreatedAt,
		&i.CreatedAtEpoch,
	)
	return i, err
}

const listObservationsBySession = `-- 名称: ListObservationsBySession :many
SELECT id, session_id, type, title, content, created_at, created_at_epoch
FROM observations
WHERE session_id = ?
ORDER BY created_at_epoch ASC, id ASC
`

func (q *Queries) ListObservationsBySession(ctx context.Context, sessionID string) ([]Observation, error) {
	rows, err := q.db.QueryContext(ctx, listObservationsBySession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Observation{}
	for rows.Next() {
		var i Observation
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Type,
			&i.Title,
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

const listSessionSummaries = `-- 名称: ListSessionSummaries :many
SELECT id, session_id, request, investigated, learned, completed, next_steps, notes, created_at, created_at_epoch
FROM session_summaries
WHERE session_id = ?
ORDER BY created_at_epoch ASC, id ASC
`

func (q *Queries) ListSessionSummaries(ctx context.Context, sessionID string) ([]SessionSummary, error) {
	rows, err := q.db.QueryContext(ctx, listSessionSummaries, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SessionSummary{}
	for rows.Next() {
		var i SessionSummary
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Request,
			&i.Investigated,
			&i.Learned,
			&i.Completed,
			&i.NextSteps,
			&i.Notes,
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

const searchObservations = `-- 名称: SearchObservations :many
SELECT o.id, o.session_id, o.type, o.title, o.content, o.created_at, o.created_at_epoch, fts.rank
FROM observations_fts fts
JOIN observations o ON o.id = fts.rowid
WHERE observations_fts MATCH ?
ORDER BY fts.rank
LIMIT ?
`

type SearchObservationsParams struct {
	Query string `json:"query"`
	Limit int64  `json:"limit"`
}

type SearchObservationsRow struct {
	Observation
	Rank float64 `json:"rank"`
}

func (q *Queries) SearchObservations(ctx context.Context, arg SearchObservationsParams) ([]SearchObservationsRow, error) {
	rows, err := q.db.QueryContext(ctx, searchObservations, arg.Query, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []SearchObservationsRow{}
	for rows.Next() {
		var i SearchObservationsRow
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.Type,
			&i.Title,
			&i.Content,
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
