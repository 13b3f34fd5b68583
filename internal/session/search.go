package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/purpose168/mnemo/internal/db"
)

const (
	defaultSearchLimit = 10
	maxSearchLimit     = 100
)

// Hit 一条全文检索结果；Rank 越小越相关
type Hit[T any] struct {
	Item T       `json:"item"`
	Rank float64 `json:"rank"`
}

func (s *service) SearchPrompts(ctx context.Context, query string, limit int) ([]Hit[Prompt], error) {
	match, ok := sanitizeFTS(query)
	if !ok {
		return []Hit[Prompt]{}, nil
	}
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.SearchUserPromptsRow, error) {
		return s.q.SearchUserPrompts(ctx, db.SearchUserPromptsParams{Query: match, Limit: searchLimit(limit)})
	})
	if err != nil {
		return nil, fmt.Errorf("检索提示词失败: %w", err)
	}
	return mapRows(rows, func(r db.SearchUserPromptsRow) Hit[Prompt] {
		return Hit[Prompt]{Item: fromDBPrompt(r.UserPrompt), Rank: r.Rank}
	}), nil
}

func (s *service) SearchToolUses(ctx context.Context, query string, limit int) ([]Hit[ToolUse], error) {
	match, ok := sanitizeFTS(query)
	if !ok {
		return []Hit[ToolUse]{}, nil
	}
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.SearchToolUsesRow, error) {
		return s.q.SearchToolUses(ctx, db.SearchToolUsesParams{Query: match, Limit: searchLimit(limit)})
	})
	if err != nil {
		return nil, fmt.Errorf("检索工具调用失败: %w", err)
	}
	return mapRows(rows, func(r db.SearchToolUsesRow) Hit[ToolUse] {
		return Hit[ToolUse]{Item: fromDBToolUse(r.ToolUse), Rank: r.Rank}
	}), nil
}

func (s *service) SearchObservations(ctx context.Context, query string, limit int) ([]Hit[Observation], error) {
	match, ok := sanitizeFTS(query)
	if !ok {
		return []Hit[Observation]{}, nil
	}
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.SearchObservationsRow, error) {
		return s.q.SearchObservations(ctx, db.SearchObservationsParams{Query: match, Limit: searchLimit(limit)})
	})
	if err != nil {
		return nil, fmt.Errorf("检索观察失败: %w", err)
	}
	return mapRows(rows, func(r db.SearchObservationsRow) Hit[Observation] {
		return Hit[Observation]{Item: fromDBObservation(r.Observation), Rank: r.Rank}
	}), nil
}

// sanitizeFTS 将用户输入的每个词用双引号包起来，避免 FTS5 语法错误。
// "fix auth bug" => "fix" "auth" "bug"
func sanitizeFTS(query string) (string, bool) {
	words := strings.Fields(query)
	if len(words) == 0 {
		return "", false
	}
	for i, w := range words {
		words[i] = `"` + strings.ReplaceAll(w, `"`, `""`) + `"`
	}
	return strings.Join(words, " "), true
}

func searchLimit(limit int) int64 {
	switch {
	case limit <= 0:
		return defaultSearchLimit
	case limit > maxSearchLimit:
		return maxSearchLimit
	}
	return int64(limit)
}
