package session

import (
	"context"
	"fmt"
	"time"

	"github.com/purpose168/mnemo/internal/db"
)

// Prompt 用户提示词
type Prompt struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Number    int64     `json:"prompt_number"`
	Text      string    `json:"prompt_text"`
	CreatedAt time.Time `json:"created_at"`
}

// ToolUseParams 记录一次工具调用所需的参数
type ToolUseParams struct {
	SessionID string
	ToolName  string
	Input     string
	Output    string
}

// ToolUse 工具调用记录
// OutputHash 是截断和脱敏之前原始输出的哈希
type ToolUse struct {
	ID              int64     `json:"id"`
	SessionID       string    `json:"session_id"`
	ToolName        string    `json:"tool_name"`
	Input           string    `json:"tool_input"`
	Output          string    `json:"tool_output"`
	OutputTruncated bool      `json:"tool_output_truncated"`
	OutputRedacted  bool      `json:"tool_output_redacted"`
	OutputHash      string    `json:"tool_output_hash"`
	CreatedAt       time.Time `json:"created_at"`
}

// FileRead 文件读取记录
type FileRead struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	Path        string    `json:"file_path"`
	ContentHash string    `json:"content_hash"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Summary 会话摘要
type Summary struct {
	ID           int64     `json:"id"`
	SessionID    string    `json:"session_id"`
	Request      string    `json:"request"`
	Investigated string    `json:"investigated"`
	Learned      string    `json:"learned"`
	Completed    string    `json:"completed"`
	NextSteps    string    `json:"next_steps"`
	Notes        string    `json:"notes"`
	CreatedAt    time.Time `json:"created_at"`
}

// Observation 后台处理提炼出的一条知识
type Observation struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

func (s *service) AddPrompt(ctx context.Context, sessionID, text string) (Prompt, error) {
	now := s.now()
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.UserPrompt, error) {
		return s.q.CreateUserPrompt(ctx, db.CreateUserPromptParams{
			SessionID:      sessionID,
			PromptText:     redact(text),
			CreatedAt:      formatTime(now),
			CreatedAtEpoch: now.UnixMilli(),
		})
	})
	if err != nil {
		return Prompt{}, s.childErr("记录提示词失败", sessionID, err)
	}
	return fromDBPrompt(row), nil
}

func (s *service) AddToolUse(ctx context.Context, p ToolUseParams) (ToolUse, error) {
	now := s.now()
	out := prepareOutput(p.Output, s.opts.MaxToolOutputBytes)
	input, _ := truncate(redact(p.Input), s.opts.MaxToolOutputBytes)

	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.ToolUse, error) {
		return s.q.CreateToolUse(ctx, db.CreateToolUseParams{
			SessionID:           p.SessionID,
			ToolName:            p.ToolName,
			ToolInput:           input,
			ToolOutput:          out.text,
			ToolOutputTruncated: boolToInt(out.truncated),
			ToolOutputHash:      out.hash,
			ToolOutputRedacted:  boolToInt(out.redacted),
			CreatedAt:           formatTime(now),
			CreatedAtEpoch:      now.UnixMilli(),
		})
	})
	if err != nil {
		return ToolUse{}, s.childErr("记录工具调用失败", p.SessionID, err)
	}
	if out.truncated {
		s.logger.Debug("工具输出已截断", "session_id", p.SessionID, "tool", p.ToolName, "size", len(p.Output))
	}
	return fromDBToolUse(row), nil
}

func (s *service) AddFileRead(ctx context.Context, sessionID, path, content string) (FileRead, bool, error) {
	now := s.now()
	hash := contentHash(content)
	stored, _ := truncate(content, s.opts.MaxFileContentBytes)

	var (
		row     db.FileRead
		skipped bool
	)
	// 去重、插入与裁剪在同一个事务中完成
	err := db.Retry(ctx, func(ctx context.Context) error {
		skipped = false
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("开启事务失败: %w", err)
		}
		defer tx.Rollback() //nolint:errcheck
		qtx := s.q.WithTx(tx)

		exists, err := qtx.FileReadExists(ctx, db.FileReadExistsParams{
			SessionID:   sessionID,
			FilePath:    path,
			ContentHash: hash,
		})
		if err != nil {
			return err
		}
		if exists {
			skipped = true
			return nil
		}

		row, err = qtx.CreateFileRead(ctx, db.CreateFileReadParams{
			SessionID:      sessionID,
			FilePath:       path,
			ContentHash:    hash,
			Content:        stored,
			CreatedAt:      formatTime(now),
			CreatedAtEpoch: now.UnixMilli(),
		})
		if err != nil {
			return err
		}
		if _, err := qtx.PruneFileReads(ctx, db.PruneFileReadsParams{
			SessionID: sessionID,
			FilePath:  path,
			Keep:      int64(s.opts.MaxReadsPerFile),
		}); err != nil {
			return err
		}
		return tx.Commit()
	})
	if err != nil {
		return FileRead{}, false, s.childErr("记录文件读取失败", sessionID, err)
	}
	if skipped {
		s.logger.Debug("跳过重复的文件读取", "session_id", sessionID, "path", path)
		return FileRead{}, false, nil
	}
	return fromDBFileRead(row), true, nil
}

func (s *service) AddSummary(ctx context.Context, sum Summary) (Summary, error) {
	now := s.now()
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.SessionSummary, error) {
		return s.q.CreateSessionSummary(ctx, db.CreateSessionSummaryParams{
			SessionID:      sum.SessionID,
			Request:        sum.Request,
			Investigated:   sum.Investigated,
			Learned:        sum.Learned,
			Completed:      sum.Completed,
			NextSteps:      sum.NextSteps,
			Notes:          sum.Notes,
			CreatedAt:      formatTime(now),
			CreatedAtEpoch: now.UnixMilli(),
		})
	})
	if err != nil {
		return Summary{}, s.childErr("记录会话摘要失败", sum.SessionID, err)
	}
	return fromDBSummary(row), nil
}

func (s *service) AddObservation(ctx context.Context, obs Observation) (Observation, error) {
	now := s.now()
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.Observation, error) {
		return s.q.CreateObservation(ctx, db.CreateObservationParams{
			SessionID:      obs.SessionID,
			Type:           obs.Type,
			Title:          obs.Title,
			Content:        obs.Content,
			CreatedAt:      formatTime(now),
			CreatedAtEpoch: now.UnixMilli(),
		})
	})
	if err != nil {
		return Observation{}, s.childErr("记录观察失败", obs.SessionID, err)
	}
	return fromDBObservation(row), nil
}

func (s *service) ListPrompts(ctx context.Context, sessionID string) ([]Prompt, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.UserPrompt, error) {
		return s.q.ListUserPromptsBySession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, fromDBPrompt), nil
}

func (s *service) ListToolUses(ctx context.Context, sessionID string) ([]ToolUse, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.ToolUse, error) {
		return s.q.ListToolUsesBySession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, fromDBToolUse), nil
}

func (s *service) ListFileReads(ctx context.Context, sessionID string) ([]FileRead, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.FileRead, error) {
		return s.q.ListFileReadsBySession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, fromDBFileRead), nil
}

func (s *service) ListSummaries(ctx context.Context, sessionID string) ([]Summary, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.SessionSummary, error) {
		return s.q.ListSessionSummaries(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, fromDBSummary), nil
}

func (s *service) ListObservations(ctx context.Context, sessionID string) ([]Observation, error) {
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.Observation, error) {
		return s.q.ListObservationsBySession(ctx, sessionID)
	})
	if err != nil {
		return nil, err
	}
	return mapRows(rows, fromDBObservation), nil
}

// childErr 将外键约束失败转换为 ErrNotFound
func (s *service) childErr(msg, sessionID string, err error) error {
	if isForeignKeyViolation(err) {
		return fmt.Errorf("%s: %w: %s", msg, ErrNotFound, sessionID)
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func mapRows[R, T any](rows []R, fn func(R) T) []T {
	out := make([]T, len(rows))
	for i, r := range rows {
		out[i] = fn(r)
	}
	return out
}

func fromDBPrompt(row db.UserPrompt) Prompt {
	return Prompt{
		ID:        row.ID,
		SessionID: row.SessionID,
		Number:    row.PromptNumber,
		Text:      row.PromptText,
		CreatedAt: fromEpoch(row.CreatedAtEpoch),
	}
}

func fromDBToolUse(row db.ToolUse) ToolUse {
	return ToolUse{
		ID:              row.ID,
		SessionID:       row.SessionID,
		ToolName:        row.ToolName,
		Input:           row.ToolInput,
		Output:          row.ToolOutput,
		OutputTruncated: row.ToolOutputTruncated != 0,
		OutputRedacted:  row.ToolOutputRedacted != 0,
		OutputHash:      row.ToolOutputHash,
		CreatedAt:       fromEpoch(row.CreatedAtEpoch),
	}
}

func fromDBFileRead(row db.FileRead) FileRead {
	return FileRead{
		ID:          row.ID,
		SessionID:   row.SessionID,
		Path:        row.FilePath,
		ContentHash: row.ContentHash,
		Content:     row.Content,
		CreatedAt:   fromEpoch(row.CreatedAtEpoch),
	}
}

func fromDBSummary(row db.SessionSummary) Summary {
	return Summary{
		ID:           row.ID,
		SessionID:    row.SessionID,
		Request:      row.Request,
		Investigated: row.Investigated,
		Learned:      row.Learned,
		Completed:    row.Completed,
		NextSteps:    row.NextSteps,
		Notes:        row.Notes,
		CreatedAt:    fromEpoch(row.CreatedAtEpoch),
	}
}

func fromDBObservation(row db.Observation) Observation {
	return Observation{
		ID:        row.ID,
		SessionID: row.SessionID,
		Type:      row.Type,
		Title:     row.Title,
		Content:   row.Content,
		CreatedAt: fromEpoch(row.CreatedAtEpoch),
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
