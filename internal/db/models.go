// 由 sqlc 自动生成的代码。请勿手动编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"database/sql"
)

// FileRead 表示一次文件读取记录
type FileRead struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	FilePath       string `json:"file_path"`
	ContentHash    string `json:"content_hash"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// Observation 表示后台处理得到的一条结构化知识
type Observation struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}

// PendingMessage 表示待后台 worker 处理的一条消息
// ClaimedAtEpoch 为空表示未被认领
type PendingMessage struct {
	ID             int64          `json:"id"`
	SessionID      string         `json:"session_id"`
	MessageType    string         `json:"message_type"`
	Payload        string         `json:"payload"`
	CreatedAt      string         `json:"created_at"`
	CreatedAtEpoch int64          `json:"created_at_epoch"`
	ClaimedAt      sql.NullString `json:"claimed_at"`
	ClaimedAtEpoch sql.NullInt64  `json:"claimed_at_epoch"`
}

// Session 表示一次会话记录
type Session struct {
	ID                  int64          `json:"id"`
	SessionID           string         `json:"session_id"`
	Project             string         `json:"project"`
	StartedAt           string         `json:"started_at"`
	StartedAtEpoch      int64          `json:"started_at_epoch"`
	CompletedAt         sql.NullString `json:"completed_at"`
	CompletedAtEpoch    sql.NullInt64  `json:"completed_at_epoch"`
	Status              string         `json:"status"`
	ProcessingStartedAt sql.NullInt64  `json:"processing_started_at"`
}

// SessionSummary 表示会话摘要
type SessionSummary struct {
	ID             int64  `json:"id"`
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

// ToolUse 表示一次工具调用
// ToolOutputHash 是截断前输出内容的哈希
type ToolUse struct {
	ID                  int64  `json:"id"`
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

// UserPrompt 表示用户提交的一条提示词
type UserPrompt struct {
	ID             int64  `json:"id"`
	SessionID      string `json:"session_id"`
	PromptNumber   int64  `json:"prompt_number"`
	PromptText     string `json:"prompt_text"`
	CreatedAt      string `json:"created_at"`
	CreatedAtEpoch int64  `json:"created_at_epoch"`
}
