// 本文件由 sqlc 自动生成。请勿手动编辑。
// 版本信息:
//   sqlc v1.30.0

package db

import (
	"context"
)

// Querier 定义了数据库查询接口，包含所有数据库操作方法
type Querier interface {
	// ClaimPendingMessage 认领一条仍未被认领的消息，返回受影响的行数
	ClaimPendingMessage(ctx context.Context, arg ClaimPendingMessageParams) (int64, error)
	// ClearProcessingStarted 清除会话的后台处理开始时间
	ClearProcessingStarted(ctx context.Context, sessionID string) error
	// CountPendingMessages 统计会话中未认领的消息数量
	CountPendingMessages(ctx context.Context, sessionID string) (int64, error)
	// CountSessionActivity 统计会话各子表的行数
	CountSessionActivity(ctx context.Context, sessionID string) (CountSessionActivityRow, error)
	CreateFileRead(ctx context.Context, arg CreateFileReadParams) (FileRead, error)
	CreateObservation(ctx context.Context, arg CreateObservationParams) (Observation, error)
	CreatePendingMessage(ctx context.Context, arg CreatePendingMessageParams) (PendingMessage, error)
	// CreateSession 创建新会话记录
	CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error)
	CreateSessionSummary(ctx context.Context, arg CreateSessionSummaryParams) (SessionSummary, error)
	CreateToolUse(ctx context.Context, arg CreateToolUseParams) (ToolUse, error)
	CreateUserPrompt(ctx context.Context, arg CreateUserPromptParams) (UserPrompt, error)
	// DeleteOldSessions 删除超出保留数量的已结束会话
	DeleteOldSessions(ctx context.Context, retention int64) (int64, error)
	DeletePendingMessage(ctx context.Context, id int64) (int64, error)
	// DeleteSession 根据 session_id 删除会话记录
	DeleteSession(ctx context.Context, sessionID string) error
	FileReadExists(ctx context.Context, arg FileReadExistsParams) (bool, error)
	// GetSession 根据 session_id 获取会话记录
	GetSession(ctx context.Context, sessionID string) (Session, error)
	ListFileReadsBySession(ctx context.Context, sessionID string) ([]FileRead, error)
	ListObservationsBySession(ctx context.Context, sessionID string) ([]Observation, error)
	// ListOrphanSessions 列出超时仍为 active 的会话
	ListOrphanSessions(ctx context.Context, cutoff int64) ([]Session, error)
	ListSessionSummaries(ctx context.Context, sessionID string) ([]SessionSummary, error)
	ListSessions(ctx context.Context, limit int64) ([]Session, error)
	// ListStaleProcessingSessions 列出后台处理超时的会话
	ListStaleProcessingSessions(ctx context.Context, cutoff int64) ([]Session, error)
	ListToolUsesBySession(ctx context.Context, sessionID string) ([]ToolUse, error)
	// ListUnclaimedMessages 按创建顺序列出未认领的消息
	ListUnclaimedMessages(ctx context.Context, arg ListUnclaimedMessagesParams) ([]PendingMessage, error)
	ListUserPromptsBySession(ctx context.Context, sessionID string) ([]UserPrompt, error)
	PruneFileReads(ctx context.Context, arg PruneFileReadsParams) (int64, error)
	ReleasePendingMessage(ctx context.Context, id int64) (int64, error)
	// ReleaseStaleClaims 释放过期的认领
	ReleaseStaleClaims(ctx context.Context, cutoff int64) (int64, error)
	SearchObservations(ctx context.Context, arg SearchObservationsParams) ([]SearchObservationsRow, error)
	SearchToolUses(ctx context.Context, arg SearchToolUsesParams) ([]SearchToolUsesRow, error)
	SearchUserPrompts(ctx context.Context, arg SearchUserPromptsParams) ([]SearchUserPromptsRow, error)
	SetProcessingStarted(ctx context.Context, arg SetProcessingStartedParams) error
	UpdateSessionStatus(ctx context.Context, arg UpdateSessionStatusParams) (int64, error)
}

var _ Querier = (*Queries)(nil)
