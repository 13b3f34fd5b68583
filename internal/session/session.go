// Package session 管理会话生命周期及其子记录（提示词、工具调用、文件读取、摘要、观察）。
package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/purpose168/mnemo/internal/db"
	"github.com/purpose168/mnemo/internal/pubsub"
)

// Status 会话状态
type Status string

const (
	StatusActive    Status = "active"    // 会话进行中
	StatusCompleted Status = "completed" // 正常结束
	StatusFailed    Status = "failed"    // 后台处理崩溃或被判定为孤儿
)

// Terminal 报告状态是否为结束状态
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Valid 报告状态是否合法
func (s Status) Valid() bool {
	return s == StatusActive || s.Terminal()
}

var (
	// ErrNotFound 会话不存在
	ErrNotFound = errors.New("session not found")
	// ErrAlreadyExists 会话 ID 已存在
	ErrAlreadyExists = errors.New("session already exists")
	// ErrInvalidStatus 未知的会话状态
	ErrInvalidStatus = errors.New("invalid session status")
)

// Session 表示一次会话
// CompletedAt 在 active 状态下为零值；ProcessingStartedAt 在没有后台处理时为零值。
type Session struct {
	ID                  string    `json:"session_id"`
	Project             string    `json:"project"`
	Status              Status    `json:"status"`
	StartedAt           time.Time `json:"started_at"`
	CompletedAt         time.Time `json:"completed_at,omitzero"`
	ProcessingStartedAt time.Time `json:"processing_started_at,omitzero"`
}

// Activity 会话子记录的数量统计
type Activity struct {
	Prompts      int64 `json:"prompts"`
	ToolUses     int64 `json:"tool_uses"`
	FileReads    int64 `json:"file_reads"`
	Observations int64 `json:"observations"`
	Pending      int64 `json:"pending"`
}

// Options 控制子记录的大小上限
type Options struct {
	// MaxToolOutputBytes 工具输出超过该长度会被截断
	MaxToolOutputBytes int
	// MaxFileContentBytes 文件读取内容超过该长度会被截断
	MaxFileContentBytes int
	// MaxReadsPerFile 每个会话中同一路径最多保留的读取记录数
	MaxReadsPerFile int
}

// DefaultOptions 返回默认的大小上限
func DefaultOptions() Options {
	return Options{
		MaxToolOutputBytes:  16 * 1024,
		MaxFileContentBytes: 64 * 1024,
		MaxReadsPerFile:     5,
	}
}

// Service 会话服务接口
type Service interface {
	pubsub.Subscriber[Session]

	// Create 创建 active 会话；ID 已存在时返回 ErrAlreadyExists
	Create(ctx context.Context, id, project string) (Session, error)
	// Get 获取会话；不存在时返回 ErrNotFound
	Get(ctx context.Context, id string) (Session, error)
	// List 按开始时间倒序列出最近的会话
	List(ctx context.Context, limit int) ([]Session, error)
	// UpdateStatus 设置会话状态；结束状态同时记录完成时间
	UpdateStatus(ctx context.Context, id string, status Status) error
	// Delete 删除会话及其全部子记录
	Delete(ctx context.Context, id string) error
	// Activity 统计会话子记录数量
	Activity(ctx context.Context, id string) (Activity, error)

	// MarkProcessingStarted 记录后台处理开始时间
	MarkProcessingStarted(ctx context.Context, id string) error
	// ClearProcessing 清除后台处理开始时间
	ClearProcessing(ctx context.Context, id string) error

	// OrphanSessions 返回开始时间早于 now-timeout 且仍为 active 的会话
	OrphanSessions(ctx context.Context, timeout time.Duration) ([]Session, error)
	// FailOrphans 将孤儿会话标记为 failed 并返回它们
	FailOrphans(ctx context.Context, timeout time.Duration) ([]Session, error)
	// StaleProcessingSessions 返回后台处理开始时间早于 now-timeout 的会话
	StaleProcessingSessions(ctx context.Context, timeout time.Duration) ([]Session, error)
	// ReleaseStaleProcessing 清除超时会话的处理标记并返回它们
	ReleaseStaleProcessing(ctx context.Context, timeout time.Duration) ([]Session, error)
	// CleanupOld 只保留最近结束的 retention 个会话，返回删除的数量
	CleanupOld(ctx context.Context, retention int) (int64, error)

	AddPrompt(ctx context.Context, sessionID, text string) (Prompt, error)
	AddToolUse(ctx context.Context, params ToolUseParams) (ToolUse, error)
	// AddFileRead 记录一次文件读取；内容与已有记录完全相同时跳过并返回 false
	AddFileRead(ctx context.Context, sessionID, path, content string) (FileRead, bool, error)
	AddSummary(ctx context.Context, summary Summary) (Summary, error)
	AddObservation(ctx context.Context, obs Observation) (Observation, error)

	ListPrompts(ctx context.Context, sessionID string) ([]Prompt, error)
	ListToolUses(ctx context.Context, sessionID string) ([]ToolUse, error)
	ListFileReads(ctx context.Context, sessionID string) ([]FileRead, error)
	ListSummaries(ctx context.Context, sessionID string) ([]Summary, error)
	ListObservations(ctx context.Context, sessionID string) ([]Observation, error)

	SearchPrompts(ctx context.Context, query string, limit int) ([]Hit[Prompt], error)
	SearchToolUses(ctx context.Context, query string, limit int) ([]Hit[ToolUse], error)
	SearchObservations(ctx context.Context, query string, limit int) ([]Hit[Observation], error)
}

type service struct {
	*pubsub.Broker[Session]
	db     *sql.DB
	q      *db.Queries
	logger *slog.Logger
	opts   Options
	now    func() time.Time
}

// NewService 创建会话服务
func NewService(q *db.Queries, conn *sql.DB, logger *slog.Logger, opts Options) Service {
	return newService(q, conn, logger, opts)
}

func newService(q *db.Queries, conn *sql.DB, logger *slog.Logger, opts Options) *service {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.MaxToolOutputBytes <= 0 {
		opts.MaxToolOutputBytes = def.MaxToolOutputBytes
	}
	if opts.MaxFileContentBytes <= 0 {
		opts.MaxFileContentBytes = def.MaxFileContentBytes
	}
	if opts.MaxReadsPerFile <= 0 {
		opts.MaxReadsPerFile = def.MaxReadsPerFile
	}
	return &service{
		Broker: pubsub.NewBroker[Session](),
		db:     conn,
		q:      q,
		logger: logger.With("component", "session"),
		opts:   opts,
		now:    time.Now,
	}
}

func (s *service) Create(ctx context.Context, id, project string) (Session, error) {
	now := s.now()
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.Session, error) {
		return s.q.CreateSession(ctx, db.CreateSessionParams{
			SessionID:      id,
			Project:        project,
			StartedAt:      formatTime(now),
			StartedAtEpoch: now.UnixMilli(),
		})
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Session{}, fmt.Errorf("%w: %s", ErrAlreadyExists, id)
		}
		return Session{}, fmt.Errorf("创建会话失败: %w", err)
	}
	sess := fromDBSession(row)
	s.Publish(pubsub.CreatedEvent, sess)
	return sess, nil
}

func (s *service) Get(ctx context.Context, id string) (Session, error) {
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.Session, error) {
		return s.q.GetSession(ctx, id)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("获取会话失败: %w", err)
	}
	return fromDBSession(row), nil
}

func (s *service) List(ctx context.Context, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.Session, error) {
		return s.q.ListSessions(ctx, int64(limit))
	})
	if err != nil {
		return nil, fmt.Errorf("列出会话失败: %w", err)
	}
	return fromDBSessions(rows), nil
}

func (s *service) UpdateStatus(ctx context.Context, id string, status Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	params := db.UpdateSessionStatusParams{
		Status:    string(status),
		SessionID: id,
	}
	// completed_at 为空当且仅当 status = active
	if status.Terminal() {
		now := s.now()
		params.CompletedAt = sql.NullString{String: formatTime(now), Valid: true}
		params.CompletedAtEpoch = sql.NullInt64{Int64: now.UnixMilli(), Valid: true}
	}
	n, err := db.RetryResult(ctx, func(ctx context.Context) (int64, error) {
		return s.q.UpdateSessionStatus(ctx, params)
	})
	if err != nil {
		return fmt.Errorf("更新会话状态失败: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	s.logger.Debug("会话状态已更新", "session_id", id, "status", status)
	if sess, err := s.Get(ctx, id); err == nil {
		s.Publish(pubsub.UpdatedEvent, sess)
	}
	return nil
}

func (s *service) Delete(ctx context.Context, id string) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := db.Retry(ctx, func(ctx context.Context) error {
		return s.q.DeleteSession(ctx, id)
	}); err != nil {
		return fmt.Errorf("删除会话失败: %w", err)
	}
	s.Publish(pubsub.DeletedEvent, sess)
	return nil
}

func (s *service) Activity(ctx context.Context, id string) (Activity, error) {
	row, err := db.RetryResult(ctx, func(ctx context.Context) (db.CountSessionActivityRow, error) {
		return s.q.CountSessionActivity(ctx, id)
	})
	if err != nil {
		return Activity{}, fmt.Errorf("统计会话记录失败: %w", err)
	}
	return Activity(row), nil
}

func (s *service) MarkProcessingStarted(ctx context.Context, id string) error {
	now := s.now()
	return db.Retry(ctx, func(ctx context.Context) error {
		return s.q.SetProcessingStarted(ctx, db.SetProcessingStartedParams{
			ProcessingStartedAt: now.UnixMilli(),
			SessionID:           id,
		})
	})
}

func (s *service) ClearProcessing(ctx context.Context, id string) error {
	return db.Retry(ctx, func(ctx context.Context) error {
		return s.q.ClearProcessingStarted(ctx, id)
	})
}

func (s *service) OrphanSessions(ctx context.Context, timeout time.Duration) ([]Session, error) {
	cutoff := s.now().Add(-timeout).UnixMilli()
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.Session, error) {
		return s.q.ListOrphanSessions(ctx, cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("查询孤儿会话失败: %w", err)
	}
	return fromDBSessions(rows), nil
}

func (s *service) FailOrphans(ctx context.Context, timeout time.Duration) ([]Session, error) {
	orphans, err := s.OrphanSessions(ctx, timeout)
	if err != nil {
		return nil, err
	}
	failed := make([]Session, 0, len(orphans))
	for _, o := range orphans {
		if err := s.UpdateStatus(ctx, o.ID, StatusFailed); err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return failed, err
		}
		s.logger.Info("孤儿会话已标记为失败", "session_id", o.ID, "started_at", o.StartedAt)
		o.Status = StatusFailed
		failed = append(failed, o)
	}
	return failed, nil
}

func (s *service) StaleProcessingSessions(ctx context.Context, timeout time.Duration) ([]Session, error) {
	cutoff := s.now().Add(-timeout).UnixMilli()
	rows, err := db.RetryResult(ctx, func(ctx context.Context) ([]db.Session, error) {
		return s.q.ListStaleProcessingSessions(ctx, cutoff)
	})
	if err != nil {
		return nil, fmt.Errorf("查询处理超时的会话失败: %w", err)
	}
	return fromDBSessions(rows), nil
}

func (s *service) ReleaseStaleProcessing(ctx context.Context, timeout time.Duration) ([]Session, error) {
	stale, err := s.StaleProcessingSessions(ctx, timeout)
	if err != nil {
		return nil, err
	}
	for i, st := range stale {
		if err := s.ClearProcessing(ctx, st.ID); err != nil {
			return stale[:i], fmt.Errorf("释放会话 %s 失败: %w", st.ID, err)
		}
		s.logger.Info("已释放处理超时的会话", "session_id", st.ID, "processing_started_at", st.ProcessingStartedAt)
		stale[i].ProcessingStartedAt = time.Time{}
	}
	return stale, nil
}

func (s *service) CleanupOld(ctx context.Context, retention int) (int64, error) {
	if retention < 0 {
		retention = 0
	}
	n, err := db.RetryResult(ctx, func(ctx context.Context) (int64, error) {
		return s.q.DeleteOldSessions(ctx, int64(retention))
	})
	if err != nil {
		return 0, fmt.Errorf("清理旧会话失败: %w", err)
	}
	if n > 0 {
		s.logger.Info("已清理旧会话", "count", n, "retention", retention)
	}
	return n, nil
}

func fromDBSession(row db.Session) Session {
	sess := Session{
		ID:        row.SessionID,
		Project:   row.Project,
		Status:    Status(row.Status),
		StartedAt: fromEpoch(row.StartedAtEpoch),
	}
	if row.CompletedAtEpoch.Valid {
		sess.CompletedAt = fromEpoch(row.CompletedAtEpoch.Int64)
	}
	if row.ProcessingStartedAt.Valid {
		sess.ProcessingStartedAt = fromEpoch(row.ProcessingStartedAt.Int64)
	}
	return sess
}

func fromDBSessions(rows []db.Session) []Session {
	out := make([]Session, len(rows))
	for i, row := range rows {
		out[i] = fromDBSession(row)
	}
	return out
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func fromEpoch(ms int64) time.Time {
	return time.UnixMilli(ms)
}

func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func isForeignKeyViolation(err error) bool {
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}
