// Package fallback 在数据库不可用时把会话数据写入每个会话一个的 JSON 文件。
//
// 每次修改都会读取整个文件、修改后整体写回；读取失败时不会覆盖原文件。
// 这里不提供查询能力，也不保证跨进程的原子性，只保证前台不会因为存储故障而阻塞。
package fallback

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/purpose168/mnemo/internal/fsext"
	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
)

const ext = ".json"

// Record 是一个会话文件的完整内容
type Record struct {
	Session  session.Session   `json:"session"`
	Prompts  []session.Prompt  `json:"prompts"`
	ToolUses []session.ToolUse `json:"tool_uses"`
	Messages []queue.Message   `json:"pending_messages"`
	NextID   int64             `json:"next_id"`
}

func (r *Record) nextID() int64 {
	r.NextID++
	return r.NextID
}

// Store 基于文件的降级存储
type Store struct {
	dir           string
	maxToolOutput int
	logger        *slog.Logger
	now           func() time.Time

	// 只串行化本进程内的读写
	mu sync.Mutex
}

// New 返回保存在 dir 下的降级存储
func New(dir string, maxToolOutputBytes int, logger *slog.Logger) *Store {
	if maxToolOutputBytes <= 0 {
		maxToolOutputBytes = session.DefaultOptions().MaxToolOutputBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		dir:           dir,
		maxToolOutput: maxToolOutputBytes,
		logger:        logger.With("component", "fallback"),
		now:           time.Now,
	}
}

// Dir returns the directory holding the session files.
func (s *Store) Dir() string { return s.dir }

func (s *Store) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+ext)
}

func (s *Store) load(sessionID string) (Record, error) {
	data, err := os.ReadFile(s.path(sessionID))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, fmt.Errorf("%w: %s", session.ErrNotFound, sessionID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("读取降级文件失败: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("解析降级文件 %s 失败: %w", sessionID, err)
	}
	return rec, nil
}

func (s *Store) save(rec Record) error {
	if err := fsext.EnsurePrivateDir(s.dir); err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	if err := fsext.WriteFileAtomic(s.path(rec.Session.ID), data); err != nil {
		return fmt.Errorf("写入降级文件失败: %w", err)
	}
	return nil
}

// update 读取-修改-写回。读取失败时直接返回，不覆盖文件。
// 文件不存在时按 active 会话新建：会话可能在数据库故障之前就已开始，
// 它的 session-start 写进了数据库而不是这里。
func (s *Store) update(sessionID string, fn func(*Record) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(sessionID)
	if errors.Is(err, session.ErrNotFound) {
		s.logger.Info("降级文件不存在，按进行中的会话新建", "session_id", sessionID)
		rec = Record{Session: session.Session{
			ID:        sessionID,
			Status:    session.StatusActive,
			StartedAt: s.now(),
		}}
	} else if err != nil {
		return err
	}
	if err := fn(&rec); err != nil {
		return err
	}
	return s.save(rec)
}

// CreateSession 创建 active 会话；文件已存在时返回 session.ErrAlreadyExists
func (s *Store) CreateSession(sessionID, project string) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.load(sessionID)
	if err == nil {
		return session.Session{}, fmt.Errorf("%w: %s", session.ErrAlreadyExists, sessionID)
	}
	if !errors.Is(err, session.ErrNotFound) {
		return session.Session{}, err
	}

	sess := session.Session{
		ID:        sessionID,
		Project:   project,
		Status:    session.StatusActive,
		StartedAt: s.now(),
	}
	if err := s.save(Record{Session: sess}); err != nil {
		return session.Session{}, err
	}
	return sess, nil
}

func (s *Store) GetSession(sessionID string) (session.Session, error) {
	rec, err := s.Read(sessionID)
	if err != nil {
		return session.Session{}, err
	}
	return rec.Session, nil
}

// Read returns the whole record of a session.
func (s *Store) Read(sessionID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(sessionID)
}

// UpdateStatus 与数据库一致：结束状态记录完成时间，active 清除完成时间
func (s *Store) UpdateStatus(sessionID string, status session.Status) error {
	if !status.Valid() {
		return fmt.Errorf("%w: %q", session.ErrInvalidStatus, status)
	}
	return s.update(sessionID, func(rec *Record) error {
		rec.Session.Status = status
		if status.Terminal() {
			rec.Session.CompletedAt = s.now()
		} else {
			rec.Session.CompletedAt = time.Time{}
		}
		return nil
	})
}

func (s *Store) AddPrompt(sessionID, text string) (session.Prompt, error) {
	var p session.Prompt
	err := s.update(sessionID, func(rec *Record) error {
		p = session.Prompt{
			ID:        rec.nextID(),
			SessionID: sessionID,
			Number:    int64(len(rec.Prompts)) + 1,
			Text:      session.Redact(text),
			CreatedAt: s.now(),
		}
		rec.Prompts = append(rec.Prompts, p)
		return nil
	})
	return p, err
}

func (s *Store) AddToolUse(p session.ToolUseParams) (session.ToolUse, error) {
	var tu session.ToolUse
	err := s.update(p.SessionID, func(rec *Record) error {
		tu = session.PrepareToolUse(p, s.maxToolOutput, s.now())
		tu.ID = rec.nextID()
		rec.ToolUses = append(rec.ToolUses, tu)
		return nil
	})
	return tu, err
}

// Enqueue 追加一条待处理消息
func (s *Store) Enqueue(sessionID string, payload queue.Payload) (queue.Message, error) {
	if payload == nil {
		return queue.Message{}, errors.New("payload 不能为空")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return queue.Message{}, err
	}
	var msg queue.Message
	err = s.update(sessionID, func(rec *Record) error {
		msg = queue.Message{
			ID:        rec.nextID(),
			SessionID: sessionID,
			Type:      payload.Type(),
			Payload:   string(raw),
			CreatedAt: s.now(),
		}
		rec.Messages = append(rec.Messages, msg)
		return nil
	})
	return msg, err
}

// Pending 按创建顺序返回待处理消息
func (s *Store) Pending(sessionID string) ([]queue.Message, error) {
	rec, err := s.Read(sessionID)
	if err != nil {
		return nil, err
	}
	return slices.Clone(rec.Messages), nil
}

func (s *Store) PendingCount(sessionID string) (int, error) {
	rec, err := s.Read(sessionID)
	if err != nil {
		return 0, err
	}
	return len(rec.Messages), nil
}

// Remove 删除会话文件；文件不存在不算错误
func (s *Store) Remove(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// List 返回所有能解析的会话，按开始时间排序。无法解析的文件会被跳过。
func (s *Store) List() ([]session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []session.Session
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ext)
		rec, err := s.load(id)
		if err != nil {
			s.logger.Warn("跳过无法读取的降级文件", "session_id", id, "error", err)
			continue
		}
		out = append(out, rec.Session)
	}
	slices.SortFunc(out, func(a, b session.Session) int {
		return a.StartedAt.Compare(b.StartedAt)
	})
	return out, nil
}
