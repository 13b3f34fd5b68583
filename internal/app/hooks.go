package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/purpose168/mnemo/internal/worker"
)

// StopReason 写入 summary_request 的原因
const StopReason = "stop"

// SessionStart 清理过期状态后返回会话，不存在时创建。
// 重复调用是安全的：已有会话原样返回。
func (app *App) SessionStart(ctx context.Context, sessionID, project string) (session.Session, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return session.Session{}, err
	}
	if app.Degraded() {
		sess, err := app.Fallback.GetSession(sessionID)
		if errors.Is(err, session.ErrNotFound) {
			return app.Fallback.CreateSession(sessionID, project)
		}
		return sess, err
	}

	// 清理失败不影响会话开始
	if _, err := app.Sweep(ctx); err != nil {
		app.logger.Warn("清理过期状态失败", "error", err)
	}
	if _, err := app.RecoverFallback(ctx); err != nil {
		app.logger.Warn("导入降级数据失败", "error", err)
	}

	sess, err := app.Sessions.Get(ctx, sessionID)
	if !errors.Is(err, session.ErrNotFound) {
		return sess, err
	}
	sess, err = app.Sessions.Create(ctx, sessionID, project)
	if errors.Is(err, session.ErrAlreadyExists) {
		// 另一个进程刚刚创建了它
		return app.Sessions.Get(ctx, sessionID)
	}
	return sess, err
}

// RecordPrompt 保存提示词并加入队列
func (app *App) RecordPrompt(ctx context.Context, sessionID, text string) (session.Prompt, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return session.Prompt{}, err
	}
	if app.Degraded() {
		p, err := app.Fallback.AddPrompt(sessionID, text)
		if err != nil {
			return p, err
		}
		_, err = app.Fallback.Enqueue(sessionID, queue.PromptPayload{PromptNumber: p.Number, PromptText: p.Text})
		return p, err
	}

	p, err := app.Sessions.AddPrompt(ctx, sessionID, text)
	if err != nil {
		return p, err
	}
	_, err = app.Queue.Enqueue(ctx, sessionID, queue.PromptPayload{PromptNumber: p.Number, PromptText: p.Text})
	return p, err
}

// RecordToolUse 保存工具调用并加入队列。队列中的输出与落库的一样经过截断和脱敏。
func (app *App) RecordToolUse(ctx context.Context, params session.ToolUseParams) (session.ToolUse, error) {
	if err := ValidateSessionID(params.SessionID); err != nil {
		return session.ToolUse{}, err
	}
	if app.Degraded() {
		tu, err := app.Fallback.AddToolUse(params)
		if err != nil {
			return tu, err
		}
		_, err = app.Fallback.Enqueue(params.SessionID, toolUsePayload(tu))
		return tu, err
	}

	tu, err := app.Sessions.AddToolUse(ctx, params)
	if err != nil {
		return tu, err
	}
	_, err = app.Queue.Enqueue(ctx, params.SessionID, toolUsePayload(tu))
	return tu, err
}

func toolUsePayload(tu session.ToolUse) queue.ToolUsePayload {
	return queue.ToolUsePayload{
		ToolName:   tu.ToolName,
		ToolInput:  tu.Input,
		ToolOutput: tu.Output,
		ToolUseID:  tu.ID,
	}
}

// RecordFileRead 保存一次文件读取。内容未变化时返回 false。
// 降级存储不记录文件读取。
func (app *App) RecordFileRead(ctx context.Context, sessionID, path, content string) (bool, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return false, err
	}
	if app.Degraded() {
		app.logger.Debug("降级模式下忽略文件读取", "session_id", sessionID, "path", path)
		return false, nil
	}
	_, inserted, err := app.Sessions.AddFileRead(ctx, sessionID, path, content)
	return inserted, err
}

// StopResult 描述 Stop 做了什么
type StopResult struct {
	// Enqueued 是否加入了 summary_request
	Enqueued bool
	// Spawned 是否启动了 worker
	Spawned bool
	// Completed 没有待处理消息，会话直接结束
	Completed bool
}

// Stop 在会话有活动时请求生成摘要，然后尝试占用会话锁并启动 worker。
// 锁已被占用说明已有 worker 负责该会话，它会处理新加入的消息。
func (app *App) Stop(ctx context.Context, sessionID, lastAssistantMessage string) (StopResult, error) {
	var res StopResult
	if err := ValidateSessionID(sessionID); err != nil {
		return res, err
	}
	req := queue.SummaryRequestPayload{LastAssistantMessage: lastAssistantMessage, Reason: StopReason}

	if app.Degraded() {
		// 没有数据库就无法处理，消息留在文件里等待导入
		if _, err := app.Fallback.Enqueue(sessionID, req); err != nil {
			return res, err
		}
		res.Enqueued = true
		return res, nil
	}

	act, err := app.Sessions.Activity(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if act.Prompts+act.ToolUses > 0 {
		if _, err := app.Queue.Enqueue(ctx, sessionID, req); err != nil {
			return res, err
		}
		res.Enqueued = true
	}

	pending, err := app.Queue.HasPending(ctx, sessionID)
	if err != nil {
		return res, err
	}
	if !pending {
		if err := app.Sessions.UpdateStatus(ctx, sessionID, session.StatusCompleted); err != nil {
			return res, err
		}
		res.Completed = true
		return res, nil
	}

	spawned, err := app.spawnWorker(ctx, sessionID)
	res.Spawned = spawned
	return res, err
}

// spawnWorker 占用会话锁并启动 worker。锁已被占用时返回 false, nil：
// 持有锁的 worker 会处理新加入的消息。
func (app *App) spawnWorker(ctx context.Context, sessionID string) (bool, error) {
	ok, err := app.Locks.Acquire(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("获取会话锁失败: %w", err)
	}
	if !ok {
		app.logger.Debug("会话锁已被占用，跳过启动 worker", "session_id", sessionID)
		return false, nil
	}
	if app.Spawner == nil {
		_ = app.Locks.Release(sessionID)
		return false, errors.New("未配置 worker 启动器")
	}
	if err := app.Spawner.Spawn(ctx, sessionID); err != nil {
		// 释放锁，下一次 stop 可以重试
		if relErr := app.Locks.Release(sessionID); relErr != nil {
			app.logger.Warn("释放会话锁失败", "session_id", sessionID, "error", relErr)
		}
		return false, fmt.Errorf("启动 worker 失败: %w", err)
	}
	return true, nil
}

// RunWorker 运行一次后台处理。成功结束后队列里仍有消息（锁释放前到达的 stop，
// 或一次没有处理完）时，重新占锁并启动下一个 worker。失败的运行不再重启，
// 等下一次 stop。
func (app *App) RunWorker(ctx context.Context, sessionID string, p worker.Processor) (worker.Report, error) {
	r, err := app.Worker(p)
	if err != nil {
		// 释放锁，恢复后下一次 stop 可以重新启动
		_ = app.Locks.Release(sessionID)
		return worker.Report{}, err
	}
	rep, err := r.Run(ctx, sessionID)
	if err != nil || !rep.Pending {
		return rep, err
	}
	if _, err := app.spawnWorker(context.WithoutCancel(ctx), sessionID); err != nil {
		app.logger.Warn("重新启动 worker 失败", "session_id", sessionID, "error", err)
	}
	return rep, nil
}
