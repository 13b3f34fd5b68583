// Package worker runs the background pass that drains a session's queue.
//
// A worker is its own OS process, spawned detached by the stop hook after it
// won the session's reservation lock. It owns the session until it releases
// the lock on exit.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/purpose168/mnemo/internal/lock"
	"github.com/purpose168/mnemo/internal/marker"
	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
)

// maxPasses bounds the claim loop when hooks keep enqueueing while we drain.
const maxPasses = 16

// ErrNotDrained is returned by drain when messages are still arriving after
// maxPasses batches.
var ErrNotDrained = errors.New("queue not drained")

// Result 是一次处理的产出
type Result struct {
	// WrittenNotes 生成的笔记路径，写入完成标记
	WrittenNotes []string
}

// Processor turns claimed messages into knowledge. Returning an error
// releases the whole batch back to the queue.
type Processor interface {
	Process(ctx context.Context, sessionID string, msgs []queue.Message) (Result, error)
}

// Runner wires the stores a worker needs.
type Runner struct {
	Sessions  session.Service
	Queue     queue.Service
	Locks     lock.Store
	Processor Processor
	// ConfigDir 下的 completed/ 存放完成标记
	ConfigDir string
	Logger    *slog.Logger

	now func() time.Time
	pid int
}

// Report 汇总一次运行
type Report struct {
	RunID        string
	Processed    int
	WrittenNotes []string
	Status       session.Status
	// Pending 锁释放后队列中仍有消息，需要再启动一个 worker
	Pending bool
}

// Run drains the session's queue and records the outcome. The reservation
// lock is released on every path.
func (r *Runner) Run(ctx context.Context, sessionID string) (rep Report, err error) {
	rep.RunID = uuid.NewString()
	logger := r.logger().With("session_id", sessionID, "run_id", rep.RunID)
	// 清理工作不受调用方取消影响
	cleanupCtx := context.WithoutCancel(ctx)

	defer func() {
		if relErr := r.Locks.Release(sessionID); relErr != nil {
			logger.Warn("Failed to release lock", "error", relErr)
		}
		// 释放锁之前到达的 stop 看到锁被占用，不会启动 worker
		pending, pErr := r.Queue.HasPending(cleanupCtx, sessionID)
		if pErr != nil {
			logger.Warn("Failed to check pending messages", "error", pErr)
			return
		}
		if pending {
			rep.Pending = true
			logger.Info("Messages left after lock release")
		}
	}()

	if err := r.Locks.Promote(sessionID, r.processID()); err != nil {
		logger.Warn("Failed to promote lock", "error", err)
	}

	if _, err := r.Sessions.Get(ctx, sessionID); err != nil {
		return rep, fmt.Errorf("load session: %w", err)
	}
	if err := r.Sessions.MarkProcessingStarted(ctx, sessionID); err != nil {
		return rep, err
	}
	defer func() {
		if clrErr := r.Sessions.ClearProcessing(cleanupCtx, sessionID); clrErr != nil {
			logger.Warn("Failed to clear processing marker", "error", clrErr)
		}
	}()

	logger.Info("Worker started")
	start := r.clock()

	procErr := r.drain(ctx, sessionID, logger, &rep)
	if errors.Is(procErr, ErrNotDrained) {
		// 会话保持原状态，由下一个 worker 接着处理
		logger.Warn("Queue still has messages after max passes", "passes", maxPasses, "processed", rep.Processed)
		return rep, nil
	}

	rep.Status = session.StatusCompleted
	if procErr != nil {
		rep.Status = session.StatusFailed
		logger.Error("Worker failed", "error", procErr)
	}
	if err := r.Sessions.UpdateStatus(cleanupCtx, sessionID, rep.Status); err != nil {
		return rep, errors.Join(procErr, err)
	}

	m := marker.Marker{
		CompletedAt:  r.clock(),
		WrittenNotes: rep.WrittenNotes,
		Success:      procErr == nil,
		RunID:        rep.RunID,
	}
	if procErr != nil {
		m.ErrorMessage = procErr.Error()
	}
	if err := marker.Write(r.ConfigDir, sessionID, m); err != nil {
		logger.Warn("Failed to write completion marker", "error", err)
	}

	logger.Info("Worker finished",
		"status", rep.Status,
		"processed", rep.Processed,
		"elapsed", r.clock().Sub(start),
	)
	return rep, procErr
}

func (r *Runner) drain(ctx context.Context, sessionID string, logger *slog.Logger, rep *Report) error {
	for range maxPasses {
		msgs, err := r.Queue.ClaimAll(ctx, sessionID)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			return nil
		}
		ids := make([]int64, len(msgs))
		for i, m := range msgs {
			ids[i] = m.ID
		}

		res, err := r.process(ctx, sessionID, msgs)
		if err != nil {
			if relErr := r.Queue.Release(context.WithoutCancel(ctx), ids); relErr != nil {
				logger.Error("Failed to release messages", "error", relErr, "count", len(ids))
			}
			return err
		}
		if err := r.Queue.Delete(ctx, ids); err != nil {
			// 未删除的消息会在认领超时后重新投递
			return err
		}
		rep.Processed += len(msgs)
		rep.WrittenNotes = append(rep.WrittenNotes, res.WrittenNotes...)
		logger.Debug("Processed batch", "count", len(msgs))
	}
	return ErrNotDrained
}

// process 把 Processor 的 panic 转成错误，让这一批消息被释放而不是丢失
func (r *Runner) process(ctx context.Context, sessionID string, msgs []queue.Message) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processor panic: %v", p)
		}
	}()
	return r.Processor.Process(ctx, sessionID, msgs)
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger == nil {
		return slog.Default().With("component", "worker")
	}
	return r.Logger.With("component", "worker")
}

func (r *Runner) clock() time.Time {
	if r.now == nil {
		return time.Now()
	}
	return r.now()
}

func (r *Runner) processID() int {
	if r.pid == 0 {
		return os.Getpid()
	}
	return r.pid
}
