package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/purpose168/mnemo/internal/fallback"
	"github.com/purpose168/mnemo/internal/session"
)

// SweepReport 汇总一次清理
type SweepReport struct {
	Orphaned        int
	StaleProcessing int
	ReleasedClaims  int64
	StaleLocks      int
	Deleted         int64
}

// Sweep 清理崩溃或被遗弃留下的状态：
// 超时的 active 会话标记为 failed，卡住的处理标记被清除，
// 超时的认领回到队列，过期锁被删除，超出保留数量的已结束会话被删除。
// 每一步独立执行，错误合并返回。
func (app *App) Sweep(ctx context.Context) (SweepReport, error) {
	var rep SweepReport
	if app.Degraded() {
		n, err := app.Locks.CleanupStale(app.config.Lock.MaxAge.Std())
		rep.StaleLocks = n
		return rep, err
	}

	var errs []error
	orphans, err := app.Sessions.FailOrphans(ctx, app.config.OrphanTimeout.Std())
	if err != nil {
		errs = append(errs, fmt.Errorf("orphans: %w", err))
	}
	rep.Orphaned = len(orphans)

	stale, err := app.Sessions.ReleaseStaleProcessing(ctx, app.config.ProcessingTimeout.Std())
	if err != nil {
		errs = append(errs, fmt.Errorf("processing: %w", err))
	}
	rep.StaleProcessing = len(stale)

	if rep.ReleasedClaims, err = app.Queue.CleanupStaleClaims(ctx, app.config.ClaimTimeout.Std()); err != nil {
		errs = append(errs, fmt.Errorf("claims: %w", err))
	}
	if rep.StaleLocks, err = app.Locks.CleanupStale(app.config.Lock.MaxAge.Std()); err != nil {
		errs = append(errs, fmt.Errorf("locks: %w", err))
	}
	if rep.Deleted, err = app.Sessions.CleanupOld(ctx, app.config.Retention); err != nil {
		errs = append(errs, fmt.Errorf("retention: %w", err))
	}

	if rep != (SweepReport{}) {
		app.logger.Info("清理完成",
			"orphaned", rep.Orphaned,
			"stale_processing", rep.StaleProcessing,
			"released_claims", rep.ReleasedClaims,
			"stale_locks", rep.StaleLocks,
			"deleted", rep.Deleted,
		)
	}
	return rep, errors.Join(errs...)
}

// RecoverFallback 把降级文件中的会话导入数据库，成功后删除文件。
// 导入失败的文件保留，下次再试。
func (app *App) RecoverFallback(ctx context.Context) (int, error) {
	if app.Degraded() {
		return 0, nil
	}
	sessions, err := app.Fallback.List()
	if err != nil {
		return 0, err
	}

	var (
		imported int
		errs     []error
	)
	for _, s := range sessions {
		rec, err := app.Fallback.Read(s.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := app.importRecord(ctx, rec); err != nil {
			app.logger.Warn("导入降级会话失败", "session_id", s.ID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", s.ID, err))
			continue
		}
		if err := app.Fallback.Remove(s.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		imported++
	}
	if imported > 0 {
		app.logger.Info("已导入降级会话", "count", imported)
	}
	return imported, errors.Join(errs...)
}

func (app *App) importRecord(ctx context.Context, rec fallback.Record) error {
	id := rec.Session.ID
	if err := ValidateSessionID(id); err != nil {
		return err
	}
	if _, err := app.Sessions.Get(ctx, id); errors.Is(err, session.ErrNotFound) {
		if _, err := app.Sessions.Create(ctx, id, rec.Session.Project); err != nil && !errors.Is(err, session.ErrAlreadyExists) {
			return err
		}
	} else if err != nil {
		return err
	}

	for _, p := range rec.Prompts {
		if _, err := app.Sessions.AddPrompt(ctx, id, p.Text); err != nil {
			return err
		}
	}
	for _, tu := range rec.ToolUses {
		if _, err := app.Sessions.AddToolUse(ctx, session.ToolUseParams{
			SessionID: id,
			ToolName:  tu.ToolName,
			Input:     tu.Input,
			Output:    tu.Output,
		}); err != nil {
			return err
		}
	}
	for _, msg := range rec.Messages {
		payload, err := msg.Decode()
		if err != nil {
			app.logger.Warn("跳过无法解析的降级消息", "session_id", id, "type", msg.Type, "error", err)
			continue
		}
		if _, err := app.Queue.Enqueue(ctx, id, payload); err != nil {
			return err
		}
	}
	if rec.Session.Status.Terminal() {
		return app.Sessions.UpdateStatus(ctx, id, rec.Session.Status)
	}
	return nil
}
