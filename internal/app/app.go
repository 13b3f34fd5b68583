// Package app 把各个存储组装起来，供 hook 和 worker 命令使用。
//
// 数据库打不开时 App 进入降级模式，会话数据写入 fallback 目录下的 JSON 文件；
// 之后某次 SessionStart 成功连上数据库时再把这些文件导入。
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/purpose168/mnemo/internal/config"
	"github.com/purpose168/mnemo/internal/db"
	"github.com/purpose168/mnemo/internal/fallback"
	"github.com/purpose168/mnemo/internal/lock"
	"github.com/purpose168/mnemo/internal/pubsub"
	"github.com/purpose168/mnemo/internal/queue"
	"github.com/purpose168/mnemo/internal/session"
	"github.com/purpose168/mnemo/internal/worker"
)

const maxSessionIDLen = 256

// ErrInvalidSessionID 会话 ID 为空或可能被当作路径
var ErrInvalidSessionID = errors.New("invalid session id")

type App struct {
	// 降级模式下 Sessions 和 Queue 为 nil
	Sessions session.Service
	Queue    queue.Service
	Locks    *lock.FileStore
	Fallback *fallback.Store
	Spawner  Spawner

	config *config.Config
	conn   *sql.DB
	logger *slog.Logger

	cleanupFuncs []func(context.Context) error
	eventsWG     sync.WaitGroup
}

// Open 连接数据库并创建各个服务。连接失败不会返回错误，而是进入降级模式。
func Open(ctx context.Context, cfg *config.Config, spawner Spawner, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	app := &App{
		Locks: lock.NewFileStore(cfg.LocksDir, lock.Options{
			MaxAge:          cfg.Lock.MaxAge.Std(),
			ReservedMaxAge:  cfg.Lock.ReservedMaxAge.Std(),
			LivenessTimeout: cfg.Lock.LivenessTimeout.Std(),
		}, logger),
		Fallback: fallback.New(cfg.FallbackDir, cfg.Limits.MaxToolOutputBytes, logger),
		Spawner:  spawner,
		config:   cfg,
		logger:   logger,
	}

	conn, err := db.Connect(ctx, cfg.DBPath, logger)
	if err != nil {
		logger.Warn("数据库不可用，使用降级存储", "path", cfg.DBPath, "error", err)
		return app
	}

	q := db.New(conn)
	app.conn = conn
	app.Sessions = session.NewService(q, conn, logger, session.Options{
		MaxToolOutputBytes:  cfg.Limits.MaxToolOutputBytes,
		MaxFileContentBytes: cfg.Limits.MaxFileContentBytes,
		MaxReadsPerFile:     cfg.Limits.MaxReadsPerFile,
	})
	app.Queue = queue.NewService(q, conn, logger)

	logEvents(app, "session", app.Sessions, func(s session.Session) []any {
		return []any{"session_id", s.ID, "status", s.Status}
	})
	logEvents(app, "message", app.Queue, func(m queue.Message) []any {
		return []any{"session_id", m.SessionID, "message_id", m.ID, "type", m.Type}
	})
	app.cleanupFuncs = append(app.cleanupFuncs,
		func(context.Context) error { app.Sessions.Shutdown(); return nil },
		func(context.Context) error { app.Queue.Shutdown(); return nil },
	)
	return app
}

// logEvents 在 debug 级别记录存储事件，服务关闭时退出
func logEvents[T any](app *App, name string, sub pubsub.Subscriber[T], attrs func(T) []any) {
	events := sub.Subscribe(context.Background())
	app.eventsWG.Go(func() {
		for ev := range events {
			app.logger.Debug(name+" "+string(ev.Type), attrs(ev.Payload)...)
		}
	})
}

// Config 返回应用配置
func (app *App) Config() *config.Config {
	return app.config
}

// Degraded 报告当前是否在使用降级存储
func (app *App) Degraded() bool {
	return app.conn == nil
}

// Worker 返回处理该 App 中会话的 Runner；降级模式下无法处理队列
func (app *App) Worker(p worker.Processor) (*worker.Runner, error) {
	if app.Degraded() {
		return nil, errors.New("数据库不可用，无法运行 worker")
	}
	return &worker.Runner{
		Sessions:  app.Sessions,
		Queue:     app.Queue,
		Locks:     app.Locks,
		Processor: p,
		ConfigDir: app.config.ConfigDir,
		Logger:    app.logger,
	}, nil
}

// ValidateSessionID 拒绝空 ID 以及包含路径分隔符或 . / .. 的 ID，
// 因为锁文件、降级文件和完成标记都以 ID 命名。
func ValidateSessionID(id string) error {
	switch {
	case id == "", id == ".", id == "..":
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	case len(id) > maxSessionIDLen:
		return fmt.Errorf("%w: 长度超过 %d", ErrInvalidSessionID, maxSessionIDLen)
	case strings.ContainsAny(id, `/\`+"\x00"):
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, id)
	}
	return nil
}

// Shutdown 关闭服务和数据库连接
func (app *App) Shutdown() {
	start := time.Now()
	defer func() { app.logger.Debug("关闭耗时 " + time.Since(start).String()) }()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for _, cleanup := range app.cleanupFuncs {
		if cleanup != nil {
			wg.Go(func() {
				if err := cleanup(shutdownCtx); err != nil {
					app.logger.Error("关闭时清理失败", "error", err)
				}
			})
		}
	}
	wg.Wait()
	app.eventsWG.Wait()

	// 服务停止后才能关闭连接
	if err := db.Close(app.conn, app.logger); err != nil {
		app.logger.Error("关闭数据库失败", "error", err)
	}
	app.conn = nil
}
