package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/purpose168/mnemo/internal/app"
	"github.com/purpose168/mnemo/internal/log"
	"github.com/purpose168/mnemo/internal/worker"
	"github.com/spf13/cobra"
)

var workerCmd = &cobra.Command{
	Use:    "worker",
	Short:  "处理一个会话的待处理消息",
	Long:   "由 stop 钩子在后台启动。进程启动时会话锁已由 stop 钩子占用，退出时释放。",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		sessionID, _ := cmd.Flags().GetString("session")
		if err := app.ValidateSessionID(sessionID); err != nil {
			return err
		}

		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		defer log.RecoverPanic("worker", func() {
			_ = a.Locks.Release(sessionID)
			err = errors.New("worker panic")
		})

		ctx, cancel := context.WithTimeout(cmd.Context(), a.Config().ProcessingTimeout.Std())
		defer cancel()

		rep, err := a.RunWorker(ctx, sessionID, worker.DigestProcessor{Sessions: a.Sessions})
		if err != nil {
			return err
		}
		slog.Info("Worker done", "session_id", sessionID, "run_id", rep.RunID, "processed", rep.Processed, "pending", rep.Pending)
		return nil
	},
}

func init() {
	workerCmd.Flags().String("session", "", "会话 ID")
	_ = workerCmd.MarkFlagRequired("session")
}
