package cmd

import (
	"github.com/spf13/cobra"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "清理过期的会话、认领和锁",
	Long: `执行 session-start 钩子中的全部清理：
超时的 active 会话标记为失败，卡住的后台处理和认领被释放，
过期锁被删除，超出保留数量的已结束会话被删除。
适合由 cron 或 launchd 定期调用。`,
	Example: `
# 立即清理
mnemo cleanup

# 只保留最近 20 个已结束的会话
mnemo cleanup --retention 20
  `,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setupApp(cmd)
		if err != nil {
			return err
		}
		defer a.Shutdown()

		if n, _ := cmd.Flags().GetInt("retention"); n > 0 {
			a.Config().Retention = n
		}

		imported, recErr := a.RecoverFallback(cmd.Context())
		rep, err := a.Sweep(cmd.Context())

		if a.Degraded() {
			cmd.PrintErrln("数据库不可用，只清理了过期锁")
		}
		cmd.Printf("孤儿会话: %d\n", rep.Orphaned)
		cmd.Printf("卡住的处理: %d\n", rep.StaleProcessing)
		cmd.Printf("释放的认领: %d\n", rep.ReleasedClaims)
		cmd.Printf("过期锁: %d\n", rep.StaleLocks)
		cmd.Printf("删除的会话: %d\n", rep.Deleted)
		if imported > 0 {
			cmd.Printf("导入的降级会话: %d\n", imported)
		}
		if recErr != nil {
			cmd.PrintErrln("导入降级会话失败:", recErr)
		}
		return err
	},
}

func init() {
	cleanupCmd.Flags().Int("retention", 0, "保留的已结束会话数量，默认使用配置")
}
