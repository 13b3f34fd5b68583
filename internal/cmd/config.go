package cmd

import (
	"strconv"

	"github.com/purpose168/mnemo/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "读取或修改配置",
	Example: `
# 查看生效的锁超时
mnemo config get lock.max_age

# 修改保留的会话数量
mnemo config set retention 50

# 恢复默认值
mnemo config unset retention
  `,
}

var configGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "打印生效配置中的值，不指定 key 时打印全部",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigQuiet(cmd)
		if err != nil {
			return err
		}
		key := "@this"
		if len(args) == 1 {
			key = args[0]
		}
		v, err := cfg.Get(key)
		if err != nil {
			return err
		}
		if !v.Exists() {
			cmd.PrintErrf("未设置: %s\n", key)
			return nil
		}
		if v.IsObject() || v.IsArray() {
			cmd.Println(v.Raw)
			return nil
		}
		cmd.Println(v.String())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "修改全局配置文件中的一个字段",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigQuiet(cmd)
		if err != nil {
			return err
		}
		return cfg.SetConfigField(args[0], parseValue(args[1]))
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "从全局配置文件中删除一个字段",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfigQuiet(cmd)
		if err != nil {
			return err
		}
		return cfg.RemoveConfigField(args[0])
	},
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd, configUnsetCmd)
}

// loadConfigQuiet 加载配置但不初始化日志
func loadConfigQuiet(cmd *cobra.Command) (*config.Config, error) {
	cwd, err := ResolveCwd(cmd)
	if err != nil {
		return nil, err
	}
	dataDir, _ := cmd.Flags().GetString("data-dir")
	return config.Load(cwd, dataDir, false)
}

// parseValue 把命令行参数转成布尔、整数或字符串
func parseValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	return s
}
