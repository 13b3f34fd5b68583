package config

import (
	"cmp"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/purpose168/mnemo/internal/fsext"
	"github.com/purpose168/mnemo/internal/home"
	"github.com/purpose168/mnemo/internal/log"
	"github.com/qjebbs/go-jsons"
)

const (
	defaultRetention         = 100
	defaultOrphanTimeout     = 6 * time.Hour
	defaultProcessingTimeout = 30 * time.Minute
	defaultClaimTimeout      = 10 * time.Minute

	defaultLockMaxAge          = 30 * time.Minute
	defaultLockReservedMaxAge  = time.Minute
	defaultLockLivenessTimeout = 2 * time.Second

	defaultMaxToolOutputBytes  = 16 * 1024
	defaultMaxFileContentBytes = 64 * 1024
	defaultMaxReadsPerFile     = 5
)

// Init 加载配置并初始化日志
func Init(workingDir, dataDir string, debug bool) (*Config, error) {
	cfg, err := Load(workingDir, dataDir, debug)
	if err != nil {
		return nil, err
	}
	log.Setup(cfg.LogFile(), cfg.Debug)
	return cfg, nil
}

// Load 依次合并全局配置、数据目录配置和工作目录向上找到的项目配置，
// 然后应用 MNEMO_* 环境变量（进程环境优先于 .env 文件）并填充默认值。
func Load(workingDir, dataDir string, debug bool) (*Config, error) {
	configPaths := lookupConfigs(workingDir)

	cfg, err := loadFromConfigPaths(configPaths)
	if err != nil {
		return nil, fmt.Errorf("从路径 %v 加载配置失败: %w", configPaths, err)
	}
	cfg.globalPath = GlobalConfig()

	env := newEnv(filepath.Join(filepath.Dir(GlobalConfig()), ".env"))
	if err := cfg.applyEnv(env); err != nil {
		return nil, err
	}

	cfg.setDefaults(workingDir, dataDir)
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// Defaults 返回以 dir 为数据目录和配置目录、其余均为默认值的配置，不读取任何文件
func Defaults(dir string) *Config {
	c := &Config{DataDir: dir, ConfigDir: dir}
	c.setDefaults(dir, "")
	c.globalPath = filepath.Join(dir, appName+".json")
	return c
}

func lookupConfigs(cwd string) []string {
	configPaths := []string{
		GlobalConfig(),
		GlobalConfigData(),
	}

	configNames := []string{appName + ".json", "." + appName + ".json"}

	foundConfigs, err := fsext.Lookup(cwd, configNames...)
	if err != nil {
		return configPaths
	}

	// 越靠近工作目录的配置优先级越高
	slices.Reverse(foundConfigs)

	return append(configPaths, foundConfigs...)
}

func loadFromConfigPaths(configPaths []string) (*Config, error) {
	var configs [][]byte

	for _, path := range configPaths {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("打开配置文件 %s 失败: %w", path, err)
		}
		if len(data) == 0 {
			continue
		}
		configs = append(configs, data)
	}

	return loadFromBytes(configs)
}

func loadFromBytes(configs [][]byte) (*Config, error) {
	if len(configs) == 0 {
		return &Config{}, nil
	}

	data, err := jsons.Merge(configs)
	if err != nil {
		return nil, err
	}
	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, err
	}
	return &config, nil
}

// envLookup 与 os.LookupEnv 签名相同
type envLookup func(string) (string, bool)

// newEnv 进程环境变量优先，其次是 .env 文件
func newEnv(dotenv string) envLookup {
	file, err := godotenv.Read(dotenv)
	if err != nil && !os.IsNotExist(err) {
		slog.Warn("读取 .env 失败", "path", dotenv, "error", err)
	}
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := file[key]
		return v, ok
	}
}

func (c *Config) applyEnv(lookup envLookup) error {
	strs := map[string]*string{
		"MNEMO_DATA_DIR":     &c.DataDir,
		"MNEMO_DB_PATH":      &c.DBPath,
		"MNEMO_LOCKS_DIR":    &c.LocksDir,
		"MNEMO_FALLBACK_DIR": &c.FallbackDir,
		"MNEMO_CONFIG_DIR":   &c.ConfigDir,
	}
	for key, ptr := range strs {
		if v, ok := lookup(key); ok && v != "" {
			*ptr = v
		}
	}

	durations := map[string]*Duration{
		"MNEMO_ORPHAN_TIMEOUT":     &c.OrphanTimeout,
		"MNEMO_PROCESSING_TIMEOUT": &c.ProcessingTimeout,
		"MNEMO_CLAIM_TIMEOUT":      &c.ClaimTimeout,
		"MNEMO_LOCK_MAX_AGE":       &c.Lock.MaxAge,
	}
	for key, ptr := range durations {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		d, err := ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*ptr = d
	}

	if v, ok := lookup("MNEMO_RETENTION"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return fmt.Errorf("MNEMO_RETENTION: 无效的数量 %q", v)
		}
		c.Retention = n
	}
	if v, ok := lookup("MNEMO_DEBUG"); ok && v != "" {
		c.Debug, _ = strconv.ParseBool(v)
	}
	return nil
}

func (c *Config) setDefaults(workingDir, dataDir string) {
	c.workingDir = workingDir
	if dataDir != "" {
		c.DataDir = dataDir
	}
	c.DataDir = cmp.Or(home.Long(c.DataDir), GlobalDataDir())
	c.ConfigDir = cmp.Or(home.Long(c.ConfigDir), filepath.Dir(GlobalConfig()))

	c.DBPath = c.resolve(c.DBPath, appName+".db")
	c.LocksDir = c.resolve(c.LocksDir, "locks")
	c.FallbackDir = c.resolve(c.FallbackDir, "fallback")

	if c.Retention <= 0 {
		c.Retention = defaultRetention
	}
	setDuration(&c.OrphanTimeout, defaultOrphanTimeout)
	setDuration(&c.ProcessingTimeout, defaultProcessingTimeout)
	setDuration(&c.ClaimTimeout, defaultClaimTimeout)
	setDuration(&c.Lock.MaxAge, defaultLockMaxAge)
	setDuration(&c.Lock.ReservedMaxAge, defaultLockReservedMaxAge)
	setDuration(&c.Lock.LivenessTimeout, defaultLockLivenessTimeout)

	c.Limits.MaxToolOutputBytes = cmp.Or(c.Limits.MaxToolOutputBytes, defaultMaxToolOutputBytes)
	c.Limits.MaxFileContentBytes = cmp.Or(c.Limits.MaxFileContentBytes, defaultMaxFileContentBytes)
	c.Limits.MaxReadsPerFile = cmp.Or(c.Limits.MaxReadsPerFile, defaultMaxReadsPerFile)
}

// resolve 展开 ~，相对路径相对于数据目录
func (c *Config) resolve(p, def string) string {
	p = home.Long(cmp.Or(p, def))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.DataDir, p)
}

func setDuration(d *Duration, def time.Duration) {
	if *d <= 0 {
		*d = Duration(def)
	}
}

// GlobalConfig 返回全局配置文件路径
func GlobalConfig() string {
	if global := os.Getenv("MNEMO_GLOBAL_CONFIG"); global != "" {
		return filepath.Join(global, appName+".json")
	}
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, appName, appName+".json")
	}
	return filepath.Join(home.Dir(), ".config", appName, appName+".json")
}

// GlobalConfigData 返回数据目录中的配置文件路径
func GlobalConfigData() string {
	return filepath.Join(GlobalDataDir(), appName+".json")
}

// GlobalDataDir 返回数据目录
// Windows 上在 `%LOCALAPPDATA%/mnemo/`，Linux 和 macOS 上在 `$HOME/.local/share/mnemo/`
func GlobalDataDir() string {
	if data := os.Getenv("MNEMO_GLOBAL_DATA"); data != "" {
		return data
	}
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return filepath.Join(xdgDataHome, appName)
	}
	if runtime.GOOS == "windows" {
		localAppData := cmp.Or(
			os.Getenv("LOCALAPPDATA"),
			filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Local"),
		)
		return filepath.Join(localAppData, appName)
	}
	return filepath.Join(home.Dir(), ".local", "share", appName)
}
