// Package config 加载 mnemo 的配置。核心包只接收这里产出的普通值，不自己读取配置文件。
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/purpose168/mnemo/internal/fsext"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

const appName = "mnemo"

// Duration 在 JSON 中写作 "30m"、"2h" 这样的字符串，也接受毫秒数
type Duration time.Duration

// Std 返回 time.Duration
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	v, err := parseDuration(gjson.ParseBytes(data))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func parseDuration(v gjson.Result) (Duration, error) {
	switch v.Type {
	case gjson.Number:
		return Duration(time.Duration(v.Int()) * time.Millisecond), nil
	case gjson.String:
		return ParseDuration(v.Str)
	case gjson.Null:
		return 0, nil
	default:
		return 0, fmt.Errorf("无效的时长: %s", v.Raw)
	}
}

// ParseDuration 解析 "30m" 形式的时长；纯数字按毫秒处理
func ParseDuration(s string) (Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Duration(time.Duration(ms) * time.Millisecond), nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("无效的时长 %q: %w", s, err)
	}
	return Duration(d), nil
}

func (Duration) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		OneOf: []*jsonschema.Schema{
			{Type: "string", Pattern: `^([0-9]+(\.[0-9]+)?(ns|us|µs|ms|s|m|h))+$`},
			{Type: "integer", Description: "milliseconds"},
		},
	}
}

// LockOptions 会话锁的过期判断
type LockOptions struct {
	MaxAge          Duration `json:"max_age,omitzero" jsonschema:"description=Locks older than this are removed regardless of liveness,default=30m"`
	ReservedMaxAge  Duration `json:"reserved_max_age,omitzero" jsonschema:"description=A reserved lock older than this is considered a failed spawn,default=1m"`
	LivenessTimeout Duration `json:"liveness_timeout,omitzero" jsonschema:"description=Upper bound for the process liveness check,default=2s"`
}

// Limits 子记录的大小上限
type Limits struct {
	MaxToolOutputBytes  int `json:"max_tool_output_bytes,omitempty" jsonschema:"description=Tool output longer than this is truncated,default=16384"`
	MaxFileContentBytes int `json:"max_file_content_bytes,omitempty" jsonschema:"description=File read content longer than this is truncated,default=65536"`
	MaxReadsPerFile     int `json:"max_reads_per_file,omitempty" jsonschema:"description=Reads kept per session and path,default=5"`
}

// Config 是加载并填充默认值之后的完整配置
type Config struct {
	DataDir     string `json:"data_dir,omitempty" jsonschema:"description=Directory for the database and runtime files,example=~/.local/share/mnemo"`
	DBPath      string `json:"db_path,omitempty" jsonschema:"description=Database file; relative paths are resolved against data_dir,default=mnemo.db"`
	LocksDir    string `json:"locks_dir,omitempty" jsonschema:"description=Directory for per-session reservation locks,default=locks"`
	FallbackDir string `json:"fallback_dir,omitempty" jsonschema:"description=Directory for the JSON files written when the database is unavailable,default=fallback"`
	ConfigDir   string `json:"config_dir,omitempty" jsonschema:"description=Directory holding completed/ markers,example=~/.config/mnemo"`

	Retention         int      `json:"retention,omitempty" jsonschema:"description=Number of finished sessions to keep,default=100"`
	OrphanTimeout     Duration `json:"orphan_timeout,omitzero" jsonschema:"description=Active sessions older than this are marked failed,default=6h"`
	ProcessingTimeout Duration `json:"processing_timeout,omitzero" jsonschema:"description=Background passes older than this are considered crashed,default=30m"`
	ClaimTimeout      Duration `json:"claim_timeout,omitzero" jsonschema:"description=Claimed messages older than this are returned to the queue,default=10m"`

	Lock   LockOptions `json:"lock,omitzero" jsonschema:"description=Reservation lock timings"`
	Limits Limits      `json:"limits,omitzero" jsonschema:"description=Size limits for recorded activity"`

	Debug bool `json:"debug,omitempty" jsonschema:"description=Enable debug logging,default=false"`

	workingDir string
	globalPath string
}

// WorkingDir 返回加载配置时的工作目录
func (c *Config) WorkingDir() string { return c.workingDir }

// LogFile 返回日志文件路径
func (c *Config) LogFile() string {
	return filepath.Join(c.DataDir, "logs", appName+".log")
}

// SetConfigField 修改全局配置文件中的一个字段，key 使用 sjson 路径语法
func (c *Config) SetConfigField(key string, value any) error {
	return editGlobal(c.globalPath, func(data string) (string, error) {
		return sjson.Set(data, key, value)
	})
}

// RemoveConfigField 从全局配置文件中删除一个字段
func (c *Config) RemoveConfigField(key string) error {
	return editGlobal(c.globalPath, func(data string) (string, error) {
		return sjson.Delete(data, key)
	})
}

func editGlobal(path string, edit func(string) (string, error)) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("读取配置文件失败: %w", err)
		}
		data = []byte("{}")
	}
	out, err := edit(string(data))
	if err != nil {
		return fmt.Errorf("修改配置失败: %w", err)
	}
	if err := fsext.EnsurePrivateDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := fsext.WriteFileAtomic(path, []byte(out)); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}

// Get 以 gjson 路径读取生效配置中的值
func (c *Config) Get(key string) (gjson.Result, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.GetBytes(data, key), nil
}

// Schema 返回配置文件的 JSON Schema
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	s := r.Reflect(&Config{})
	s.Title = "mnemo configuration"
	return s
}
