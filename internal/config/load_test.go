package config

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

// isolate 把全局配置和数据目录指向临时目录
func isolate(t *testing.T) (configDir, dataDir string) {
	t.Helper()
	root := t.TempDir()
	configDir = filepath.Join(root, "config")
	dataDir = filepath.Join(root, "data")
	t.Setenv("MNEMO_GLOBAL_CONFIG", configDir)
	t.Setenv("MNEMO_GLOBAL_DATA", dataDir)
	for _, key := range []string{
		"MNEMO_DATA_DIR", "MNEMO_DB_PATH", "MNEMO_LOCKS_DIR", "MNEMO_FALLBACK_DIR",
		"MNEMO_CONFIG_DIR", "MNEMO_RETENTION", "MNEMO_DEBUG", "MNEMO_ORPHAN_TIMEOUT",
		"MNEMO_PROCESSING_TIMEOUT", "MNEMO_CLAIM_TIMEOUT", "MNEMO_LOCK_MAX_AGE",
	} {
		t.Setenv(key, "")
	}
	return configDir, dataDir
}

func TestConfig_LoadFromBytes(t *testing.T) {
	data1 := []byte(`{"retention": 10, "lock": {"max_age": "1h", "liveness_timeout": "5s"}}`)
	data2 := []byte(`{"retention": 20, "lock": {"max_age": "2h"}}`)
	data3 := []byte(`{"orphan_timeout": 60000}`)

	cfg, err := loadFromBytes([][]byte{data1, data2, data3})
	require.NoError(t, err)
	require.Equal(t, 20, cfg.Retention)
	require.Equal(t, 2*time.Hour, cfg.Lock.MaxAge.Std())
	require.Equal(t, 5*time.Second, cfg.Lock.LivenessTimeout.Std())
	require.Equal(t, time.Minute, cfg.OrphanTimeout.Std())
}

func TestConfig_LoadFromBytesInvalidDuration(t *testing.T) {
	_, err := loadFromBytes([][]byte{[]byte(`{"claim_timeout": "soon"}`)})
	require.Error(t, err)
}

func TestConfig_setDefaults(t *testing.T) {
	_, dataDir := isolate(t)

	cfg := &Config{DBPath: "custom.db", LocksDir: "/abs/locks"}
	cfg.setDefaults("/tmp", "")

	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dataDir, "custom.db"), cfg.DBPath)
	assert.Equal(t, "/abs/locks", cfg.LocksDir)
	assert.Equal(t, filepath.Join(dataDir, "fallback"), cfg.FallbackDir)
	assert.Equal(t, defaultRetention, cfg.Retention)
	assert.Equal(t, defaultOrphanTimeout, cfg.OrphanTimeout.Std())
	assert.Equal(t, defaultLockReservedMaxAge, cfg.Lock.ReservedMaxAge.Std())
	assert.Equal(t, defaultMaxReadsPerFile, cfg.Limits.MaxReadsPerFile)
	assert.Equal(t, filepath.Join(dataDir, "logs", "mnemo.log"), cfg.LogFile())
	assert.Equal(t, "/tmp", cfg.WorkingDir())
}

func TestConfig_setDefaultsDataDirFlag(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	cfg := &Config{DataDir: "/from/config"}
	cfg.setDefaults("/tmp", dir)

	require.Equal(t, dir, cfg.DataDir)
	require.Equal(t, filepath.Join(dir, "mnemo.db"), cfg.DBPath)
}

func TestLoadMergesProjectConfig(t *testing.T) {
	configDir, _ := isolate(t)
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, "mnemo.json"), []byte(`{"retention": 5, "debug": false}`), 0o600))

	project := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(project, ".mnemo.json"), []byte(`{"retention": 7}`), 0o600))

	cfg, err := Load(project, "", false)
	require.NoError(t, err)
	require.Equal(t, 7, cfg.Retention)
	require.False(t, cfg.Debug)

	cfg, err = Load(project, "", true)
	require.NoError(t, err)
	require.True(t, cfg.Debug)
}

func TestLoadEnvOverrides(t *testing.T) {
	configDir, _ := isolate(t)
	require.NoError(t, os.MkdirAll(configDir, 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(configDir, ".env"),
		[]byte("MNEMO_RETENTION=3\nMNEMO_CLAIM_TIMEOUT=90s\n"), 0o600))
	t.Setenv("MNEMO_ORPHAN_TIMEOUT", "2h")

	cfg, err := Load(t.TempDir(), "", false)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Retention)
	require.Equal(t, 90*time.Second, cfg.ClaimTimeout.Std())
	require.Equal(t, 2*time.Hour, cfg.OrphanTimeout.Std())

	// 进程环境优先于 .env
	t.Setenv("MNEMO_RETENTION", "9")
	cfg, err = Load(t.TempDir(), "", false)
	require.NoError(t, err)
	require.Equal(t, 9, cfg.Retention)

	t.Setenv("MNEMO_RETENTION", "many")
	_, err = Load(t.TempDir(), "", false)
	require.Error(t, err)
}

func TestSetConfigField(t *testing.T) {
	configDir, _ := isolate(t)

	cfg, err := Load(t.TempDir(), "", false)
	require.NoError(t, err)

	require.NoError(t, cfg.SetConfigField("retention", 42))
	require.NoError(t, cfg.SetConfigField("lock.max_age", "45m"))

	data, err := os.ReadFile(filepath.Join(configDir, "mnemo.json"))
	require.NoError(t, err)
	require.Equal(t, int64(42), gjson.GetBytes(data, "retention").Int())

	cfg, err = Load(t.TempDir(), "", false)
	require.NoError(t, err)
	require.Equal(t, 42, cfg.Retention)
	require.Equal(t, 45*time.Minute, cfg.Lock.MaxAge.Std())

	require.NoError(t, cfg.RemoveConfigField("retention"))
	cfg, err = Load(t.TempDir(), "", false)
	require.NoError(t, err)
	require.Equal(t, defaultRetention, cfg.Retention)
}

func TestConfigGet(t *testing.T) {
	isolate(t)
	cfg, err := Load(t.TempDir(), "", false)
	require.NoError(t, err)

	v, err := cfg.Get("lock.liveness_timeout")
	require.NoError(t, err)
	require.Equal(t, "2s", v.String())
}

func TestSchema(t *testing.T) {
	data, err := json.Marshal(Schema())
	require.NoError(t, err)
	require.True(t, gjson.GetBytes(data, "properties.retention").Exists())
	require.True(t, gjson.GetBytes(data, "properties.lock.properties.max_age").Exists())
}

func TestDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg := Defaults(dir)
	require.Equal(t, filepath.Join(dir, "mnemo.db"), cfg.DBPath)
	require.Equal(t, filepath.Join(dir, "locks"), cfg.LocksDir)
	require.Equal(t, dir, cfg.ConfigDir)
	require.Equal(t, defaultClaimTimeout, cfg.ClaimTimeout.Std())
}
