package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGE_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("BRIDGE_DATA_DIR", filepath.Join(dir, "data"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:18620", cfg.ListenAddr)
	assert.Equal(t, []string{"网上股票交易系统", "股票交易"}, cfg.TargetTitleSubstrings)
	assert.Equal(t, []string{"xiadan.exe"}, cfg.TargetProcessNames)
	assert.Equal(t, 15, cfg.RetentionCutoffHour)
	assert.Equal(t, 32, cfg.QueueCapacity)
	assert.Equal(t, 15*time.Second, cfg.Deadlines.Balance)
	assert.Equal(t, 20*time.Second, cfg.Deadlines.Export)
	assert.Equal(t, 10*time.Second, cfg.Deadlines.Trade)
	assert.False(t, cfg.AutoConfirmDefault)

	// Directories are created on load.
	assert.DirExists(t, cfg.ExportDir)
	assert.DirExists(t, cfg.DataDir)
}

func TestLoadOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("BRIDGE_EXPORT_DIR", filepath.Join(dir, "exports"))
	t.Setenv("BRIDGE_DATA_DIR", filepath.Join(dir, "data"))
	t.Setenv("BRIDGE_LISTEN_ADDR", "127.0.0.1:9000")
	t.Setenv("BRIDGE_TARGET_TITLES", "测试系统, 另一个")
	t.Setenv("BRIDGE_QUEUE_CAPACITY", "4")
	t.Setenv("BRIDGE_TRADE_DEADLINE", "2s")
	t.Setenv("BRIDGE_AUTO_CONFIRM", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.ListenAddr)
	assert.Equal(t, []string{"测试系统", "另一个"}, cfg.TargetTitleSubstrings)
	assert.Equal(t, 4, cfg.QueueCapacity)
	assert.Equal(t, 2*time.Second, cfg.Deadlines.Trade)
	assert.True(t, cfg.AutoConfirmDefault)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := &Config{
		TargetTitleSubstrings: []string{"x"},
		RetentionCutoffHour:   24,
		QueueCapacity:         8,
	}
	assert.Error(t, cfg.Validate())

	cfg.RetentionCutoffHour = 15
	cfg.QueueCapacity = 0
	assert.Error(t, cfg.Validate())

	cfg.QueueCapacity = 8
	cfg.TargetTitleSubstrings = nil
	assert.Error(t, cfg.Validate())

	cfg.TargetTitleSubstrings = []string{"x"}
	assert.NoError(t, cfg.Validate())
}
