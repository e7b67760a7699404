package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	assert.Equal(t, int64(2*1024*1024), c.Scan.MaxFileBytes)
	assert.Equal(t, "info", c.Analysis.MinSeverity)
	assert.Equal(t, "text", c.Report.Format)
	assert.Equal(t, filepath.Join(".cachescope", "cachescope.db"), c.Store.DatabasePath)
	assert.Equal(t, 500*time.Millisecond, c.Watch.DebounceDuration())
}

func TestLoad_MissingFileYieldsDefaults(t *testing.T) {
	root := t.TempDir()
	c, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, Default(), c)
}

func TestLoad_MissingExplicitFileErrors(t *testing.T) {
	root := t.TempDir()
	_, err := Load(root, filepath.Join(root, "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_File(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, `
scan:
  workers: 8
  ignore_patterns: ["vendor"]
analysis:
  min_severity: warning
  rules:
    uncached-view: false
watch:
  debounce: 250ms
logging:
  debug_mode: true
  level: debug
`)

	c, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 8, c.Scan.Workers)
	assert.Equal(t, []string{"vendor"}, c.Scan.IgnorePatterns)
	assert.Equal(t, "warning", c.Analysis.MinSeverity)
	require.Contains(t, c.Analysis.Rules, "uncached-view")
	assert.False(t, c.Analysis.Rules["uncached-view"])
	assert.Equal(t, 250*time.Millisecond, c.Watch.DebounceDuration())
	assert.True(t, c.Logging.DebugMode)

	// Values the file omits keep their defaults.
	assert.Equal(t, "text", c.Report.Format)
}

func TestLoad_BadYAMLErrors(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "scan: [not a map")
	_, err := Load(root, "")
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := t.TempDir()
	writeConfig(t, root, "scan:\n  workers: 2\n")

	t.Setenv("CACHESCOPE_SCAN_WORKERS", "16")
	t.Setenv("CACHESCOPE_MIN_SEVERITY", "error")
	t.Setenv("CACHESCOPE_DB_PATH", "/tmp/history.db")
	t.Setenv("CACHESCOPE_DEBUG", "1")

	c, err := Load(root, "")
	require.NoError(t, err)
	assert.Equal(t, 16, c.Scan.Workers)
	assert.Equal(t, "error", c.Analysis.MinSeverity)
	assert.Equal(t, "/tmp/history.db", c.Store.DatabasePath)
	assert.True(t, c.Logging.DebugMode)
}

func TestDatabasePath(t *testing.T) {
	c := Default()
	root := string(filepath.Separator) + filepath.Join("srv", "proj")
	assert.Equal(t, filepath.Join(root, ".cachescope", "cachescope.db"), c.DatabasePath(root))

	c.Store.DatabasePath = "/var/lib/cachescope.db"
	assert.Equal(t, "/var/lib/cachescope.db", c.DatabasePath(root))
}

func TestDebounceDuration_Invalid(t *testing.T) {
	w := WatchConfig{Debounce: "not-a-duration"}
	assert.Equal(t, 500*time.Millisecond, w.DebounceDuration())
	w = WatchConfig{Debounce: "-1s"}
	assert.Equal(t, 500*time.Millisecond, w.DebounceDuration())
}

func writeConfig(t *testing.T, root, content string) {
	t.Helper()
	dir := filepath.Join(root, ".cachescope")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(content), 0644))
}
