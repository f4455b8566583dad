package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective(t *testing.T) {
	dir := t.TempDir()

	settings, err := Resolve(EnvOverrides{
		ConfigPath: filepath.Join(dir, "absent.toml"),
		DataDir:    dir,
	}, CLIOverrides{})
	require.NoError(t, err)

	var sb strings.Builder
	require.NoError(t, RenderEffective(settings, &sb))

	out := sb.String()
	assert.Contains(t, out, `base_url        = "https://api.stratushq.com"`)
	assert.Contains(t, out, `request_timeout = "30s"`)
	assert.Contains(t, out, `freshness_window = "5m0s"`)
	assert.Contains(t, out, "page_size        = 50")
	assert.Contains(t, out, "snapshot         = true")
	assert.Contains(t, out, `log_level  = "info"`)
	assert.Contains(t, out, `log_format = "auto"`)
	assert.Contains(t, out, settings.SnapshotPath)
}
