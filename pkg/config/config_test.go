package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadParsesTrustAnchors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rpkivet.yaml")
	body := `
trust_anchors:
  - name: arin
    path: /etc/tals/arin.tal
  - name: ripe
    path: /etc/tals/ripe.tal
cache_dir: /tmp/cache
parser_workers: 8
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.TrustAnchors, 2)
	require.Equal(t, "arin", cfg.TrustAnchors[0].Name)
	require.Equal(t, "/tmp/cache", cfg.CacheDir)
	require.Equal(t, 8, cfg.ParserWorkers)
}

func TestApplyDefaultsFillsZeroValues(t *testing.T) {
	var cfg Config
	cfg = cfg.ApplyDefaults()
	require.NotEmpty(t, cfg.CacheDir)
	require.NotEmpty(t, cfg.OutputDir)
	require.Equal(t, 5*time.Minute, cfg.FetchTimeout)
	require.Equal(t, 4, cfg.ParserWorkers)
	require.Equal(t, "info", cfg.LogLevel)
}

func TestLoadMissingFileErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
