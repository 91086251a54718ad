package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "sqlite3", cfg.DB.Driver)
	assert.Equal(t, "proxies", cfg.Proxy.Package)
	assert.Equal(t, "jormx:proxy:", cfg.Proxy.Redis.Prefix)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jormx.yaml")
	data := `
db:
  driver: mysql
  dsn: "root:secret@tcp(127.0.0.1:3306)/library"
  max_open_conns: 20
  conn_max_lifetime: 5m
proxy:
  dir: ./gen/proxies
  import_path: example.com/app/gen/proxies
  redis:
    addr: 127.0.0.1:6379
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.DB.Driver)
	assert.Equal(t, 20, cfg.DB.MaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.DB.ConnMaxLifetime)
	assert.Equal(t, "./gen/proxies", cfg.Proxy.Dir)
	assert.Equal(t, "example.com/app/gen/proxies", cfg.Proxy.ImportPath)
	assert.Equal(t, "proxies", cfg.Proxy.Package)
	assert.Equal(t, "127.0.0.1:6379", cfg.Proxy.Redis.Addr)
	assert.Equal(t, "jormx:proxy:", cfg.Proxy.Redis.Prefix)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("JORM_DB_DRIVER", "postgres")
	t.Setenv("JORM_PROXY_PACKAGE", "lazy")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.DB.Driver)
	assert.Equal(t, "lazy", cfg.Proxy.Package)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
