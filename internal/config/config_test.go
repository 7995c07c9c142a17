package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altinn-access/go-core/internal/config"
)

func TestLoad(t *testing.T) {
	t.Run("empty path returns defaults", func(t *testing.T) {
		cfg, err := config.Load("")
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
		assert.Equal(t, 8080, cfg.HTTP.Port)
		assert.Equal(t, "json", cfg.Log.Format)
		assert.Equal(t, "noop", cfg.Events.Kind)
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
http:
  port: 9090
  readTimeout: 5s
log:
  level: debug
postgres:
  dsn: postgres://localhost/access
events:
  kind: redis
  stream: changes
`), 0o644))

		cfg, err := config.Load(path)
		require.NoError(t, err)
		assert.Equal(t, 9090, cfg.HTTP.Port)
		assert.Equal(t, 5*time.Second, cfg.HTTP.ReadTimeout.Std())
		assert.Equal(t, "debug", cfg.Log.Level)
		assert.Equal(t, "postgres://localhost/access", cfg.Postgres.DSN)
		assert.Equal(t, "redis", cfg.Events.Kind)
		assert.Equal(t, "changes", cfg.Events.Stream)

		// Untouched sections keep their defaults.
		assert.Equal(t, 60*time.Second, cfg.HTTP.IdleTimeout.Std())
		assert.Equal(t, "policies", cfg.Policies.Dir)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.yaml")
		require.NoError(t, os.WriteFile(path, []byte("http: [broken"), 0o644))
		_, err := config.Load(path)
		assert.Error(t, err)
	})
}
