package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Driver)
	assert.Equal(t, "data/licenses.db", cfg.Storage.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.Equal(t, "MCR", cfg.License.TokenPrefix)
	assert.Equal(t, 1000, cfg.License.MaxBatchSize)
	assert.Equal(t, 3650, cfg.License.MaxGrantDays)
	assert.Empty(t, cfg.Admin.Token)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MCR_SERVER_PORT", "8080")
	t.Setenv("MCR_STORAGE_DRIVER", "memory")
	t.Setenv("MCR_ADMIN_TOKEN", "s3cret")
	t.Setenv("MCR_LICENSE_TOKEN_PREFIX", "ACME")

	cfg, err := LoadFrom("")
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Driver)
	assert.Equal(t, "s3cret", cfg.Admin.Token)
	assert.Equal(t, "ACME", cfg.License.TokenPrefix)
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admin:
  token: from-file
`), 0o644))

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Admin.Token)
}

func TestLoadEnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admin:
  token: from-file
`), 0o644))
	t.Setenv("MCR_ADMIN_TOKEN", "from-env")

	cfg, err := LoadFrom(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Admin.Token)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadFrom(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name  string
		env   map[string]string
		valid bool
	}{
		{"defaults are valid", nil, true},
		{"port out of range", map[string]string{"MCR_SERVER_PORT": "70000"}, false},
		{"unknown driver", map[string]string{"MCR_STORAGE_DRIVER": "postgres"}, false},
		{"memory driver", map[string]string{"MCR_STORAGE_DRIVER": "memory"}, true},
		{"bad log level", map[string]string{"MCR_LOGGING_LEVEL": "verbose"}, false},
		{"zero batch size", map[string]string{"MCR_LICENSE_MAX_BATCH_SIZE": "0"}, false},
		{"negative grant days", map[string]string{"MCR_LICENSE_MAX_GRANT_DAYS": "-1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFrom("")
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
