package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/mpmeasure/internal/modules/measurement"
)

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MPOVM_DATA_DIR", tmpDir)

	cfg, err := Load()
	require.NoError(t, err)

	absPath, err := filepath.Abs(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, absPath, cfg.DataDir)
	assert.Equal(t, filepath.Join(absPath, "samples.db"), cfg.StorePath())
	assert.Equal(t, 1e-10, cfg.Eps)
	assert.Equal(t, "auto", cfg.Method)
	assert.Equal(t, 4, cfg.NGroup)
	assert.Equal(t, 8001, cfg.Port)
	assert.True(t, cfg.Retention.Enabled)
	assert.False(t, cfg.Archive.Enabled)

	settings := cfg.ServiceSettings()
	assert.Equal(t, measurement.MethodAuto, settings.Method)
	assert.Equal(t, measurement.PMPSDefault, settings.PMPSImpl)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("MPOVM_DATA_DIR", t.TempDir())
	t.Setenv("MPOVM_EPS", "1e-8")
	t.Setenv("MPOVM_METHOD", "cond")
	t.Setenv("MPOVM_NGROUP", "3")
	t.Setenv("MPOVM_PMPS_IMPL", "pmps-symm")
	t.Setenv("MPOVM_SEED", "17")
	t.Setenv("GO_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)
	settings := cfg.ServiceSettings()
	assert.Equal(t, 1e-8, settings.Eps)
	assert.Equal(t, measurement.MethodCond, settings.Method)
	assert.Equal(t, 3, settings.NGroup)
	assert.Equal(t, measurement.PMPSSymm, settings.PMPSImpl)
	assert.Equal(t, uint64(17), settings.Seed)
	assert.Equal(t, 9100, cfg.Port)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"unknown method", map[string]string{"MPOVM_METHOD": "gibbs"}},
		{"unknown impl", map[string]string{"MPOVM_PMPS_IMPL": "pmps-rtl"}},
		{"negative eps", map[string]string{"MPOVM_EPS": "-1"}},
		{"zero group", map[string]string{"MPOVM_NGROUP": "0"}},
		{"zero workers", map[string]string{"MPOVM_WORKERS": "0"}},
		{"memory fraction", map[string]string{"MPOVM_MEMORY_FRACTION": "1.5"}},
		{"archive without bucket", map[string]string{"MPOVM_ARCHIVE_ENABLED": "true"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MPOVM_DATA_DIR", t.TempDir())
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestFromViper(t *testing.T) {
	t.Setenv("MPOVM_DATA_DIR", t.TempDir())
	t.Setenv("MPOVM_METHOD", "direct")

	dataDir := t.TempDir()
	file := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
data_dir: `+dataDir+`
method: cond
n_group: 2
pmps_impl: pmps-ltr
retention:
  hours: 12
archive:
  enabled: true
  bucket: samples
`), 0o644))

	v := viper.New()
	v.SetConfigFile(file)
	require.NoError(t, v.ReadInConfig())

	cfg, err := FromViper(v)
	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, "cond", cfg.Method)
	assert.Equal(t, 2, cfg.NGroup)
	assert.Equal(t, "pmps-ltr", cfg.PMPSImpl)
	assert.Equal(t, 12, cfg.Retention.MaxAgeH)
	assert.True(t, cfg.Archive.Enabled)
	assert.Equal(t, "samples", cfg.Archive.Bucket)
	// Unset keys keep their environment values.
	assert.Equal(t, 1e-10, cfg.Eps)

	bad := viper.New()
	bad.Set(KeyNGroup, 0)
	_, err = FromViper(bad)
	assert.Error(t, err)
}
