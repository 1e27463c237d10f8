package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/notargets/aderseis/velocity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "tet4", cfg.Predict.Element)
	assert.Equal(t, 4, cfg.Predict.SpaceOrder)
	assert.Equal(t, "blas", cfg.Predict.Backend)
	assert.Equal(t, 100, cfg.Exchange.IterComm)
	assert.Equal(t, "local", cfg.Exchange.Transport)
	assert.Equal(t, "constant", cfg.Velocity.Kind)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "aderseis.yaml", `
log:
  level: debug
  format: json
predict:
  element: tria3
  space_order: 3
  time_order: 2
exchange:
  ranks: 3
  time_groups: 3
velocity:
  kind: layered
  layers:
    - top: 0
      vp: 4000
      vs: 2000
      rho: 2000
    - top: 1000
      vp: 6000
      vs: 3500
      rho: 2700
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "tria3", cfg.Predict.Element)
	assert.Equal(t, 3, cfg.Predict.SpaceOrder)
	assert.Equal(t, 2, cfg.Predict.TimeOrder)
	// untouched keys keep their defaults
	assert.Equal(t, 1e-3, cfg.Predict.Dt)
	assert.Equal(t, 3, cfg.Exchange.Ranks)
	require.Len(t, cfg.Velocity.Layers, 2)
	assert.Equal(t, velocity.Layer{Top: 1000, Sample: velocity.Sample{Vp: 6000, Vs: 3500, Rho: 2700}},
		cfg.Velocity.Layers[1])

	m, err := cfg.Velocity.Model()
	require.NoError(t, err)
	s, err := m.Query(0, 0, -1500)
	require.NoError(t, err)
	assert.Equal(t, 6000.0, s.Vp)
}

func TestLoadEnvironmentOverride(t *testing.T) {
	t.Setenv("ADERSEIS_PREDICT_SPACE_ORDER", "6")
	t.Setenv("ADERSEIS_EXCHANGE_TRANSPORT", "mpi")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Predict.SpaceOrder)
	assert.Equal(t, "mpi", cfg.Exchange.Transport)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "ADERSEIS_EXCHANGE_CYCLES"
	t.Cleanup(func() { os.Unsetenv(key) })
	path := writeFile(t, ".env", key+"=9\n")

	require.NoError(t, LoadEnv(path))
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Exchange.Cycles)

	assert.Error(t, LoadEnv(filepath.Join(t.TempDir(), "missing.env")))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	for name, content := range map[string]string{
		"element":   "predict:\n  element: hex8\n",
		"order":     "predict:\n  space_order: 3\n  time_order: 4\n",
		"backend":   "predict:\n  backend: cuda\n",
		"ranks":     "exchange:\n  ranks: 100\n  elements: 10\n",
		"transport": "exchange:\n  transport: tcp\n",
		"cfl":       "annotate:\n  cfl: 0\n",
		"velocity":  "velocity:\n  kind: grid\n",
		"layers":    "velocity:\n  kind: layered\n",
	} {
		_, err := Load(writeFile(t, name+".yaml", content))
		assert.Error(t, err, name)
	}
}

func TestWriteYAML(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, cfg.WriteYAML(&buf))

	var back Config
	require.NoError(t, yaml.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, *cfg, back)
	assert.Contains(t, buf.String(), "space_order: 4")
}
