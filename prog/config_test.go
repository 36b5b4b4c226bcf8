package prog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prognoser.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig_FlatAndNestedKeysAreEquivalent(t *testing.T) {
	flat := writeConfig(t, `
model: Battery
Model.event: EOD
Predictor.numSamples: 100
inputs: [power]
outputs: [temperature, voltage]
`)
	nested := writeConfig(t, `
model: Battery
Model:
  event: EOD
Predictor:
  numSamples: 100
inputs: [power]
outputs: [temperature, voltage]
`)

	cfgFlat, err := LoadConfig(flat)
	require.NoError(t, err)
	cfgNested, err := LoadConfig(nested)
	require.NoError(t, err)
	assert.Equal(t, cfgFlat, cfgNested)

	event, err := cfgFlat.String("Model.event")
	assert.NoError(t, err)
	assert.Equal(t, "EOD", event)

	outputs, err := cfgFlat.Strings("outputs")
	assert.NoError(t, err)
	assert.Equal(t, []string{"temperature", "voltage"}, outputs)
}

func TestLoadConfig_NumericLists(t *testing.T) {
	path := writeConfig(t, `
Predictor.loadEst: [8, 3600]
Battery.qMobile: 7600
Observer.Q: [1e-10, 1e-10]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	load, err := cfg.Floats("Predictor.loadEst")
	assert.NoError(t, err)
	assert.Equal(t, []float64{8, 3600}, load)

	q, err := cfg.Float("Battery.qMobile")
	assert.NoError(t, err)
	assert.Equal(t, 7600.0, q)

	qq, err := cfg.Floats("Observer.Q")
	assert.NoError(t, err)
	assert.Equal(t, []float64{1e-10, 1e-10}, qq)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestConfigMap_RequireReportsAllMissingKeys(t *testing.T) {
	cfg := ConfigMap{"model": {"Battery"}}
	err := cfg.Require("model", "observer", "predictor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "observer")
	assert.Contains(t, err.Error(), "predictor")
	assert.NotContains(t, err.Error(), "model")
}

func TestConfigMap_TypedGetterErrors(t *testing.T) {
	cfg := ConfigMap{}
	cfg.Set("Predictor.numSamples", "lots")
	cfg.Set("empty")

	_, err := cfg.Int("Predictor.numSamples")
	assert.Error(t, err)

	_, err = cfg.Float("Predictor.numSamples")
	assert.Error(t, err)

	_, err = cfg.String("empty")
	assert.Error(t, err)

	_, err = cfg.String("absent")
	assert.Error(t, err)
}

func TestConfigMap_SetFloats(t *testing.T) {
	cfg := ConfigMap{}
	cfg.SetFloats("Predictor.loadEst", 8, 3600)
	got, err := cfg.Floats("Predictor.loadEst")
	assert.NoError(t, err)
	assert.Equal(t, []float64{8, 3600}, got)
}
