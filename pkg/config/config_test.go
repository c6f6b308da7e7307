package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
source:
  type: parsivel
  path: /data/parsivel.log
  station:
    name: HUNTSVILLE
    latitude: "34.72"
    longitude: "-86.64"
    altitude: "190"
normalizer:
  sample_interval: 30s
fit:
  enabled: true
  method: loglinear
scattering:
  enabled: true
  frequency_hz: 9.4e9
  temperature_c: 0
  pathway: fitted
export:
  enabled: true
  base_dir: /tmp/out
  fields: [Zh, Zdr, D0]
workers: 2
`

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, SourceParsivel, cfg.Source.Type)
	assert.Equal(t, "ott", cfg.Source.Variant)
	assert.Equal(t, "HUNTSVILLE", cfg.Source.Station.Name)
	assert.Equal(t, "loglinear", cfg.Fit.Method)
	assert.Equal(t, 9.4e9, cfg.Scattering.FrequencyHz)
	require.NotNil(t, cfg.Scattering.TemperatureC)
	assert.Equal(t, 0.0, *cfg.Scattering.TemperatureC)
	assert.Equal(t, "oblate", cfg.Scattering.Shape)
	assert.Equal(t, []string{"Zh", "Zdr", "D0"}, cfg.Export.Fields)
	require.NotNil(t, cfg.Export.Precision)
	assert.Equal(t, 4, *cfg.Export.Precision)
	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, "30s", cfg.Normalizer.SampleInterval)
	assert.Equal(t, 30.0, cfg.SampleInterval().Seconds())
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "source: {type: memory}\nbogus: 1\n"},
		{"unknown source", "source: {type: netcdf}\n"},
		{"parsivel without path", "source: {type: parsivel}\n"},
		{"bad interval", "source: {type: memory}\nnormalizer: {sample_interval: soon}\n"},
		{"bad fit method", "source: {type: memory}\nfit: {method: spline}\n"},
		{"fitted without fit", "source: {type: memory}\nscattering: {enabled: true, pathway: fitted}\n"},
		{"bad shape", "source: {type: memory}\nscattering: {enabled: true, shape: cube}\n"},
		{"export without fields", "source: {type: memory}\nexport: {enabled: true}\n"},
		{"moment order", "source: {type: memory}\nmoments: {extra_orders: [42]}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestYAMLProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	p := NewYAMLProvider(path)
	defer p.Close()
	assert.True(t, p.IsReadOnly())

	cfg, err := p.LoadConfig()
	require.NoError(t, err)
	again, err := p.LoadConfig()
	require.NoError(t, err)
	assert.Same(t, cfg, again)

	_, err = NewYAMLProvider(filepath.Join(t.TempDir(), "missing.yaml")).LoadConfig()
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("DSD_STATION_NAME=FROMFILE\nDSD_WORKERS=3\n"), 0o644))

	t.Setenv("DSD_EXPORT_FIELDS", "Zh, Kdp")
	t.Setenv("DSD_SCATTERING_TEMPERATURE_C", "10")
	// godotenv.Load sets variables for the process; clear them afterwards.
	t.Setenv("DSD_STATION_NAME", "")
	t.Setenv("DSD_WORKERS", "")
	os.Unsetenv("DSD_STATION_NAME")
	os.Unsetenv("DSD_WORKERS")

	cfg := &ConfigData{}
	require.NoError(t, ApplyEnv(cfg, envFile))

	assert.Equal(t, "FROMFILE", cfg.Source.Station.Name)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []string{"Zh", "Kdp"}, cfg.Export.Fields)
	require.NotNil(t, cfg.Scattering.TemperatureC)
	assert.Equal(t, 10.0, *cfg.Scattering.TemperatureC)

	require.NoError(t, ApplyEnv(&ConfigData{}, filepath.Join(t.TempDir(), "absent.env")))
}

func TestApplyEnvInvalid(t *testing.T) {
	t.Setenv("DSD_WORKERS", "many")
	assert.Error(t, ApplyEnv(&ConfigData{}, ""))
}
