package reporting

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const yamlConfig = `
beliefs_search_configs:
  - sensor: 1
    event_starts_after: "2022-01-01T00:00:00+00:00"
    horizons_at_most: PT0H
    source: [1, 2]
transformations:
  - df_input: sensor_1
    df_output: hourly
    method: resample
    args: ["1h"]
  - method: mean
final_df_output: hourly
`

const tomlConfig = `
final_df_output = "doubled"

[[beliefs_search_configs]]
sensor = 2
source = 3

[[transformations]]
df_input = "sensor_2"
df_output = "doubled"
method = "mul"
args = [2]
`

func TestNormalize_YAML(t *testing.T) {
	data, err := Normalize([]byte(yamlConfig), FormatYAML)
	require.NoError(t, err)

	cfg, err := newTestValidator(t).Load(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, cfg.BeliefsSearchConfigs, 1)
	assert.Equal(t, SourceIDs{1, 2}, cfg.BeliefsSearchConfigs[0].Source)
	assert.Equal(t, "hourly", cfg.FinalDFOutput)

	q, err := cfg.BeliefsSearchConfigs[0].Search()
	require.NoError(t, err)
	assert.True(t, q.EventStartsAfter.Equal(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NotNil(t, q.HorizonsAtMost)
	assert.Equal(t, time.Duration(0), *q.HorizonsAtMost)
}

func TestNormalize_TOML(t *testing.T) {
	data, err := Normalize([]byte(tomlConfig), FormatTOML)
	require.NoError(t, err)

	cfg, err := newTestValidator(t).Load(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, SourceIDs{3}, cfg.BeliefsSearchConfigs[0].Source)
	assert.Equal(t, "mul", cfg.Transformations[0].Method)
	assert.Equal(t, "sensor_2", cfg.BeliefsSearchConfigs[0].FrameName())
}

func TestNormalize_Invalid(t *testing.T) {
	_, err := Normalize([]byte("{not json"), FormatJSON)
	assert.Error(t, err)
	_, err = Normalize([]byte("a = ["), FormatTOML)
	assert.Error(t, err)
	_, err = Normalize([]byte("{}"), Format("xml"))
	assert.Error(t, err)
}

func TestReadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.yml")
	require.NoError(t, os.WriteFile(path, []byte(yamlConfig), 0o600))

	data, err := ReadFile(path)
	require.NoError(t, err)
	cfg, err := Parse(data)
	require.NoError(t, err)
	assert.Len(t, cfg.Transformations, 2)

	assert.Equal(t, FormatTOML, FormatFromPath("x.TOML"))
	assert.Equal(t, FormatJSON, FormatFromPath("x"))
}

func TestSearchConfig_BadTimestamp(t *testing.T) {
	_, err := SearchConfig{Sensor: 1, BeliefsBefore: "tomorrow"}.Search()
	assert.Error(t, err)
}
