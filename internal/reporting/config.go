package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"gopkg.in/yaml.v3"
)

// Config describes a pandas-style reporter pipeline: the beliefs to load,
// the chain of transformations applied to them and the frame to return.
type Config struct {
	BeliefsSearchConfigs []SearchConfig  `json:"beliefs_search_configs"`
	Transformations      []Transformation `json:"transformations"`
	FinalDFOutput        string           `json:"final_df_output"`
}

// SearchConfig selects beliefs about a single sensor. The loaded frame is
// named sensor_<id>.
type SearchConfig struct {
	Sensor                int64    `json:"sensor"`
	EventStartsAfter      string   `json:"event_starts_after,omitempty"`
	EventEndsBefore       string   `json:"event_ends_before,omitempty"`
	BeliefsAfter          string   `json:"beliefs_after,omitempty"`
	BeliefsBefore         string   `json:"beliefs_before,omitempty"`
	HorizonsAtLeast       string   `json:"horizons_at_least,omitempty"`
	HorizonsAtMost        string   `json:"horizons_at_most,omitempty"`
	Source                SourceIDs `json:"source,omitempty"`
	MostRecentBeliefsOnly bool     `json:"most_recent_beliefs_only,omitempty"`
	MostRecentEventsOnly  bool     `json:"most_recent_events_only,omitempty"`
}

// FrameName is the name under which the search's frame is available to
// transformations.
func (c SearchConfig) FrameName() string {
	return fmt.Sprintf("sensor_%d", c.Sensor)
}

// Search converts the config into a belief search.
func (c SearchConfig) Search() (domain.BeliefSearch, error) {
	q := domain.BeliefSearch{
		SensorID:              c.Sensor,
		SourceIDs:             c.Source,
		MostRecentBeliefsOnly: c.MostRecentBeliefsOnly,
		MostRecentEventsOnly:  c.MostRecentEventsOnly,
	}
	times := []struct {
		field string
		raw   string
		dst   *time.Time
	}{
		{"event_starts_after", c.EventStartsAfter, &q.EventStartsAfter},
		{"event_ends_before", c.EventEndsBefore, &q.EventEndsBefore},
		{"beliefs_after", c.BeliefsAfter, &q.BeliefsAfter},
		{"beliefs_before", c.BeliefsBefore, &q.BeliefsBefore},
	}
	for _, f := range times {
		if f.raw == "" {
			continue
		}
		t, err := timeseries.ParseTime(f.raw)
		if err != nil {
			return q, fmt.Errorf("%s: %w", f.field, err)
		}
		*f.dst = t
	}
	horizons := []struct {
		field string
		raw   string
		dst   **time.Duration
	}{
		{"horizons_at_least", c.HorizonsAtLeast, &q.HorizonsAtLeast},
		{"horizons_at_most", c.HorizonsAtMost, &q.HorizonsAtMost},
	}
	for _, h := range horizons {
		if h.raw == "" {
			continue
		}
		d, err := timeseries.ParseDuration(h.raw)
		if err != nil {
			return q, fmt.Errorf("%s: %w", h.field, err)
		}
		*h.dst = &d
	}
	return q, nil
}

// SourceIDs accepts either a single source id or a list of them.
type SourceIDs []int64

func (s *SourceIDs) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		var ids []int64
		if err := json.Unmarshal(b, &ids); err != nil {
			return err
		}
		*s = ids
		return nil
	}
	var id int64
	if err := json.Unmarshal(b, &id); err != nil {
		return err
	}
	*s = SourceIDs{id}
	return nil
}

// Transformation applies Method to the frame named DFInput and stores the
// result as DFOutput. Arguments starting with "@" refer to other frames.
type Transformation struct {
	DFInput  string         `json:"df_input,omitempty"`
	DFOutput string         `json:"df_output,omitempty"`
	Method   string         `json:"method"`
	Args     []any          `json:"args,omitempty"`
	Kwargs   map[string]any `json:"kwargs,omitempty"`
}

// Format is the encoding of a config file.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFromPath guesses the format from a file extension, defaulting to JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".toml":
		return FormatTOML
	default:
		return FormatJSON
	}
}

// Normalize decodes a config document in any supported format and re-encodes
// it as JSON, which is what the schema validator and Parse work on.
func Normalize(data []byte, format Format) ([]byte, error) {
	var doc map[string]any
	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
	case FormatTOML:
		if _, err := toml.Decode(string(data), &doc); err != nil {
			return nil, fmt.Errorf("decode toml: %w", err)
		}
	case FormatJSON, "":
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}
	return json.Marshal(doc)
}

// Parse decodes a JSON config without validating it.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return cfg, nil
}

// ReadFile reads a config file and returns it normalized to JSON.
func ReadFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Normalize(data, FormatFromPath(path))
}
