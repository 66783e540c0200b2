package reporting

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/store"
	"github.com/xeipuuv/gojsonschema"
)

//go:embed schema.json
var configSchema string

// ValidationError lists everything wrong with a reporter config.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid reporter config: " + strings.Join(e.Problems, "; ")
}

// SensorLookup finds sensors by id. domain.SensorStore satisfies it.
type SensorLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Sensor, error)
}

// Validator checks reporter configs against the config schema and the
// rules of the transformation chain.
type Validator struct {
	schema  *gojsonschema.Schema
	sensors SensorLookup
}

// NewValidator compiles the config schema. sensors may be nil, in which case
// sensor existence is not checked.
func NewValidator(sensors SensorLookup) (*Validator, error) {
	schema, err := gojsonschema.NewSchemaLoader().Compile(gojsonschema.NewStringLoader(configSchema))
	if err != nil {
		return nil, fmt.Errorf("compile reporter config schema: %w", err)
	}
	return &Validator{schema: schema, sensors: sensors}, nil
}

// Load validates a JSON config and decodes it.
func (v *Validator) Load(ctx context.Context, data []byte) (*Config, error) {
	result, err := v.schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return nil, fmt.Errorf("validate reporter config: %w", err)
	}
	if !result.Valid() {
		verr := &ValidationError{}
		for _, e := range result.Errors() {
			verr.Problems = append(verr.Problems, e.String())
		}
		return nil, verr
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := v.Check(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Check validates the semantics of a decoded config: the searched sensors
// exist, every transformation reads a frame that was produced before it with
// a method that accepts it, and the final output is a frame.
func (v *Validator) Check(ctx context.Context, cfg *Config) error {
	verr := &ValidationError{}

	kinds := make(map[string]kind)
	for i, sc := range cfg.BeliefsSearchConfigs {
		if _, err := sc.Search(); err != nil {
			verr.Problems = append(verr.Problems, fmt.Sprintf("beliefs_search_configs[%d]: %v", i, err))
		}
		if v.sensors != nil {
			if _, err := v.sensors.GetByID(ctx, sc.Sensor); err != nil {
				if !errors.Is(err, store.ErrNotFound) {
					return fmt.Errorf("look up sensor %d: %w", sc.Sensor, err)
				}
				verr.Problems = append(verr.Problems, fmt.Sprintf("beliefs_search_configs[%d]: sensor %d does not exist", i, sc.Sensor))
			}
		}
		kinds[sc.FrameName()] = kindFrame
	}

	if issues := walkChain(cfg, kinds); len(issues) > 0 {
		verr.Problems = append(verr.Problems, issues...)
	}

	switch k, ok := kinds[cfg.FinalDFOutput]; {
	case cfg.FinalDFOutput == "":
		verr.Problems = append(verr.Problems, "final_df_output is required")
	case !ok:
		verr.Problems = append(verr.Problems, fmt.Sprintf("final_df_output %q is never produced", cfg.FinalDFOutput))
	case k == kindResampler:
		verr.Problems = append(verr.Problems, fmt.Sprintf("final_df_output %q is a resampler; aggregate it, for example with sum", cfg.FinalDFOutput))
	}

	if len(verr.Problems) > 0 {
		return verr
	}
	return nil
}

// walkChain resolves inputs and outputs of the transformations in order,
// recording the kind of every produced frame in kinds.
func walkChain(cfg *Config, kinds map[string]kind) []string {
	var problems []string
	prev := ""
	for i, t := range cfg.Transformations {
		at := fmt.Sprintf("transformations[%d]", i)
		input := t.DFInput
		if input == "" {
			input = prev
		}
		output := t.DFOutput
		if output == "" {
			output = input
		}

		m, known := methods[t.Method]
		if !known {
			problems = append(problems, fmt.Sprintf("%s: unknown method %q", at, t.Method))
		}

		inKind, defined := kinds[input]
		switch {
		case input == "":
			problems = append(problems, fmt.Sprintf("%s: df_input is required for the first transformation", at))
		case !defined:
			problems = append(problems, fmt.Sprintf("%s: df_input %q is not defined", at, input))
		case known && inKind != m.input:
			problems = append(problems, fmt.Sprintf("%s: method %q cannot be applied to %s %q", at, t.Method, inKind, input))
		}

		for _, ref := range references(t) {
			refKind, ok := kinds[ref]
			switch {
			case !ok:
				problems = append(problems, fmt.Sprintf("%s: argument @%s is not defined", at, ref))
			case refKind != kindFrame:
				problems = append(problems, fmt.Sprintf("%s: argument @%s is a %s", at, ref, refKind))
			}
		}

		if known {
			if err := m.check(t); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", at, err))
			}
		}

		if output != "" {
			if known {
				kinds[output] = m.output
			} else {
				kinds[output] = kindFrame
			}
		}
		prev = output
	}
	return problems
}
