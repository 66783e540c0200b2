package reporting

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

type kind int

const (
	kindFrame kind = iota
	kindResampler
)

func (k kind) String() string {
	if k == kindResampler {
		return "resampler"
	}
	return "frame"
}

// value is an intermediate result: a frame, or a frame grouped by resample
// that still needs an aggregation.
type value struct {
	frame     *timeseries.Frame
	resampler *timeseries.Resampler
}

func (v value) kind() kind {
	if v.resampler != nil {
		return kindResampler
	}
	return kindFrame
}

type env map[string]value

type method struct {
	input  kind
	output kind
	// check validates the arguments without running the method.
	check func(t Transformation) error
	apply func(in value, t Transformation, frames env) (value, error)
}

var methods = map[string]method{
	"copy": frameMethod(noArgs, func(f *timeseries.Frame, _ Transformation, _ env) (*timeseries.Frame, error) {
		return f.Copy(), nil
	}),
	"resample": {
		input:  kindFrame,
		output: kindResampler,
		check: func(t Transformation) error {
			_, err := resampleFrequency(t)
			return err
		},
		apply: func(in value, t Transformation, _ env) (value, error) {
			freq, err := resampleFrequency(t)
			if err != nil {
				return value{}, err
			}
			return value{resampler: in.frame.Resample(freq)}, nil
		},
	},
	"add": arithmetic(timeseries.Add),
	"sub": arithmetic(timeseries.Sub),
	"mul": arithmetic(timeseries.Mul),
	"div": arithmetic(timeseries.Div),
	"abs": frameMethod(noArgs, func(f *timeseries.Frame, _ Transformation, _ env) (*timeseries.Frame, error) {
		return f.Abs(), nil
	}),
	"dropna": frameMethod(noArgs, func(f *timeseries.Frame, _ Transformation, _ env) (*timeseries.Frame, error) {
		return f.DropNA(), nil
	}),
	"cumsum": frameMethod(noArgs, func(f *timeseries.Frame, _ Transformation, _ env) (*timeseries.Frame, error) {
		return f.CumSum(), nil
	}),
	"diff": frameMethod(noArgs, func(f *timeseries.Frame, _ Transformation, _ env) (*timeseries.Frame, error) {
		return f.Diff(), nil
	}),
	"clip": frameMethod(checkClip, func(f *timeseries.Frame, t Transformation, _ env) (*timeseries.Frame, error) {
		lower, upper, err := clipBounds(t)
		if err != nil {
			return nil, err
		}
		return f.Clip(lower, upper), nil
	}),
	"shift": frameMethod(checkIntArg("periods"), func(f *timeseries.Frame, t Transformation, _ env) (*timeseries.Frame, error) {
		periods, err := intArg(t, 0, "periods", 1)
		if err != nil {
			return nil, err
		}
		return f.Shift(periods), nil
	}),
	"round": frameMethod(checkIntArg("decimals"), func(f *timeseries.Frame, t Transformation, _ env) (*timeseries.Frame, error) {
		decimals, err := intArg(t, 0, "decimals", 0)
		if err != nil {
			return nil, err
		}
		return f.Round(decimals), nil
	}),
	"fillna": frameMethod(checkFillNA, func(f *timeseries.Frame, t Transformation, _ env) (*timeseries.Frame, error) {
		raw, _ := arg(t, 0, "value")
		v, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("value: %w", err)
		}
		return f.FillNA(v), nil
	}),
}

func init() {
	for _, name := range timeseries.Aggregations {
		name := name
		methods[name] = method{
			input:  kindResampler,
			output: kindFrame,
			check:  noArgs,
			apply: func(in value, _ Transformation, _ env) (value, error) {
				f, err := in.resampler.Aggregate(name)
				if err != nil {
					return value{}, err
				}
				return value{frame: f}, nil
			},
		}
	}
}

// MethodNames lists the supported transformation methods.
func MethodNames() []string {
	out := make([]string, 0, len(methods))
	for name := range methods {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func frameMethod(check func(Transformation) error, fn func(*timeseries.Frame, Transformation, env) (*timeseries.Frame, error)) method {
	return method{
		input:  kindFrame,
		output: kindFrame,
		check:  check,
		apply: func(in value, t Transformation, frames env) (value, error) {
			f, err := fn(in.frame, t, frames)
			if err != nil {
				return value{}, err
			}
			return value{frame: f}, nil
		},
	}
}

func arithmetic(op func(a, b float64) float64) method {
	return frameMethod(checkOperand, func(f *timeseries.Frame, t Transformation, frames env) (*timeseries.Frame, error) {
		raw, _ := arg(t, 0, "other")
		if name, ok := reference(raw); ok {
			other, ok := frames[name]
			if !ok || other.frame == nil {
				return nil, fmt.Errorf("frame %q is not available", name)
			}
			return f.Combine(op, other.frame), nil
		}
		scalar, err := toFloat(raw)
		if err != nil {
			return nil, fmt.Errorf("other: %w", err)
		}
		return f.Apply(op, scalar), nil
	})
}

// arg returns the i-th positional argument, or the keyword argument key.
func arg(t Transformation, i int, key string) (any, bool) {
	if i < len(t.Args) {
		return t.Args[i], true
	}
	v, ok := t.Kwargs[key]
	return v, ok
}

// reference returns the frame name of an "@name" argument.
func reference(v any) (string, bool) {
	s, ok := v.(string)
	if !ok || !strings.HasPrefix(s, "@") || len(s) < 2 {
		return "", false
	}
	return s[1:], true
}

// references lists every frame referenced from the transformation's arguments.
func references(t Transformation) []string {
	var out []string
	for _, a := range t.Args {
		if name, ok := reference(a); ok {
			out = append(out, name)
		}
	}
	for _, a := range t.Kwargs {
		if name, ok := reference(a); ok {
			out = append(out, name)
		}
	}
	return out
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return math.NaN(), fmt.Errorf("missing number")
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case json.Number:
		return n.Float64()
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return math.NaN(), fmt.Errorf("not a number: %v", v)
	}
}

func toInt(v any) (int, error) {
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("not an integer: %v", v)
	}
	return int(f), nil
}

func intArg(t Transformation, i int, key string, def int) (int, error) {
	raw, ok := arg(t, i, key)
	if !ok {
		return def, nil
	}
	n, err := toInt(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func resampleFrequency(t Transformation) (time.Duration, error) {
	raw, ok := arg(t, 0, "rule")
	if !ok {
		return 0, fmt.Errorf("resample needs a frequency")
	}
	s, ok := raw.(string)
	if !ok {
		return 0, fmt.Errorf("resample frequency must be a string, got %v", raw)
	}
	return timeseries.ParseFrequency(s)
}

func clipBounds(t Transformation) (lower, upper *float64, err error) {
	for i, key := range []string{"lower", "upper"} {
		raw, ok := arg(t, i, key)
		if !ok || raw == nil {
			continue
		}
		v, err := toFloat(raw)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", key, err)
		}
		if i == 0 {
			lower = &v
		} else {
			upper = &v
		}
	}
	return lower, upper, nil
}

func noArgs(Transformation) error { return nil }

func checkClip(t Transformation) error {
	_, _, err := clipBounds(t)
	return err
}

func checkIntArg(key string) func(Transformation) error {
	return func(t Transformation) error {
		_, err := intArg(t, 0, key, 0)
		return err
	}
}

func checkFillNA(t Transformation) error {
	raw, ok := arg(t, 0, "value")
	if !ok {
		return fmt.Errorf("fillna needs a value")
	}
	if _, err := toFloat(raw); err != nil {
		return fmt.Errorf("value: %w", err)
	}
	return nil
}

func checkOperand(t Transformation) error {
	raw, ok := arg(t, 0, "other")
	if !ok {
		return fmt.Errorf("%s needs an operand", t.Method)
	}
	if _, ok := reference(raw); ok {
		return nil
	}
	if _, err := toFloat(raw); err != nil {
		return fmt.Errorf("other: %w", err)
	}
	return nil
}
