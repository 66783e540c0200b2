package reporting

import (
	"context"
	"fmt"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultFetchConcurrency = 4

// Window bounds the events a report covers. Zero bounds leave the search
// configs as they are.
type Window struct {
	Start time.Time
	End   time.Time
}

// Reporter runs reporter configs against stored beliefs.
type Reporter struct {
	sensors   domain.SensorStore
	beliefs   domain.BeliefStore
	validator *Validator
	logger    *zap.Logger

	concurrency int
}

func NewReporter(sensors domain.SensorStore, beliefs domain.BeliefStore, logger *zap.Logger) (*Reporter, error) {
	v, err := NewValidator(sensors)
	if err != nil {
		return nil, err
	}
	return &Reporter{
		sensors:     sensors,
		beliefs:     beliefs,
		validator:   v,
		logger:      logger,
		concurrency: defaultFetchConcurrency,
	}, nil
}

// Validator returns the validator the reporter checks configs with.
func (r *Reporter) Validator() *Validator { return r.validator }

// Compute loads the searched beliefs, runs the transformation chain and
// returns the final frame.
func (r *Reporter) Compute(ctx context.Context, cfg *Config, w Window) (*timeseries.Frame, error) {
	if err := r.validator.Check(ctx, cfg); err != nil {
		return nil, err
	}

	frames, err := r.fetch(ctx, cfg.BeliefsSearchConfigs, w)
	if err != nil {
		return nil, err
	}

	prev := ""
	for i, t := range cfg.Transformations {
		input := t.DFInput
		if input == "" {
			input = prev
		}
		output := t.DFOutput
		if output == "" {
			output = input
		}
		in := frames[input]
		out, err := methods[t.Method].apply(in, t, frames)
		if err != nil {
			return nil, fmt.Errorf("transformations[%d] (%s): %w", i, t.Method, err)
		}
		frames[output] = out
		prev = output
	}

	final := frames[cfg.FinalDFOutput]
	if final.kind() != kindFrame {
		return nil, fmt.Errorf("final_df_output %q is not a frame", cfg.FinalDFOutput)
	}
	r.logger.Debug("report computed",
		zap.String("output", cfg.FinalDFOutput),
		zap.Int("rows", final.frame.Len()),
	)
	return final.frame, nil
}

// fetch runs the belief searches concurrently.
func (r *Reporter) fetch(ctx context.Context, configs []SearchConfig, w Window) (env, error) {
	loaded := make([]*timeseries.Frame, len(configs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, sc := range configs {
		i, sc := i, sc
		g.Go(func() error {
			f, err := r.load(gctx, sc, w)
			if err != nil {
				return fmt.Errorf("load %s: %w", sc.FrameName(), err)
			}
			loaded[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	frames := make(env, len(configs))
	for i, sc := range configs {
		frames[sc.FrameName()] = value{frame: loaded[i]}
	}
	return frames, nil
}

func (r *Reporter) load(ctx context.Context, sc SearchConfig, w Window) (*timeseries.Frame, error) {
	sensor, err := r.sensors.GetByID(ctx, sc.Sensor)
	if err != nil {
		return nil, err
	}
	q, err := sc.Search()
	if err != nil {
		return nil, err
	}
	if q.EventStartsAfter.IsZero() {
		q.EventStartsAfter = w.Start
	}
	if q.EventEndsBefore.IsZero() {
		q.EventEndsBefore = w.End
	}

	beliefs, err := r.beliefs.Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return timeseries.ToFrame(sensor, timeseries.Select(sensor, beliefs, q)), nil
}
