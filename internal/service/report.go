package service

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/reporting"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"go.uber.org/zap"
)

const reporterModel = "PandasReporter"

type ReportRequest struct {
	Config *reporting.Config
	Window reporting.Window
	// OutputSensorID, when set, receives the report as beliefs of a reporter source.
	OutputSensorID *int64
	// Name is the file name the report is written under in each sink.
	Name  string
	Sinks []domain.ReportSink
}

type ReportResult struct {
	Frame *timeseries.Frame
	Saved int64
}

type ReportService struct {
	reporter *reporting.Reporter
	sensors  *SensorService
	beliefs  domain.BeliefStore
	sources  domain.DataSourceStore
	logger   *zap.Logger

	now func() time.Time
}

func NewReportService(reporter *reporting.Reporter, sensors *SensorService, beliefs domain.BeliefStore, sources domain.DataSourceStore, logger *zap.Logger) *ReportService {
	return &ReportService{
		reporter: reporter,
		sensors:  sensors,
		beliefs:  beliefs,
		sources:  sources,
		logger:   logger,
		now:      time.Now,
	}
}

// Run computes the report, then saves and exports it as requested.
func (s *ReportService) Run(ctx context.Context, req ReportRequest) (*ReportResult, error) {
	frame, err := s.reporter.Compute(ctx, req.Config, req.Window)
	if err != nil {
		return nil, err
	}
	result := &ReportResult{Frame: frame}

	loc := time.UTC
	if req.OutputSensorID != nil {
		sensor, err := s.sensors.Get(ctx, *req.OutputSensorID)
		if err != nil {
			return nil, fmt.Errorf("output sensor: %w", err)
		}
		loc = sensor.Location()
		if result.Saved, err = s.save(ctx, sensor, frame); err != nil {
			return nil, err
		}
	}

	if len(req.Sinks) > 0 {
		var buf bytes.Buffer
		if err := reporting.WriteCSV(&buf, frame, loc); err != nil {
			return nil, fmt.Errorf("render report: %w", err)
		}
		for _, sink := range req.Sinks {
			if err := sink.Write(ctx, req.Name, buf.Bytes()); err != nil {
				return nil, fmt.Errorf("export report: %w", err)
			}
		}
	}

	s.logger.Info("report finished",
		zap.Int("events", frame.Len()),
		zap.Int64("saved", result.Saved),
		zap.Int("sinks", len(req.Sinks)))
	return result, nil
}

// save records the report as beliefs formed now.
func (s *ReportService) save(ctx context.Context, sensor *domain.Sensor, frame *timeseries.Frame) (int64, error) {
	source := &domain.DataSource{
		Name:    "FlexMeasures",
		Type:    domain.SourceTypeReporter,
		Model:   reporterModel,
		Version: "1",
	}
	if err := s.sources.GetOrCreate(ctx, source); err != nil {
		return 0, fmt.Errorf("data source: %w", err)
	}

	now := s.now()
	var beliefs []domain.Belief
	for _, r := range frame.Rows() {
		if math.IsNaN(r.Value) {
			continue
		}
		beliefs = append(beliefs, domain.Belief{
			SensorID:      sensor.ID,
			EventStart:    r.Start,
			BeliefHorizon: sensor.HorizonAt(r.Start, now),
			SourceID:      source.ID,
			EventValue:    r.Value,
		})
	}
	saved, err := s.beliefs.Save(ctx, beliefs)
	if err != nil {
		return 0, fmt.Errorf("save report: %w", err)
	}
	return saved, nil
}
