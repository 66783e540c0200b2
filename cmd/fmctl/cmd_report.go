package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/config"
	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/export"
	"github.com/FlexMeasures/flexmeasures/internal/reporting"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	reportConfigPath string
	reportStart      string
	reportEnd        string
	reportSensorID   int64
	reportSave       bool
	reportOutput     string
	reportUpload     bool
	reportS3Bucket   string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute a report from stored sensor data",
	Long: `Runs a reporter config (JSON, YAML or TOML) over [--start, --end).

The result is printed as CSV unless it is written elsewhere:
  --save        record it as beliefs on --sensor
  --output      write the CSV to a local file
  --upload      upload the CSV to --s3-bucket (default REPORT_S3_BUCKET)

Example:
  fmctl report --config pv-net.yaml --start 2023-04-10T00:00:00+02:00 \
    --end 2023-04-11T00:00:00+02:00 --sensor 7 --save`,
	Args: cobra.NoArgs,
	RunE: runReport,
}

func init() {
	reportCmd.Flags().StringVar(&reportConfigPath, "config", "", "Reporter config file (required)")
	reportCmd.Flags().StringVar(&reportStart, "start", "", "Start of the report window, ISO 8601 (required)")
	reportCmd.Flags().StringVar(&reportEnd, "end", "", "End of the report window, ISO 8601 (required)")
	reportCmd.Flags().Int64Var(&reportSensorID, "sensor", 0, "Output sensor")
	reportCmd.Flags().BoolVar(&reportSave, "save", false, "Save the report as beliefs on the output sensor")
	reportCmd.Flags().StringVar(&reportOutput, "output", "", "Write the report to this CSV file")
	reportCmd.Flags().BoolVar(&reportUpload, "upload", false, "Upload the report to S3")
	reportCmd.Flags().StringVar(&reportS3Bucket, "s3-bucket", "", "S3 bucket to upload to")
	for _, f := range []string{"config", "start", "end"} {
		_ = reportCmd.MarkFlagRequired(f)
	}
}

func runReport(cmd *cobra.Command, args []string) error {
	window, err := reportWindow(reportStart, reportEnd)
	if err != nil {
		return err
	}
	if reportSave && reportSensorID == 0 {
		return errors.New("--save needs an output --sensor")
	}
	bucket := reportS3Bucket
	if bucket == "" {
		bucket = config.ReportBucket()
	}
	if reportUpload && bucket == "" {
		return errors.New("--upload needs --s3-bucket or REPORT_S3_BUCKET")
	}

	data, err := reporting.ReadFile(reportConfigPath)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}

	return withBackend(func(ctx context.Context, b *backend) error {
		cfg, err := b.configs.Load(ctx, data)
		if err != nil {
			return err
		}

		req := service.ReportRequest{
			Config: cfg,
			Window: window,
			Name:   reportName(reportOutput, window),
		}
		if reportSave {
			id := reportSensorID
			req.OutputSensorID = &id
		}
		if reportOutput != "" {
			req.Sinks = append(req.Sinks, export.NewFileSink(filepath.Dir(reportOutput)))
		}
		if reportUpload {
			sink, err := b.s3Sink(ctx, bucket)
			if err != nil {
				return fmt.Errorf("s3: %w", err)
			}
			req.Sinks = append(req.Sinks, sink)
		}

		res, err := b.reports.Run(ctx, req)
		if err != nil {
			return err
		}
		logger.Info("report computed",
			zap.String("config", reportConfigPath),
			zap.Int("events", res.Frame.Len()),
			zap.Int64("saved", res.Saved))

		out := cmd.OutOrStdout()
		if len(req.Sinks) == 0 && !reportSave {
			return reporting.WriteCSV(out, res.Frame, time.UTC)
		}
		if reportSave {
			fmt.Fprintf(out, "Saved %d beliefs to sensor %d.\n", res.Saved, reportSensorID)
		}
		for _, s := range req.Sinks {
			fmt.Fprintf(out, "Exported report %s to %s.\n", req.Name, sinkName(s, bucket))
		}
		return nil
	})
}

func reportWindow(start, end string) (reporting.Window, error) {
	s, err := timeseries.ParseTime(start)
	if err != nil {
		return reporting.Window{}, fmt.Errorf("--start: %w", err)
	}
	e, err := timeseries.ParseTime(end)
	if err != nil {
		return reporting.Window{}, fmt.Errorf("--end: %w", err)
	}
	if !e.After(s) {
		return reporting.Window{}, errors.New("--end must be after --start")
	}
	return reporting.Window{Start: s, End: e}, nil
}

// reportName is the file name of the exported CSV.
func reportName(output string, w reporting.Window) string {
	if output != "" {
		return filepath.Base(output)
	}
	const layout = "20060102T1504Z"
	return fmt.Sprintf("report_%s_%s.csv", w.Start.UTC().Format(layout), w.End.UTC().Format(layout))
}

func sinkName(s domain.ReportSink, bucket string) string {
	if _, ok := s.(*export.FileSink); ok {
		return filepath.Dir(reportOutput)
	}
	return "s3://" + bucket
}
