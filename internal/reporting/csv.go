package reporting

import (
	"encoding/csv"
	"io"
	"math"
	"strconv"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
)

// WriteCSV writes the frame as event_start,event_value rows with timestamps
// in loc. Missing values are left empty.
func WriteCSV(w io.Writer, f *timeseries.Frame, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"event_start", "event_value"}); err != nil {
		return err
	}
	for _, row := range f.Rows() {
		v := ""
		if !math.IsNaN(row.Value) {
			v = strconv.FormatFloat(row.Value, 'f', -1, 64)
		}
		if err := cw.Write([]string{row.Start.In(loc).Format(time.RFC3339), v}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
