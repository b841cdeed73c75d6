package export

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/joseph-ayodele/sof-events/internal/events"
)

// Columns is the column order shared by CSV and XLSX output.
var Columns = []string{"event", "start", "end", "source"}

// WriteCSV writes a header row and one row per record. A missing end is an
// empty field.
func WriteCSV(w io.Writer, records []events.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return fmt.Errorf("csv header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write([]string{r.Event, r.Start, r.EndOrEmpty(), r.Source}); err != nil {
			return fmt.Errorf("csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv flush: %w", err)
	}
	return nil
}
