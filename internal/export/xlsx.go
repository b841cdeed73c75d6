package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/sof-events/internal/events"
)

const xlsxSheet = "Events"

// WriteXLSX writes a single-sheet workbook with the CSV columns.
func WriteXLSX(w io.Writer, records []events.Record) error {
	f := excelize.NewFile()
	defer f.Close()

	// The default "Sheet1" becomes the events sheet.
	if err := f.SetSheetName(f.GetSheetName(0), xlsxSheet); err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	idx, err := f.GetSheetIndex(xlsxSheet)
	if err != nil {
		return fmt.Errorf("xlsx sheet: %w", err)
	}
	f.SetActiveSheet(idx)

	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("xlsx header: %w", err)
	}

	for i, r := range records {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		row := []any{r.Event, r.Start, r.EndOrEmpty(), r.Source}
		if err := f.SetSheetRow(xlsxSheet, cell, &row); err != nil {
			return fmt.Errorf("xlsx row %d: %w", i+2, err)
		}
	}

	_ = f.SetColWidth(xlsxSheet, "A", "A", 22) // event
	_ = f.SetColWidth(xlsxSheet, "B", "C", 20) // start, end
	_ = f.SetColWidth(xlsxSheet, "D", "D", 64) // source
	_ = f.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	if err := f.Write(w); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}
