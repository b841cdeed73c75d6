// Package export renders extracted events as a JSON payload, CSV or XLSX.
package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/events"
)

// Payload is the JSON body returned for one document.
type Payload struct {
	Count  int             `json:"count"`
	Events []events.Record `json:"events"`
}

// NewPayload wraps records; Events is never nil so it marshals as [].
func NewPayload(records []events.Record) Payload {
	if records == nil {
		records = []events.Record{}
	}
	return Payload{Count: len(records), Events: records}
}

type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat accepts json, csv or xlsx in any case. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatCSV, FormatXLSX:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown output format %q (want json, csv or xlsx)", common.ErrInvalidInput, s)
	}
}

func (f Format) Ext() string { return string(f) }

func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json"
	}
}

// Filename is the attachment name used for downloads, e.g. "events.csv".
func (f Format) Filename() string { return "events." + f.Ext() }

// Write renders records to w in format f.
func Write(w io.Writer, f Format, records []events.Record) error {
	switch f {
	case FormatCSV:
		return WriteCSV(w, records)
	case FormatXLSX:
		return WriteXLSX(w, records)
	case FormatJSON, "":
		return WriteJSON(w, records)
	default:
		return fmt.Errorf("%w: unknown output format %q", common.ErrInvalidInput, string(f))
	}
}

func WriteJSON(w io.Writer, records []events.Record) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(NewPayload(records)); err != nil {
		return fmt.Errorf("json write: %w", err)
	}
	return nil
}
