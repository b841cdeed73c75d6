// Package events turns the plain text of a Statement of Facts into an ordered
// list of timestamped operational events.
//
// Extraction is a single forward pass over the lines of the document. The
// most recently seen date is carried forward and applied to the time-only
// entries that follow it, so
//
//	21/08/2025
//	Anchorage 07:30
//
// yields a record starting at "2025-08-21 07:30".
package events

// FallbackLabel names records that carry two or more times but no known
// event keyword.
const FallbackLabel = "Timed Activity"

// Record is one event found on one line of the document.
type Record struct {
	Event string `json:"event"`
	// Start is "HH:MM[:SS]", or "YYYY-MM-DD HH:MM[:SS]" once a date has been seen.
	Start string `json:"start"`
	// End is nil when the line carried a single time.
	End    *string `json:"end"`
	Source string  `json:"source"`
}

// EndOrEmpty returns the end timestamp, or "" when there is none.
func (r Record) EndOrEmpty() string {
	if r.End == nil {
		return ""
	}
	return *r.End
}
