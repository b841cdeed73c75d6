package export

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/sof-events/internal/common"
	"github.com/joseph-ayodele/sof-events/internal/events"
)

func sample() []events.Record {
	return events.Extract("21/08/2025\nAnchorage 07:30\nBerthing 09:15 10:00\nCargo ops, \"hold 2\" 11:00 12:30\n")
}

func TestNewPayload_EmptyIsArray(t *testing.T) {
	b, err := json.Marshal(NewPayload(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"count":0,"events":[]}`, string(b))
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sample()[:2]))
	assert.JSONEq(t, `{
		"count": 2,
		"events": [
			{"event":"Anchorage","start":"2025-08-21 07:30","end":null,"source":"Anchorage 07:30"},
			{"event":"Berthing","start":"2025-08-21 09:15","end":"2025-08-21 10:00","source":"Berthing 09:15 10:00"}
		]
	}`, buf.String())
	require.NoError(t, ValidatePayload(buf.Bytes()))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sample()))
	want := "event,start,end,source\n" +
		"Anchorage,2025-08-21 07:30,,Anchorage 07:30\n" +
		"Berthing,2025-08-21 09:15,2025-08-21 10:00,Berthing 09:15 10:00\n" +
		"Timed Activity,2025-08-21 11:00,2025-08-21 12:30,\"Cargo ops, \"\"hold 2\"\" 11:00 12:30\"\n"
	assert.Equal(t, want, buf.String())

	buf.Reset()
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "event,start,end,source\n", buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteXLSX(&buf, sample()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Events"}, f.GetSheetList())
	rows, err := f.GetRows("Events")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{"Anchorage", "2025-08-21 07:30", "", "Anchorage 07:30"}, rows[1])
	assert.Equal(t, "2025-08-21 10:00", rows[2][2])
}

func TestValidatePayload_Rejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{`,
		"missing events": `{"count":0}`,
		"count mismatch": `{"count":2,"events":[{"event":"Loading","start":"14:00","end":null,"source":"Loading 14:00"}]}`,
		"bad start":      `{"count":1,"events":[{"event":"Loading","start":"2pm","end":null,"source":"Loading 2pm"}]}`,
		"extra key":      `{"count":0,"events":[],"pages":3}`,
		"empty event":    `{"count":1,"events":[{"event":"","start":"14:00","end":null,"source":"x"}]}`,
	}
	for name, doc := range cases {
		err := ValidatePayload([]byte(doc))
		assert.ErrorIs(t, err, common.ErrValidation, name)
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatJSON, "JSON": FormatJSON, " csv ": FormatCSV, "xlsx": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	assert.Equal(t, "events.csv", FormatCSV.Filename())
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Equal(t, "application/json", FormatJSON.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
}

func TestWrite_Dispatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, nil))
	assert.Equal(t, "event,start,end,source\n", buf.String())
	assert.ErrorIs(t, Write(&buf, Format("txt"), nil), common.ErrInvalidInput)
}
