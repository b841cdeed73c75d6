package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/sof-events/internal/docs"
	"github.com/joseph-ayodele/sof-events/internal/entity"
	"github.com/joseph-ayodele/sof-events/internal/export"
	"github.com/joseph-ayodele/sof-events/internal/metrics"
	"github.com/joseph-ayodele/sof-events/internal/pipeline"
	"github.com/joseph-ayodele/sof-events/internal/repository"
)

func docxBytes(t *testing.T, lines ...string) []byte {
	t.Helper()
	var body strings.Builder
	for _, l := range lines {
		body.WriteString(`<w:p><w:r><w:t>` + l + `</w:t></w:r></w:p>`)
	}
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte(`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body>` +
		body.String() + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

var sofLines = []string{"21/08/2025", "Anchorage 07:30", "Berthing 09:15 10:00"}

type fixture struct {
	handler http.Handler
	jobs    repository.ExtractJobRepository
	tmp     string
	proc    *pipeline.Processor
}

func newFixture(t *testing.T, cfg HTTPConfig) fixture {
	t.Helper()
	ctx := context.Background()
	d, err := repository.Open(ctx, repository.Config{DSN: filepath.Join(t.TempDir(), "jobs.db")}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close(nil) })
	require.NoError(t, d.Migrate(ctx))

	jobs := repository.NewExtractJobRepository(d, nil)
	m := metrics.New(prometheus.NewRegistry())
	tmp := t.TempDir()
	proc := pipeline.NewProcessor(docs.New(docs.Config{}, nil), jobs, nil,
		pipeline.WithMetrics(m), pipeline.WithTempDir(tmp), pipeline.WithMaxUploadBytes(cfg.MaxUploadBytes))
	h := NewHTTPHandler(cfg, proc, jobs, d, m, nil)
	return fixture{handler: h.Routes(), jobs: jobs, tmp: tmp, proc: proc}
}

func uploadRequest(t *testing.T, path, field, filename string, content []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("note", "ignored"))
	fw, err := mw.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func assertNoTempFiles(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHTTP_RootAndHealth(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":true,"message":"SoF Extractor API running"}`, rec.Body.String())

	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHTTP_ExtractJSON(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	rec := serve(f.handler, uploadRequest(t, "/extract", "file", "sof.docx", docxBytes(t, sofLines...)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, export.ValidatePayload(rec.Body.Bytes()))

	var payload export.Payload
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, 2, payload.Count)
	assert.Equal(t, "Anchorage", payload.Events[0].Event)
	assert.Equal(t, "2025-08-21 07:30", payload.Events[0].Start)
	assert.Nil(t, payload.Events[0].End)
	assert.Equal(t, "2025-08-21 10:00", *payload.Events[1].End)
	assertNoTempFiles(t, f.tmp)

	jobID := rec.Header().Get("X-Job-ID")
	require.NotEmpty(t, jobID)
	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "/jobs/"+jobID, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var job entity.ExtractJob
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &job))
	assert.Equal(t, "OK", job.Status)
	assert.Equal(t, 2, job.EventCount)
	assert.Equal(t, "sof.docx", job.Filename)
}

func TestHTTP_ExtractCSV(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	rec := serve(f.handler, uploadRequest(t, "/extract/csv", "file", "sof.docx", docxBytes(t, sofLines...)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/csv; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "attachment; filename=events.csv", rec.Header().Get("Content-Disposition"))

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"event", "start", "end", "source"},
		{"Anchorage", "2025-08-21 07:30", "", "Anchorage 07:30"},
		{"Berthing", "2025-08-21 09:15", "2025-08-21 10:00", "Berthing 09:15 10:00"},
	}, rows)
}

func TestHTTP_ExtractXLSX(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	rec := serve(f.handler, uploadRequest(t, "/extract/xlsx", "file", "sof.docx", docxBytes(t, sofLines...)))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "attachment; filename=events.xlsx", rec.Header().Get("Content-Disposition"))

	wb, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("Events")
	require.NoError(t, err)
	assert.Len(t, rows, 3)
}

func TestHTTP_ExtractErrors(t *testing.T) {
	f := newFixture(t, HTTPConfig{MaxUploadBytes: 4 << 10})

	tests := []struct {
		name string
		req  *http.Request
		code int
	}{
		{"wrong extension", uploadRequest(t, "/extract", "file", "notes.txt", []byte("Loading 14:00")), http.StatusBadRequest},
		{"missing file field", uploadRequest(t, "/extract", "document", "sof.docx", docxBytes(t, sofLines...)), http.StatusBadRequest},
		{"not multipart", httptest.NewRequest(http.MethodPost, "/extract", strings.NewReader("{}")), http.StatusBadRequest},
		{"undecodable", uploadRequest(t, "/extract/csv", "file", "sof.docx", []byte("not a zip")), http.StatusUnprocessableEntity},
		{"too large", uploadRequest(t, "/extract", "file", "big.pdf", bytes.Repeat([]byte("x"), 8<<10)), http.StatusRequestEntityTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(f.handler, tt.req)
			assert.Equal(t, tt.code, rec.Code, rec.Body.String())
			var body map[string]string
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.NotEmpty(t, body["detail"])
		})
	}
	assertNoTempFiles(t, f.tmp)
}

func TestHTTP_Jobs(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	for i := 0; i < 3; i++ {
		rec := serve(f.handler, uploadRequest(t, "/extract", "file", "sof.docx", docxBytes(t, sofLines...)))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/jobs?limit=2", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Count int                 `json:"count"`
		Jobs  []entity.ExtractJob `json:"jobs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 2, list.Count)

	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "/jobs?limit=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "/jobs/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(f.handler, httptest.NewRequest(http.MethodGet, "/jobs/6f1c2a57-3d3b-4a43-9a55-7d0f1f7e2c11", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHTTP_JobsWithoutStore(t *testing.T) {
	proc := pipeline.NewProcessor(docs.New(docs.Config{}, nil), nil, nil)
	h := NewHTTPHandler(HTTPConfig{}, proc, nil, nil, nil, nil).Routes()

	rec := serve(h, httptest.NewRequest(http.MethodGet, "/jobs", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = serve(h, uploadRequest(t, "/extract", "file", "sof.docx", docxBytes(t, "Loading 14:00 16:30")))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Job-ID"))
}

func TestHTTP_CORS(t *testing.T) {
	f := newFixture(t, HTTPConfig{})

	req := httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := serve(f.handler, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/extract", nil)
	req.Header.Set("Origin", "http://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = serve(f.handler, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestHTTP_Metrics(t *testing.T) {
	f := newFixture(t, HTTPConfig{})
	serve(f.handler, uploadRequest(t, "/extract", "file", "sof.docx", docxBytes(t, sofLines...)))

	rec := serve(f.handler, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `sof_events_extracted_total{event="Berthing"} 1`)
}

func dialBufconn(t *testing.T, svc ExtractionServer) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv, _ := NewGRPCServer(svc, nil)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestGRPC_ExtractDocument(t *testing.T) {
	f := newFixture(t, HTTPConfig{})
	conn := dialBufconn(t, NewExtractionService(f.proc, nil))
	client := NewExtractionClient(conn)

	recs, err := client.ExtractDocument(context.Background(), "sof.docx", docxBytes(t, sofLines...))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "Anchorage", recs[0].Event)
	assert.Nil(t, recs[0].End)
	require.NotNil(t, recs[1].End)
	assert.Equal(t, "2025-08-21 10:00", *recs[1].End)
	assertNoTempFiles(t, f.tmp)
}

func TestGRPC_ExtractText(t *testing.T) {
	conn := dialBufconn(t, NewExtractionService(nil, nil))
	client := NewExtractionClient(conn)

	req, err := structpb.NewStruct(map[string]any{"text": "Loading 14:00 16:30\n05:45 06:10"})
	require.NoError(t, err)
	resp, err := client.ExtractEvents(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2.0, resp.GetFields()["count"].GetNumberValue())
	assert.Equal(t, "", resp.GetFields()["job_id"].GetStringValue())

	recs := RecordsFromStruct(resp)
	require.Len(t, recs, 2)
	assert.Equal(t, "Loading", recs[0].Event)
	assert.Equal(t, "Timed Activity", recs[1].Event)
}

func TestGRPC_Errors(t *testing.T) {
	f := newFixture(t, HTTPConfig{})
	conn := dialBufconn(t, NewExtractionService(f.proc, nil))
	client := NewExtractionClient(conn)
	ctx := context.Background()

	_, err := client.ExtractEvents(ctx, &structpb.Struct{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.ExtractDocument(ctx, "notes.txt", []byte("Loading 14:00"))
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.ExtractDocument(ctx, "sof.docx", []byte("not a zip"))
	assert.Equal(t, codes.FailedPrecondition, status.Code(err))

	req, err := structpb.NewStruct(map[string]any{"filename": "sof.pdf", "content": "%%%"})
	require.NoError(t, err)
	_, err = client.ExtractEvents(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestGRPC_Health(t *testing.T) {
	conn := dialBufconn(t, NewExtractionService(nil, nil))
	resp, err := healthpb.NewHealthClient(conn).Check(context.Background(), &healthpb.HealthCheckRequest{Service: ExtractionServiceName})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, resp.GetStatus())
}

type failingUploader struct{}

func (failingUploader) ProcessUpload(context.Context, string, io.Reader) (pipeline.Result, error) {
	return pipeline.Result{}, errors.New("disk full")
}

func TestHTTP_InternalErrorHidesDetail(t *testing.T) {
	h := NewHTTPHandler(HTTPConfig{}, failingUploader{}, nil, nil, nil, nil).Routes()
	rec := serve(h, uploadRequest(t, "/extract", "file", "sof.pdf", []byte("%PDF")))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"detail":"internal error"}`, rec.Body.String())
}
