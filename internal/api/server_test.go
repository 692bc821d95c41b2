package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/signal.viewer/internal/config"
	"github.com/banshee-data/signal.viewer/internal/db"
	"github.com/banshee-data/signal.viewer/internal/fsutil"
	"github.com/banshee-data/signal.viewer/internal/httputil"
	"github.com/banshee-data/signal.viewer/internal/monitoring"
	"github.com/banshee-data/signal.viewer/internal/tabular"
	"github.com/banshee-data/signal.viewer/internal/testutil"
	"github.com/banshee-data/signal.viewer/internal/waveform"
)

type testServer struct {
	handler http.Handler
	tempDir string
}

func newTestServer(t *testing.T, cfg *config.ViewerConfig, opts ...Option) testServer {
	t.Helper()
	if cfg == nil {
		cfg = config.EmptyViewerConfig()
	}
	tmp := t.TempDir()
	loaderOpts := []waveform.LoaderOption{waveform.WithTempRoot(tmp)}
	if cfg.DemoMode() {
		loaderOpts = append(loaderOpts, waveform.WithDemoFallback(nil))
	}
	loader := waveform.NewLoader(fsutil.OSFileSystem{}, loaderOpts...)

	s, err := NewServer(cfg, loader, opts...)
	require.NoError(t, err)
	return testServer{handler: LoggingMiddleware(nil, s.ServeMux()), tempDir: tmp}
}

func (ts testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	ts.handler.ServeHTTP(w, req)
	return w
}

func demoConfig() *config.ViewerConfig {
	mode := config.ParseFailureDemo
	return &config.ViewerConfig{ParseFailureMode: &mode}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) httputil.ErrorBody {
	t.Helper()
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body httputil.ErrorBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return body
}

func TestPages(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), PageTitle)
	assert.NotContains(t, w.Body.String(), "/demo_wfdb")

	w = ts.do(httptest.NewRequest(http.MethodGet, "/help", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), "212")

	w = ts.do(httptest.NewRequest(http.MethodGet, "/nope", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestDownloadTemplate(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/download_template", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "attachment; filename="+tabular.TemplateCSVName, w.Header().Get("Content-Disposition"))
	assert.Equal(t, tabular.TemplateCSV(), w.Body.Bytes())

	w = ts.do(httptest.NewRequest(http.MethodGet, "/download_template?format=xlsx", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = ts.do(httptest.NewRequest(http.MethodGet, "/download_template?format=ods", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = ts.do(httptest.NewRequest(http.MethodPost, "/download_template", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func csvUpload(name, content string) testutil.Upload {
	return testutil.Upload{Field: "file", Filename: name, Content: []byte(content)}
}

func TestUploadCSV(t *testing.T) {
	ts := newTestServer(t, nil)

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil,
		csvUpload("points.csv", "Title,Class,Sand,Silt,Clay\nA,X,1,2,3\nB,Y,4,5,6\n"))
	w := ts.do(req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var body struct {
		Data        []map[string]string `json:"data"`
		ColumnNames map[string]string   `json:"column_names"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, map[string]string{"title": "A", "class": "X", "value1": "1", "value2": "2", "value3": "3"}, body.Data[0])
	assert.Equal(t, map[string]string{"title": "Title", "class": "Class", "value1": "Sand", "value2": "Silt", "value3": "Clay"}, body.ColumnNames)
}

func TestUploadCSV_HeaderAbsent(t *testing.T) {
	ts := newTestServer(t, nil)

	req := testutil.NewMultipartRequest(t, http.MethodPost, "/upload", map[string]string{"header": "absent"},
		csvUpload("points.csv", "A,X,1,2,3\n"))
	w := ts.do(req)
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"title":"A"`)
}

func TestUploadCSV_Errors(t *testing.T) {
	tests := []struct {
		name    string
		req     func(t *testing.T) *http.Request
		status  int
		message string
	}{
		{
			name: "wrong extension",
			req: func(t *testing.T) *http.Request {
				return testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil, csvUpload("points.txt", "a"))
			},
			status:  http.StatusBadRequest,
			message: "Invalid file format",
		},
		{
			name: "no file part",
			req: func(t *testing.T) *http.Request {
				return testutil.NewMultipartRequest(t, http.MethodPost, "/upload", map[string]string{"x": "y"})
			},
			status:  http.StatusBadRequest,
			message: "Invalid file format",
		},
		{
			name: "not multipart",
			req: func(t *testing.T) *http.Request {
				return httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader("title,class"))
			},
			status:  http.StatusBadRequest,
			message: "Invalid file format",
		},
		{
			name: "bad shape",
			req: func(t *testing.T) *http.Request {
				return testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil, csvUpload("p.csv", "name,label,v1,v2\n1,2,3,4\n"))
			},
			status:  http.StatusBadRequest,
			message: "CSV file must contain columns: title, class, value1, value2, value3 (case insensitive)",
		},
		{
			name: "short row",
			req: func(t *testing.T) *http.Request {
				return testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil, csvUpload("p.csv", "title,class,a,b,c\nA,X,1\n"))
			},
			status:  http.StatusBadRequest,
			message: "Missing required column: b",
		},
	}

	ts := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(tt.req(t))
			testutil.AssertStatusCode(t, w.Code, tt.status)
			assert.Equal(t, tt.message, decodeError(t, w).Error)
		})
	}

	t.Run("method", func(t *testing.T) {
		w := ts.do(httptest.NewRequest(http.MethodGet, "/upload", nil))
		testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
	})
}

func TestUploadCSV_TooLarge(t *testing.T) {
	limit := int64(1024)
	ts := newTestServer(t, &config.ViewerConfig{MaxUploadBytes: &limit})

	big := "title,class,a,b,c\n" + strings.Repeat("A,X,1,2,3\n", 1000)
	w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil, csvUpload("p.csv", big)))
	testutil.AssertStatusCode(t, w.Code, http.StatusRequestEntityTooLarge)
	assert.Contains(t, decodeError(t, w).Error, "1024")
}

func wfdbUploads(name string, hea, dat []byte) []testutil.Upload {
	return []testutil.Upload{
		{Field: "files", Filename: name + ".dat", Content: dat},
		{Field: "files", Filename: name + ".hea", Content: hea},
	}
}

func validRecord() []testutil.Upload {
	hea, dat := testutil.Format16Record("100", 250, []string{"MLII", "V5"}, testutil.RampSamples(1000, 2))
	return wfdbUploads("100", hea, dat)
}

func TestUploadWFDB(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload_wfdb", nil, validRecord()...))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var body waveform.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "100", body.Filename)
	assert.Equal(t, "100", body.Metadata.RecordName)
	assert.Equal(t, 250.0, body.Metadata.SamplingFrequency)
	assert.Equal(t, []string{"MLII", "V5"}, body.Metadata.SignalNames)
	assert.False(t, body.Metadata.Synthetic)
	assert.Equal(t, 1000, body.SignalData.NumSamples)
	require.Len(t, body.SignalData.Time, 1000)
	assert.InDelta(t, 4.0, body.SignalData.Time[999], 1e-9)
	require.Len(t, body.SignalData.Signals, 2)
	assert.InDelta(t, 0.01, body.SignalData.Signals[1].Samples[1], 1e-12)

	names, err := fsutil.OSFileSystem{}.ReadDirNames(ts.tempDir)
	require.NoError(t, err)
	assert.Empty(t, names, "staging directory removed")
}

func TestUploadWFDB_Errors(t *testing.T) {
	hea, dat := testutil.Format16Record("100", 250, []string{"I"}, testutil.RampSamples(10, 1))
	badHea := []byte("100 1 250 10\n100.dat 311 200/mV 10 0 0 0 0 I\n")

	tests := []struct {
		name    string
		uploads []testutil.Upload
		message string
		details string
	}{
		{"no files", nil, "No files uploaded", ""},
		{"dat only", []testutil.Upload{{Field: "files", Filename: "100.dat", Content: dat}},
			"Missing .hea file. Please upload the .hea file containing header information.",
			"The .hea file contains metadata like sampling frequency, signal names, and units."},
		{"hea only", []testutil.Upload{{Field: "files", Filename: "100.hea", Content: hea}},
			"Missing .dat file. Please upload the .dat file containing signal data.",
			"The .dat file contains the actual ECG signal data."},
		{"unsupported format", wfdbUploads("100", badHea, dat),
			"Failed to read WFDB files. Please check your file format.",
			"Error: record 100: "},
	}

	ts := newTestServer(t, nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload_wfdb", map[string]string{"x": "y"}, tt.uploads...))
			testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
			body := decodeError(t, w)
			assert.Equal(t, tt.message, body.Error)
			assert.True(t, strings.HasPrefix(body.Details, tt.details), "details %q", body.Details)
		})
	}
}

func TestUploadWFDB_DemoFallback(t *testing.T) {
	ts := newTestServer(t, demoConfig())
	badHea := []byte("100 1 250 10\n100.dat 311 200/mV 10 0 0 0 0 I\n")

	w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload_wfdb", nil, wfdbUploads("100", badHea, []byte{0, 0})...))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var body waveform.Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Metadata.Synthetic)
	assert.Equal(t, []string{"I", "II", "III"}, body.Metadata.SignalNames)
	assert.Equal(t, 1000, body.SignalData.NumSamples)
}

func TestDemoWFDB(t *testing.T) {
	w := newTestServer(t, nil).do(httptest.NewRequest(http.MethodGet, "/demo_wfdb", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)

	ts := newTestServer(t, demoConfig())
	w = ts.do(httptest.NewRequest(http.MethodGet, "/demo_wfdb", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), `"synthetic":true`)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Contains(t, w.Body.String(), "/demo_wfdb")
}

func TestCharts(t *testing.T) {
	ts := newTestServer(t, nil)

	w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/chart/ternary", nil,
		testutil.Upload{Field: "file", Filename: tabular.TemplateCSVName, Content: tabular.TemplateCSV()}))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "text/html; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), "Ternary Plot")
	assert.Contains(t, w.Body.String(), "Group 1")

	w = ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/chart/wfdb", nil, validRecord()...))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Contains(t, w.Body.String(), "MLII (mV)")

	w = ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/chart/wfdb.png", nil, validRecord()...))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/chart/wfdb", nil,
		testutil.Upload{Field: "files", Filename: "100.dat", Content: []byte{0}}))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/chart/ternary", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusMethodNotAllowed)
}

func TestShowConfig(t *testing.T) {
	ts := newTestServer(t, demoConfig())
	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/config", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var body map[string]interface{}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "demo", body["parse_failure_mode"])
	assert.Equal(t, float64(config.DefaultMaxUploadBytes), body["max_upload_bytes"])
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "git_sha")
}

func TestUploads_JournalDisabled(t *testing.T) {
	w := newTestServer(t, nil).do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusNotFound)
}

func TestUploads_Journal(t *testing.T) {
	journal, err := db.NewDB(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer journal.Close()
	ts := newTestServer(t, nil, WithJournal(journal))

	ok := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil,
		csvUpload("points.csv", "title,class,a,b,c\nA,X,1,2,3\n")))
	testutil.AssertStatusCode(t, ok.Code, http.StatusOK)
	bad := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload_wfdb", nil,
		testutil.Upload{Field: "files", Filename: "x.dat", Content: []byte{0}}))
	testutil.AssertStatusCode(t, bad.Code, http.StatusBadRequest)

	w := ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads?limit=10", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	var body struct {
		Uploads []db.UploadEvent `json:"uploads"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	require.Len(t, body.Uploads, 2)

	byID := map[string]db.UploadEvent{}
	for _, u := range body.Uploads {
		byID[u.UploadID] = u
	}
	csv := byID[ok.Header().Get(RequestIDHeader)]
	assert.Equal(t, db.KindCSV, csv.Kind)
	assert.Equal(t, "points.csv", csv.Filename)
	assert.Equal(t, 1, csv.Rows)
	assert.Equal(t, http.StatusOK, csv.Status)

	failed := byID[bad.Header().Get(RequestIDHeader)]
	assert.Equal(t, db.KindWFDB, failed.Kind)
	assert.Equal(t, http.StatusBadRequest, failed.Status)
	assert.Equal(t, "invalid_input_format", failed.ErrorKind)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads?limit=0", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusBadRequest)
}

type failingJournal struct{}

func (failingJournal) RecordUpload(db.UploadEvent) (db.UploadEvent, error) {
	return db.UploadEvent{}, errors.New("disk full")
}

func (failingJournal) RecentUploads(int) ([]db.UploadEvent, error) {
	return nil, errors.New("disk full")
}

func TestJournalFailureDoesNotFailUpload(t *testing.T) {
	ts := newTestServer(t, nil, WithJournal(failingJournal{}))

	w := ts.do(testutil.NewMultipartRequest(t, http.MethodPost, "/upload", nil,
		csvUpload("points.csv", "title,class,a,b,c\nA,X,1,2,3\n")))
	testutil.AssertStatusCode(t, w.Code, http.StatusOK)

	w = ts.do(httptest.NewRequest(http.MethodGet, "/api/uploads", nil))
	testutil.AssertStatusCode(t, w.Code, http.StatusInternalServerError)
}

func TestLoggingMiddleware(t *testing.T) {
	var logs bytes.Buffer
	logger := monitoring.NewLogger(&logs, slog.LevelInfo, monitoring.FormatJSON)

	h := LoggingMiddleware(logger, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, RequestID(r.Context()))
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/brew?cup=1", nil))

	id := w.Header().Get(RequestIDHeader)
	require.NotEmpty(t, id)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(logs.Bytes(), &entry))
	assert.Equal(t, float64(http.StatusTeapot), entry["status"])
	assert.Equal(t, id, entry["request_id"])
	assert.Contains(t, entry["msg"], "/brew?cup=1")
}

func TestStatusCodeColor(t *testing.T) {
	assert.Equal(t, colorBoldGreen+"200"+colorReset, statusCodeColor(200))
	assert.Equal(t, colorYellow+"302"+colorReset, statusCodeColor(302))
	assert.Equal(t, colorBoldRed+"404"+colorReset, statusCodeColor(404))
	assert.Equal(t, colorBoldRed+"500"+colorReset, statusCodeColor(500))
	assert.Equal(t, "100", statusCodeColor(100))
}
