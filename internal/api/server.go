// Package api is the viewer's HTTP surface: upload endpoints returning
// JSON, chart endpoints returning HTML or PNG, the HTML pages and a small
// admin API over the upload journal.
package api

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/signal.viewer/internal/apperr"
	"github.com/banshee-data/signal.viewer/internal/chart"
	"github.com/banshee-data/signal.viewer/internal/config"
	"github.com/banshee-data/signal.viewer/internal/db"
	"github.com/banshee-data/signal.viewer/internal/httputil"
	"github.com/banshee-data/signal.viewer/internal/monitoring"
	"github.com/banshee-data/signal.viewer/internal/timeutil"
	"github.com/banshee-data/signal.viewer/internal/version"
	"github.com/banshee-data/signal.viewer/internal/waveform"
	"github.com/banshee-data/signal.viewer/internal/web"
	"github.com/banshee-data/signal.viewer/internal/wfdb"
)

// PageTitle is shown on the HTML pages.
const PageTitle = "Signal Viewer"

// multipartMemory is the part of a multipart body held in memory; the rest
// spills to temporary files.
const multipartMemory = 8 << 20

// Journal records upload outcomes. *db.DB implements it.
type Journal interface {
	RecordUpload(db.UploadEvent) (db.UploadEvent, error)
	RecentUploads(limit int) ([]db.UploadEvent, error)
}

type Server struct {
	cfg     *config.ViewerConfig
	loader  *waveform.Loader
	journal Journal
	pages   web.TemplateProvider
	logger  *slog.Logger
	clock   timeutil.Clock
}

// Option configures a Server.
type Option func(*Server)

// WithJournal enables upload journalling and the /api/uploads endpoint.
func WithJournal(j Journal) Option {
	return func(s *Server) { s.journal = j }
}

// WithPages replaces the embedded page templates.
func WithPages(p web.TemplateProvider) Option {
	return func(s *Server) { s.pages = p }
}

// WithLogger sets the server logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = monitoring.OrDiscard(l) }
}

// WithClock sets the clock used to time uploads.
func WithClock(c timeutil.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// NewServer builds a server reading uploads with loader. A nil cfg uses
// defaults.
func NewServer(cfg *config.ViewerConfig, loader *waveform.Loader, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.EmptyViewerConfig()
	}
	s := &Server{
		cfg:    cfg,
		loader: loader,
		logger: monitoring.Discard(),
		clock:  timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pages == nil {
		pages, err := web.NewEmbeddedTemplateProvider()
		if err != nil {
			return nil, fmt.Errorf("failed to load page templates: %w", err)
		}
		s.pages = pages
	}
	return s, nil
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/help", s.handleHelp)
	mux.HandleFunc("/download_template", s.handleDownloadTemplate)
	mux.HandleFunc("/upload", s.handleUploadCSV)
	mux.HandleFunc("/upload_wfdb", s.handleUploadWFDB)
	mux.HandleFunc("/chart/ternary", s.handleTernaryChart)
	mux.HandleFunc("/chart/wfdb", s.handleWaveformChart)
	mux.HandleFunc("/chart/wfdb.png", s.handleWaveformPNG)
	mux.HandleFunc("/api/config", s.showConfig)
	mux.HandleFunc("/api/uploads", s.listUploads)
	if s.loader.DemoMode() {
		mux.HandleFunc("/demo_wfdb", s.handleDemoWFDB)
	}
	return mux
}

func (s *Server) chartOptions() chart.Options {
	return chart.Options{
		Width:      s.cfg.GetChartWidth(),
		Height:     s.cfg.GetChartHeight(),
		MaxPoints:  s.cfg.GetChartMaxPoints(),
		AssetsHost: s.cfg.GetEChartsAssetsHost(),
	}
}

func (s *Server) pageData() web.PageData {
	return web.PageData{
		Title:       PageTitle,
		Version:     version.Version,
		DemoMode:    s.loader.DemoMode(),
		MaxUploadMB: (s.cfg.GetMaxUploadBytes() + 1<<20 - 1) >> 20,
		Formats:     wfdb.Formats(),
	}
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	var buf bytes.Buffer
	if err := s.pages.ExecuteTemplate(&buf, name, s.pageData()); err != nil {
		s.logger.Error("failed to render page", "page", name, "error", err)
		httputil.InternalServerError(w, "failed to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	buf.WriteTo(w)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		httputil.NotFound(w, "not found")
		return
	}
	s.renderPage(w, r, web.IndexPage)
}

func (s *Server) handleHelp(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, web.HelpPage)
}

// writeError reports err to the client and returns the status written.
func (s *Server) writeError(w http.ResponseWriter, err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.RequestTooLarge(w, fmt.Sprintf("Upload exceeds the %d byte limit", tooLarge.Limit))
		return http.StatusRequestEntityTooLarge
	}

	e := apperr.As(err)
	status := e.Kind.Status()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	httputil.WriteJSONErrorDetails(w, status, e.Message, e.Details)
	return status
}

func errorKind(err error) string {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return "request_too_large"
	}
	return apperr.KindOf(err).String()
}

// record journals ev under the request id. Journal failures are logged and
// never reach the client.
func (s *Server) record(r *http.Request, start time.Time, ev db.UploadEvent) {
	if s.journal == nil {
		return
	}
	ev.UploadID = RequestID(r.Context())
	ev.DurationMS = s.clock.Since(start).Milliseconds()
	if _, err := s.journal.RecordUpload(ev); err != nil {
		s.logger.Warn("failed to journal upload", "kind", ev.Kind, "error", err)
	}
}

// fail writes err and journals the failed upload.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, start time.Time, ev db.UploadEvent, err error) {
	ev.Status = s.writeError(w, err)
	ev.ErrorKind = errorKind(err)
	s.record(r, start, ev)
}

func (s *Server) showConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{
		"version":            version.Version,
		"git_sha":            version.GitSHA,
		"parse_failure_mode": s.cfg.GetParseFailureMode(),
		"max_upload_bytes":   s.cfg.GetMaxUploadBytes(),
	})
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.journal == nil {
		httputil.NotFound(w, "upload journal disabled")
		return
	}

	limit := db.DefaultRecentLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 1 {
			httputil.BadRequest(w, "Invalid 'limit' parameter")
			return
		}
		limit = n
	}

	uploads, err := s.journal.RecentUploads(limit)
	if err != nil {
		s.logger.Error("failed to list uploads", "error", err)
		httputil.InternalServerError(w, "failed to list uploads")
		return
	}
	httputil.WriteJSONOK(w, map[string]interface{}{"uploads": uploads})
}
