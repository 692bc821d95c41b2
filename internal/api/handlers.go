package api

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/banshee-data/signal.viewer/internal/apperr"
	"github.com/banshee-data/signal.viewer/internal/chart"
	"github.com/banshee-data/signal.viewer/internal/db"
	"github.com/banshee-data/signal.viewer/internal/httputil"
	"github.com/banshee-data/signal.viewer/internal/security"
	"github.com/banshee-data/signal.viewer/internal/tabular"
	"github.com/banshee-data/signal.viewer/internal/waveform"
)

const (
	msgInvalidFormat = "Invalid file format"
	msgNoFiles       = "No files uploaded"
	msgRender        = "Failed to render chart"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// parseMultipart bounds the request body and parses the form. A body that
// is not multipart is reported as emptyMsg.
func (s *Server) parseMultipart(w http.ResponseWriter, r *http.Request, emptyMsg string) error {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.GetMaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return apperr.Wrap(apperr.InvalidInputFormat, emptyMsg, err).WithDetails(err.Error())
	}
	return nil
}

func cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		r.MultipartForm.RemoveAll()
	}
}

// readCSVUpload reads the "file" part of a /upload style request.
func (s *Server) readCSVUpload(w http.ResponseWriter, r *http.Request) (*tabular.Result, string, error) {
	if err := s.parseMultipart(w, r, msgInvalidFormat); err != nil {
		return nil, "", err
	}

	fhs := r.MultipartForm.File["file"]
	if len(fhs) == 0 || fhs[0].Filename == "" {
		return nil, "", apperr.New(apperr.InvalidInputFormat, msgInvalidFormat)
	}
	fh := fhs[0]
	name := filepath.Base(fh.Filename)

	f, err := fh.Open()
	if err != nil {
		return nil, name, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	opts := tabular.ReadOptions{
		HeaderAbsent: r.FormValue("header") == "absent",
		MaxRows:      s.cfg.GetMaxCSVRows(),
	}
	res, err := tabular.Process(r.Context(), fh.Filename, f, opts)
	return res, name, err
}

// readWFDBUpload reads every "files" part of a /upload_wfdb style request
// and hands them to the loader.
func (s *Server) readWFDBUpload(w http.ResponseWriter, r *http.Request) (*waveform.Record, string, error) {
	if err := s.parseMultipart(w, r, msgNoFiles); err != nil {
		return nil, "", err
	}

	fhs := r.MultipartForm.File["files"]
	files := make([]waveform.File, 0, len(fhs))
	names := make([]string, 0, len(fhs))
	for _, fh := range fhs {
		content, err := readPart(fh)
		if err != nil {
			return nil, "", fmt.Errorf("failed to read upload %s: %w", fh.Filename, err)
		}
		files = append(files, waveform.File{Filename: fh.Filename, Content: content})
		names = append(names, filepath.Base(fh.Filename))
	}

	rec, err := s.loader.Load(r.Context(), files)
	if err != nil {
		return nil, strings.Join(names, ","), err
	}
	return rec, rec.RecordName, nil
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func waveformEvent(kind string, rec *waveform.Record) db.UploadEvent {
	return db.UploadEvent{
		Kind:       kind,
		Filename:   rec.RecordName,
		Status:     http.StatusOK,
		NumSignals: rec.NumSignals,
		NumSamples: rec.NumSamples(),
		Synthetic:  rec.Synthetic,
	}
}

func (s *Server) handleUploadCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	defer cleanupForm(r)
	start := s.clock.Now()

	res, name, err := s.readCSVUpload(w, r)
	if err != nil {
		s.fail(w, r, start, db.UploadEvent{Kind: db.KindCSV, Filename: name}, err)
		return
	}

	httputil.WriteJSONOK(w, res)
	s.record(r, start, db.UploadEvent{Kind: db.KindCSV, Filename: name, Status: http.StatusOK, Rows: len(res.Data)})
}

func (s *Server) handleUploadWFDB(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	defer cleanupForm(r)
	start := s.clock.Now()

	rec, name, err := s.readWFDBUpload(w, r)
	if err != nil {
		s.fail(w, r, start, db.UploadEvent{Kind: db.KindWFDB, Filename: name}, err)
		return
	}

	httputil.WriteJSONOK(w, rec.Response())
	s.record(r, start, waveformEvent(db.KindWFDB, rec))
}

func (s *Server) handleDemoWFDB(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	start := s.clock.Now()

	rec := s.loader.Generator().Synthesize("demo")
	httputil.WriteJSONOK(w, rec.Response())
	s.record(r, start, waveformEvent(db.KindDemo, rec))
}

func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", tabular.TemplateCSVName))
		w.Write(tabular.TemplateCSV())
	case "xlsx":
		var buf bytes.Buffer
		if err := tabular.WriteTemplateXLSX(&buf); err != nil {
			s.logger.Error("failed to build xlsx template", "error", err)
			httputil.InternalServerError(w, "failed to build template")
			return
		}
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", tabular.TemplateXLSXName))
		buf.WriteTo(w)
	default:
		httputil.BadRequest(w, fmt.Sprintf("Unsupported template format %q", security.SanitizeFilename(format)))
	}
}

func (s *Server) handleTernaryChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	defer cleanupForm(r)
	start := s.clock.Now()
	ev := db.UploadEvent{Kind: db.KindCSV}

	res, name, err := s.readCSVUpload(w, r)
	ev.Filename = name
	if err != nil {
		s.fail(w, r, start, ev, err)
		return
	}

	var buf bytes.Buffer
	if err := chart.TernaryHTML(&buf, res, s.chartOptions()); err != nil {
		s.fail(w, r, start, ev, apperr.Wrap(apperr.Unexpected, msgRender, err))
		return
	}
	s.writeBody(w, "text/html; charset=utf-8", &buf)

	ev.Status = http.StatusOK
	ev.Rows = len(res.Data)
	s.record(r, start, ev)
}

func (s *Server) handleWaveformChart(w http.ResponseWriter, r *http.Request) {
	s.waveformChart(w, r, "text/html; charset=utf-8", chart.WaveformHTML)
}

func (s *Server) handleWaveformPNG(w http.ResponseWriter, r *http.Request) {
	s.waveformChart(w, r, "image/png", chart.WaveformPNG)
}

type waveformRenderer func(io.Writer, *waveform.Record, chart.Options) error

func (s *Server) waveformChart(w http.ResponseWriter, r *http.Request, contentType string, render waveformRenderer) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	defer cleanupForm(r)
	start := s.clock.Now()

	rec, name, err := s.readWFDBUpload(w, r)
	if err != nil {
		s.fail(w, r, start, db.UploadEvent{Kind: db.KindWFDB, Filename: name}, err)
		return
	}

	var buf bytes.Buffer
	if err := render(&buf, rec, s.chartOptions()); err != nil {
		s.fail(w, r, start, waveformEvent(db.KindWFDB, rec), apperr.Wrap(apperr.Unexpected, msgRender, err))
		return
	}
	s.writeBody(w, contentType, &buf)
	s.record(r, start, waveformEvent(db.KindWFDB, rec))
}

func (s *Server) writeBody(w http.ResponseWriter, contentType string, buf *bytes.Buffer) {
	w.Header().Set("Content-Type", contentType)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Warn("failed to write response", "error", err)
	}
}
