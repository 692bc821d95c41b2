package waveform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/banshee-data/signal.viewer/internal/apperr"
	"github.com/banshee-data/signal.viewer/internal/fsutil"
	"github.com/banshee-data/signal.viewer/internal/monitoring"
	"github.com/banshee-data/signal.viewer/internal/security"
	"github.com/banshee-data/signal.viewer/internal/wfdb"
)

// Record file suffixes. Matching is case-sensitive.
const (
	DataSuffix   = ".dat"
	HeaderSuffix = ".hea"
)

// Caller-visible failure messages.
const (
	msgNoFiles     = "No files uploaded"
	msgNoWFDB      = "No WFDB files found. Please upload .dat and .hea files."
	msgNoWFDBInfo  = "WFDB format requires both .dat (signal data) and .hea (header) files."
	msgNoData      = "Missing .dat file. Please upload the .dat file containing signal data."
	msgNoDataInfo  = "The .dat file contains the actual ECG signal data."
	msgNoHeader    = "Missing .hea file. Please upload the .hea file containing header information."
	msgNoHeaderInf = "The .hea file contains metadata like sampling frequency, signal names, and units."
	msgParse       = "Failed to read WFDB files. Please check your file format."
	msgProcessing  = "Error processing WFDB files"
)

// File is one uploaded file.
type File struct {
	Filename string
	Content  []byte
}

// Loader stages uploaded record files in a private temporary directory and
// reads the first record found there.
type Loader struct {
	fs       fsutil.FileSystem
	tempRoot string
	demo     bool
	gen      *Generator
	logger   *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithTempRoot sets the parent of the per-upload directories. The default
// "" is the OS temporary directory.
func WithTempRoot(dir string) LoaderOption {
	return func(l *Loader) { l.tempRoot = dir }
}

// WithDemoFallback makes Load return a synthetic record from gen instead of
// a ParseFailure when the record files cannot be parsed.
func WithDemoFallback(gen *Generator) LoaderOption {
	return func(l *Loader) {
		l.demo = true
		l.gen = gen
	}
}

// WithLogger sets the logger. The default discards.
func WithLogger(logger *slog.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader returns a Loader staging files on fs.
func NewLoader(fs fsutil.FileSystem, opts ...LoaderOption) *Loader {
	l := &Loader{fs: fs}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = monitoring.OrDiscard(l.logger)
	if l.demo && l.gen == nil {
		l.gen = NewGenerator(nil)
	}
	return l
}

// DemoMode reports whether parse failures fall back to synthetic records.
func (l *Loader) DemoMode() bool {
	return l.demo
}

// Generator returns the fallback generator, or nil outside demo mode.
func (l *Loader) Generator() *Generator {
	return l.gen
}

// Load reads the record carried by files. The staging directory is removed
// before Load returns.
func (l *Loader) Load(ctx context.Context, files []File) (*Record, error) {
	if len(files) == 0 {
		return nil, apperr.New(apperr.InvalidInputFormat, msgNoFiles)
	}
	if err := l.precheck(files); err != nil {
		return nil, err
	}

	dir, err := l.fs.MkdirTemp(l.tempRoot, "wfdb-*")
	if err != nil {
		return nil, processingError(fmt.Errorf("failed to create temporary directory: %w", err))
	}
	l.logger.Debug("staging upload", "dir", dir)
	defer func() {
		if err := l.fs.RemoveAll(dir); err != nil {
			l.logger.Warn("failed to remove staging directory", "dir", dir, "error", err)
		}
	}()

	if err := l.stage(ctx, dir, files); err != nil {
		return nil, err
	}

	names, err := l.fs.ReadDirNames(dir)
	if err != nil {
		return nil, processingError(fmt.Errorf("failed to list staged files: %w", err))
	}
	headerFile := ""
	for _, name := range names {
		if strings.HasSuffix(name, HeaderSuffix) {
			headerFile = name
			break
		}
	}
	if headerFile == "" {
		return nil, processingError(errors.New("missing required WFDB files"))
	}
	recordName := strings.TrimSuffix(headerFile, HeaderSuffix)
	l.logger.Debug("selected record", "record", recordName, "staged", names)

	raw, err := wfdb.ReadRecord(l.fs, dir, recordName)
	if err == nil {
		var rec *Record
		if rec, err = FromWFDB(raw, recordName); err == nil {
			l.logger.Debug("read record", "record", recordName,
				"samples", rec.NumSamples(), "signals", rec.NumSignals,
				"fs", rec.SamplingFrequency, "names", rec.SignalNames, "units", rec.Units)
			return rec, nil
		}
	}

	cause := fmt.Errorf("record %s: %w", recordName, err)
	if l.demo {
		l.logger.Warn("record unreadable, returning synthetic record", "record", recordName, "error", err)
		return l.gen.Synthesize(recordName), nil
	}
	l.logger.Warn("record unreadable", "record", recordName, "error", err)
	return nil, apperr.Wrap(apperr.ParseFailure, msgParse, cause).WithDetails("Error: " + cause.Error())
}

// precheck requires at least one data file and one header file.
func (l *Loader) precheck(files []File) error {
	var hasData, hasHeader bool
	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.Filename
		hasData = hasData || strings.HasSuffix(f.Filename, DataSuffix)
		hasHeader = hasHeader || strings.HasSuffix(f.Filename, HeaderSuffix)
	}
	l.logger.Debug("uploaded files", "files", names, "has_dat", hasData, "has_hea", hasHeader)

	switch {
	case !hasData && !hasHeader:
		return apperr.New(apperr.InvalidInputFormat, msgNoWFDB).WithDetails(msgNoWFDBInfo)
	case !hasData:
		return apperr.New(apperr.InvalidInputFormat, msgNoData).WithDetails(msgNoDataInfo)
	case !hasHeader:
		return apperr.New(apperr.InvalidInputFormat, msgNoHeader).WithDetails(msgNoHeaderInf)
	}
	return nil
}

// stage writes every named upload into dir under its base name.
func (l *Loader) stage(ctx context.Context, dir string, files []File) error {
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.Filename == "" {
			continue
		}
		path, err := security.ResolveUploadPath(dir, f.Filename)
		if err != nil {
			if errors.Is(err, security.ErrInvalidUploadName) {
				return apperr.Wrap(apperr.InvalidInputFormat, "Invalid file name", err).WithDetails(err.Error())
			}
			return processingError(err)
		}
		if err := l.fs.WriteFile(path, f.Content, 0o600); err != nil {
			return processingError(fmt.Errorf("failed to save %s: %w", filepath.Base(path), err))
		}
		l.logger.Debug("saved file", "path", path, "bytes", len(f.Content))
	}
	return nil
}

// processingError reports an environment failure. The cause is part of the
// caller-visible message.
func processingError(err error) error {
	return apperr.Newf(apperr.Unexpected, "%s: %v", msgProcessing, err)
}
