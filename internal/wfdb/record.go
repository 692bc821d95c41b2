package wfdb

import (
	"fmt"
	"math"
	"path/filepath"

	"gonum.org/v1/gonum/mat"
)

// FileReader reads named files. fsutil.FileSystem satisfies it.
type FileReader interface {
	ReadFile(name string) ([]byte, error)
}

// Record is a decoded record in physical units.
type Record struct {
	Name    string
	Fs      float64
	SigName []string
	Units   []string
	// Signal holds one row per sample and one column per signal. Invalid
	// samples are NaN.
	Signal *mat.Dense
	Header *Header
}

// NumSamples returns the number of samples per signal.
func (r *Record) NumSamples() int {
	n, _ := r.Signal.Dims()
	return n
}

// NumSignals returns the number of signals.
func (r *Record) NumSignals() int {
	_, n := r.Signal.Dims()
	return n
}

// signalFile is one data file and the header signals stored in it.
type signalFile struct {
	name    string
	format  int
	offset  int64
	signals []int
}

// ReadRecord reads record name from dir: the header name+".hea" and the
// signal files it names, which must also live in dir.
func ReadRecord(fsys FileReader, dir, name string) (*Record, error) {
	text, err := fsys.ReadFile(filepath.Join(dir, name+".hea"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	h, err := ParseHeader(string(text))
	if err != nil {
		return nil, fmt.Errorf("failed to parse header %s.hea: %w", name, err)
	}
	if h.NumSignals == 0 {
		return nil, fmt.Errorf("record %s has no signals", h.RecordName)
	}

	files, err := groupFiles(h)
	if err != nil {
		return nil, err
	}

	digital := make([][]int, len(files))
	nsamp := h.NumSamples
	for i, sf := range files {
		samples, err := readSignalFile(fsys, dir, sf, h)
		if err != nil {
			return nil, err
		}
		digital[i] = samples
		frames := len(samples) / len(sf.signals)
		switch {
		case h.NumSamples > 0 && frames < h.NumSamples:
			return nil, fmt.Errorf("signal file %s holds %d samples per signal, header declares %d",
				sf.name, frames, h.NumSamples)
		case h.NumSamples == 0 && (i == 0 || frames < nsamp):
			nsamp = frames
		}
	}
	if nsamp == 0 {
		return nil, fmt.Errorf("record %s has no samples", h.RecordName)
	}

	m := mat.NewDense(nsamp, h.NumSignals, nil)
	for i, sf := range files {
		width := len(sf.signals)
		invalid := invalidSample[sf.format]
		for k, col := range sf.signals {
			spec := h.Signals[col]
			for row := 0; row < nsamp; row++ {
				d := digital[i][row*width+k]
				if d == invalid {
					m.Set(row, col, math.NaN())
					continue
				}
				m.Set(row, col, float64(d-spec.Baseline)/spec.Gain)
			}
		}
	}

	rec := &Record{
		Name:    h.RecordName,
		Fs:      h.Fs,
		SigName: make([]string, h.NumSignals),
		Units:   make([]string, h.NumSignals),
		Signal:  m,
		Header:  h,
	}
	for i, s := range h.Signals {
		rec.SigName[i] = s.Description
		rec.Units[i] = s.Units
	}
	return rec, nil
}

// groupFiles groups the header signals by file, in order of first use, and
// rejects layouts the decoder does not handle.
func groupFiles(h *Header) ([]signalFile, error) {
	var files []signalFile
	index := make(map[string]int)
	for i, s := range h.Signals {
		if !Supported(s.Format) {
			return nil, fmt.Errorf("signal %d: unsupported storage format %d", i+1, s.Format)
		}
		if s.SamplesPerFrame != 1 {
			return nil, fmt.Errorf("signal %d: %d samples per frame is not supported", i+1, s.SamplesPerFrame)
		}
		if s.Skew != 0 {
			return nil, fmt.Errorf("signal %d: skewed signals are not supported", i+1)
		}
		if s.FileName == "~" || filepath.Base(s.FileName) != s.FileName {
			return nil, fmt.Errorf("signal %d: invalid signal file name %q", i+1, s.FileName)
		}

		j, ok := index[s.FileName]
		if !ok {
			j = len(files)
			index[s.FileName] = j
			files = append(files, signalFile{name: s.FileName, format: s.Format, offset: s.ByteOffset})
		} else if files[j].format != s.Format {
			return nil, fmt.Errorf("signal %d: file %s mixes storage formats %d and %d",
				i+1, s.FileName, files[j].format, s.Format)
		}
		files[j].signals = append(files[j].signals, i)
	}
	return files, nil
}

// readSignalFile reads and decodes one data file.
func readSignalFile(fsys FileReader, dir string, sf signalFile, h *Header) ([]int, error) {
	data, err := fsys.ReadFile(filepath.Join(dir, sf.name))
	if err != nil {
		return nil, fmt.Errorf("failed to read signal file: %w", err)
	}
	if sf.offset < 0 {
		return nil, fmt.Errorf("signal file %s has negative byte offset %d", sf.name, sf.offset)
	}
	if sf.offset > int64(len(data)) {
		return nil, fmt.Errorf("signal file %s is shorter than its byte offset %d", sf.name, sf.offset)
	}
	data = data[sf.offset:]

	initial := make([]int, len(sf.signals))
	for k, col := range sf.signals {
		initial[k] = h.Signals[col].InitialValue
	}
	samples, err := decode(sf.format, data, len(sf.signals), initial)
	if err != nil {
		return nil, fmt.Errorf("signal file %s: %w", sf.name, err)
	}
	return samples, nil
}
