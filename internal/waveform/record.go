// Package waveform turns uploaded WFDB record files into named, unit-tagged
// time series ready for charting.
package waveform

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/signal.viewer/internal/wfdb"
)

// DefaultUnit is reported for signals without units.
const DefaultUnit = "mV"

// Series is a sequence of samples. NaN and infinite values, which the record
// parser uses for invalid samples, encode as JSON null.
type Series []float64

// MarshalJSON implements json.Marshaler.
func (s Series) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	b := make([]byte, 0, 2+len(s)*8)
	b = append(b, '[')
	for i, v := range s {
		if i > 0 {
			b = append(b, ',')
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			b = append(b, "null"...)
			continue
		}
		b = strconv.AppendFloat(b, v, 'g', -1, 64)
	}
	return append(b, ']'), nil
}

// Signal is one channel of a record.
type Signal struct {
	Name    string `json:"name"`
	Unit    string `json:"unit"`
	Samples Series `json:"data"`
}

// Record is a loaded multi-channel recording. Every Signal has
// len(TimeAxis) samples.
type Record struct {
	RecordName        string
	SamplingFrequency float64
	NumSignals        int
	SignalNames       []string
	Units             []string
	TimeAxis          Series
	Signals           []Signal
	// Synthetic marks a record produced by the fallback generator.
	Synthetic bool
}

// NumSamples returns the number of samples per signal.
func (r *Record) NumSamples() int {
	return len(r.TimeAxis)
}

// TimeAxis returns n evenly spaced times from 0 to n/fs inclusive.
func TimeAxis(n int, fs float64) Series {
	switch n {
	case 0:
		return Series{}
	case 1:
		return Series{0}
	}
	return floats.Span(make([]float64, n), 0, float64(n)/fs)
}

// FromWFDB shapes a decoded record. Signals without a name are called
// Signal_<n> and signals without units are reported in DefaultUnit.
func FromWFDB(raw *wfdb.Record, recordName string) (*Record, error) {
	if raw.Fs <= 0 {
		return nil, fmt.Errorf("record %s has sampling frequency %g", recordName, raw.Fs)
	}
	nsamp, nsig := raw.Signal.Dims()

	rec := &Record{
		RecordName:        recordName,
		SamplingFrequency: raw.Fs,
		NumSignals:        nsig,
		SignalNames:       make([]string, nsig),
		Units:             make([]string, nsig),
		TimeAxis:          TimeAxis(nsamp, raw.Fs),
		Signals:           make([]Signal, nsig),
	}
	for i := 0; i < nsig; i++ {
		name := fmt.Sprintf("Signal_%d", i+1)
		if i < len(raw.SigName) && raw.SigName[i] != "" {
			name = raw.SigName[i]
		}
		unit := DefaultUnit
		if i < len(raw.Units) && raw.Units[i] != "" {
			unit = raw.Units[i]
		}
		rec.SignalNames[i] = name
		rec.Units[i] = unit
		rec.Signals[i] = Signal{
			Name:    name,
			Unit:    unit,
			Samples: mat.Col(nil, i, raw.Signal),
		}
	}
	return rec, nil
}

// Response is the JSON body returned for a loaded record.
type Response struct {
	Metadata   Metadata   `json:"metadata"`
	SignalData SignalData `json:"signal_data"`
	Filename   string     `json:"filename"`
}

// Metadata describes a record.
type Metadata struct {
	RecordName        string   `json:"record_name"`
	NumSignals        int      `json:"num_signals"`
	SamplingFrequency float64  `json:"sampling_frequency"`
	SignalNames       []string `json:"signal_names"`
	Units             []string `json:"units"`
	Synthetic         bool     `json:"synthetic,omitempty"`
}

// SignalData carries the samples of a record.
type SignalData struct {
	Time       Series   `json:"time"`
	Signals    []Signal `json:"signals"`
	NumSamples int      `json:"num_samples"`
}

// Response builds the JSON body for r.
func (r *Record) Response() Response {
	return Response{
		Metadata: Metadata{
			RecordName:        r.RecordName,
			NumSignals:        r.NumSignals,
			SamplingFrequency: r.SamplingFrequency,
			SignalNames:       r.SignalNames,
			Units:             r.Units,
			Synthetic:         r.Synthetic,
		},
		SignalData: SignalData{
			Time:       r.TimeAxis,
			Signals:    r.Signals,
			NumSamples: r.NumSamples(),
		},
		Filename: r.RecordName,
	}
}
