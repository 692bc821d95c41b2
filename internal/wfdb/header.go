// Package wfdb reads single-segment WFDB records: a text header (.hea)
// naming one or more binary signal files (.dat) in one of the common
// storage formats.
package wfdb

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Header defaults.
const (
	DefaultFrequency = 250.0
	DefaultGain      = 200.0
	DefaultUnits     = "mV"
)

// Header is a parsed record header.
type Header struct {
	RecordName  string
	NumSignals  int
	Fs          float64
	CounterFreq float64
	BaseCounter float64
	// NumSamples is the declared samples per signal; 0 means unknown.
	NumSamples int
	BaseTime   string
	BaseDate   string
	Signals    []SignalSpec
	Comments   []string
}

// SignalSpec is one signal specification line.
type SignalSpec struct {
	FileName        string
	Format          int
	SamplesPerFrame int
	Skew            int
	ByteOffset      int64
	Gain            float64
	Baseline        int
	Units           string
	ADCResolution   int
	ADCZero         int
	InitialValue    int
	Checksum        int
	BlockSize       int
	Description     string
}

// ParseHeader parses the text of a .hea file. Multi-segment records are not
// supported.
func ParseHeader(text string) (*Header, error) {
	var h *Header
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "#") {
			if h != nil {
				h.Comments = append(h.Comments, strings.TrimSpace(strings.TrimPrefix(line, "#")))
			}
			continue
		}
		// Trailing comments are allowed on specification lines.
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}

		if h == nil {
			rec, err := parseRecordLine(line)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", lineNo, err)
			}
			h = rec
			continue
		}
		if len(h.Signals) == h.NumSignals {
			// Extra lines after the signal block are info strings.
			continue
		}
		sig, err := parseSignalLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		h.Signals = append(h.Signals, sig)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan header: %w", err)
	}

	if h == nil {
		return nil, fmt.Errorf("header has no record line")
	}
	if len(h.Signals) != h.NumSignals {
		return nil, fmt.Errorf("header declares %d signals but specifies %d", h.NumSignals, len(h.Signals))
	}
	return h, nil
}

// parseRecordLine parses
// "name[/nseg] nsig [fs[/counterfreq[(base)]] [nsamp [time [date]]]]".
func parseRecordLine(line string) (*Header, error) {
	f := strings.Fields(line)
	if len(f) < 2 {
		return nil, fmt.Errorf("record line %q needs a name and a signal count", line)
	}

	h := &Header{RecordName: f[0], Fs: DefaultFrequency}
	if strings.Contains(f[0], "/") {
		return nil, fmt.Errorf("multi-segment record %q is not supported", f[0])
	}

	n, err := strconv.Atoi(f[1])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("invalid signal count %q", f[1])
	}
	h.NumSignals = n

	if len(f) > 2 {
		if err := parseFrequency(f[2], h); err != nil {
			return nil, err
		}
	}
	if len(f) > 3 {
		ns, err := strconv.Atoi(f[3])
		if err != nil || ns < 0 {
			return nil, fmt.Errorf("invalid sample count %q", f[3])
		}
		h.NumSamples = ns
	}
	if len(f) > 4 {
		h.BaseTime = f[4]
	}
	if len(f) > 5 {
		h.BaseDate = f[5]
	}
	return h, nil
}

// parseFrequency parses "fs[/counterfreq[(base)]]".
func parseFrequency(s string, h *Header) error {
	fsPart, counter, hasCounter := strings.Cut(s, "/")
	fs, err := strconv.ParseFloat(fsPart, 64)
	if err != nil || fs < 0 || !finite(fs) {
		return fmt.Errorf("invalid sampling frequency %q", s)
	}
	if fs > 0 {
		h.Fs = fs
	}
	if !hasCounter {
		return nil
	}

	freq, base, err := splitParen(counter)
	if err != nil {
		return fmt.Errorf("invalid counter frequency %q: %w", s, err)
	}
	if h.CounterFreq, err = strconv.ParseFloat(freq, 64); err != nil || !finite(h.CounterFreq) {
		return fmt.Errorf("invalid counter frequency %q", s)
	}
	if base != "" {
		if h.BaseCounter, err = strconv.ParseFloat(base, 64); err != nil || !finite(h.BaseCounter) {
			return fmt.Errorf("invalid base counter value %q", s)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// parseSignalLine parses
// "file format[xN][:skew][+offset] [gain[(baseline)][/units] [adcres [adczero
// [initval [checksum [blocksize [description]]]]]]]".
func parseSignalLine(line string) (SignalSpec, error) {
	f := strings.Fields(line)
	if len(f) < 2 {
		return SignalSpec{}, fmt.Errorf("signal line %q needs a file name and a format", line)
	}

	sig := SignalSpec{
		FileName:        f[0],
		SamplesPerFrame: 1,
		Gain:            DefaultGain,
		Units:           DefaultUnits,
	}
	if err := parseFormat(f[1], &sig); err != nil {
		return SignalSpec{}, err
	}

	ints := []*int{&sig.ADCResolution, &sig.ADCZero, &sig.InitialValue, &sig.Checksum, &sig.BlockSize}
	names := []string{"ADC resolution", "ADC zero", "initial value", "checksum", "block size"}
	for i, dst := range ints {
		if len(f) <= 3+i {
			break
		}
		v, err := strconv.Atoi(f[3+i])
		if err != nil {
			return SignalSpec{}, fmt.Errorf("invalid %s %q", names[i], f[3+i])
		}
		*dst = v
	}
	if len(f) <= 5 {
		sig.InitialValue = sig.ADCZero
	}

	sig.Baseline = sig.ADCZero
	if len(f) > 2 {
		if err := parseGain(f[2], &sig); err != nil {
			return SignalSpec{}, err
		}
	}
	if len(f) > 8 {
		sig.Description = strings.Join(f[8:], " ")
	}
	return sig, nil
}

// parseFormat parses "format[xN][:skew][+offset]".
func parseFormat(s string, sig *SignalSpec) error {
	end := strings.IndexAny(s, "x:+")
	if end < 0 {
		end = len(s)
	}
	format, err := strconv.Atoi(s[:end])
	if err != nil {
		return fmt.Errorf("invalid storage format %q", s)
	}
	sig.Format = format

	rest := s[end:]
	for rest != "" {
		tag := rest[0]
		rest = rest[1:]
		next := strings.IndexAny(rest, "x:+")
		if next < 0 {
			next = len(rest)
		}
		v, err := strconv.ParseInt(rest[:next], 10, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("invalid storage format %q", s)
		}
		switch tag {
		case 'x':
			sig.SamplesPerFrame = int(v)
		case ':':
			sig.Skew = int(v)
		case '+':
			sig.ByteOffset = v
		}
		rest = rest[next:]
	}
	return nil
}

// parseGain parses "gain[(baseline)][/units]". A zero gain means the signal
// is uncalibrated and DefaultGain is used.
func parseGain(s string, sig *SignalSpec) error {
	gainPart, units, hasUnits := strings.Cut(s, "/")
	if hasUnits && units != "" {
		sig.Units = units
	}

	gain, baseline, err := splitParen(gainPart)
	if err != nil {
		return fmt.Errorf("invalid gain %q: %w", s, err)
	}
	g, err := strconv.ParseFloat(gain, 64)
	if err != nil {
		return fmt.Errorf("invalid gain %q", s)
	}
	if g != 0 {
		sig.Gain = g
	}
	if baseline != "" {
		b, err := strconv.Atoi(baseline)
		if err != nil {
			return fmt.Errorf("invalid baseline %q", s)
		}
		sig.Baseline = b
	}
	return nil
}

// splitParen splits "value(inner)" into value and inner.
func splitParen(s string) (value, inner string, err error) {
	open := strings.IndexByte(s, '(')
	if open < 0 {
		return s, "", nil
	}
	if !strings.HasSuffix(s, ")") {
		return "", "", fmt.Errorf("unbalanced parenthesis")
	}
	return s[:open], s[open+1 : len(s)-1], nil
}
