package waveform

import (
	"math"
	"math/rand/v2"
	"sync"

	"gonum.org/v1/gonum/stat/distuv"
)

// Fallback record parameters.
const (
	FallbackFrequency = 250.0
	FallbackSamples   = 1000
)

var (
	fallbackNames  = []string{"I", "II", "III"}
	fallbackScales = []float64{1.0, 0.8, 1.2}
)

const (
	beatRate   = 1.2 // beats per second
	beatCount  = 5
	noiseSigma = 0.05
)

// pulse is one Gaussian component of a heartbeat complex.
type pulse struct {
	amplitude, delay, width float64
}

var complexPulses = [...]pulse{
	{0.1, 0.1, 0.001},  // P wave
	{1.0, 0.2, 0.0005}, // QRS complex
	{0.3, 0.3, 0.002},  // T wave
}

// Generator synthesizes a plausible three-lead ECG for demo mode. It is safe
// for concurrent use.
type Generator struct {
	mu    sync.Mutex
	noise distuv.Normal
}

// NewGenerator returns a Generator drawing noise from src. A nil src uses a
// randomly seeded source.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{noise: distuv.Normal{Mu: 0, Sigma: noiseSigma, Src: src}}
}

// baseBeat returns the noise-free waveform at time t.
func baseBeat(t float64) float64 {
	var v float64
	for i := 0; i < beatCount; i++ {
		offset := float64(i) / beatRate
		for _, p := range complexPulses {
			d := t - offset - p.delay
			v += p.amplitude * math.Exp(-d*d/p.width)
		}
	}
	return v
}

// Synthesize returns a synthetic record named recordName with leads I, II
// and III. Lead II is scaled by 0.8 and lead III by 1.2; each lead gets its
// own noise before scaling.
func (g *Generator) Synthesize(recordName string) *Record {
	time := TimeAxis(FallbackSamples, FallbackFrequency)
	base := make([]float64, len(time))
	for i, t := range time {
		base[i] = baseBeat(t)
	}

	rec := &Record{
		RecordName:        recordName,
		SamplingFrequency: FallbackFrequency,
		NumSignals:        len(fallbackNames),
		SignalNames:       append([]string(nil), fallbackNames...),
		Units:             make([]string, len(fallbackNames)),
		TimeAxis:          time,
		Signals:           make([]Signal, len(fallbackNames)),
		Synthetic:         true,
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, name := range fallbackNames {
		samples := make(Series, len(base))
		for i, b := range base {
			samples[i] = (b + g.noise.Rand()) * fallbackScales[k]
		}
		rec.Units[k] = DefaultUnit
		rec.Signals[k] = Signal{Name: name, Unit: DefaultUnit, Samples: samples}
	}
	return rec
}
