// Package main generates synthetic OTT Parsivel² telegram logs from a gamma
// drop size distribution, for exercising dsdprocess without an instrument.
package main

import (
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/chrissnell/disdrometer/internal/log"
	"github.com/chrissnell/disdrometer/internal/moments"
	"github.com/chrissnell/disdrometer/internal/normalize"
	"github.com/chrissnell/disdrometer/internal/source/parsivel"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// Emulator generates telegrams for a rain event whose slope parameter
// oscillates over period.
type Emulator struct {
	geom       *dsd.BinGeometry
	velocities []float64
	rng        *rand.Rand

	n0, mu, lambda float64
	jitter         float64
	period         time.Duration
	interval       time.Duration
	start          time.Time
}

func NewEmulator(n0, mu, lambda, jitter float64, start time.Time, interval, period time.Duration, seed int64) *Emulator {
	return &Emulator{
		geom:       dsd.ParsivelGeometry(),
		velocities: dsd.ParsivelVelocityClasses(),
		rng:        rand.New(rand.NewSource(seed)),
		n0:         n0,
		mu:         mu,
		lambda:     lambda,
		jitter:     jitter,
		period:     period,
		interval:   interval,
		start:      start,
	}
}

// Telegram returns the record for step i.
func (e *Emulator) Telegram(i int) *parsivel.Telegram {
	ts := e.start.Add(time.Duration(i) * e.interval)
	phase := 2 * math.Pi * ts.Sub(e.start).Seconds() / e.period.Seconds()
	lambda := e.lambda * (1 + 0.3*math.Sin(phase)) * (1 + e.jitter*e.rng.NormFloat64())
	mu := e.mu + e.jitter*e.rng.NormFloat64()
	if lambda <= 0 {
		lambda = e.lambda
	}

	t := &parsivel.Telegram{Time: ts}
	nb := e.geom.NumBins()
	nd := make([]float64, nb)
	mask := make([]bool, nb)
	dt := e.interval.Seconds()

	for b := 0; b < nb; b++ {
		t.LogNd[b] = math.NaN()
		d := e.geom.Center(b)
		v := dsd.AtlasVelocity(d)
		area := normalize.DefaultBeamLength * (normalize.DefaultBeamWidth - d/2) * 1e-6
		if v <= 0 || area <= 0 {
			mask[b] = true
			continue
		}
		volume := area * dt * v * e.geom.Width(b)
		count := int(math.Round(dsd.GammaPSD(e.n0, mu, lambda, d) * volume))
		if count <= 0 {
			mask[b] = true
			continue
		}

		nd[b] = float64(count) / volume
		t.LogNd[b] = math.Log10(nd[b])
		t.Vd[b] = v
		t.Raw[e.velocityClass(v)][b] = count
		t.Particles += count
	}

	t.Reflectivity = -9.999
	bulk, err := moments.Step(e.geom, nd, mask, nil, nil, []int{6})
	if err == nil && !math.IsNaN(bulk.RainRate) {
		t.Intensity = bulk.RainRate
		if z := bulk.Moments[6]; z > 0 {
			t.Reflectivity = 10 * math.Log10(z)
		}
	}
	t.METAR, t.SYNOP = presentWeather(t.Intensity)
	return t
}

func (e *Emulator) velocityClass(v float64) int {
	best := 0
	for j, c := range e.velocities {
		if math.Abs(c-v) < math.Abs(e.velocities[best]-v) {
			best = j
		}
	}
	return best
}

// presentWeather returns the METAR and SYNOP codes for rain of intensity rr (mm/h).
func presentWeather(rr float64) (string, string) {
	switch {
	case rr <= 0:
		return "NP", "00"
	case rr < 2.5:
		return "-RA", "61"
	case rr < 7.6:
		return "RA", "63"
	default:
		return "+RA", "65"
	}
}

func main() {
	var (
		outFile  = flag.String("out", "", "Write telegrams to this file instead of stdout")
		steps    = flag.Int("steps", 60, "Number of telegrams to generate")
		startStr = flag.String("start", "", "Timestamp of the first telegram (RFC 3339); defaults to now")
		interval = flag.Duration("interval", time.Minute, "Time between telegrams")
		period   = flag.Duration("period", time.Hour, "Period of the slope parameter oscillation")
		n0       = flag.Float64("n0", 8000, "Gamma intercept parameter")
		mu       = flag.Float64("mu", 2, "Gamma shape parameter")
		lambda   = flag.Float64("lambda", 2.5, "Gamma slope parameter (1/mm)")
		jitter   = flag.Float64("jitter", 0.05, "Relative random perturbation of the gamma parameters")
		seed     = flag.Int64("seed", 1, "Random seed")
		layout   = flag.String("layout", "", "Comma-separated telegram field numbers; defaults to 01,07,11,06,90,91,93")
		debug    = flag.Bool("debug", false, "Turn on debugging output")
	)
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	start := time.Now().UTC().Truncate(time.Minute)
	if *startStr != "" {
		var err error
		start, err = time.Parse(time.RFC3339, *startStr)
		if err != nil {
			log.Fatalf("invalid -start: %v", err)
		}
	}
	if *interval <= 0 || *period <= 0 {
		log.Fatal("-interval and -period must be positive")
	}

	var fields []string
	if *layout != "" {
		fields = strings.Split(*layout, ",")
	}

	var out io.Writer = os.Stdout
	if *outFile != "" {
		f, err := os.Create(*outFile)
		if err != nil {
			log.Fatalf("error creating %s: %v", *outFile, err)
		}
		defer f.Close()
		out = f
	}

	emu := NewEmulator(*n0, *mu, *lambda, *jitter, start, *interval, *period, *seed)
	w := parsivel.NewWriter(out, fields, "")
	for i := 0; i < *steps; i++ {
		if err := w.Write(emu.Telegram(i)); err != nil {
			log.Fatalf("%v", err)
		}
	}
	if err := w.Flush(); err != nil {
		log.Fatalf("error flushing telegrams: %v", err)
	}
	log.Infof("wrote %d telegrams starting %s", *steps, start.Format(time.RFC3339))
}
