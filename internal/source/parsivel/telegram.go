package parsivel

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"
	"time"
)

// Telegram is one instrument record in the fields the reader understands.
type Telegram struct {
	Time         time.Time
	Intensity    float64 // mm/h
	Reflectivity float64 // dBZ
	Particles    int
	SYNOP        string
	METAR        string
	// LogNd is log10 N(D) per diameter class; NaN prints the instrument fill.
	LogNd [numClasses]float64
	// Vd is the mean fall speed per diameter class in m/s.
	Vd [numClasses]float64
	// Raw holds counts indexed [velocity][diameter], the telegram order.
	Raw [numClasses][numClasses]int
}

// Format renders the telegram as one logged line in layout order.
func (t *Telegram) Format(layout []string, timeLayout string) string {
	if len(layout) == 0 {
		layout = DefaultLayout
	}
	if timeLayout == "" {
		timeLayout = time.RFC3339
	}

	var b strings.Builder
	b.WriteString(t.Time.UTC().Format(timeLayout))
	for _, id := range layout {
		switch id {
		case FieldIntensity:
			fmt.Fprintf(&b, ";%07.3f", t.Intensity)
		case FieldReflectivity:
			fmt.Fprintf(&b, ";%06.3f", t.Reflectivity)
		case FieldParticles:
			fmt.Fprintf(&b, ";%05d", t.Particles)
		case FieldWeatherSYNOP:
			b.WriteString(";" + t.SYNOP)
		case FieldWeatherMETAR:
			b.WriteString(";" + t.METAR)
		case FieldNd:
			for _, v := range t.LogNd {
				if math.IsNaN(v) {
					fmt.Fprintf(&b, ";%.3f", telegramFill)
				} else {
					fmt.Fprintf(&b, ";%06.3f", v)
				}
			}
		case FieldVd:
			for _, v := range t.Vd {
				fmt.Fprintf(&b, ";%06.3f", v)
			}
		case FieldRaw:
			for iv := range t.Raw {
				for _, n := range t.Raw[iv] {
					fmt.Fprintf(&b, ";%03d", n)
				}
			}
		default:
			b.WriteString(";0")
		}
	}
	b.WriteString(";")
	return b.String()
}

// Writer logs telegrams one per line.
type Writer struct {
	w          *bufio.Writer
	layout     []string
	timeLayout string
}

// NewWriter creates a Writer using layout and timeLayout; empty values use
// DefaultLayout and RFC 3339.
func NewWriter(w io.Writer, layout []string, timeLayout string) *Writer {
	return &Writer{w: bufio.NewWriter(w), layout: layout, timeLayout: timeLayout}
}

// Write appends one telegram line.
func (w *Writer) Write(t *Telegram) error {
	if _, err := w.w.WriteString(t.Format(w.layout, w.timeLayout) + "\n"); err != nil {
		return fmt.Errorf("error writing telegram: %w", err)
	}
	return nil
}

// Flush writes any buffered lines.
func (w *Writer) Flush() error {
	return w.w.Flush()
}
