// Package export writes derived DSD time series as daily comma-separated
// files with a "#"-commented provenance header, and reads them back.
package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// DefaultPrecision is the number of decimals written when Options.Precision is nil.
const DefaultPrecision = 4

// DateLayout is the timestamp format of the date column.
const DateLayout = "2006-01-02 15:04:05"

// Column names fixed by the file format.
const (
	ColumnDate           = "date"
	ColumnPrecipCode     = "Precip Code"
	ColumnScatteringTemp = "Scattering Temp [deg C]"
	headerTitle          = "Disdrometer timeseries data file"
	headerCommentMarker  = `Comment lines are preceded by "#"`
	defaultFileMode      = 0o644
	defaultDirectoryMode = 0o755
)

// Options configures a Writer.
type Options struct {
	BaseDir string
	// CreateDirs creates missing output directories.
	CreateDirs bool
	// DatePartitioned places files under BaseDir/YYYY/YYYYMM/.
	DatePartitioned bool
	// FillValue replaces masked values. Defaults to dsd.DefaultFillValue.
	FillValue *float64
	// Precision is the number of decimals written; negative writes the
	// shortest exact representation. Defaults to DefaultPrecision.
	Precision *int
	// FrequencyHz and ElevationDeg label files of datasets that carry no
	// scattering information.
	FrequencyHz  float64
	ElevationDeg float64
}

// Writer exports fields of a DropSizeDistribution.
type Writer struct {
	opts      Options
	fill      float64
	precision int
	runID     string
	logger    *zap.SugaredLogger
	metrics   *observability.Metrics
}

// NewWriter creates a Writer. metrics may be nil.
func NewWriter(opts Options, logger *zap.SugaredLogger, metrics *observability.Metrics) *Writer {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	fill := dsd.DefaultFillValue
	if opts.FillValue != nil {
		fill = *opts.FillValue
	}
	precision := DefaultPrecision
	if opts.Precision != nil {
		precision = *opts.Precision
	}
	return &Writer{
		opts:      opts,
		fill:      fill,
		precision: precision,
		runID:     uuid.New().String(),
		logger:    logger,
		metrics:   metrics,
	}
}

// RunID identifies this writer's run in the file headers.
func (w *Writer) RunID() string { return w.runID }

// SetRunID overrides the generated run ID.
func (w *Writer) SetRunID(id string) { w.runID = id }

// WriteAll exports every listed field. All mappings and fields are checked
// before any file is touched.
func (w *Writer) WriteAll(d *dsd.DropSizeDistribution, fields []string) ([]string, error) {
	for _, f := range fields {
		if _, err := ExternalName(f); err != nil {
			return nil, err
		}
		if _, err := d.RequireField(f); err != nil {
			return nil, err
		}
	}

	paths := make([]string, 0, len(fields))
	for _, f := range fields {
		p, err := w.Write(d, f)
		if err != nil {
			return paths, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// Write exports one field. A new file is written to a temporary file and
// renamed into place; an existing file gets the new rows appended in a
// single write and its existing content is left untouched.
func (w *Writer) Write(d *dsd.DropSizeDistribution, field string) (string, error) {
	name, err := ExternalName(field)
	if err != nil {
		return "", err
	}
	series, err := d.RequireField(field)
	if err != nil {
		return "", err
	}

	path := w.Path(d, name)
	rows, err := w.renderRows(d, series)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(path)
	if w.opts.CreateDirs {
		if err := os.MkdirAll(dir, defaultDirectoryMode); err != nil {
			return "", fmt.Errorf("error creating export directory %s: %w", dir, err)
		}
	}

	_, statErr := os.Stat(path)
	switch {
	case statErr == nil:
		if err := appendRows(path, rows); err != nil {
			return "", err
		}
		w.logger.Debugf("appended %d rows to %s", d.NumTime(), path)
	case errors.Is(statErr, fs.ErrNotExist):
		var buf bytes.Buffer
		w.writeHeader(&buf, d, series, name)
		buf.Write(rows)
		if err := writeAtomic(path, buf.Bytes()); err != nil {
			return "", err
		}
		w.logger.Debugf("wrote %d rows to new file %s", d.NumTime(), path)
	default:
		return "", fmt.Errorf("error checking export file %s: %w", path, statErr)
	}

	if w.metrics != nil {
		w.metrics.RowsExported.Add(float64(d.NumTime()))
	}
	return path, nil
}

// Path returns the destination of an export. name is the external field name.
func (w *Writer) Path(d *dsd.DropSizeDistribution, name string) string {
	start := d.Time[0].UTC()
	freq, elev := w.labels(d)
	file := fmt.Sprintf("%s_%s_%.1fGHz_%s_el%.1f.csv",
		start.Format("20060102"), sanitize(d.StationName()), freq/1e9, name, elev)

	dir := w.opts.BaseDir
	if w.opts.DatePartitioned {
		dir = filepath.Join(dir, start.Format("2006"), start.Format("200601"))
	}
	return filepath.Join(dir, file)
}

func (w *Writer) labels(d *dsd.DropSizeDistribution) (freq, elev float64) {
	if d.Scattering != nil {
		return d.Scattering.FrequencyHz, d.Scattering.ElevationDeg
	}
	return w.opts.FrequencyHz, w.opts.ElevationDeg
}

func (w *Writer) writeHeader(buf *bytes.Buffer, d *dsd.DropSizeDistribution, series *dsd.FieldSeries, name string) {
	freq, elev := w.labels(d)
	data := name
	if series.Units != "" {
		data = fmt.Sprintf("%s [%s]", name, series.Units)
	}

	lines := []string{
		headerTitle,
		headerCommentMarker,
		"Description: ",
		"Time series of " + name,
		fmt.Sprintf("Location [lat  lon]: %s  %s", d.Info[dsd.InfoLatitude], d.Info[dsd.InfoLongitude]),
		fmt.Sprintf("Elevation: %sm MSL", d.Info[dsd.InfoAltitude]),
		fmt.Sprintf("Elevation angle: %g", elev),
		fmt.Sprintf("Scattering Frequency: %.1f GHz", freq/1e9),
		"Data: " + data,
		"Start: " + d.Time[0].UTC().Format(DateLayout) + " UTC",
		fmt.Sprintf("Generated: %s run %s", clock.Now().UTC().Format(time.RFC3339), w.runID),
	}
	for _, l := range lines {
		buf.WriteString("# " + l + "\n")
	}
	buf.WriteString("#\n")

	cw := csv.NewWriter(buf)
	cw.Write([]string{ColumnDate, ColumnPrecipCode, name, ColumnScatteringTemp})
	cw.Flush()
}

// renderRows formats every row before any I/O so a formatting problem can
// never leave a partial file.
func (w *Writer) renderRows(d *dsd.DropSizeDistribution, series *dsd.FieldSeries) ([]byte, error) {
	codes, _ := d.Labels(dsd.FieldPrecipCode)

	temp := ""
	if d.Scattering != nil {
		temp = strconv.FormatFloat(d.Scattering.TemperatureC, 'g', -1, 64)
	}

	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for t := 0; t < d.NumTime(); t++ {
		code := ""
		if codes != nil {
			if c, ok := codes.At(t); ok {
				code = c
			}
		}
		row := []string{d.Time[t].UTC().Format(DateLayout), code, w.formatValue(series, t), temp}
		if err := cw.Write(row); err != nil {
			return nil, fmt.Errorf("error rendering row %d: %w", t, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, fmt.Errorf("error rendering rows: %w", err)
	}
	return buf.Bytes(), nil
}

func (w *Writer) formatValue(series *dsd.FieldSeries, t int) string {
	if !series.IsSpectral() {
		return w.formatFloat(series, t, 0)
	}
	parts := make([]string, series.NumBins)
	for b := range parts {
		parts[b] = w.formatFloat(series, t, b)
	}
	return strings.Join(parts, " ")
}

func (w *Writer) formatFloat(series *dsd.FieldSeries, t, b int) string {
	v, ok := series.At(t, b)
	if !ok {
		v = w.fill
	}
	if w.precision < 0 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.FormatFloat(v, 'f', w.precision, 64)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("error creating temporary export file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error writing %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("error syncing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error closing %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, defaultFileMode); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error setting mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("error moving export file into place at %s: %w", path, err)
	}
	return nil
}

func appendRows(path string, rows []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0)
	if err != nil {
		return fmt.Errorf("error opening %s for append: %w", path, err)
	}
	if _, err := f.Write(rows); err != nil {
		f.Close()
		return fmt.Errorf("error appending to %s: %w", path, err)
	}
	return f.Close()
}

func sanitize(s string) string {
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ' ':
			return '_'
		}
		if r == os.PathSeparator {
			return '_'
		}
		return r
	}, s)
}
