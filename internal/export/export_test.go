package export

import (
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/disdrometer/internal/observability"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

var day = time.Date(2018, 3, 15, 0, 0, 0, 0, time.UTC)

func precision(n int) *int { return &n }

func dataset(t *testing.T, start time.Time, nt int) *dsd.DropSizeDistribution {
	t.Helper()
	geom, err := dsd.NewBinGeometry([]float64{1, 2}, []float64{1, 1})
	require.NoError(t, err)

	times := make([]time.Time, nt)
	for i := range times {
		times[i] = start.Add(time.Duration(i) * time.Minute)
	}
	d, err := dsd.New(geom, times, map[string]string{
		dsd.InfoStationName: "HUNTSVILLE",
		dsd.InfoLatitude:    "34.72",
		dsd.InfoLongitude:   "-86.64",
		dsd.InfoAltitude:    "190",
	})
	require.NoError(t, err)

	total := dsd.NewFieldSeries(dsd.FieldNt, dsd.UnitsPerM3, "Total concentration", nt, 0)
	for i := 0; i < nt; i++ {
		if i == 1 {
			continue // masked
		}
		total.Set(i, 0, 100+float64(i))
	}
	require.NoError(t, d.AddField(total))

	nd := dsd.NewFieldSeries(dsd.FieldNd, dsd.UnitsConcentration, "Number concentration", nt, 2)
	for i := 0; i < nt; i++ {
		nd.Set(i, 0, 10)
		nd.Set(i, 1, 5)
	}
	require.NoError(t, d.AddField(nd))

	codes := &dsd.LabelSeries{Name: dsd.FieldPrecipCode, Values: make([]string, nt), Valid: make([]bool, nt)}
	for i := range codes.Values {
		codes.Values[i], codes.Valid[i] = "RA", true
	}
	require.NoError(t, d.AddLabels(codes))

	d.Scattering = &dsd.ScatteringInfo{FrequencyHz: 2.8e9, TemperatureC: 20, ElevationDeg: 90, Source: "measured"}
	return d
}

func TestWriteRoundTrip(t *testing.T) {
	fake := clockwork.NewFakeClockAt(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	SetClock(fake)
	defer SetClock(nil)

	dir := t.TempDir()
	metrics := observability.NewMetricsForTesting()
	w := NewWriter(Options{BaseDir: dir, CreateDirs: true, DatePartitioned: true, Precision: precision(-1)}, nil, metrics)
	w.SetRunID("run-1")

	d := dataset(t, day, 3)
	path, err := w.Write(d, dsd.FieldNt)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "2018", "201803", "20180315_HUNTSVILLE_2.8GHz_Nt_el90.0.csv"), path)

	f, err := ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "Nt [1/m^3]", f.Header["Data"])
	assert.Equal(t, "2018-03-15 00:00:00 UTC", f.Header["Start"])
	assert.Equal(t, "34.72  -86.64", f.Header["Location [lat  lon]"])
	assert.Equal(t, "190m MSL", f.Header["Elevation"])
	assert.Equal(t, "2.8 GHz", f.Header["Scattering Frequency"])
	assert.Equal(t, "2024-05-01T12:00:00Z run run-1", f.Header["Generated"])

	assert.Equal(t, []string{ColumnDate, ColumnPrecipCode, "Nt", ColumnScatteringTemp}, f.Columns)
	require.Len(t, f.Rows, 3)
	assert.Equal(t, []string{"2018-03-15 00:00:00", "RA", "100", "20"}, f.Rows[0])
	assert.Equal(t, []string{"2018-03-15 00:01:00", "RA", "-9999", "20"}, f.Rows[1])
	assert.Equal(t, []string{"2018-03-15 00:02:00", "RA", "102", "20"}, f.Rows[2])
}

func TestWriteSpectrum(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Options{BaseDir: dir, Precision: precision(2)}, nil, nil)

	path, err := w.Write(dataset(t, day, 1), dsd.FieldNd)
	require.NoError(t, err)

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Rows, 1)
	assert.Equal(t, "10.00 5.00", f.Rows[0][2])
}

func TestAppendLeavesExistingBytes(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Options{BaseDir: dir, Precision: precision(-1)}, nil, nil)

	path, err := w.Write(dataset(t, day, 3), dsd.FieldNt)
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)
	sum := sha256.Sum256(before)

	// Same day, later steps.
	again, err := w.Write(dataset(t, day.Add(time.Hour), 2), dsd.FieldNt)
	require.NoError(t, err)
	require.Equal(t, path, again)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Greater(t, len(after), len(before))
	assert.Equal(t, sum, sha256.Sum256(after[:len(before)]))

	f, err := ReadFile(path)
	require.NoError(t, err)
	require.Len(t, f.Rows, 5)
	assert.Equal(t, "2018-03-15 01:01:00", f.Rows[4][0])
}

func TestUnknownMappingWritesNothing(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Options{BaseDir: dir}, nil, nil)
	d := dataset(t, day, 3)

	_, err := w.WriteAll(d, []string{dsd.FieldNt, "not_a_field"})
	var mapping *dsd.UnknownFieldMappingError
	require.True(t, errors.As(err, &mapping))
	assert.Equal(t, "not_a_field", mapping.Field)

	_, err = w.WriteAll(d, []string{dsd.FieldNt, dsd.FieldZh})
	var missing *dsd.MissingFieldError
	require.True(t, errors.As(err, &missing))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestWriteAllNoScattering(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(Options{BaseDir: dir, FrequencyHz: 9.4e9, ElevationDeg: 0}, nil, nil)
	d := dataset(t, day, 2)
	d.Scattering = nil

	paths, err := w.WriteAll(d, []string{dsd.FieldNt, dsd.FieldNd})
	require.NoError(t, err)
	require.Len(t, paths, 2)
	assert.Equal(t, "20180315_HUNTSVILLE_9.4GHz_Nt_el0.0.csv", filepath.Base(paths[0]))

	f, err := ReadFile(paths[0])
	require.NoError(t, err)
	assert.Equal(t, "", f.Rows[0][3])
	assert.Equal(t, "100.0000", f.Rows[0][2], "nil precision writes DefaultPrecision decimals")
}

func TestPathSanitizesStation(t *testing.T) {
	w := NewWriter(Options{BaseDir: "out"}, nil, nil)
	d := dataset(t, day, 1)
	d.Info[dsd.InfoStationName] = `NSSTC/roof a\b`

	assert.Equal(t, filepath.Join("out", "20180315_NSSTC_roof_a_b_2.8GHz_Nt_el90.0.csv"), w.Path(d, "Nt"))

	d.Info[dsd.InfoStationName] = ""
	assert.Equal(t, "20180315_unknown_2.8GHz_Nt_el90.0.csv", filepath.Base(w.Path(d, "Nt")))
}

func TestExternalName(t *testing.T) {
	name, err := ExternalName(dsd.FieldZh)
	require.NoError(t, err)
	assert.Equal(t, "dBZ", name)

	for _, f := range MappedFields() {
		_, err := ExternalName(f)
		assert.NoError(t, err, f)
	}
}
