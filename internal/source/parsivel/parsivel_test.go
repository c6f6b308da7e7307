package parsivel

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrissnell/disdrometer/internal/source"
	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// telegram renders one line in DefaultLayout. Bin 3 carries log10 N = 2 and
// every other class is the instrument fill; raw class (v=5, d=3) holds 7 drops.
func telegram(ts string, intensity float64, code string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s;%07.3f;%05.1f;%05d;%s", ts, intensity, 21.3, 42, code)
	for i := 0; i < numClasses; i++ {
		if i == 3 {
			b.WriteString(";02.000")
		} else {
			b.WriteString(";-9.999")
		}
	}
	for i := 0; i < numClasses; i++ {
		fmt.Fprintf(&b, ";%.3f", 0.1*float64(i+1))
	}
	for iv := 0; iv < numClasses; iv++ {
		for id := 0; id < numClasses; id++ {
			if iv == 5 && id == 3 {
				b.WriteString(";007")
			} else {
				b.WriteString(";000")
			}
		}
	}
	b.WriteString(";")
	return b.String()
}

func TestReadOTT(t *testing.T) {
	input := strings.Join([]string{
		"# logged by parsivel-logger",
		telegram("2018-03-15T00:00:30Z", 1.234, "RA"),
		"",
		telegram("2018-03-15T00:01:00Z", 0.5, "-DZ"),
	}, "\n")

	s, err := Read(strings.NewReader(input), Options{Name: "amf", Info: map[string]string{dsd.InfoStationName: "amf"}}, nil)
	require.NoError(t, err)

	assert.Equal(t, "parsivel:amf", s.Name())
	require.Len(t, s.Time(), 2)
	assert.Equal(t, 30, s.Time()[0].Second())
	assert.Equal(t, 0, s.Skipped())

	caps := s.Capabilities()
	for _, c := range []source.Capability{source.Spectrum, source.Counts, source.Velocity, source.Intensity, source.Reflectivity, source.PrecipCode} {
		assert.True(t, caps.Has(c), "missing capability %s", c)
	}

	nd, err := s.Field(dsd.FieldNd)
	require.NoError(t, err)
	require.NoError(t, nd.Validate())
	assert.Equal(t, source.EncodingLog10, nd.Encoding)
	assert.Equal(t, []int{2, 32}, nd.Shape)
	assert.Equal(t, 2.0, nd.Data[3])
	assert.True(t, nd.Missing(0))
	assert.False(t, nd.Missing(3))

	rr, err := s.Field(dsd.FieldRainRate)
	require.NoError(t, err)
	assert.InDelta(t, 1.234, rr.Data[0], 1e-9)
	assert.InDelta(t, 0.5, rr.Data[1], 1e-9)

	raw, err := s.Field(dsd.FieldNumParticles)
	require.NoError(t, err)
	require.NoError(t, raw.Validate())
	assert.Equal(t, []int{2, 32, 32}, raw.Shape)
	assert.Equal(t, 7.0, raw.Data[3*numClasses+5], "raw matrix should be stored [d][v]")

	codes, err := s.Labels(dsd.FieldPrecipCode)
	require.NoError(t, err)
	assert.Equal(t, []string{"RA", "-DZ"}, codes.Values)

	assert.Equal(t, "amf", s.Info()[dsd.InfoStationName])
	assert.Equal(t, 32, must(s.Geometry()).NumBins())
}

func TestReadARMVariant(t *testing.T) {
	s, err := Read(strings.NewReader(telegram("2018-03-15T00:00:30Z", 2, "RA")), Options{Variant: VariantARM}, nil)
	require.NoError(t, err)

	assert.True(t, s.Supplies(dsd.FieldNd))
	assert.True(t, s.Supplies(dsd.FieldVelocity))
	assert.True(t, s.Supplies(dsd.FieldRainRateARM))
	assert.False(t, s.Supplies(dsd.FieldRainRate))
	assert.False(t, s.Supplies(dsd.FieldPrecipCode))

	_, err = s.Field(dsd.FieldReflectivity)
	var missing *dsd.MissingFieldError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, dsd.FieldReflectivity, missing.Field)
}

func TestReadSkipsMalformedLines(t *testing.T) {
	input := strings.Join([]string{
		telegram("2018-03-15T00:00:30Z", 1, "RA"),
		"2018-03-15T00:01:00Z;0001.000;truncated",
		strings.Replace(telegram("2018-03-15T00:01:30Z", 1, "RA"), ";02.000", ";xx", 1),
		telegram("2018-03-15T00:02:00Z", 1, "RA"),
	}, "\n")

	s, err := Read(strings.NewReader(input), Options{}, nil)
	require.NoError(t, err)
	assert.Len(t, s.Time(), 2)
	assert.Equal(t, 2, s.Skipped())

	nd, err := s.Field(dsd.FieldNd)
	require.NoError(t, err)
	assert.NoError(t, nd.Validate())
}

func TestReadBadTimestamp(t *testing.T) {
	_, err := Read(strings.NewReader(telegram("yesterday", 1, "RA")), Options{}, nil)
	assert.Error(t, err)
}

func TestReadCustomLayout(t *testing.T) {
	opts := Options{Layout: []string{FieldIntensity, FieldWeatherMETAR}}
	s, err := Read(strings.NewReader("2018-03-15T00:00:30Z;0003.500;SN;\n"), opts, nil)
	require.NoError(t, err)

	assert.False(t, s.Capabilities().Has(source.Spectrum))
	assert.False(t, s.Supplies(dsd.FieldNd))
	rr, err := s.Field(dsd.FieldRainRate)
	require.NoError(t, err)
	assert.Equal(t, []float64{3.5}, rr.Data)
}

func TestUnknownVariant(t *testing.T) {
	_, err := Read(strings.NewReader(""), Options{Variant: "thies"}, nil)
	assert.Error(t, err)
}

func must(g *dsd.BinGeometry, err error) *dsd.BinGeometry {
	if err != nil {
		panic(err)
	}
	return g
}
