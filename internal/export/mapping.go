package export

import (
	"fmt"
	"sort"

	"github.com/chrissnell/disdrometer/pkg/dsd"
)

// fieldNames maps internal field names to the names used in export files.
// It covers every field the engine produces, including source channels and
// the extra moments M0 through M<dsd.MaxMomentOrder>. A field with no entry
// cannot be exported.
var fieldNames = map[string]string{
	dsd.FieldNd:          "Nd",
	dsd.FieldRainRate:    "RR",
	dsd.FieldW:           "LWC",
	dsd.FieldZh:          "dBZ",
	dsd.FieldZv:          "dBZv",
	dsd.FieldZdr:         "ZDR",
	dsd.FieldRhoHV:       "RhoHV",
	dsd.FieldDeltaCo:     "DeltaCo",
	dsd.FieldAi:          "Ah",
	dsd.FieldAv:          "Av",
	dsd.FieldAdr:         "Adp",
	dsd.FieldKdp:         "KDP",
	dsd.FieldLDR:         "LDR",
	dsd.FieldD0:          "D0",
	dsd.FieldDm:          "Dm",
	dsd.FieldDmax:        "Dmax",
	dsd.FieldNt:          "Nt",
	dsd.FieldNw:          "Nw",
	dsd.FieldN0:          "N0",
	dsd.FieldMu:          "mu",
	dsd.FieldLambda:      "Lambda",
	dsd.FieldSigmaM:      "sigma_m",
	dsd.FieldRainRateDSD: "RRdsd",
	dsd.FieldFitResidual: "FitRMSE",

	dsd.FieldRainRateARM:      "RRarm",
	dsd.FieldReflectivity:     "dBZdisdrometer",
	dsd.FieldTerminalVelocity: "Vt",
	dsd.FieldVelocity:         "V",
}

func init() {
	for n := 0; n <= dsd.MaxMomentOrder; n++ {
		name := fmt.Sprintf("M%d", n)
		fieldNames[name] = name
	}
}

// ExternalName returns the export name of an internal field.
func ExternalName(field string) (string, error) {
	name, ok := fieldNames[field]
	if !ok {
		return "", &dsd.UnknownFieldMappingError{Field: field}
	}
	return name, nil
}

// MappedFields returns every exportable internal field name, sorted.
func MappedFields() []string {
	out := make([]string, 0, len(fieldNames))
	for k := range fieldNames {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
