package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DSD_"

// ApplyEnv loads envFile (if it exists) into the process environment and
// then applies DSD_* overrides to c. Variables already set in the
// environment win over the file.
func ApplyEnv(c *ConfigData, envFile string) error {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	strs := map[string]*string{
		"SOURCE_TYPE":       &c.Source.Type,
		"SOURCE_PATH":       &c.Source.Path,
		"SOURCE_VARIANT":    &c.Source.Variant,
		"STATION_NAME":      &c.Source.Station.Name,
		"STATION_LATITUDE":  &c.Source.Station.Latitude,
		"STATION_LONGITUDE": &c.Source.Station.Longitude,
		"STATION_ALTITUDE":  &c.Source.Station.Altitude,
		"FIT_METHOD":        &c.Fit.Method,
		"SCATTERING_TABLE":  &c.Scattering.Table,
		"EXPORT_DIR":        &c.Export.BaseDir,
	}
	for k, dst := range strs {
		if v, ok := lookup(k); ok {
			*dst = v
		}
	}

	if v, ok := lookup("WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v, ok := lookup("SCATTERING_FREQUENCY_HZ"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSCATTERING_FREQUENCY_HZ: %w", EnvPrefix, err)
		}
		c.Scattering.FrequencyHz = f
	}
	if v, ok := lookup("SCATTERING_TEMPERATURE_C"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %sSCATTERING_TEMPERATURE_C: %w", EnvPrefix, err)
		}
		c.Scattering.TemperatureC = &f
	}
	if v, ok := lookup("EXPORT_FIELDS"); ok {
		c.Export.Fields = nil
		for _, f := range strings.Split(v, ",") {
			if f = strings.TrimSpace(f); f != "" {
				c.Export.Fields = append(c.Export.Fields, f)
			}
		}
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
