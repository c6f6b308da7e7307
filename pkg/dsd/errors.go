package dsd

import (
	"errors"
	"fmt"
)

// ErrInvalidGeometry is returned (wrapped) when a bin definition is malformed.
// It is fatal for the dataset.
var ErrInvalidGeometry = errors.New("invalid bin geometry")

// ErrInvalidTimeAxis is returned when timestamps are missing or decrease.
var ErrInvalidTimeAxis = errors.New("invalid time axis")

// MissingFieldError reports a field the pipeline depends on that the raw
// source does not supply.
type MissingFieldError struct {
	Field  string
	Source string
}

func (e *MissingFieldError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("missing required field %q", e.Field)
	}
	return fmt.Sprintf("source %s is missing required field %q", e.Source, e.Field)
}

// IncompleteScatteringTableError aborts a scattering calculation when the
// table has no entry for a bin under the active configuration.
type IncompleteScatteringTableError struct {
	Config string
	Bin    int
}

func (e *IncompleteScatteringTableError) Error() string {
	return fmt.Sprintf("scattering table has no entry for bin %d under configuration %s", e.Bin, e.Config)
}

// UnknownFieldMappingError is returned by the exporter before any output is
// written when an internal field name has no external name.
type UnknownFieldMappingError struct {
	Field string
}

func (e *UnknownFieldMappingError) Error() string {
	return fmt.Sprintf("no export mapping for field %q", e.Field)
}

// StepError is a soft failure local to one time index. Calculators record it
// as a masked value and keep going; it is never returned for a whole series.
type StepError struct {
	Stage  string
	Index  int
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s failed at time index %d: %s", e.Stage, e.Index, e.Reason)
}

// FieldConflictError is returned when a calculator tries to replace or
// resize a field that already exists on the aggregate.
type FieldConflictError struct {
	Field  string
	Reason string
}

func (e *FieldConflictError) Error() string {
	return fmt.Sprintf("field %q: %s", e.Field, e.Reason)
}
