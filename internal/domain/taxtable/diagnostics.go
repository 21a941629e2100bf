package taxtable

import (
	"fmt"
	"strings"
)

// Severity of a diagnostic. Warnings keep the item, errors mean it was dropped
// or could not be classified.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Stage names the pipeline step that produced a diagnostic.
type Stage string

const (
	StageParse     Stage = "parse"
	StageNormalize Stage = "normalize"
	StageAggregate Stage = "aggregate"
	StageBundle    Stage = "bundle"
)

// Diagnostic is a non-fatal data-quality issue with enough context to show
// the user where it came from.
type Diagnostic struct {
	Severity Severity  `json:"severity"`
	Stage    Stage     `json:"stage"`
	Ref      SourceRef `json:"ref"`
	Field    string    `json:"field,omitempty"`
	Reason   string    `json:"reason"`
}

func (d Diagnostic) String() string {
	var b strings.Builder
	if ref := d.Ref.String(); ref != "" {
		b.WriteString(ref)
		b.WriteString(": ")
	}
	if d.Field != "" {
		fmt.Fprintf(&b, "[%s] ", d.Field)
	}
	b.WriteString(d.Reason)
	return b.String()
}

// Diagnostics accumulates issues in the order they were found.
type Diagnostics []Diagnostic

// Warn appends a warning.
func (ds *Diagnostics) Warn(stage Stage, ref SourceRef, field, format string, args ...any) {
	*ds = append(*ds, Diagnostic{
		Severity: SeverityWarning,
		Stage:    stage,
		Ref:      ref,
		Field:    field,
		Reason:   fmt.Sprintf(format, args...),
	})
}

// Error appends an error.
func (ds *Diagnostics) Error(stage Stage, ref SourceRef, field, format string, args ...any) {
	*ds = append(*ds, Diagnostic{
		Severity: SeverityError,
		Stage:    stage,
		Ref:      ref,
		Field:    field,
		Reason:   fmt.Sprintf(format, args...),
	})
}

// Warnings returns only the warnings.
func (ds Diagnostics) Warnings() []Diagnostic {
	return ds.filter(SeverityWarning)
}

// Errors returns only the errors.
func (ds Diagnostics) Errors() []Diagnostic {
	return ds.filter(SeverityError)
}

func (ds Diagnostics) filter(sev Severity) []Diagnostic {
	out := make([]Diagnostic, 0, len(ds))
	for _, d := range ds {
		if d.Severity == sev {
			out = append(out, d)
		}
	}
	return out
}

// Messages renders diagnostics as user-facing strings.
func Messages(ds []Diagnostic) []string {
	out := make([]string, len(ds))
	for i, d := range ds {
		out[i] = d.String()
	}
	return out
}

// Outcome is a payload plus the diagnostics collected while producing it.
type Outcome[T any] struct {
	Value       T
	Diagnostics Diagnostics
}
