package domain

import (
	"fmt"
	"time"
)

// Threshold kinds for quality checks.
const (
	ThresholdMaxPercent  = "max_percent"
	ThresholdMinCount    = "min_count"
	ThresholdMaxAgeHours = "max_age_hours"
	ThresholdMaxCount    = "max_count"
)

// Quality check types, determining how the actual value is measured.
const (
	CheckTypeNullPercent    = "null_percent"
	CheckTypeRowCount       = "row_count"
	CheckTypeFreshness      = "freshness"
	CheckTypeDuplicateCount = "duplicate_count"
)

// Quality result statuses.
const (
	QualityPass = "pass"
	QualityFail = "fail"
)

// QualityCheck is a data quality check definition bound to a pipeline.
type QualityCheck struct {
	ID             string
	PipelineID     string
	Name           string
	CheckType      string
	TargetTable    string
	TargetColumn   *string
	ThresholdType  string
	ThresholdValue float64
	IsActive       bool
}

// Validate checks that the definition is well-formed.
func (c *QualityCheck) Validate() error {
	if c.Name == "" {
		return ErrValidation("check name is required")
	}
	if c.PipelineID == "" {
		return ErrValidation("pipeline_id is required")
	}
	if c.TargetTable == "" {
		return ErrValidation("target_table is required")
	}
	return nil
}

// QualityResult is one recorded evaluation of a check. Results are
// append-only; the current result for a check is the latest by CheckedAt.
type QualityResult struct {
	ID            string
	CheckID       string
	RunID         *string
	Status        string
	ActualValue   float64
	ExpectedValue float64
	CheckedAt     time.Time
	Details       string // free-form JSON detail payload
}

// CheckWithResult pairs an active check with its most recent result.
// Result is nil for checks that have never been evaluated — absence of a
// result is not a failure.
type CheckWithResult struct {
	Check  QualityCheck
	Result *QualityResult
}

// EvaluateThreshold reduces a measured value plus a threshold kind/value to a
// pass/fail verdict. Equality passes for every kind. Unknown threshold kinds
// fail closed with a diagnostic detail — never silently pass.
func EvaluateThreshold(kind string, threshold, actual float64) (status, detail string) {
	switch kind {
	case ThresholdMaxPercent, ThresholdMaxAgeHours, ThresholdMaxCount:
		if actual <= threshold {
			return QualityPass, ""
		}
		return QualityFail, fmt.Sprintf("actual %g exceeds %s threshold %g", actual, kind, threshold)
	case ThresholdMinCount:
		if actual >= threshold {
			return QualityPass, ""
		}
		return QualityFail, fmt.Sprintf("actual %g below %s threshold %g", actual, kind, threshold)
	default:
		return QualityFail, fmt.Sprintf("unrecognized threshold kind %q", kind)
	}
}
