package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ModelType identifies an attribution model.
type ModelType string

// Attribution model types.
const (
	ModelFirstTouch    ModelType = "first_touch"
	ModelLastTouch     ModelType = "last_touch"
	ModelLinear        ModelType = "linear"
	ModelTimeDecay     ModelType = "time_decay"
	ModelPositionBased ModelType = "position_based"
	ModelDataDriven    ModelType = "data_driven"

	// ModelAIEnhanced is accepted as a name but has no defined algorithm.
	ModelAIEnhanced ModelType = "ai_enhanced"
)

// Model defaults.
const (
	DefaultHalfLifeDays       = 7.0
	DefaultEdgeWeight         = 0.4
	DefaultLookbackDays       = 30
	DefaultCollapseIntervalMs = int64(30 * 60 * 1000)

	MaxLookbackDays = 365
)

// ModelConfig selects an attribution model and its parameters.
// It is supplied per query and never persisted as mutable state.
// Nil parameters mean "use the default".
type ModelConfig struct {
	Type ModelType

	// HalfLifeDays is the time_decay half-life.
	HalfLifeDays *float64
	// EdgeWeight is the share each edge touchpoint receives under position_based.
	EdgeWeight *float64
	// LookbackDays bounds journeys backward from each conversion.
	LookbackDays *int
	// CollapseIntervalMs merges same channel+campaign touchpoints closer than this.
	CollapseIntervalMs *int64
	// ExcludeConversionTouch removes the converting touchpoint from credit
	// when the journey has other touchpoints.
	ExcludeConversionTouch bool
}

// DefaultModelConfig returns a config for the given model with default parameters.
func DefaultModelConfig(t ModelType) ModelConfig {
	return ModelConfig{Type: t}
}

// HalfLife returns the effective time_decay half-life in days.
func (c ModelConfig) HalfLife() float64 {
	if c.HalfLifeDays == nil {
		return DefaultHalfLifeDays
	}
	return *c.HalfLifeDays
}

// Edge returns the effective position_based edge weight.
func (c ModelConfig) Edge() float64 {
	if c.EdgeWeight == nil {
		return DefaultEdgeWeight
	}
	return *c.EdgeWeight
}

// Lookback returns the effective lookback window in days.
func (c ModelConfig) Lookback() int {
	if c.LookbackDays == nil {
		return DefaultLookbackDays
	}
	return *c.LookbackDays
}

// LookbackMs returns the effective lookback window in milliseconds.
func (c ModelConfig) LookbackMs() int64 {
	return int64(c.Lookback()) * MillisPerDay
}

// CollapseInterval returns the effective collapse interval in milliseconds.
func (c ModelConfig) CollapseInterval() int64 {
	if c.CollapseIntervalMs == nil {
		return DefaultCollapseIntervalMs
	}
	return *c.CollapseIntervalMs
}

// Validate checks parameter ranges. The model type itself is resolved by the
// attribution engine, which reports unknown types as computation errors.
func (c ModelConfig) Validate() error {
	var errs []FieldError
	if c.Type == "" {
		errs = append(errs, FieldError{Field: "modelType", Message: "required"})
	}
	if hl := c.HalfLife(); !finite(hl) || hl <= 0 {
		errs = append(errs, FieldError{Field: "halfLifeDays", Message: "must be a finite number > 0"})
	}
	if ew := c.Edge(); !finite(ew) || ew <= 0 || ew > 0.5 {
		errs = append(errs, FieldError{Field: "edgeWeight", Message: "must be in (0, 0.5]"})
	}
	if lb := c.Lookback(); lb < 0 || lb > MaxLookbackDays {
		errs = append(errs, FieldError{Field: "lookbackDays", Message: fmt.Sprintf("must be in [0, %d]", MaxLookbackDays)})
	}
	if ci := c.CollapseInterval(); ci < 0 {
		errs = append(errs, FieldError{Field: "collapseIntervalMs", Message: "must be >= 0"})
	}
	if len(errs) > 0 {
		return &ValidationError{Fields: errs}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// Key returns a canonical string identifying the model and every effective parameter.
// Two configs with equal keys produce identical results.
func (c ModelConfig) Key() string {
	var b strings.Builder
	b.WriteString(string(c.Type))
	b.WriteString("|lb=")
	b.WriteString(strconv.Itoa(c.Lookback()))
	b.WriteString("|ci=")
	b.WriteString(strconv.FormatInt(c.CollapseInterval(), 10))
	switch c.Type {
	case ModelTimeDecay:
		b.WriteString("|hl=")
		b.WriteString(strconv.FormatFloat(c.HalfLife(), 'g', -1, 64))
	case ModelPositionBased:
		b.WriteString("|ew=")
		b.WriteString(strconv.FormatFloat(c.Edge(), 'g', -1, 64))
	}
	if c.ExcludeConversionTouch {
		b.WriteString("|xc")
	}
	return b.String()
}
