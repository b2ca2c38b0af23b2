package attribution

import (
	"math"

	"attribution-engine/internal/domain"
)

// Rates maps a channel to its historical touches-to-conversions ratio.
type Rates map[string]float64

// weightFunc returns one raw, non-negative weight per eligible step.
// Weights need not be normalized.
type weightFunc func(steps []domain.JourneyStep, conv *domain.Touchpoint, cfg domain.ModelConfig, rates Rates) []float64

// models is the lookup table from model type to its weight function.
var models = map[domain.ModelType]weightFunc{
	domain.ModelFirstTouch:    firstTouchWeights,
	domain.ModelLastTouch:     lastTouchWeights,
	domain.ModelLinear:        linearWeights,
	domain.ModelTimeDecay:     timeDecayWeights,
	domain.ModelPositionBased: positionBasedWeights,
	domain.ModelDataDriven:    dataDrivenWeights,
}

// SupportedModels lists the models the engine can allocate with, in display order.
func SupportedModels() []domain.ModelType {
	return []domain.ModelType{
		domain.ModelFirstTouch,
		domain.ModelLastTouch,
		domain.ModelLinear,
		domain.ModelTimeDecay,
		domain.ModelPositionBased,
		domain.ModelDataDriven,
	}
}

// IsSupported reports whether a model type has a weight function.
func IsSupported(t domain.ModelType) bool {
	_, ok := models[t]
	return ok
}

func firstTouchWeights(steps []domain.JourneyStep, _ *domain.Touchpoint, _ domain.ModelConfig, _ Rates) []float64 {
	w := make([]float64, len(steps))
	w[0] = 1
	return w
}

func lastTouchWeights(steps []domain.JourneyStep, _ *domain.Touchpoint, _ domain.ModelConfig, _ Rates) []float64 {
	w := make([]float64, len(steps))
	w[len(w)-1] = 1
	return w
}

func linearWeights(steps []domain.JourneyStep, _ *domain.Touchpoint, _ domain.ModelConfig, _ Rates) []float64 {
	w := make([]float64, len(steps))
	for i := range w {
		w[i] = 1
	}
	return w
}

// timeDecayWeights halves a step's weight for every halfLife days before the conversion.
// Exponents are taken relative to the step nearest the conversion, so that step
// weighs 1 and short half-lives cannot underflow every weight to zero.
func timeDecayWeights(steps []domain.JourneyStep, conv *domain.Touchpoint, cfg domain.ModelConfig, _ Rates) []float64 {
	halfLife := cfg.HalfLife()
	deltas := make([]float64, len(steps))
	nearest := math.Inf(1)
	for i, s := range steps {
		d := float64(conv.OccurredAt-s.Touchpoint.OccurredAt) / float64(domain.MillisPerDay)
		if d < 0 {
			d = 0
		}
		deltas[i] = d
		nearest = math.Min(nearest, d)
	}
	w := make([]float64, len(steps))
	for i, d := range deltas {
		w[i] = math.Pow(2, -(d-nearest)/halfLife)
	}
	return w
}

// positionBasedWeights gives each edge edgeWeight and splits the rest over the middle.
// Journeys of one or two steps fall back to linear.
func positionBasedWeights(steps []domain.JourneyStep, conv *domain.Touchpoint, cfg domain.ModelConfig, rates Rates) []float64 {
	n := len(steps)
	if n <= 2 {
		return linearWeights(steps, conv, cfg, rates)
	}

	edge := cfg.Edge()
	middle := (1 - 2*edge) / float64(n-2)

	w := make([]float64, n)
	for i := range w {
		w[i] = middle
	}
	w[0] = edge
	w[n-1] = edge
	return w
}

// dataDrivenWeights weights each step by (1/n) x historical conversion rate of its channel.
// Falls back to linear when no channel in the journey has a positive rate.
func dataDrivenWeights(steps []domain.JourneyStep, conv *domain.Touchpoint, cfg domain.ModelConfig, rates Rates) []float64 {
	n := float64(len(steps))
	w := make([]float64, len(steps))
	var sum float64
	for i, s := range steps {
		rate := rates[s.Touchpoint.Channel]
		if rate < 0 || math.IsNaN(rate) || math.IsInf(rate, 0) {
			rate = 0
		}
		w[i] = rate / n
		sum += w[i]
	}
	if sum == 0 {
		return linearWeights(steps, conv, cfg, rates)
	}
	return w
}
