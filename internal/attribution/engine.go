// Package attribution allocates conversion credit across the steps of a journey.
//
// Every model is a pure function of the journey, the model parameters and, for
// data_driven, precomputed channel rates. The converting touchpoint is a full,
// credit-eligible step under every model unless ExcludeConversionTouch is set.
package attribution

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"attribution-engine/internal/domain"
)

// CreditScale is the number of decimal places credits are rounded to.
const CreditScale = 6

var one = decimal.NewFromInt(1)

// Allocate applies a model to a journey and returns per-step credit.
// Credits sum exactly to the conversion value; rounding remainder goes to the
// last step with positive weight.
func Allocate(j *domain.Journey, cfg domain.ModelConfig, rates Rates) (*domain.AttributionResult, error) {
	if err := CheckModel(cfg.Type); err != nil {
		return nil, err
	}
	weigh := models[cfg.Type]
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if j == nil || j.Conversion == nil || len(j.Steps) == 0 {
		return nil, &domain.ValidationError{Fields: []domain.FieldError{{Field: "journey", Message: ErrEmptyJourney.Error()}}}
	}

	eligible := len(j.Steps)
	if cfg.ExcludeConversionTouch && eligible > 1 {
		eligible--
	}

	raw := weigh(j.Steps[:eligible], j.Conversion, cfg, rates)
	weights, err := normalize(raw)
	if err != nil {
		return nil, &domain.ComputationError{Op: string(cfg.Type), Err: err}
	}

	value := j.Conversion.ConversionValue
	credits := split(value, weights)
	shares := split(one, weights)

	result := &domain.AttributionResult{
		Model:           cfg.Type,
		ConversionID:    j.Conversion.TouchpointID,
		OrderID:         j.Conversion.OrderID,
		ConversionValue: value,
		Steps:           make([]domain.StepCredit, len(j.Steps)),
	}
	for i, s := range j.Steps {
		sc := domain.StepCredit{
			Index:        i,
			TouchpointID: s.Touchpoint.TouchpointID,
			Channel:      s.Touchpoint.Channel,
			Campaign:     s.Touchpoint.Campaign,
			OccurredAt:   s.Touchpoint.OccurredAt,
			Credit:       decimal.Zero,
			OrderShare:   decimal.Zero,
		}
		if i < eligible {
			sc.Weight = weights[i]
			sc.Credit = credits[i]
			sc.OrderShare = shares[i]
		}
		result.Steps[i] = sc
	}

	if err := checkConservation(result); err != nil {
		return nil, &domain.ComputationError{Op: string(cfg.Type), Err: err}
	}
	return result, nil
}

// CheckModel returns a ComputationError if t has no allocation rule.
func CheckModel(t domain.ModelType) error {
	if t == domain.ModelAIEnhanced {
		return &domain.ComputationError{Op: "select model", Err: ErrModelNeedsClarification}
	}
	if _, ok := models[t]; !ok {
		return &domain.ComputationError{Op: "select model", Err: fmt.Errorf("%w: %q", ErrUnknownModel, t)}
	}
	return nil
}

// normalize scales weights to sum to 1.
func normalize(raw []float64) ([]float64, error) {
	var sum float64
	for _, w := range raw {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid weight %v", w)
		}
		sum += w
	}
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("weights sum to %v", sum)
	}
	out := make([]float64, len(raw))
	for i, w := range raw {
		out[i] = w / sum
	}
	return out, nil
}

// split divides total by normalized weights at CreditScale.
// The last positive-weight index absorbs the rounding remainder.
func split(total decimal.Decimal, weights []float64) []decimal.Decimal {
	last := -1
	for i, w := range weights {
		if w > 0 {
			last = i
		}
	}
	if last < 0 {
		return make([]decimal.Decimal, len(weights))
	}

	out := splitWith(total, weights, last, func(d decimal.Decimal) decimal.Decimal { return d.Round(CreditScale) })
	if out[last].IsNegative() {
		// Rounding up every share overshot a very small total.
		out = splitWith(total, weights, last, func(d decimal.Decimal) decimal.Decimal { return d.Truncate(CreditScale) })
	}
	return out
}

func splitWith(total decimal.Decimal, weights []float64, last int, round func(decimal.Decimal) decimal.Decimal) []decimal.Decimal {
	out := make([]decimal.Decimal, len(weights))
	assigned := decimal.Zero
	for i, w := range weights {
		if i == last || w <= 0 {
			out[i] = decimal.Zero
			continue
		}
		out[i] = round(total.Mul(decimal.NewFromFloat(w)))
		assigned = assigned.Add(out[i])
	}
	out[last] = total.Sub(assigned)
	return out
}

func checkConservation(r *domain.AttributionResult) error {
	if total := r.Total(); !total.Equal(r.ConversionValue) {
		return fmt.Errorf("%w: credited %s, value %s", ErrConservation, total, r.ConversionValue)
	}
	shares := decimal.Zero
	for _, s := range r.Steps {
		if s.Credit.IsNegative() {
			return fmt.Errorf("%w: negative credit %s", ErrConservation, s.Credit)
		}
		shares = shares.Add(s.OrderShare)
	}
	if !shares.Equal(one) {
		return fmt.Errorf("%w: order shares sum to %s", ErrConservation, shares)
	}
	return nil
}
