package httpapi

import (
	"net/url"
	"strconv"
	"strings"

	"attribution-engine/internal/domain"
)

// parseRange reads the required startDate and endDate query parameters.
func parseRange(q url.Values) (domain.DateRange, error) {
	start, end := strings.TrimSpace(q.Get("startDate")), strings.TrimSpace(q.Get("endDate"))

	var errs []domain.FieldError
	if start == "" {
		errs = append(errs, domain.FieldError{Field: "startDate", Message: "required"})
	}
	if end == "" {
		errs = append(errs, domain.FieldError{Field: "endDate", Message: "required"})
	}
	if len(errs) > 0 {
		return domain.DateRange{}, &domain.ValidationError{Fields: errs}
	}
	return domain.ParseDateRange(start, end)
}

// parseModelConfig reads modelType and the optional model parameters.
// defaultModel applies when modelType is absent; empty means required.
func parseModelConfig(q url.Values, defaultModel domain.ModelType) (domain.ModelConfig, error) {
	cfg := domain.ModelConfig{Type: domain.ModelType(strings.TrimSpace(q.Get("modelType")))}
	if cfg.Type == "" {
		cfg.Type = defaultModel
	}

	var errs []domain.FieldError
	if cfg.Type == "" {
		errs = append(errs, domain.FieldError{Field: "modelType", Message: "required"})
	}

	if v := q.Get("halfLifeDays"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "halfLifeDays", Message: "must be a number"})
		} else {
			cfg.HalfLifeDays = &f
		}
	}
	if v := q.Get("edgeWeight"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "edgeWeight", Message: "must be a number"})
		} else {
			cfg.EdgeWeight = &f
		}
	}
	if v := q.Get("lookbackDays"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "lookbackDays", Message: "must be an integer"})
		} else {
			cfg.LookbackDays = &n
		}
	}
	if v := q.Get("collapseMinutes"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "collapseMinutes", Message: "must be an integer"})
		} else {
			ms := n * 60 * 1000
			cfg.CollapseIntervalMs = &ms
		}
	}
	if v := q.Get("excludeConversionTouch"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, domain.FieldError{Field: "excludeConversionTouch", Message: "must be a boolean"})
		} else {
			cfg.ExcludeConversionTouch = b
		}
	}

	if len(errs) > 0 {
		return cfg, &domain.ValidationError{Fields: errs}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func parseLimit(q url.Values) (int, error) {
	v := q.Get("limit")
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError("limit", "must be a non-negative integer")
	}
	return n, nil
}
