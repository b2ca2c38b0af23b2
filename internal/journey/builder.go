// Package journey reconstructs customer journeys from the touchpoint log.
package journey

import (
	"context"
	"errors"
	"sort"

	"attribution-engine/internal/domain"
	"attribution-engine/internal/storage"
)

// ErrNotConversion is returned when a journey is requested for a plain touchpoint.
var ErrNotConversion = errors.New("touchpoint is not a conversion")

// Options controls journey windowing and near-duplicate collapse.
type Options struct {
	LookbackDays       int
	CollapseIntervalMs int64 // <= 0 disables collapse
}

// OptionsFromModel derives builder options from a model config.
func OptionsFromModel(cfg domain.ModelConfig) Options {
	return Options{
		LookbackDays:       cfg.Lookback(),
		CollapseIntervalMs: cfg.CollapseInterval(),
	}
}

// Builder reconstructs journeys. It only reads from the store.
type Builder struct {
	store storage.TouchpointStore
}

// NewBuilder creates a new journey builder.
func NewBuilder(store storage.TouchpointStore) *Builder {
	return &Builder{store: store}
}

// Build reconstructs the journey ending at conversion.
// Touchpoints of the same identity within [conversion - lookback, conversion] are
// ordered by (occurred_at, seq). Touchpoints ordered after the conversion are dropped
// and the conversion is always the final step.
func (b *Builder) Build(ctx context.Context, tenantID string, conversion *domain.Touchpoint, opts Options) (*domain.Journey, error) {
	if conversion == nil || !conversion.IsConversion() {
		return nil, ErrNotConversion
	}

	identity := conversion.IdentityKey()
	start := conversion.OccurredAt - int64(opts.LookbackDays)*domain.MillisPerDay

	tps, err := b.store.GetByIdentity(ctx, tenantID, identity, start, conversion.OccurredAt)
	if err != nil {
		return nil, &domain.StorageError{Op: "get touchpoints by identity", Err: err}
	}

	return Assemble(tenantID, conversion, tps, opts), nil
}

// Assemble builds a journey from an identity's touchpoints without touching storage.
// tps may be in any order and may include touchpoints outside the window.
func Assemble(tenantID string, conversion *domain.Touchpoint, tps []*domain.Touchpoint, opts Options) *domain.Journey {
	start := conversion.OccurredAt - int64(opts.LookbackDays)*domain.MillisPerDay

	prior := make([]*domain.Touchpoint, 0, len(tps))
	for _, tp := range tps {
		if tp.TouchpointID == conversion.TouchpointID {
			continue
		}
		if tp.OccurredAt < start || conversion.Before(tp) {
			continue
		}
		prior = append(prior, tp)
	}

	sort.SliceStable(prior, func(i, j int) bool {
		return prior[i].Before(prior[j])
	})

	steps := Collapse(prior, opts.CollapseIntervalMs)
	steps = append(steps, domain.JourneyStep{Touchpoint: conversion})

	return &domain.Journey{
		TenantID:     tenantID,
		IdentityKey:  conversion.IdentityKey(),
		Conversion:   conversion,
		Steps:        steps,
		LookbackDays: opts.LookbackDays,
	}
}

// Collapse merges touchpoints with the same channel and campaign that occur within
// intervalMs of the earliest retained touchpoint for that key. The earliest
// touchpoint is kept. Conversions are never merged. tps must be ordered.
func Collapse(tps []*domain.Touchpoint, intervalMs int64) []domain.JourneyStep {
	steps := make([]domain.JourneyStep, 0, len(tps))
	if intervalMs <= 0 {
		for _, tp := range tps {
			steps = append(steps, domain.JourneyStep{Touchpoint: tp})
		}
		return steps
	}

	anchor := make(map[[2]string]int) // channel+campaign -> index of retained step
	for _, tp := range tps {
		if tp.IsConversion() {
			steps = append(steps, domain.JourneyStep{Touchpoint: tp})
			continue
		}

		key := [2]string{tp.Channel, tp.Campaign}
		if i, ok := anchor[key]; ok && tp.OccurredAt-steps[i].Touchpoint.OccurredAt <= intervalMs {
			steps[i].Collapsed++
			continue
		}

		anchor[key] = len(steps)
		steps = append(steps, domain.JourneyStep{Touchpoint: tp})
	}
	return steps
}
