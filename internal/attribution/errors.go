package attribution

import "errors"

// Engine errors
var (
	ErrUnknownModel            = errors.New("unknown attribution model")
	ErrModelNeedsClarification = errors.New("ai_enhanced has no defined algorithm and requires product clarification; use data_driven")
	ErrEmptyJourney            = errors.New("journey has no touchpoints")
	ErrConservation            = errors.New("credited shares do not sum to conversion value")
)
