package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"attribution-engine/internal/domain"
)

// Problem is an RFC 7807 error body.
type Problem struct {
	Type      string              `json:"type,omitempty"`
	Title     string              `json:"title,omitempty"`
	Status    int                 `json:"status,omitempty"`
	Detail    string              `json:"detail,omitempty"`
	Instance  string              `json:"instance,omitempty"`
	RequestID string              `json:"requestId,omitempty"`
	Errors    map[string][]string `json:"errors,omitempty"`
}

// WriteProblem writes a problem+json response.
func WriteProblem(w http.ResponseWriter, r *http.Request, status int, title, detail string, errs map[string][]string) {
	p := Problem{
		Title:  title,
		Status: status,
		Detail: detail,
		Errors: errs,
	}
	if r != nil {
		p.Instance = r.URL.Path
		p.RequestID = RequestIDFrom(r.Context())
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(p)
}

// writeError maps a domain error to a problem response.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var (
		ve *domain.ValidationError
		nf *domain.NotFoundError
		ce *domain.ComputationError
		se *domain.StorageError
	)

	switch {
	case errors.As(err, &ve):
		WriteProblem(w, r, http.StatusBadRequest, "validation failed", "one or more fields are invalid", ve.FieldMap())
	case errors.As(err, &nf):
		WriteProblem(w, r, http.StatusNotFound, "not found", nf.Error(), nil)
	case errors.As(err, &ce):
		logger.Error("computation failed", "path", r.URL.Path, "rid", RequestIDFrom(r.Context()), "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "computation failed", ce.Error(), nil)
	case errors.As(err, &se):
		logger.Error("storage failed", "path", r.URL.Path, "rid", RequestIDFrom(r.Context()), "error", err)
		WriteProblem(w, r, http.StatusBadGateway, "storage unavailable", "the touchpoint store could not be reached", nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		WriteProblem(w, r, http.StatusServiceUnavailable, "request cancelled", err.Error(), nil)
	default:
		logger.Error("unexpected error", "path", r.URL.Path, "rid", RequestIDFrom(r.Context()), "error", err)
		WriteProblem(w, r, http.StatusInternalServerError, "internal error", "unexpected error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
