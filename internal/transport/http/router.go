// Package httptransport exposes indexed records and the validation action over HTTP.
package httptransport

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vietddude/boatwatch/internal/core/validation"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// Validator applies reviewer decisions.
type Validator interface {
	Submit(ctx context.Context, req validation.Request) (*validation.Outcome, error)
}

// Handler serves the /v1 record API.
type Handler struct {
	records   storage.RecordRepository
	validator Validator
	logger    *slog.Logger
	timeout   time.Duration
}

// New creates a Handler.
func New(records storage.RecordRepository, validator Validator, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		records:   records,
		validator: validator,
		logger:    logger.With("component", "http"),
		timeout:   30 * time.Second,
	}
}

// Register registers the record routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	api := chi.NewRouter()
	api.Use(middleware.RequestID)
	api.Use(middleware.Recoverer)
	api.Use(middleware.Timeout(h.timeout))

	api.Get("/events", h.handleListEvents)
	api.Get("/events/{id}", h.handleGetEvent)
	api.Get("/certificates", h.handleListCertificates)
	api.Get("/certificates/{id}", h.handleGetCertificate)
	api.Get("/boats/{boatID}/events", h.handleListEvents)
	api.Get("/boats/{boatID}/certificates", h.handleListCertificates)
	api.Get("/review-queue", h.handleReviewQueue)
	api.Post("/records/{id}/validation", h.handleValidation)

	r.Mount("/v1", api)
}
