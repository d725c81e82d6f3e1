package httptransport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vietddude/boatwatch/internal/core/domain"
	"github.com/vietddude/boatwatch/internal/core/validation"
	"github.com/vietddude/boatwatch/internal/infra/storage"
)

// reviewStatuses are the statuses a reviewer still has to act on.
var reviewStatuses = []domain.Status{domain.StatusSuspicious, domain.StatusPending}

func (h *Handler) handleListEvents(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	events, err := h.records.ListEvents(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponses(events))
}

func (h *Handler) handleListCertificates(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	certs, err := h.records.ListCertificates(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponses(certs))
}

func (h *Handler) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.records.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(e))
}

func (h *Handler) handleGetCertificate(w http.ResponseWriter, r *http.Request) {
	c, err := h.records.GetCertificate(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCertificateResponse(c))
}

func (h *Handler) handleReviewQueue(w http.ResponseWriter, r *http.Request) {
	filter, err := parseFilter(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = reviewStatuses
	}

	events, err := h.records.ListEvents(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	certs, err := h.records.ListCertificates(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ReviewQueueResponse{
		Events:       toEventResponses(events),
		Certificates: toCertificateResponses(certs),
	})
}

func (h *Handler) handleValidation(w http.ResponseWriter, r *http.Request) {
	var req ValidationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, fmt.Errorf("%w: invalid request body", errBadRequest))
		return
	}
	status, ok := domain.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if !ok {
		h.writeError(w, r, fmt.Errorf("%w: unknown status %q", errBadRequest, req.Status))
		return
	}

	out, err := h.validator.Submit(r.Context(), validation.Request{
		RecordID: chi.URLParam(r, "id"),
		Actor:    strings.TrimSpace(req.Actor),
		Status:   status,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	rec := out.Record
	h.logger.InfoContext(r.Context(), "validation applied",
		"record", rec.ID, "status", rec.Status, "actor", req.Actor, "noop", out.NoOp)
	writeJSON(w, http.StatusOK, ValidationResponse{
		ID:          rec.ID,
		Type:        string(rec.Type),
		Status:      string(rec.Status),
		ValidatedBy: rec.ValidatedBy,
		ValidatedAt: rec.ValidatedAt,
		NoOp:        out.NoOp,
	})
}

// parseFilter reads boat, status, limit and offset. A {boatID} path segment wins over ?boat=.
func parseFilter(r *http.Request) (storage.RecordFilter, error) {
	q := r.URL.Query()
	filter := storage.RecordFilter{BoatID: q.Get("boat")}
	if boatID := chi.URLParam(r, "boatID"); boatID != "" {
		filter.BoatID = boatID
	}

	for _, raw := range q["status"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			st, ok := domain.ParseStatus(s)
			if !ok {
				return filter, fmt.Errorf("%w: unknown status %q", errBadRequest, s)
			}
			filter.Statuses = append(filter.Statuses, st)
		}
	}

	var err error
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		return filter, fmt.Errorf("%w: limit: %v", errBadRequest, err)
	}
	if filter.Offset, err = intParam(q.Get("offset")); err != nil {
		return filter, fmt.Errorf("%w: offset: %v", errBadRequest, err)
	}
	filter.Limit = storage.NormalizeLimit(filter.Limit)
	return filter, nil
}

func intParam(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("must not be negative")
	}
	return n, nil
}
