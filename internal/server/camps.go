package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/opencamphq/campd/internal/logging"
	"github.com/opencamphq/campd/internal/search"
	"github.com/opencamphq/campd/internal/store"
)

// validateCampRequest returns the first problem with req, or empty string.
func validateCampRequest(req campRequest) string {
	if strings.TrimSpace(req.Name) == "" {
		return "name is required"
	}
	if req.Capacity <= 0 {
		return "capacity must be positive"
	}
	if req.StartDate != "" && req.EndDate != "" && req.EndDate < req.StartDate {
		return "end_date must not precede start_date"
	}
	return ""
}

// handleCampList handles GET /api/camps.
func (s *Server) handleCampList(w http.ResponseWriter, r *http.Request) {
	camps, err := s.store.ListCamps(r.Context())
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if camps == nil {
		camps = []store.Camp{}
	}
	writeJSON(w, http.StatusOK, camps)
}

// handleCampCreate handles POST /api/camps.
func (s *Server) handleCampCreate(w http.ResponseWriter, r *http.Request) {
	var req campRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateCampRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	camp, err := s.store.CreateCamp(r.Context(), store.Camp{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.indexCamp(r, camp)
	writeJSON(w, http.StatusCreated, camp)
}

// handleCampGet handles GET /api/camps/{id}.
func (s *Server) handleCampGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	camp, err := s.store.GetCamp(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, camp)
}

// handleCampUpdate handles PUT /api/camps/{id}.
func (s *Server) handleCampUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req campRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if msg := validateCampRequest(req); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	camp, err := s.store.UpdateCamp(r.Context(), store.Camp{
		ID:          id,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Location:    req.Location,
		Capacity:    req.Capacity,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}

	s.indexCamp(r, camp)
	writeJSON(w, http.StatusOK, camp)
}

// handleCampDelete handles DELETE /api/camps/{id}. External resources (the
// camp's vector store and search index entry) are cleaned up best-effort:
// their loss is logged, never surfaced, since the record deletion already
// happened.
func (s *Server) handleCampDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	log := logging.FromContext(r.Context())

	camp, err := s.store.GetCamp(r.Context(), id)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if err := s.store.DeleteCamp(r.Context(), id); err != nil {
		writeStoreError(w, r, err)
		return
	}

	if camp.VectorStoreID != "" {
		if vs := s.providers.VectorStore(r.Context()); vs != nil {
			deleted, err := vs.DeleteStore(r.Context(), camp.VectorStoreID)
			switch {
			case err != nil:
				log.Warn("vector store cleanup failed",
					slog.String("vector_store_id", camp.VectorStoreID),
					slog.Any("error", err),
				)
			case !deleted:
				log.Warn("vendor did not confirm vector store deletion",
					slog.String("vector_store_id", camp.VectorStoreID),
				)
			}
		}
	}
	if s.search != nil {
		if err := s.search.RemoveCamp(r.Context(), id); err != nil {
			log.Warn("search index cleanup failed",
				slog.Int64("camp_id", id),
				slog.Any("error", err),
			)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleCampSearch handles GET /api/camps/search?q=...&limit=N.
func (s *Server) handleCampSearch(w http.ResponseWriter, r *http.Request) {
	if s.search == nil {
		writeError(w, http.StatusServiceUnavailable, "search is not configured")
		return
	}

	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, http.StatusBadRequest, "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	matches, err := s.search.Search(r.Context(), query, limit)
	if err != nil {
		logging.FromContext(r.Context()).Error("camp search failed", slog.Any("error", err))
		writeError(w, http.StatusBadGateway, "search backend failure")
		return
	}
	if matches == nil {
		matches = []search.Match{}
	}
	writeJSON(w, http.StatusOK, matches)
}

// indexCamp feeds the camp into the similarity index. Indexing is
// best-effort: a failure is logged and the write still succeeds.
func (s *Server) indexCamp(r *http.Request, camp store.Camp) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexCamp(r.Context(), camp); err != nil {
		logging.FromContext(r.Context()).Warn("camp indexing failed",
			slog.Int64("camp_id", camp.ID),
			slog.Any("error", err),
		)
	}
}

// handleAttendeeList handles GET /api/camps/{id}/attendees.
func (s *Server) handleAttendeeList(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.store.GetCamp(r.Context(), campID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	attendees, err := s.store.ListAttendees(r.Context(), campID)
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	if attendees == nil {
		attendees = []store.Attendee{}
	}
	writeJSON(w, http.StatusOK, attendees)
}

// handleAttendeeRegister handles POST /api/camps/{id}/attendees. A
// registration confirmation email goes out when the mail provider is
// configured; delivery failure never fails the registration.
func (s *Server) handleAttendeeRegister(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req attendeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if !strings.Contains(req.Email, "@") {
		writeError(w, http.StatusBadRequest, "a valid email is required")
		return
	}

	attendee, err := s.store.RegisterAttendee(r.Context(), store.Attendee{
		CampID: campID,
		RoleID: req.RoleID,
		Name:   strings.TrimSpace(req.Name),
		Email:  strings.ToLower(strings.TrimSpace(req.Email)),
	})
	if err != nil {
		writeStoreError(w, r, err)
		return
	}
	s.metrics.registrationsTotal.Inc()

	if mailer := s.providers.Mailer(r.Context()); mailer != nil {
		camp, err := s.store.GetCamp(r.Context(), campID)
		if err == nil {
			subject := fmt.Sprintf("Registration confirmed: %s", camp.Name)
			body := fmt.Sprintf("Hi %s,\n\nyour registration for %s is confirmed.\n", attendee.Name, camp.Name)
			if err := mailer.Send(r.Context(), attendee.Email, subject, body); err != nil {
				logging.FromContext(r.Context()).Warn("confirmation mail failed",
					slog.Int64("attendee_id", attendee.ID),
					slog.Any("error", err),
				)
			}
		}
	}

	writeJSON(w, http.StatusCreated, attendee)
}

// handleAttendeeRemove handles DELETE /api/camps/{id}/attendees/{attendeeID}.
func (s *Server) handleAttendeeRemove(w http.ResponseWriter, r *http.Request) {
	campID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	attendeeID, err := pathID(r, "attendeeID")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.RemoveAttendee(r.Context(), campID, attendeeID); err != nil {
		writeStoreError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
