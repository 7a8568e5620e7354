package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"clinic-triage/internal/models"
	"clinic-triage/internal/store"
	"clinic-triage/internal/telemetry"
	"clinic-triage/internal/triage"
)

// PatientStore is the persistence the HTTP layer needs beyond the triage core.
type PatientStore interface {
	triage.Repository
	CreatePatient(ctx context.Context, p store.CreatePatientParams) (models.Patient, error)
	ListPatients(ctx context.Context) ([]models.Patient, error)
	UpdatePatient(ctx context.Context, id string, u store.PatientUpdate) (models.Patient, error)
	DeletePatient(ctx context.Context, id string) error
}

// Server wires HTTP handlers for intake and the triage queue.
type Server struct {
	store     PatientStore
	engine    *triage.Engine
	lifecycle *triage.Controller
	limiter   func(http.Handler) http.Handler
	log       zerolog.Logger
	now       func() time.Time
}

// New constructs the API server. limiter may be nil.
func New(st PatientStore, engine *triage.Engine, lifecycle *triage.Controller, limiter func(http.Handler) http.Handler, log zerolog.Logger) *Server {
	return &Server{
		store:     st,
		engine:    engine,
		lifecycle: lifecycle,
		limiter:   limiter,
		log:       log,
		now:       time.Now,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.log))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Mount("/metrics", telemetry.Handler())

	r.Route("/patients", func(r chi.Router) {
		r.Get("/", s.handleList)
		r.With(s.rateLimited).Post("/", s.handleCreate)
		r.Get("/{id}", s.handleGet)
		r.Put("/{id}", s.handleUpdate)
		r.Delete("/{id}", s.handleDelete)
		r.Post("/{id}/status", s.handleTransition)
	})

	r.Route("/queue", func(r chi.Router) {
		r.Get("/", s.handleSnapshot)
		r.Get("/next", s.handlePeek)
		r.Post("/claim", s.handleClaim)
	})
	return r
}

func (s *Server) rateLimited(next http.Handler) http.Handler {
	if s.limiter == nil {
		return next
	}
	return s.limiter(next)
}

type createRequest struct {
	Name               string          `json:"name"`
	PhoneNumber        string          `json:"phone_number"`
	PartnerName        string          `json:"partner_name"`
	PartnerPhoneNumber string          `json:"partner_phone_number"`
	Description        string          `json:"description"`
	Category           models.Category `json:"manchester_priority"`
	SubPriority        int             `json:"priority"`
}

func (req createRequest) contacts() []models.Contact {
	out := []models.Contact{{Kind: models.ContactPatient, Name: req.Name, Phone: req.PhoneNumber}}
	if req.PartnerPhoneNumber != "" {
		out = append(out, models.Contact{Kind: models.ContactCompanion, Name: req.PartnerName, Phone: req.PartnerPhoneNumber})
	}
	return out
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || req.PhoneNumber == "" || req.Description == "" {
		writeError(w, http.StatusBadRequest, "name, phone_number and description are required")
		return
	}
	if req.Category == "" {
		req.Category = models.CategoryUndefined
	}
	if !validCategory(s.engine.Catalog(), req.Category) {
		writeError(w, http.StatusBadRequest, "unknown manchester_priority")
		return
	}

	p, err := s.store.CreatePatient(r.Context(), store.CreatePatientParams{
		Ticket:      triage.NewTicket(req.Category, req.SubPriority),
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		SubPriority: req.SubPriority,
		Contacts:    req.contacts(),
		ArrivalTime: s.now().UTC(),
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	telemetry.IntakeCounter.Inc()
	writeJSON(w, http.StatusCreated, project(r, p))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.ListPatients(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectAll(r, ps))
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project(r, p))
}

type updateRequest struct {
	Name               *string          `json:"name"`
	PhoneNumber        *string          `json:"phone_number"`
	PartnerName        *string          `json:"partner_name"`
	PartnerPhoneNumber *string          `json:"partner_phone_number"`
	Description        *string          `json:"description"`
	Category           *models.Category `json:"manchester_priority"`
	SubPriority        *int             `json:"priority"`
	Status             *models.Status   `json:"status"`
	State              *string          `json:"state"`
	Location           *string          `json:"location"`
}

func (req updateRequest) touchesContacts() bool {
	return req.Name != nil || req.PhoneNumber != nil || req.PartnerName != nil || req.PartnerPhoneNumber != nil
}

// mergeContacts rebuilds the contact list from current values plus the edit.
func (req updateRequest) mergeContacts(current models.Patient) []models.Contact {
	patient := models.Contact{Kind: models.ContactPatient, Name: current.Name}
	var companion models.Contact
	for _, c := range current.Contacts {
		switch c.Kind {
		case models.ContactPatient:
			patient = c
		case models.ContactCompanion:
			companion = c
		}
	}
	companion.Kind = models.ContactCompanion
	if req.Name != nil {
		patient.Name = *req.Name
	}
	if req.PhoneNumber != nil {
		patient.Phone = *req.PhoneNumber
	}
	if req.PartnerName != nil {
		companion.Name = *req.PartnerName
	}
	if req.PartnerPhoneNumber != nil {
		companion.Phone = *req.PartnerPhoneNumber
	}
	out := []models.Contact{patient}
	if companion.Phone != "" {
		out = append(out, companion)
	}
	return out
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Category != nil && !validCategory(s.engine.Catalog(), *req.Category) {
		writeError(w, http.StatusBadRequest, "unknown manchester_priority")
		return
	}

	current, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if req.Status != nil && *req.Status != current.Status && !current.Status.CanTransition(*req.Status) {
		s.fail(w, r, fmt.Errorf("%s -> %s: %w", current.Status, *req.Status, models.ErrInvalidTransition))
		return
	}
	u := store.PatientUpdate{
		Name:        req.Name,
		Description: req.Description,
		Category:    req.Category,
		SubPriority: req.SubPriority,
		State:       req.State,
		Location:    req.Location,
	}
	if req.touchesContacts() {
		contacts := req.mergeContacts(current)
		u.Contacts = &contacts
	}
	p, err := s.store.UpdatePatient(r.Context(), id, u)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	if req.Status != nil && *req.Status != p.Status {
		p, err = s.lifecycle.Transition(r.Context(), id, *req.Status)
		if err != nil {
			s.fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, project(r, p))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeletePatient(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type transitionRequest struct {
	Status models.Status `json:"status"`
}

func (s *Server) handleTransition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	p, err := s.lifecycle.Transition(r.Context(), chi.URLParam(r, "id"), req.Status)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project(r, p))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	ordered, err := s.engine.Snapshot(r.Context(), s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	items := make([]queueItem, 0, len(ordered))
	for i, rk := range ordered {
		items = append(items, toQueueItem(r, i+1, rk))
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handlePeek(w http.ResponseWriter, r *http.Request) {
	head, err := s.engine.PeekNext(r.Context(), s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toQueueItem(r, 1, head))
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	p, err := s.engine.ClaimNext(r.Context(), s.now())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, project(r, p))
}

func validCategory(c *triage.Catalog, cat models.Category) bool {
	return cat == models.CategoryUndefined || c.Known(cat)
}

// fail maps domain errors onto HTTP status codes.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrInvalidTransition), errors.Is(err, models.ErrLocked):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, models.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"message": msg})
}

func writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(payload)
}
