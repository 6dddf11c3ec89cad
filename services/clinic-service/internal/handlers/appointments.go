package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/clinic"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/services/clinic-service/internal/booking"
)

// Service is the booking API the handlers expose.
type Service interface {
	ListDoctors(ctx context.Context) ([]clinic.Doctor, error)
	ListAppointments(ctx context.Context, r clinic.DateRange, doctorID string) ([]clinic.Appointment, error)
	AvailableSlots(ctx context.Context, doctorID string, day clinic.Date) ([]string, error)
	Create(ctx context.Context, in clinic.AppointmentInput) (clinic.Appointment, error)
	Update(ctx context.Context, id string, patch clinic.AppointmentPatch) (clinic.Appointment, error)
	Delete(ctx context.Context, id string) error
}

type AppointmentHandler struct {
	svc    Service
	logger *slog.Logger
}

func NewAppointmentHandler(svc Service, logger *slog.Logger) *AppointmentHandler {
	return &AppointmentHandler{svc: svc, logger: logger}
}

// Mount registers the /api/v1 routes on r. When staffSecret is set, writes need a
// staff bearer token.
func (h *AppointmentHandler) Mount(r chi.Router, staffSecret string) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/doctors", h.ListDoctors)
		r.Get("/doctors/{id}/slots", h.AvailableSlots)
		r.Get("/appointments", h.List)

		r.Group(func(r chi.Router) {
			if staffSecret != "" {
				r.Use(auth.RequireStaff(staffSecret, auth.RoleAdmin, auth.RoleReceptionist, auth.RoleDoctor))
			}
			r.Post("/appointments", h.Create)
			r.Patch("/appointments/{id}", h.Update)
			r.Delete("/appointments/{id}", h.Delete)
		})
	})
}

func (h *AppointmentHandler) ListDoctors(w http.ResponseWriter, r *http.Request) {
	doctors, err := h.svc.ListDoctors(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if doctors == nil {
		doctors = []clinic.Doctor{}
	}
	httpx.WriteJSON(w, http.StatusOK, doctors)
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, err := clinic.ParseDate(q.Get("from"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "from must be YYYY-MM-DD", nil)
		return
	}
	to, err := clinic.ParseDate(q.Get("to"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "to must be YYYY-MM-DD", nil)
		return
	}

	appts, err := h.svc.ListAppointments(r.Context(), clinic.DateRange{From: from, To: to}, q.Get("doctor_id"))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	if appts == nil {
		appts = []clinic.Appointment{}
	}
	httpx.WriteJSON(w, http.StatusOK, appts)
}

func (h *AppointmentHandler) AvailableSlots(w http.ResponseWriter, r *http.Request) {
	day, err := clinic.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "date must be YYYY-MM-DD", nil)
		return
	}
	labels, err := h.svc.AvailableSlots(r.Context(), chi.URLParam(r, "id"), day)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, labels)
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in clinic.AppointmentInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	appt, err := h.svc.Create(r.Context(), in)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.audit(r, "create", appt.ID)
	w.Header().Set("Location", "/api/v1/appointments/"+appt.ID)
	httpx.WriteJSON(w, http.StatusCreated, appt)
}

func (h *AppointmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var patch clinic.AppointmentPatch
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	appt, err := h.svc.Update(r.Context(), chi.URLParam(r, "id"), patch)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.audit(r, "update", appt.ID)
	httpx.WriteJSON(w, http.StatusOK, appt)
}

func (h *AppointmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.Delete(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.audit(r, "delete", id)
	w.WriteHeader(http.StatusNoContent)
}

// audit records which staff member changed an appointment. Unauthenticated
// deployments log the change without an actor.
func (h *AppointmentHandler) audit(r *http.Request, op, id string) {
	attrs := []any{"op", op, "appointment_id", id, "request_id", httpx.RequestIDFromContext(r.Context())}
	if claims, ok := auth.ClaimsFrom(r.Context()); ok {
		attrs = append(attrs, "staff", claims.Sub, "role", claims.Role)
	}
	h.logger.Info("appointment changed", attrs...)
}

func (h *AppointmentHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var inErr *booking.InputError
	switch {
	case errors.As(err, &inErr):
		httpx.WriteError(w, http.StatusUnprocessableEntity, "invalid appointment", inErr.Fields)
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, booking.ErrDoctorNotFound):
		httpx.WriteError(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, booking.ErrSlotTaken):
		httpx.WriteError(w, http.StatusConflict, err.Error(), map[string]string{"time": "this time is already booked"})
	case errors.Is(err, context.Canceled):
		// Client went away; nothing useful to write.
		h.logger.Debug("request cancelled", "path", r.URL.Path)
	default:
		h.logger.Error("request failed",
			"err", err,
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", httpx.RequestIDFromContext(r.Context()),
		)
		httpx.WriteError(w, http.StatusInternalServerError, "internal error", nil)
	}
}
