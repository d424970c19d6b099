package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/careclinic/slot-reservation-engine/internal/appointment"
	"github.com/careclinic/slot-reservation-engine/internal/availability"
	redisclient "github.com/careclinic/slot-reservation-engine/internal/redis"
	"github.com/careclinic/slot-reservation-engine/internal/timegrid"
)

// mapDomainError translates sentinel errors into HTTP responses.
// Anything unrecognized is logged with the request ID and surfaced as an
// opaque 500 so internal detail never reaches the client.
func mapDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, timegrid.ErrBadTimeFormat), errors.Is(err, timegrid.ErrBadDate),
		errors.Is(err, availability.ErrInvalidSlotRange),
		errors.Is(err, availability.ErrInvalidDayOfWeek),
		errors.Is(err, availability.ErrInvalidSlotDuration),
		errors.Is(err, availability.ErrNoSlots):
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errors.Is(err, appointment.ErrNotAuthorized):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, appointment.ErrAppointmentNotFound),
		errors.Is(err, appointment.ErrUserNotFound),
		errors.Is(err, availability.ErrProfileNotFound),
		errors.Is(err, availability.ErrDayNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, appointment.ErrSlotTaken),
		errors.Is(err, appointment.ErrPatientConflict),
		errors.Is(err, appointment.ErrSlotBlocked),
		errors.Is(err, appointment.ErrAlreadyCancelled),
		errors.Is(err, appointment.ErrInvalidTransition),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, appointment.ErrInvalidDoctor):
		writeError(w, http.StatusUnprocessableEntity, "invalid_doctor", err.Error())
	default:
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
	}
}

func requireIdentity(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	ident, ok := IdentityFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing X-User-ID header")
	}
	return ident, ok
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return false
	}
	return true
}

func pathUUID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", name+" must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func bookAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		var req BookAppointmentRequest
		if !decodeBody(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_id", "doctor_id must be a valid UUID")
			return
		}
		date, err := timegrid.NormalizeDate(req.Date)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		appt, err := svc.Book(r.Context(), appointment.BookParams{
			PatientID: ident.ID,
			DoctorID:  doctorID,
			Date:      date,
			Time:      req.Time,
			Duration:  req.Duration,
			Reason:    req.Reason,
		})
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func listAppointmentsHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}

		appts, err := svc.ListForUser(r.Context(), ident.ID, ident.Role)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentList(appts))
	}
}

func getAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		appt, err := svc.GetForUser(r.Context(), id, ident.ID)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func cancelAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req CancelRequest
		if r.ContentLength > 0 && !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.Cancel(r.Context(), id, ident.ID, req.Reason, true)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func rescheduleAppointmentHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req RescheduleRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := timegrid.NormalizeDate(req.Date)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		appt, err := svc.Reschedule(r.Context(), id, ident.ID, date, req.Time)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func updateStatusHandler(svc *appointment.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireIdentity(w, r)
		if !ok {
			return
		}
		id, ok := pathUUID(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeBody(w, r, &req) {
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, ident.ID, appointment.Status(req.Status))
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
