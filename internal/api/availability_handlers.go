package api

import (
	"net/http"

	"github.com/careclinic/slot-reservation-engine/internal/availability"
	"github.com/careclinic/slot-reservation-engine/internal/timegrid"
)

// requireDoctor gates the schedule-management endpoints. Doctors manage
// only their own schedule; the doctor ID is always the caller's.
func requireDoctor(w http.ResponseWriter, r *http.Request) (Identity, bool) {
	ident, ok := requireIdentity(w, r)
	if !ok {
		return ident, false
	}
	if ident.Role != "doctor" {
		writeError(w, http.StatusForbidden, "forbidden", "only doctors can manage availability")
		return ident, false
	}
	return ident, true
}

func setWorkingHoursHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireDoctor(w, r)
		if !ok {
			return
		}

		var req WorkingHoursRequest
		if !decodeBody(w, r, &req) {
			return
		}

		profile, err := svc.SetWorkingHours(r.Context(), ident.ID, req.WorkingHours, req.SlotDuration, req.ConsultationFee)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}

func blockSlotsHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireDoctor(w, r)
		if !ok {
			return
		}

		var req BlockSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := timegrid.NormalizeDate(req.Date)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		day, err := svc.BlockSlots(r.Context(), ident.ID, date, req.Slots)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, day)
	}
}

func emergencyBlockHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ident, ok := requireDoctor(w, r)
		if !ok {
			return
		}

		var req BlockSlotsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		date, err := timegrid.NormalizeDate(req.Date)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		result, err := svc.EmergencyBlock(r.Context(), ident.ID, date, req.Slots, req.Reason)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, result)
	}
}

func availableSlotsHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "doctorID")
		if !ok {
			return
		}
		date, err := timegrid.NormalizeDate(r.URL.Query().Get("date"))
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		slots, err := svc.AvailableSlots(r.Context(), doctorID, date)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}
		if slots == nil {
			slots = []timegrid.Slot{}
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"doctor_id": doctorID,
			"date":      date.Format("2006-01-02"),
			"slots":     slots,
		})
	}
}

func doctorProfileHandler(svc *availability.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := pathUUID(w, r, "doctorID")
		if !ok {
			return
		}

		profile, err := svc.Profile(r.Context(), doctorID)
		if err != nil {
			mapDomainError(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, profile)
	}
}
