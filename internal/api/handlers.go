package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oncotrack/chemo-scheduling/internal/scheduling"
)

// actorFromRequest reads the acting user's identity forwarded by the
// authenticating gateway. Authentication itself lives outside this service.
func actorFromRequest(r *http.Request) scheduling.Actor {
	return scheduling.Actor{
		ID:   r.Header.Get("X-User-ID"),
		Name: r.Header.Get("X-User-Name"),
	}
}

func listAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		from, err := parseDateParam(r, "from")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_from", err.Error())
			return
		}
		to := from
		if v := r.URL.Query().Get("to"); v != "" {
			to, err = time.Parse(dateLayout, v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
		}

		appts, err := svc.ListAppointments(r.Context(), from, to, r.URL.Query().Get("patient_id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func getAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appt, err := svc.GetAppointment(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func createAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		date, err := time.Parse(dateLayout, req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.CreateAppointment(r.Context(), scheduling.CreateAppointmentInput{
			PatientID: req.PatientID,
			Type:      scheduling.AppointmentType(req.Type),
			Date:      date,
			Shift:     scheduling.Shift(req.Shift),
			StartTime: req.StartTime,
			EndTime:   req.EndTime,
			WalkIn:    req.WalkIn,
			Notes:     req.Notes,
			Tags:      req.Tags,
			Details:   req.Details,
		}, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func updateAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UpdateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		patch, err := toUpdatePatch(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		appt, err := svc.UpdateAppointment(r.Context(), chi.URLParam(r, "id"), patch, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func bulkUpdateAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkUpdateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		items := make([]scheduling.BulkUpdateItem, 0, len(req.Items))
		for _, it := range req.Items {
			patch, err := toUpdatePatch(it.UpdateAppointmentRequest)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("item %s: %s", it.ID, err))
				return
			}
			items = append(items, scheduling.BulkUpdateItem{ID: it.ID, Patch: patch})
		}

		appts, err := svc.BulkUpdateAppointments(r.Context(), items, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, toAppointmentResponse(&appts[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func rescheduleAppointmentHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RescheduleRequestBody
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		sreq, err := toRescheduleRequest(req)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}

		successor, err := svc.Reschedule(r.Context(), chi.URLParam(r, "id"), sreq, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(successor))
	}
}

func bulkRescheduleAppointmentsHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BulkRescheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		items := make([]scheduling.BulkRescheduleItem, 0, len(req.Items))
		for _, it := range req.Items {
			sreq, err := toRescheduleRequest(it.RescheduleRequestBody)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_request", fmt.Sprintf("item %s: %s", it.ID, err))
				return
			}
			items = append(items, scheduling.BulkRescheduleItem{ID: it.ID, Request: sreq})
		}

		successors, err := svc.BulkReschedule(r.Context(), items, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		resp := make([]AppointmentResponse, 0, len(successors))
		for i := range successors {
			resp = append(resp, toAppointmentResponse(&successors[i]))
		}
		writeJSON(w, http.StatusCreated, resp)
	}
}

func getPrescriptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, err := svc.GetPrescription(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

func createPrescriptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		p, err := svc.CreatePrescription(r.Context(), scheduling.CreatePrescriptionInput{
			PatientID:   req.PatientID,
			PhysicianID: req.PhysicianID,
			Content:     req.Content,
		}, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
	}
}

func setPrescriptionStatusHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SetPrescriptionStatusRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		p, err := svc.SetPrescriptionStatus(r.Context(), chi.URLParam(r, "id"),
			scheduling.PrescriptionStatus(req.Status), actorFromRequest(r), req.Reason)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

func replacePrescriptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreatePrescriptionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		p, err := svc.ReplacePrescription(r.Context(), chi.URLParam(r, "id"), scheduling.CreatePrescriptionInput{
			PatientID:   req.PatientID,
			PhysicianID: req.PhysicianID,
			Content:     req.Content,
		}, actorFromRequest(r))
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, toPrescriptionResponse(p))
	}
}

func reconcilePrescriptionHandler(svc *scheduling.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := svc.ReconcilePrescription(r.Context(), id); err != nil {
			handleServiceError(w, err)
			return
		}
		p, err := svc.GetPrescription(r.Context(), id)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toPrescriptionResponse(p))
	}
}

// Conversions

func toUpdatePatch(req UpdateAppointmentRequest) (scheduling.UpdatePatch, error) {
	patch := scheduling.UpdatePatch{
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
		CheckedIn: req.CheckedIn,
		WalkIn:    req.WalkIn,
		Notes:     req.Notes,
		Tags:      req.Tags,
		Details:   req.Details,
		Reason:    req.Reason,
	}
	if req.Type != nil {
		t := scheduling.AppointmentType(*req.Type)
		patch.Type = &t
	}
	if req.Shift != nil {
		sh := scheduling.Shift(*req.Shift)
		patch.Shift = &sh
	}
	if req.Status != nil {
		st := scheduling.Status(*req.Status)
		patch.Status = &st
	}
	if req.Date != nil {
		d, err := time.Parse(dateLayout, *req.Date)
		if err != nil {
			return scheduling.UpdatePatch{}, fmt.Errorf("date must be YYYY-MM-DD")
		}
		patch.Date = &d
	}
	return patch, nil
}

func toRescheduleRequest(req RescheduleRequestBody) (scheduling.RescheduleRequest, error) {
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		return scheduling.RescheduleRequest{}, fmt.Errorf("date must be YYYY-MM-DD")
	}
	out := scheduling.RescheduleRequest{
		Date:      date,
		StartTime: req.StartTime,
		Reason:    req.Reason,
	}
	if req.Shift != nil {
		sh := scheduling.Shift(*req.Shift)
		out.Shift = &sh
	}
	return out, nil
}

func parseDateParam(r *http.Request, key string) (time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return time.Time{}, fmt.Errorf("%s is required (YYYY-MM-DD)", key)
	}
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be YYYY-MM-DD", key)
	}
	return d, nil
}

// Error mapping

func handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, scheduling.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, scheduling.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, scheduling.ErrPrescriptionNotFound):
		writeError(w, http.StatusNotFound, "prescription_not_found", err.Error())
	case errors.Is(err, scheduling.ErrInvalidDetailKey):
		writeError(w, http.StatusBadRequest, "invalid_detail_key", err.Error())
	case errors.Is(err, scheduling.ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, scheduling.ErrConflictingSchedule):
		writeError(w, http.StatusConflict, "conflicting_schedule", err.Error())
	case errors.Is(err, scheduling.ErrIncompatiblePrescription):
		writeError(w, http.StatusConflict, "incompatible_prescription", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
