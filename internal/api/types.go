package api

import (
	"time"

	"github.com/oncotrack/chemo-scheduling/internal/scheduling"
)

const dateLayout = "2006-01-02"

type CreateAppointmentRequest struct {
	PatientID string             `json:"patient_id"`
	Type      string             `json:"type"`
	Date      string             `json:"date"`
	Shift     string             `json:"shift"`
	StartTime string             `json:"start_time"`
	EndTime   string             `json:"end_time"`
	WalkIn    bool               `json:"walk_in"`
	Notes     string             `json:"notes"`
	Tags      []string           `json:"tags"`
	Details   scheduling.Details `json:"details"`
}

// UpdateAppointmentRequest is a partial update; absent fields stay untouched.
type UpdateAppointmentRequest struct {
	Type      *string            `json:"type"`
	Date      *string            `json:"date"`
	Shift     *string            `json:"shift"`
	StartTime *string            `json:"start_time"`
	EndTime   *string            `json:"end_time"`
	CheckedIn *bool              `json:"checked_in"`
	Status    *string            `json:"status"`
	WalkIn    *bool              `json:"walk_in"`
	Notes     *string            `json:"notes"`
	Tags      []string           `json:"tags"`
	Details   scheduling.Details `json:"details"`
	Reason    string             `json:"reason"`
}

type BulkUpdateRequest struct {
	Items []BulkUpdateRequestItem `json:"items"`
}

type BulkUpdateRequestItem struct {
	ID string `json:"id"`
	UpdateAppointmentRequest
}

type RescheduleRequestBody struct {
	Date      string  `json:"date"`
	Shift     *string `json:"shift"`
	StartTime string  `json:"start_time"` // empty keeps the original start
	Reason    string  `json:"reason"`
}

type BulkRescheduleRequest struct {
	Items []BulkRescheduleRequestItem `json:"items"`
}

type BulkRescheduleRequestItem struct {
	ID string `json:"id"`
	RescheduleRequestBody
}

type AppointmentResponse struct {
	ID        string                    `json:"id"`
	PatientID string                    `json:"patient_id"`
	Type      string                    `json:"type"`
	Date      string                    `json:"date"`
	Shift     string                    `json:"shift"`
	StartTime string                    `json:"start_time"`
	EndTime   string                    `json:"end_time"`
	CheckedIn bool                      `json:"checked_in"`
	Status    string                    `json:"status"`
	WalkIn    bool                      `json:"walk_in"`
	Notes     string                    `json:"notes,omitempty"`
	Tags      []string                  `json:"tags,omitempty"`
	Details   scheduling.Details        `json:"details,omitempty"`
	History   []scheduling.ChangeRecord `json:"history_of_changes,omitempty"`
	CreatedBy string                    `json:"created_by,omitempty"`
	CreatedAt time.Time                 `json:"created_at"`
	UpdatedAt time.Time                 `json:"updated_at"`
}

func toAppointmentResponse(a *scheduling.Appointment) AppointmentResponse {
	return AppointmentResponse{
		ID:        a.ID,
		PatientID: a.PatientID,
		Type:      string(a.Type),
		Date:      a.Date.Format(dateLayout),
		Shift:     string(a.Shift),
		StartTime: a.StartTime,
		EndTime:   a.EndTime,
		CheckedIn: a.CheckedIn,
		Status:    string(a.Status),
		WalkIn:    a.WalkIn,
		Notes:     a.Notes,
		Tags:      a.Tags,
		Details:   a.Details,
		History:   a.History,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
		UpdatedAt: a.UpdatedAt,
	}
}

type CreatePrescriptionRequest struct {
	PatientID   string                         `json:"patient_id"`
	PhysicianID string                         `json:"physician_id"`
	Content     scheduling.PrescriptionContent `json:"content"`
}

type SetPrescriptionStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

type PrescriptionResponse struct {
	ID                 string                         `json:"id"`
	PatientID          string                         `json:"patient_id"`
	PhysicianID        string                         `json:"physician_id,omitempty"`
	Status             string                         `json:"status"`
	Content            scheduling.PrescriptionContent `json:"content"`
	StatusHistory      []scheduling.StatusChange      `json:"history_of_status,omitempty"`
	AppointmentHistory []scheduling.AppointmentRecord `json:"history_of_appointments,omitempty"`
	ReplacementID      string                         `json:"replacement_prescription_id,omitempty"`
	OriginalID         string                         `json:"original_prescription_id,omitempty"`
	CreatedAt          time.Time                      `json:"created_at"`
	UpdatedAt          time.Time                      `json:"updated_at"`
}

func toPrescriptionResponse(p *scheduling.Prescription) PrescriptionResponse {
	return PrescriptionResponse{
		ID:                 p.ID,
		PatientID:          p.PatientID,
		PhysicianID:        p.PhysicianID,
		Status:             string(p.Status),
		Content:            p.Content,
		StatusHistory:      p.StatusHistory,
		AppointmentHistory: p.AppointmentHistory,
		ReplacementID:      p.ReplacementID,
		OriginalID:         p.OriginalID,
		CreatedAt:          p.CreatedAt,
		UpdatedAt:          p.UpdatedAt,
	}
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
