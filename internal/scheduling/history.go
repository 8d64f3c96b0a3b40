package scheduling

import "time"

// Change kinds recorded in an appointment's history_of_changes.
const (
	ChangeCreated          = "created"
	ChangeStatus           = "status"
	ChangeCheckin          = "checkin"
	ChangePharmacyStatus   = "pharmacy_status"
	ChangePrescriptionSwap = "prescription_swap"
)

// ChangeRecord is one entry of an appointment's append-only audit trail.
type ChangeRecord struct {
	Timestamp  time.Time `json:"timestamp"`
	UserID     string    `json:"user_id,omitempty"`
	UserName   string    `json:"user_name,omitempty"`
	ChangeKind string    `json:"change_kind"`
	Field      string    `json:"field,omitempty"`
	OldValue   string    `json:"old_value,omitempty"`
	NewValue   string    `json:"new_value,omitempty"`
	Reason     string    `json:"reason,omitempty"`
}

// StatusChange is one entry of a prescription's history_of_status.
type StatusChange struct {
	Timestamp time.Time          `json:"timestamp"`
	UserID    string             `json:"user_id,omitempty"`
	UserName  string             `json:"user_name,omitempty"`
	OldStatus PrescriptionStatus `json:"old_status"`
	NewStatus PrescriptionStatus `json:"new_status"`
	Reason    string             `json:"reason,omitempty"`
	Automatic bool               `json:"automatic,omitempty"`
}

// AppointmentRecord is one entry of a prescription's history_of_appointments.
type AppointmentRecord struct {
	Timestamp         time.Time `json:"timestamp"`
	AppointmentID     string    `json:"appointment_id"`
	AppointmentStatus Status    `json:"appointment_status"`
	UserID            string    `json:"user_id,omitempty"`
	UserName          string    `json:"user_name,omitempty"`
	Notes             string    `json:"notes,omitempty"`
}

// The append helpers below never mutate the input slice in place beyond
// what append allows; callers always use the returned slice. Ledger entries
// are never edited or removed once appended.

func AppendChange(history []ChangeRecord, rec ChangeRecord) []ChangeRecord {
	out := make([]ChangeRecord, len(history), len(history)+1)
	copy(out, history)
	return append(out, rec)
}

func AppendStatusChange(history []StatusChange, rec StatusChange) []StatusChange {
	out := make([]StatusChange, len(history), len(history)+1)
	copy(out, history)
	return append(out, rec)
}

func AppendAppointmentRecord(history []AppointmentRecord, rec AppointmentRecord) []AppointmentRecord {
	out := make([]AppointmentRecord, len(history), len(history)+1)
	copy(out, history)
	return append(out, rec)
}
