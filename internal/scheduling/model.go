package scheduling

import (
	"time"
)

type AppointmentType string

const (
	TypeInfusion     AppointmentType = "infusion"
	TypeProcedure    AppointmentType = "procedure"
	TypeConsultation AppointmentType = "consultation"
)

type Shift string

const (
	ShiftMorning   Shift = "morning"
	ShiftAfternoon Shift = "afternoon"
	ShiftNight     Shift = "night"
)

type Status string

const (
	StatusScheduled            Status = "scheduled"
	StatusAwaitingConsultation Status = "awaiting-consultation"
	StatusAwaitingExam         Status = "awaiting-exam"
	StatusAwaitingMedication   Status = "awaiting-medication"
	StatusAdmitted             Status = "admitted"
	StatusSuspended            Status = "suspended"
	StatusRescheduled          Status = "rescheduled"
	StatusInTriage             Status = "in-triage"
	StatusInInfusion           Status = "in-infusion"
	StatusAdverseEvent         Status = "adverse-event"
	StatusCompleted            Status = "completed"
)

// PharmacyStatus tracks the preparation pipeline of an infusion's medication.
type PharmacyStatus string

const (
	// PharmacyScheduled means the pharmacy has the appointment on its agenda
	// but has not been told to start; it flips to pending on patient checkin.
	PharmacyScheduled              PharmacyStatus = "scheduled"
	PharmacyPending                PharmacyStatus = "pending"
	PharmacyPreparing              PharmacyStatus = "preparing"
	PharmacyReady                  PharmacyStatus = "ready"
	PharmacySent                   PharmacyStatus = "sent"
	PharmacyAwaitingPrescription   PharmacyStatus = "awaiting-prescription"
	PharmacyValidatingPrescription PharmacyStatus = "validating-prescription"
	PharmacyMedicationUnavailable  PharmacyStatus = "medication-unavailable"
	PharmacyJudicialUnavailable    PharmacyStatus = "judicial-medication-unavailable"
	PharmacyNoProcess              PharmacyStatus = "no-process"
	PharmacyPrescriptionReturned   PharmacyStatus = "prescription-returned"
)

// checkinExempt holds the statuses an appointment may carry before the
// patient has physically checked in. Everything else requires checkin.
var checkinExempt = map[Status]bool{
	StatusScheduled:            true,
	StatusAwaitingConsultation: true,
	StatusAwaitingExam:         true,
	StatusAwaitingMedication:   true,
	StatusAdmitted:             true,
	StatusSuspended:            true,
	StatusRescheduled:          true,
}

type Patient struct {
	ID           string
	Name         string
	RecordNumber string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Actor struct {
	ID   string
	Name string
}

// Appointment is one scheduled clinical event. Start and end times are
// clinic-local "HH:MM" strings, not instants.
type Appointment struct {
	ID        string
	PatientID string
	Type      AppointmentType
	Date      time.Time
	Shift     Shift
	StartTime string
	EndTime   string
	CheckedIn bool
	Status    Status
	WalkIn    bool
	Notes     string
	Tags      []string
	Details   Details
	History   []ChangeRecord
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PrescriptionStatus string

const (
	PrescriptionPending    PrescriptionStatus = "pending"
	PrescriptionScheduled  PrescriptionStatus = "scheduled"
	PrescriptionInProgress PrescriptionStatus = "in-progress"
	PrescriptionCompleted  PrescriptionStatus = "completed"
	PrescriptionSuspended  PrescriptionStatus = "suspended"
	PrescriptionReplaced   PrescriptionStatus = "replaced"
	PrescriptionCancelled  PrescriptionStatus = "cancelled"
)

// IsTerminal reports whether s is sticky: reconciliation never overwrites it.
func (s PrescriptionStatus) IsTerminal() bool {
	return s == PrescriptionSuspended || s == PrescriptionReplaced || s == PrescriptionCancelled
}

// Prescription is a medication course linked to 0..N infusion appointments.
// Content is a snapshot taken at issuance and never rewritten.
type Prescription struct {
	ID          string
	PatientID   string
	PhysicianID string
	Status      PrescriptionStatus
	Content     PrescriptionContent
	// history_of_status and history_of_appointments: append-only.
	StatusHistory      []StatusChange
	AppointmentHistory []AppointmentRecord
	// Replacement chain back-references, at most one each.
	ReplacementID string
	OriginalID    string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type PrescriptionContent struct {
	IssuedAt  string            `json:"issued_at,omitempty"`
	Patient   PatientSnapshot   `json:"patient"`
	Physician PhysicianSnapshot `json:"physician"`
	Protocol  ProtocolRef       `json:"protocol"`
	Blocks    []MedicationBlock `json:"blocks"`
	Diagnosis string            `json:"diagnosis,omitempty"`
}

type PatientSnapshot struct {
	Name         string  `json:"name"`
	RecordNumber string  `json:"record_number"`
	BirthDate    string  `json:"birth_date,omitempty"`
	Sex          string  `json:"sex,omitempty"`
	WeightKg     float64 `json:"weight_kg,omitempty"`
	HeightCm     float64 `json:"height_cm,omitempty"`
	BodySurface  float64 `json:"body_surface,omitempty"`
}

type PhysicianSnapshot struct {
	Name    string `json:"name"`
	License string `json:"license,omitempty"`
}

type ProtocolRef struct {
	Name         string `json:"name"`
	CurrentCycle int    `json:"current_cycle"`
}

type MedicationBlock struct {
	Order    int              `json:"order"`
	Category string           `json:"category"`
	Items    []MedicationItem `json:"items"`
}

type MedicationItem struct {
	Medication      string  `json:"medication"`
	Dose            float64 `json:"dose"`
	Unit            string  `json:"unit"`
	Route           string  `json:"route"`
	DurationMinutes int     `json:"duration_minutes,omitempty"`
	// CycleDays lists the cycle-day numbers on which this item is given.
	CycleDays []int  `json:"cycle_days"`
	Notes     string `json:"notes,omitempty"`
}

// HasCycleDay reports whether any block item is due on the given cycle-day.
func (c PrescriptionContent) HasCycleDay(day int) bool {
	for _, b := range c.Blocks {
		for _, it := range b.Items {
			for _, d := range it.CycleDays {
				if d == day {
					return true
				}
			}
		}
	}
	return false
}
