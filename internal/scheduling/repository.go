package scheduling

import (
	"context"
	"time"
)

// AppointmentStore contains the appointment persistence calls the core
// makes. Implementations back these with either a pool or an open
// transaction; see Store.RunInTx.
type AppointmentStore interface {
	Find(ctx context.Context, id string) (*Appointment, error)
	FindMany(ctx context.Context, ids []string) ([]Appointment, error)
	FindByPrescriptionAndCycleDay(ctx context.Context, prescriptionID string, cycleDay int) ([]Appointment, error)
	ListByPrescription(ctx context.Context, prescriptionID string, includeCompleted bool) ([]Appointment, error)
	List(ctx context.Context, from, to time.Time, patientID string) ([]Appointment, error)
	Create(ctx context.Context, a *Appointment) error
	Update(ctx context.Context, a *Appointment) error
	UpdateMany(ctx context.Context, appts []Appointment) error
}

type PrescriptionStore interface {
	Find(ctx context.Context, id string) (*Prescription, error)
	FindMany(ctx context.Context, ids []string) ([]Prescription, error)
	// ListActive returns prescriptions whose status is not terminal.
	ListActive(ctx context.Context) ([]Prescription, error)
	Create(ctx context.Context, p *Prescription) error
	Update(ctx context.Context, p *Prescription) error
}

type PatientStore interface {
	Find(ctx context.Context, id string) (*Patient, error)
}

// Store bundles the persistence collaborators. RunInTx runs fn against a
// transaction-scoped Store: every write staged inside fn commits as one unit
// when fn returns nil and is discarded when it returns an error.
type Store interface {
	Appointments() AppointmentStore
	Prescriptions() PrescriptionStore
	Patients() PatientStore
	RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}
