package scheduling

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
)

// memStore is an in-memory Store for tests. RunInTx works on a deep copy of
// the state and swaps it in on success, so an aborted transaction leaves no
// trace, matching the commit semantics of the Postgres store.
type memStore struct {
	appointments  map[string]*Appointment
	prescriptions map[string]*Prescription
	patients      map[string]*Patient
	inTx          bool

	// error hooks for failure-injection tests
	apptCreateErr error
	apptUpdateErr error
}

func newMemStore() *memStore {
	return &memStore{
		appointments:  map[string]*Appointment{},
		prescriptions: map[string]*Prescription{},
		patients:      map[string]*Patient{},
	}
}

func (m *memStore) Appointments() AppointmentStore   { return &memAppointments{m} }
func (m *memStore) Prescriptions() PrescriptionStore { return &memPrescriptions{m} }
func (m *memStore) Patients() PatientStore           { return &memPatients{m} }

func (m *memStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if m.inTx {
		return fn(ctx, m)
	}
	staged := &memStore{
		appointments:  map[string]*Appointment{},
		prescriptions: map[string]*Prescription{},
		patients:      m.patients,
		inTx:          true,
		apptCreateErr: m.apptCreateErr,
		apptUpdateErr: m.apptUpdateErr,
	}
	for id, a := range m.appointments {
		staged.appointments[id] = cloneAppointment(a)
	}
	for id, p := range m.prescriptions {
		staged.prescriptions[id] = clonePrescription(p)
	}
	if err := fn(ctx, staged); err != nil {
		return err
	}
	m.appointments = staged.appointments
	m.prescriptions = staged.prescriptions
	return nil
}

func cloneAppointment(a *Appointment) *Appointment {
	out := *a
	out.Tags = append([]string(nil), a.Tags...)
	out.Details = a.Details.Clone()
	out.History = append([]ChangeRecord(nil), a.History...)
	return &out
}

func clonePrescription(p *Prescription) *Prescription {
	out := *p
	out.StatusHistory = append([]StatusChange(nil), p.StatusHistory...)
	out.AppointmentHistory = append([]AppointmentRecord(nil), p.AppointmentHistory...)
	return &out
}

type memAppointments struct {
	m *memStore
}

func (r *memAppointments) Find(ctx context.Context, id string) (*Appointment, error) {
	a, ok := r.m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return cloneAppointment(a), nil
}

func (r *memAppointments) FindMany(ctx context.Context, ids []string) ([]Appointment, error) {
	var out []Appointment
	for _, id := range ids {
		if a, ok := r.m.appointments[id]; ok {
			out = append(out, *cloneAppointment(a))
		}
	}
	return out, nil
}

func (r *memAppointments) FindByPrescriptionAndCycleDay(ctx context.Context, prescriptionID string, cycleDay int) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.m.appointments {
		if a.Details.PrescriptionID() == prescriptionID && a.Details.CycleDay() == cycleDay {
			out = append(out, *cloneAppointment(a))
		}
	}
	return out, nil
}

func (r *memAppointments) ListByPrescription(ctx context.Context, prescriptionID string, includeCompleted bool) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.m.appointments {
		if a.Details.PrescriptionID() != prescriptionID {
			continue
		}
		if !includeCompleted && a.Status == StatusCompleted {
			continue
		}
		out = append(out, *cloneAppointment(a))
	}
	return out, nil
}

func (r *memAppointments) List(ctx context.Context, from, to time.Time, patientID string) ([]Appointment, error) {
	var out []Appointment
	for _, a := range r.m.appointments {
		if a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		if patientID != "" && a.PatientID != patientID {
			continue
		}
		out = append(out, *cloneAppointment(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].StartTime < out[j].StartTime
	})
	return out, nil
}

func (r *memAppointments) Create(ctx context.Context, a *Appointment) error {
	if r.m.apptCreateErr != nil {
		return r.m.apptCreateErr
	}
	r.m.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *memAppointments) Update(ctx context.Context, a *Appointment) error {
	if r.m.apptUpdateErr != nil {
		return r.m.apptUpdateErr
	}
	if _, ok := r.m.appointments[a.ID]; !ok {
		return ErrAppointmentNotFound
	}
	r.m.appointments[a.ID] = cloneAppointment(a)
	return nil
}

func (r *memAppointments) UpdateMany(ctx context.Context, appts []Appointment) error {
	for i := range appts {
		if err := r.Update(ctx, &appts[i]); err != nil {
			return err
		}
	}
	return nil
}

type memPrescriptions struct {
	m *memStore
}

func (r *memPrescriptions) Find(ctx context.Context, id string) (*Prescription, error) {
	p, ok := r.m.prescriptions[id]
	if !ok {
		return nil, ErrPrescriptionNotFound
	}
	return clonePrescription(p), nil
}

func (r *memPrescriptions) FindMany(ctx context.Context, ids []string) ([]Prescription, error) {
	var out []Prescription
	for _, id := range ids {
		if p, ok := r.m.prescriptions[id]; ok {
			out = append(out, *clonePrescription(p))
		}
	}
	return out, nil
}

func (r *memPrescriptions) ListActive(ctx context.Context) ([]Prescription, error) {
	var out []Prescription
	for _, p := range r.m.prescriptions {
		if !p.Status.IsTerminal() {
			out = append(out, *clonePrescription(p))
		}
	}
	return out, nil
}

func (r *memPrescriptions) Create(ctx context.Context, p *Prescription) error {
	r.m.prescriptions[p.ID] = clonePrescription(p)
	return nil
}

func (r *memPrescriptions) Update(ctx context.Context, p *Prescription) error {
	if _, ok := r.m.prescriptions[p.ID]; !ok {
		return ErrPrescriptionNotFound
	}
	r.m.prescriptions[p.ID] = clonePrescription(p)
	return nil
}

type memPatients struct {
	m *memStore
}

func (r *memPatients) Find(ctx context.Context, id string) (*Patient, error) {
	p, ok := r.m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	out := *p
	return &out, nil
}

// nopLocker runs the critical section without any locking.
type nopLocker struct{}

func (nopLocker) WithScheduleLock(ctx context.Context, prescriptionID string, cycleDay int, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestService(store *memStore) *Service {
	return NewService(store, nopLocker{}, zerolog.Nop())
}

var testActor = Actor{ID: "u-1", Name: "Nurse Silva"}

func seedPatient(store *memStore, id string) {
	store.patients[id] = &Patient{ID: id, Name: "Test Patient", RecordNumber: "0001234"}
}

func seedPrescription(store *memStore, id, patientID string, days ...int) *Prescription {
	p := &Prescription{
		ID:        id,
		PatientID: patientID,
		Status:    PrescriptionPending,
		Content: PrescriptionContent{
			Protocol: ProtocolRef{Name: "FOLFOX-6", CurrentCycle: 1},
			Blocks: []MedicationBlock{{
				Order:    1,
				Category: "chemotherapy",
				Items: []MedicationItem{{
					Medication: "Oxaliplatin",
					Dose:       85,
					Unit:       "mg/m2",
					Route:      "IV",
					CycleDays:  days,
				}},
			}},
		},
	}
	store.prescriptions[id] = p
	return p
}

func seedInfusion(store *memStore, id, patientID, prescriptionID string, cycleDay int, status Status) *Appointment {
	a := &Appointment{
		ID:        id,
		PatientID: patientID,
		Type:      TypeInfusion,
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:     ShiftMorning,
		StartTime: "09:00",
		EndTime:   "11:30",
		Status:    status,
		Details: Details{
			DetailInfusion: map[string]any{
				FieldPrescriptionID: prescriptionID,
				FieldCycleDay:       cycleDay,
				FieldPharmacyStatus: string(PharmacyScheduled),
				FieldPreparedItems:  []any{},
			},
		},
	}
	store.appointments[id] = a
	return a
}
