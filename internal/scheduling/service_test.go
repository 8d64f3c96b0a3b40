package scheduling

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	redisclient "github.com/oncotrack/chemo-scheduling/internal/redis"
)

func validCreateInput(patientID string) CreateAppointmentInput {
	return CreateAppointmentInput{
		PatientID: patientID,
		Type:      TypeConsultation,
		Date:      time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Shift:     ShiftMorning,
		StartTime: "09:00",
		EndTime:   "09:30",
	}
}

func TestCreateAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("Unknown Patient", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store)
		_, err := svc.CreateAppointment(ctx, validCreateInput("p-missing"), testActor)
		assert.ErrorIs(t, err, ErrPatientNotFound)
	})

	t.Run("Invalid Time Slot", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		svc := newTestService(store)

		in := validCreateInput("p-1")
		in.StartTime = "11:00"
		in.EndTime = "09:00"
		_, err := svc.CreateAppointment(ctx, in, testActor)
		assert.Error(t, err)
	})

	t.Run("Detail Key Must Match Type", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		svc := newTestService(store)

		in := validCreateInput("p-1")
		in.Details = Details{DetailInfusion: map[string]any{FieldCycleDay: 1}}
		_, err := svc.CreateAppointment(ctx, in, testActor)
		assert.ErrorIs(t, err, ErrInvalidDetailKey)
	})

	t.Run("Plain Consultation", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		svc := newTestService(store)

		appt, err := svc.CreateAppointment(ctx, validCreateInput("p-1"), testActor)
		require.NoError(t, err)

		stored := store.appointments[appt.ID]
		require.NotNil(t, stored)
		assert.Equal(t, StatusScheduled, stored.Status)
		assert.False(t, stored.CheckedIn)
		require.Len(t, stored.History, 1)
		assert.Equal(t, ChangeCreated, stored.History[0].ChangeKind)
		assert.Equal(t, testActor.ID, stored.CreatedBy)
	})

	infusionInput := func() CreateAppointmentInput {
		in := validCreateInput("p-1")
		in.Type = TypeInfusion
		in.EndTime = "11:30"
		in.Details = Details{
			DetailInfusion: map[string]any{
				FieldPrescriptionID: "rx-1",
				FieldCycleDay:       1,
				FieldPharmacyStatus: string(PharmacyScheduled),
			},
		}
		return in
	}

	t.Run("Infusion Linked To Prescription", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-1", 1, 8)
		svc := newTestService(store)

		appt, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		require.NoError(t, err)

		p := store.prescriptions["rx-1"]
		require.Len(t, p.AppointmentHistory, 1)
		assert.Equal(t, appt.ID, p.AppointmentHistory[0].AppointmentID)
		assert.Equal(t, "appointment scheduled", p.AppointmentHistory[0].Notes)

		// Post-create reconciliation has already run.
		assert.Equal(t, PrescriptionScheduled, p.Status)
	})

	t.Run("Prescription Belongs To Another Patient", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-other", 1)
		svc := newTestService(store)

		_, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		assert.ErrorIs(t, err, ErrIncompatiblePrescription)
	})

	t.Run("Terminal Prescription Rejected", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		p := seedPrescription(store, "rx-1", "p-1", 1)
		p.Status = PrescriptionCancelled
		svc := newTestService(store)

		_, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		assert.ErrorIs(t, err, ErrIncompatiblePrescription)
	})

	t.Run("Cycle Day Not In Prescription", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-1", 1, 8)
		svc := newTestService(store)

		in := infusionInput()
		in.Details[DetailInfusion].(map[string]any)[FieldCycleDay] = 15
		_, err := svc.CreateAppointment(ctx, in, testActor)
		assert.ErrorIs(t, err, ErrIncompatiblePrescription)
	})

	t.Run("Active Appointment Conflicts", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-1", 1)
		seedInfusion(store, "a-existing", "p-1", "rx-1", 1, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		assert.ErrorIs(t, err, ErrConflictingSchedule)
	})

	t.Run("Rescheduled Appointment Frees The Slot", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-1", 1)
		seedInfusion(store, "a-old", "p-1", "rx-1", 1, StatusRescheduled)
		svc := newTestService(store)

		_, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		assert.NoError(t, err)
	})

	t.Run("Lock Contention Maps To Conflict", func(t *testing.T) {
		store := newMemStore()
		seedPatient(store, "p-1")
		seedPrescription(store, "rx-1", "p-1", 1)
		svc := NewService(store, contendedLocker{}, zerolog.Nop())

		_, err := svc.CreateAppointment(ctx, infusionInput(), testActor)
		assert.ErrorIs(t, err, ErrConflictingSchedule)
	})
}

// contendedLocker simulates another request holding the schedule lock.
type contendedLocker struct{}

func (contendedLocker) WithScheduleLock(ctx context.Context, prescriptionID string, cycleDay int, fn func(ctx context.Context) error) error {
	return redisclient.ErrLockNotAcquired
}

func TestUpdateAppointment(t *testing.T) {
	ctx := context.Background()

	t.Run("Not Found", func(t *testing.T) {
		store := newMemStore()
		svc := newTestService(store)
		_, err := svc.UpdateAppointment(ctx, "a-missing", UpdatePatch{}, testActor)
		assert.ErrorIs(t, err, ErrAppointmentNotFound)
	})

	t.Run("Completion Reconciles Linked Prescription", func(t *testing.T) {
		store := newMemStore()
		seedPrescription(store, "rx-1", "p-1", 1)
		seedInfusion(store, "a-1", "p-1", "rx-1", 1, StatusScheduled)
		svc := newTestService(store)

		updated, err := svc.UpdateAppointment(ctx, "a-1", UpdatePatch{
			Status:    ptr(StatusCompleted),
			CheckedIn: ptr(true),
		}, testActor)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, updated.Status)

		assert.Equal(t, StatusCompleted, store.appointments["a-1"].Status)
		assert.Equal(t, PrescriptionCompleted, store.prescriptions["rx-1"].Status)
	})

	t.Run("Invalid Transition Persists Nothing", func(t *testing.T) {
		store := newMemStore()
		seedPrescription(store, "rx-1", "p-1", 1)
		seedInfusion(store, "a-1", "p-1", "rx-1", 1, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.UpdateAppointment(ctx, "a-1", UpdatePatch{
			Status: ptr(StatusInInfusion),
		}, testActor)
		require.ErrorIs(t, err, ErrInvalidTransition)

		assert.Equal(t, StatusScheduled, store.appointments["a-1"].Status)
		assert.Empty(t, store.appointments["a-1"].History)
	})

	t.Run("Swap Records On Both Prescriptions", func(t *testing.T) {
		store := newMemStore()
		seedPrescription(store, "rx-1", "p-1", 1)
		seedPrescription(store, "rx-2", "p-1", 1)
		seedInfusion(store, "a-1", "p-1", "rx-1", 1, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.UpdateAppointment(ctx, "a-1", UpdatePatch{
			Details: Details{
				DetailInfusion: map[string]any{FieldPrescriptionID: "rx-2"},
			},
			Reason: "protocol adjusted",
		}, testActor)
		require.NoError(t, err)

		old := store.prescriptions["rx-1"]
		require.Len(t, old.AppointmentHistory, 1)
		assert.Contains(t, old.AppointmentHistory[0].Notes, "swapped to prescription rx-2")

		current := store.prescriptions["rx-2"]
		require.Len(t, current.AppointmentHistory, 1)
		assert.Contains(t, current.AppointmentHistory[0].Notes, "swapped from prescription rx-1")

		// Both sides reconciled: rx-1 lost its only appointment, rx-2 gained it.
		assert.Equal(t, PrescriptionPending, old.Status)
		assert.Equal(t, PrescriptionScheduled, current.Status)
	})
}

func TestBulkUpdateAppointments(t *testing.T) {
	ctx := context.Background()

	t.Run("Missing Ids Fail The Whole Batch", func(t *testing.T) {
		store := newMemStore()
		seedInfusion(store, "a-1", "p-1", "", 0, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.BulkUpdateAppointments(ctx, []BulkUpdateItem{
			{ID: "a-1", Patch: UpdatePatch{Notes: ptr("x")}},
			{ID: "a-zz", Patch: UpdatePatch{}},
			{ID: "a-aa", Patch: UpdatePatch{}},
		}, testActor)
		require.ErrorIs(t, err, ErrAppointmentNotFound)
		assert.Contains(t, err.Error(), "a-aa, a-zz", "missing ids are named, sorted")

		assert.Equal(t, "", store.appointments["a-1"].Notes, "nothing staged")
	})

	t.Run("One Bad Item Rolls Back All", func(t *testing.T) {
		store := newMemStore()
		seedInfusion(store, "a-1", "p-1", "", 0, StatusScheduled)
		seedInfusion(store, "a-2", "p-1", "", 0, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.BulkUpdateAppointments(ctx, []BulkUpdateItem{
			{ID: "a-1", Patch: UpdatePatch{Notes: ptr("fine")}},
			{ID: "a-2", Patch: UpdatePatch{Status: ptr(StatusInInfusion)}}, // needs checkin
		}, testActor)
		require.ErrorIs(t, err, ErrInvalidTransition)

		assert.Equal(t, "", store.appointments["a-1"].Notes)
		assert.Equal(t, StatusScheduled, store.appointments["a-2"].Status)
	})

	t.Run("Duplicate Id Items Accumulate", func(t *testing.T) {
		store := newMemStore()
		seedInfusion(store, "a-1", "p-1", "", 0, StatusScheduled)
		svc := newTestService(store)

		_, err := svc.BulkUpdateAppointments(ctx, []BulkUpdateItem{
			{ID: "a-1", Patch: UpdatePatch{Notes: ptr("first note")}},
			{ID: "a-1", Patch: UpdatePatch{Status: ptr(StatusAdmitted)}},
		}, testActor)
		require.NoError(t, err)

		// The second item starts from the first item's result, so both
		// changes land and both history entries survive.
		final := store.appointments["a-1"]
		assert.Equal(t, "first note", final.Notes)
		assert.Equal(t, StatusAdmitted, final.Status)
		require.Len(t, final.History, 1)
		assert.Equal(t, ChangeStatus, final.History[0].ChangeKind)
	})

	t.Run("Batch Persists As One Unit", func(t *testing.T) {
		store := newMemStore()
		seedPrescription(store, "rx-1", "p-1", 1, 8)
		seedInfusion(store, "a-1", "p-1", "rx-1", 1, StatusScheduled)
		seedInfusion(store, "a-2", "p-1", "rx-1", 8, StatusScheduled)
		svc := newTestService(store)

		updated, err := svc.BulkUpdateAppointments(ctx, []BulkUpdateItem{
			{ID: "a-1", Patch: UpdatePatch{Status: ptr(StatusCompleted), CheckedIn: ptr(true)}},
			{ID: "a-2", Patch: UpdatePatch{Status: ptr(StatusCompleted), CheckedIn: ptr(true)}},
		}, testActor)
		require.NoError(t, err)
		assert.Len(t, updated, 2)

		assert.Equal(t, StatusCompleted, store.appointments["a-1"].Status)
		assert.Equal(t, StatusCompleted, store.appointments["a-2"].Status)
		assert.Equal(t, PrescriptionCompleted, store.prescriptions["rx-1"].Status)
	})
}
