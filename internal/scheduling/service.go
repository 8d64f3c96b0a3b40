package scheduling

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	redisclient "github.com/oncotrack/chemo-scheduling/internal/redis"
)

// Service is the scheduling core. It loads current entities through the
// injected Store, runs the appointment state machine, and keeps linked
// prescriptions reconciled.
type Service struct {
	store  Store
	locker redisclient.Locker
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(store Store, locker redisclient.Locker, log zerolog.Logger) *Service {
	return &Service{
		store:  store,
		locker: locker,
		log:    log,
		now:    time.Now,
	}
}

type CreateAppointmentInput struct {
	PatientID string
	Type      AppointmentType
	Date      time.Time
	Shift     Shift
	StartTime string
	EndTime   string
	WalkIn    bool
	Notes     string
	Tags      []string
	Details   Details
}

// CreateAppointment validates the scheduling request and persists a new
// appointment. Infusion requests linked to a prescription are checked for
// prescription compatibility and for cycle-day scheduling conflicts; the
// conflict re-check runs inside an advisory lock so two overlapping requests
// cannot both pass it.
func (s *Service) CreateAppointment(ctx context.Context, in CreateAppointmentInput, actor Actor) (*Appointment, error) {
	if _, err := s.store.Patients().Find(ctx, in.PatientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	if err := ValidateDetailKeys(in.Type, in.Details); err != nil {
		return nil, err
	}
	if _, err := clockSpan(in.StartTime, in.EndTime); err != nil {
		return nil, fmt.Errorf("invalid time slot: %w", err)
	}

	appt := &Appointment{
		ID:        uuid.NewString(),
		PatientID: in.PatientID,
		Type:      in.Type,
		Date:      in.Date,
		Shift:     in.Shift,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Status:    StatusScheduled,
		WalkIn:    in.WalkIn,
		Notes:     in.Notes,
		Tags:      append([]string(nil), in.Tags...),
		Details:   in.Details.Clone(),
		CreatedBy: actor.ID,
		CreatedAt: s.now(),
		UpdatedAt: s.now(),
	}
	appt.History = AppendChange(appt.History, ChangeRecord{
		Timestamp:  s.now(),
		UserID:     actor.ID,
		UserName:   actor.Name,
		ChangeKind: ChangeCreated,
		NewValue:   string(StatusScheduled),
	})

	prescriptionID := in.Details.PrescriptionID()
	if in.Type != TypeInfusion || prescriptionID == "" {
		if err := s.store.Appointments().Create(ctx, appt); err != nil {
			return nil, fmt.Errorf("create appointment: %w", err)
		}
		return appt, nil
	}

	p, err := s.store.Prescriptions().Find(ctx, prescriptionID)
	if err != nil {
		return nil, fmt.Errorf("load prescription: %w", err)
	}
	if p.PatientID != in.PatientID {
		return nil, incompatiblePrescription(
			"prescription %s belongs to another patient", prescriptionID)
	}
	if p.Status.IsTerminal() {
		return nil, incompatiblePrescription(
			"prescription %s is %s", prescriptionID, p.Status)
	}
	cycleDay := in.Details.CycleDay()
	if cycleDay > 0 && !p.Content.HasCycleDay(cycleDay) {
		return nil, incompatiblePrescription(
			"prescription %s has no item due on cycle-day %d", prescriptionID, cycleDay)
	}

	err = s.locker.WithScheduleLock(ctx, prescriptionID, cycleDay, func(lockCtx context.Context) error {
		// Re-check inside the critical section: another request may have
		// booked the same prescription+cycle-day while we validated.
		existing, err := s.store.Appointments().FindByPrescriptionAndCycleDay(lockCtx, prescriptionID, cycleDay)
		if err != nil {
			return fmt.Errorf("check schedule conflicts: %w", err)
		}
		for _, e := range existing {
			if isActiveForSchedule(e.Status) {
				return fmt.Errorf("%w: appointment %s already covers prescription %s cycle-day %d",
					ErrConflictingSchedule, e.ID, prescriptionID, cycleDay)
			}
		}

		return s.store.RunInTx(lockCtx, func(txCtx context.Context, tx Store) error {
			if err := tx.Appointments().Create(txCtx, appt); err != nil {
				return fmt.Errorf("create appointment: %w", err)
			}
			p.AppointmentHistory = AppendAppointmentRecord(p.AppointmentHistory, AppointmentRecord{
				Timestamp:         s.now(),
				AppointmentID:     appt.ID,
				AppointmentStatus: appt.Status,
				UserID:            actor.ID,
				UserName:          actor.Name,
				Notes:             "appointment scheduled",
			})
			p.UpdatedAt = s.now()
			return tx.Prescriptions().Update(txCtx, p)
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, fmt.Errorf("%w: prescription %s cycle-day %d is being scheduled, retry",
				ErrConflictingSchedule, prescriptionID, cycleDay)
		}
		return nil, err
	}

	if err := s.ReconcilePrescription(ctx, prescriptionID); err != nil {
		s.log.Error().Err(err).Str("prescription_id", prescriptionID).Msg("post-create reconciliation failed")
	}
	return appt, nil
}

// isActiveForSchedule reports whether an appointment still occupies its
// prescription+cycle-day slot.
func isActiveForSchedule(st Status) bool {
	return st != StatusRescheduled && st != StatusCompleted && st != StatusSuspended
}

// GetAppointment loads one appointment.
func (s *Service) GetAppointment(ctx context.Context, id string) (*Appointment, error) {
	return s.store.Appointments().Find(ctx, id)
}

// ListAppointments returns the agenda between from and to, optionally
// filtered by patient.
func (s *Service) ListAppointments(ctx context.Context, from, to time.Time, patientID string) ([]Appointment, error) {
	return s.store.Appointments().List(ctx, from, to, patientID)
}

// UpdateAppointment applies a partial update through the state machine and
// reconciles the previously and currently linked prescriptions.
func (s *Service) UpdateAppointment(ctx context.Context, id string, patch UpdatePatch, actor Actor) (*Appointment, error) {
	var (
		updated *Appointment
		prevID  string
		newID   string
	)
	err := s.store.RunInTx(ctx, func(txCtx context.Context, tx Store) error {
		appt, err := tx.Appointments().Find(txCtx, id)
		if err != nil {
			return err
		}
		next, prev, err := ApplyUpdate(*appt, patch, actor, s.now())
		if err != nil {
			return err
		}
		prevID = prev
		newID = next.Details.PrescriptionID()

		if newID != prevID {
			if err := s.recordSwapOnPrescriptions(txCtx, tx, next.ID, prevID, newID, actor); err != nil {
				return err
			}
		}
		if err := tx.Appointments().Update(txCtx, &next); err != nil {
			return fmt.Errorf("persist appointment: %w", err)
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAffected(ctx, prescriptionSet(prevID, newID))
	return updated, nil
}

// recordSwapOnPrescriptions chains the swap's audit entries onto both the
// previously and the newly linked prescription.
func (s *Service) recordSwapOnPrescriptions(ctx context.Context, tx Store, apptID, oldID, newID string, actor Actor) error {
	note := func(id, other, verb string) error {
		p, err := tx.Prescriptions().Find(ctx, id)
		if err != nil {
			return fmt.Errorf("load prescription %s for swap: %w", id, err)
		}
		p.AppointmentHistory = AppendAppointmentRecord(p.AppointmentHistory, AppointmentRecord{
			Timestamp:     s.now(),
			AppointmentID: apptID,
			UserID:        actor.ID,
			UserName:      actor.Name,
			Notes:         fmt.Sprintf("appointment %s prescription %s", verb, other),
		})
		p.UpdatedAt = s.now()
		return tx.Prescriptions().Update(ctx, p)
	}
	if oldID != "" {
		if err := note(oldID, newID, "swapped to"); err != nil {
			return err
		}
	}
	if newID != "" {
		if err := note(newID, oldID, "swapped from"); err != nil {
			return err
		}
	}
	return nil
}

type BulkUpdateItem struct {
	ID    string
	Patch UpdatePatch
}

// BulkUpdateAppointments validates set membership first: an unknown id fails
// the whole batch before anything is staged. Each present item then runs
// through the state machine, the batch persists as one unit, and every
// affected prescription gets reconciled afterwards.
func (s *Service) BulkUpdateAppointments(ctx context.Context, items []BulkUpdateItem, actor Actor) ([]Appointment, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	var (
		updated  []Appointment
		affected = map[string]bool{}
	)
	err := s.store.RunInTx(ctx, func(txCtx context.Context, tx Store) error {
		current, err := tx.Appointments().FindMany(txCtx, ids)
		if err != nil {
			return fmt.Errorf("load batch: %w", err)
		}
		byID := make(map[string]Appointment, len(current))
		for _, a := range current {
			byID[a.ID] = a
		}
		if missing := missingIDs(ids, byID); len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrAppointmentNotFound, strings.Join(missing, ", "))
		}

		updated = make([]Appointment, 0, len(items))
		for _, it := range items {
			appt := byID[it.ID]
			next, prev, err := ApplyUpdate(appt, it.Patch, actor, s.now())
			if err != nil {
				return fmt.Errorf("appointment %s: %w", it.ID, err)
			}
			// A duplicate id later in the batch must see this item's result,
			// not the pre-batch snapshot.
			byID[it.ID] = next
			newID := next.Details.PrescriptionID()
			if newID != prev {
				if err := s.recordSwapOnPrescriptions(txCtx, tx, next.ID, prev, newID, actor); err != nil {
					return err
				}
			}
			if prev != "" {
				affected[prev] = true
			}
			if newID != "" {
				affected[newID] = true
			}
			updated = append(updated, next)
		}

		return tx.Appointments().UpdateMany(txCtx, updated)
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAffected(ctx, affected)
	return updated, nil
}

func missingIDs(requested []string, found map[string]Appointment) []string {
	var missing []string
	seen := map[string]bool{}
	for _, id := range requested {
		if _, ok := found[id]; !ok && !seen[id] {
			missing = append(missing, id)
			seen[id] = true
		}
	}
	sort.Strings(missing)
	return missing
}

func prescriptionSet(ids ...string) map[string]bool {
	set := map[string]bool{}
	for _, id := range ids {
		if id != "" {
			set[id] = true
		}
	}
	return set
}

// reconcileAffected runs post-commit reconciliation; failures are logged,
// not surfaced, and the periodic sweep heals them.
func (s *Service) reconcileAffected(ctx context.Context, ids map[string]bool) {
	for id := range ids {
		if err := s.ReconcilePrescription(ctx, id); err != nil {
			s.log.Error().Err(err).Str("prescription_id", id).Msg("post-commit reconciliation failed")
		}
	}
}
