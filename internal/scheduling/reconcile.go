package scheduling

import (
	"context"
	"fmt"
)

// inProgressStatuses are the appointment statuses that mean the patient is
// somewhere inside the clinic working through the prescription.
var inProgressStatuses = map[Status]bool{
	StatusInTriage:             true,
	StatusInInfusion:           true,
	StatusAdverseEvent:         true,
	StatusAwaitingConsultation: true,
	StatusAwaitingExam:         true,
	StatusAwaitingMedication:   true,
	StatusAdmitted:             true,
}

// DerivePrescriptionStatus computes a prescription's status from the
// aggregate status of its linked appointments.
func DerivePrescriptionStatus(appts []Appointment) PrescriptionStatus {
	if len(appts) == 0 {
		return PrescriptionPending
	}
	allCompleted := true
	for _, a := range appts {
		if a.Status != StatusCompleted {
			allCompleted = false
		}
		if inProgressStatuses[a.Status] {
			return PrescriptionInProgress
		}
	}
	if allCompleted {
		return PrescriptionCompleted
	}
	return PrescriptionScheduled
}

// ReconcilePrescription recomputes the prescription's status from its
// linked appointments. Terminal statuses are sticky and short-circuit to a
// no-op. The call is idempotent: with no intervening appointment change it
// writes nothing on a repeat invocation.
func (s *Service) ReconcilePrescription(ctx context.Context, prescriptionID string) error {
	p, err := s.store.Prescriptions().Find(ctx, prescriptionID)
	if err != nil {
		return fmt.Errorf("load prescription for reconciliation: %w", err)
	}
	if p.Status.IsTerminal() {
		return nil
	}

	appts, err := s.store.Appointments().ListByPrescription(ctx, prescriptionID, true)
	if err != nil {
		return fmt.Errorf("list appointments for reconciliation: %w", err)
	}

	derived := DerivePrescriptionStatus(appts)
	if derived == p.Status {
		return nil
	}

	p.StatusHistory = AppendStatusChange(p.StatusHistory, StatusChange{
		Timestamp: s.now(),
		OldStatus: p.Status,
		NewStatus: derived,
		Reason:    "derived from linked appointments",
		Automatic: true,
	})
	p.Status = derived
	p.UpdatedAt = s.now()

	if err := s.store.Prescriptions().Update(ctx, p); err != nil {
		return fmt.Errorf("persist reconciled prescription: %w", err)
	}

	s.log.Info().
		Str("prescription_id", prescriptionID).
		Str("status", string(derived)).
		Msg("prescription status reconciled")
	return nil
}

// ReconcileActivePrescriptions sweeps every non-terminal prescription
// through the reconciler. Intended for the periodic worker.
func (s *Service) ReconcileActivePrescriptions(ctx context.Context) error {
	active, err := s.store.Prescriptions().ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active prescriptions: %w", err)
	}
	for _, p := range active {
		if err := s.ReconcilePrescription(ctx, p.ID); err != nil {
			s.log.Error().Err(err).Str("prescription_id", p.ID).Msg("reconcile sweep item failed")
		}
	}
	return nil
}
