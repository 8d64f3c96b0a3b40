package scheduling

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

type CreatePrescriptionInput struct {
	PatientID   string
	PhysicianID string
	Content     PrescriptionContent
}

// CreatePrescription issues a new prescription in status pending with its
// content snapshot.
func (s *Service) CreatePrescription(ctx context.Context, in CreatePrescriptionInput, actor Actor) (*Prescription, error) {
	if _, err := s.store.Patients().Find(ctx, in.PatientID); err != nil {
		return nil, err
	}
	p := &Prescription{
		ID:          uuid.NewString(),
		PatientID:   in.PatientID,
		PhysicianID: in.PhysicianID,
		Status:      PrescriptionPending,
		Content:     in.Content,
		CreatedAt:   s.now(),
		UpdatedAt:   s.now(),
	}
	p.StatusHistory = AppendStatusChange(p.StatusHistory, StatusChange{
		Timestamp: s.now(),
		UserID:    actor.ID,
		UserName:  actor.Name,
		OldStatus: "",
		NewStatus: PrescriptionPending,
		Reason:    "prescription issued",
	})
	if err := s.store.Prescriptions().Create(ctx, p); err != nil {
		return nil, fmt.Errorf("create prescription: %w", err)
	}
	return p, nil
}

func (s *Service) GetPrescription(ctx context.Context, id string) (*Prescription, error) {
	return s.store.Prescriptions().Find(ctx, id)
}

// SetPrescriptionStatus applies a direct administrative status change. Only
// the suspend/cancel terminal statuses may be set this way; everything else
// is owned by the reconciler or the replacement flow.
func (s *Service) SetPrescriptionStatus(ctx context.Context, id string, status PrescriptionStatus, actor Actor, reason string) (*Prescription, error) {
	if status != PrescriptionSuspended && status != PrescriptionCancelled {
		return nil, invalidTransition("status %q cannot be set administratively", status)
	}

	var updated *Prescription
	err := s.store.RunInTx(ctx, func(txCtx context.Context, tx Store) error {
		p, err := tx.Prescriptions().Find(txCtx, id)
		if err != nil {
			return err
		}
		if p.Status.IsTerminal() {
			return invalidTransition("prescription %s is already %s", id, p.Status)
		}
		p.StatusHistory = AppendStatusChange(p.StatusHistory, StatusChange{
			Timestamp: s.now(),
			UserID:    actor.ID,
			UserName:  actor.Name,
			OldStatus: p.Status,
			NewStatus: status,
			Reason:    reason,
		})
		p.Status = status
		p.UpdatedAt = s.now()
		if err := tx.Prescriptions().Update(txCtx, p); err != nil {
			return fmt.Errorf("persist prescription: %w", err)
		}
		updated = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ReplacePrescription retires the original (status replaced) and issues its
// successor, linking the two ends of the replacement chain. A prescription
// can have at most one active successor.
func (s *Service) ReplacePrescription(ctx context.Context, id string, in CreatePrescriptionInput, actor Actor) (*Prescription, error) {
	var successor *Prescription
	err := s.store.RunInTx(ctx, func(txCtx context.Context, tx Store) error {
		original, err := tx.Prescriptions().Find(txCtx, id)
		if err != nil {
			return err
		}
		if original.Status.IsTerminal() {
			return invalidTransition("prescription %s is already %s", id, original.Status)
		}
		if original.ReplacementID != "" {
			return invalidTransition("prescription %s already has a replacement", id)
		}
		if in.PatientID != original.PatientID {
			return incompatiblePrescription("replacement must keep patient %s", original.PatientID)
		}

		successor = &Prescription{
			ID:          uuid.NewString(),
			PatientID:   in.PatientID,
			PhysicianID: in.PhysicianID,
			Status:      PrescriptionPending,
			Content:     in.Content,
			OriginalID:  original.ID,
			CreatedAt:   s.now(),
			UpdatedAt:   s.now(),
		}
		successor.StatusHistory = AppendStatusChange(successor.StatusHistory, StatusChange{
			Timestamp: s.now(),
			UserID:    actor.ID,
			UserName:  actor.Name,
			NewStatus: PrescriptionPending,
			Reason:    fmt.Sprintf("replaces prescription %s", original.ID),
		})
		if err := tx.Prescriptions().Create(txCtx, successor); err != nil {
			return fmt.Errorf("create replacement: %w", err)
		}

		original.StatusHistory = AppendStatusChange(original.StatusHistory, StatusChange{
			Timestamp: s.now(),
			UserID:    actor.ID,
			UserName:  actor.Name,
			OldStatus: original.Status,
			NewStatus: PrescriptionReplaced,
			Reason:    fmt.Sprintf("replaced by prescription %s", successor.ID),
		})
		original.Status = PrescriptionReplaced
		original.ReplacementID = successor.ID
		original.UpdatedAt = s.now()
		return tx.Prescriptions().Update(txCtx, original)
	})
	if err != nil {
		return nil, err
	}
	return successor, nil
}
