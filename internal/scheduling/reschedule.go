package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RescheduleRequest moves an appointment to a new date/time. An empty
// StartTime keeps the original start; the end is always recomputed so the
// successor preserves the original duration.
type RescheduleRequest struct {
	Date      time.Time
	Shift     *Shift
	StartTime string
	Reason    string
}

// detail sub-objects that do not survive a reschedule.
var transientDetailKeys = []string{
	DetailReschedule,
	DetailCancellation,
	DetailSuspension,
	DetailAdverseEvent,
}

// Reschedule atomically retires the appointment (status rescheduled) and
// creates its replacement. Both writes and the linked prescription's
// history entry commit as one transaction; afterwards the prescription is
// reconciled.
func (s *Service) Reschedule(ctx context.Context, id string, req RescheduleRequest, actor Actor) (*Appointment, error) {
	var (
		successor      *Appointment
		prescriptionID string
	)
	err := s.store.RunInTx(ctx, func(txCtx context.Context, tx Store) error {
		src, err := tx.Appointments().Find(txCtx, id)
		if err != nil {
			return err
		}
		if src.Status == StatusRescheduled {
			return invalidTransition("appointment %s is already rescheduled", id)
		}
		successor, err = s.rescheduleOne(txCtx, tx, src, req, actor)
		if err != nil {
			return err
		}
		prescriptionID = src.Details.PrescriptionID()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAffected(ctx, prescriptionSet(prescriptionID))
	return successor, nil
}

type BulkRescheduleItem struct {
	ID      string
	Request RescheduleRequest
}

// BulkReschedule validates that every id exists, then reschedules each item,
// skipping the ones already rescheduled, and commits the whole batch once.
func (s *Service) BulkReschedule(ctx context.Context, items []BulkRescheduleItem, actor Actor) ([]Appointment, error) {
	ids := make([]string, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}

	var (
		successors []Appointment
		affected   = map[string]bool{}
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

		for _, it := range items {
			src := byID[it.ID]
			if src.Status == StatusRescheduled {
				// Already moved by an earlier batch, an earlier item of this
				// batch, or another request; not an error.
				continue
			}
			created, err := s.rescheduleOne(txCtx, tx, &src, it.Request, actor)
			if err != nil {
				return fmt.Errorf("appointment %s: %w", it.ID, err)
			}
			byID[it.ID] = src
			successors = append(successors, *created)
			if pid := src.Details.PrescriptionID(); pid != "" {
				affected[pid] = true
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reconcileAffected(ctx, affected)
	return successors, nil
}

// rescheduleOne stages the retirement of src and the creation of its
// successor on tx. The caller owns the commit.
func (s *Service) rescheduleOne(ctx context.Context, tx Store, src *Appointment, req RescheduleRequest, actor Actor) (*Appointment, error) {
	now := s.now()

	newStart := req.StartTime
	if newStart == "" {
		newStart = src.StartTime
	}
	span, err := clockSpan(src.StartTime, src.EndTime)
	if err != nil {
		return nil, fmt.Errorf("source time slot: %w", err)
	}
	newEnd, err := addClock(newStart, span)
	if err != nil {
		return nil, fmt.Errorf("target time slot: %w", err)
	}
	newShift := src.Shift
	if req.Shift != nil {
		newShift = *req.Shift
	}

	retired := *src
	retired.Details = src.Details.Clone()
	if retired.Details == nil {
		retired.Details = Details{}
	}
	retired.Details[DetailReschedule] = map[string]any{
		"reason":         req.Reason,
		"new_date":       req.Date.Format("2006-01-02"),
		"new_start_time": newStart,
		"rescheduled_at": now.Format(time.RFC3339),
		"user_id":        actor.ID,
		"user_name":      actor.Name,
	}
	retired.History = AppendChange(retired.History, ChangeRecord{
		Timestamp:  now,
		UserID:     actor.ID,
		UserName:   actor.Name,
		ChangeKind: ChangeStatus,
		Field:      "status",
		OldValue:   string(retired.Status),
		NewValue:   string(StatusRescheduled),
		Reason:     req.Reason,
	})
	retired.Status = StatusRescheduled
	retired.UpdatedAt = now

	successor := &Appointment{
		ID:        uuid.NewString(),
		PatientID: src.PatientID,
		Type:      src.Type,
		Date:      req.Date,
		Shift:     newShift,
		StartTime: newStart,
		EndTime:   newEnd,
		Status:    StatusScheduled,
		CheckedIn: false,
		WalkIn:    src.WalkIn,
		Notes:     src.Notes,
		Tags:      append([]string(nil), src.Tags...),
		Details:   carryForwardDetails(src),
		CreatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	successor.History = AppendChange(successor.History, ChangeRecord{
		Timestamp:  now,
		UserID:     actor.ID,
		UserName:   actor.Name,
		ChangeKind: ChangeCreated,
		NewValue:   string(StatusScheduled),
		Reason:     fmt.Sprintf("rescheduled from appointment %s", src.ID),
	})

	if err := tx.Appointments().Update(ctx, &retired); err != nil {
		return nil, fmt.Errorf("retire appointment: %w", err)
	}
	if err := tx.Appointments().Create(ctx, successor); err != nil {
		return nil, fmt.Errorf("create successor appointment: %w", err)
	}

	if pid := src.Details.PrescriptionID(); src.Type == TypeInfusion && pid != "" {
		p, err := tx.Prescriptions().Find(ctx, pid)
		if err != nil {
			return nil, fmt.Errorf("load linked prescription: %w", err)
		}
		p.AppointmentHistory = AppendAppointmentRecord(p.AppointmentHistory, AppointmentRecord{
			Timestamp:         now,
			AppointmentID:     src.ID,
			AppointmentStatus: StatusRescheduled,
			UserID:            actor.ID,
			UserName:          actor.Name,
			Notes:             fmt.Sprintf("superseded by appointment %s", successor.ID),
		})
		p.AppointmentHistory = AppendAppointmentRecord(p.AppointmentHistory, AppointmentRecord{
			Timestamp:         now,
			AppointmentID:     successor.ID,
			AppointmentStatus: StatusScheduled,
			UserID:            actor.ID,
			UserName:          actor.Name,
			Notes:             fmt.Sprintf("generated from appointment %s", src.ID),
		})
		p.UpdatedAt = now
		if err := tx.Prescriptions().Update(ctx, p); err != nil {
			return nil, fmt.Errorf("persist linked prescription: %w", err)
		}
	}

	*src = retired
	return successor, nil
}

// carryForwardDetails strips the transient sub-objects and, for infusions,
// resets the pharmacy pipeline so the successor starts clean.
func carryForwardDetails(src *Appointment) Details {
	cleaned := src.Details.Clone()
	if cleaned == nil {
		return nil
	}
	for _, key := range transientDetailKeys {
		delete(cleaned, key)
	}
	if src.Type == TypeInfusion && cleaned.Infusion() != nil {
		cleaned = cleaned.setInfusionField(FieldPharmacyStatus, string(PharmacyPending))
		cleaned = cleaned.setInfusionField(FieldPreparedItems, []any{})
	}
	return cleaned
}
