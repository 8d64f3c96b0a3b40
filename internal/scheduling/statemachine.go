package scheduling

import (
	"time"
)

// UpdatePatch is a partial update to an appointment. Nil pointer fields are
// left untouched; a nil Tags slice means "keep the current tags"; Details
// entries merge into the current details document.
type UpdatePatch struct {
	Type      *AppointmentType
	Date      *time.Time
	Shift     *Shift
	StartTime *string
	EndTime   *string
	CheckedIn *bool
	Status    *Status
	WalkIn    *bool
	Notes     *string
	Tags      []string
	Details   Details
	Reason    string
}

// ApplyUpdate runs the appointment state machine: it validates patch against
// appt, returns the resulting appointment state with its history entries
// appended, and the prescription id the appointment was linked to before the
// update so the caller can reconcile both sides of a swap. appt itself is
// never mutated.
func ApplyUpdate(appt Appointment, patch UpdatePatch, actor Actor, now time.Time) (Appointment, string, error) {
	if patch.Type != nil && *patch.Type != appt.Type {
		return Appointment{}, "", invalidTransition(
			"appointment type is immutable (%s -> %s)", appt.Type, *patch.Type)
	}

	effStatus := appt.Status
	if patch.Status != nil {
		effStatus = *patch.Status
	}
	effCheckedIn := appt.CheckedIn
	if patch.CheckedIn != nil {
		effCheckedIn = *patch.CheckedIn
	}

	if !effCheckedIn && !checkinExempt[effStatus] {
		if patch.CheckedIn != nil && !*patch.CheckedIn {
			return Appointment{}, "", invalidTransition(
				"cannot clear checkin while status is %q", effStatus)
		}
		return Appointment{}, "", invalidTransition(
			"status %q requires the patient to be checked in", effStatus)
	}

	prevPrescriptionID := appt.Details.PrescriptionID()

	next := appt
	next.Details = appt.Details.Clone()
	if patch.Details != nil {
		merged, err := MergeDetails(appt.Type, appt.Details, patch.Details)
		if err != nil {
			return Appointment{}, "", err
		}
		next.Details = merged
	}

	if patch.Date != nil {
		next.Date = *patch.Date
	}
	if patch.Shift != nil {
		next.Shift = *patch.Shift
	}
	if patch.StartTime != nil {
		next.StartTime = *patch.StartTime
	}
	if patch.EndTime != nil {
		next.EndTime = *patch.EndTime
	}
	if patch.WalkIn != nil {
		next.WalkIn = *patch.WalkIn
	}
	if patch.Notes != nil {
		next.Notes = *patch.Notes
	}
	if patch.Tags != nil {
		next.Tags = append([]string(nil), patch.Tags...)
	}
	next.Status = effStatus
	next.CheckedIn = effCheckedIn
	next.UpdatedAt = now

	if patch.Status != nil && *patch.Status != appt.Status {
		next.History = AppendChange(next.History, ChangeRecord{
			Timestamp:  now,
			UserID:     actor.ID,
			UserName:   actor.Name,
			ChangeKind: ChangeStatus,
			Field:      "status",
			OldValue:   string(appt.Status),
			NewValue:   string(effStatus),
			Reason:     patch.Reason,
		})
	}
	if patch.CheckedIn != nil && *patch.CheckedIn != appt.CheckedIn {
		next.History = AppendChange(next.History, ChangeRecord{
			Timestamp:  now,
			UserID:     actor.ID,
			UserName:   actor.Name,
			ChangeKind: ChangeCheckin,
			Field:      "checked_in",
			OldValue:   boolValue(appt.CheckedIn),
			NewValue:   boolValue(effCheckedIn),
			Reason:     patch.Reason,
		})
	}

	// The pharmacy is only told to start once the patient is physically
	// present: a checkin that lands the infusion in awaiting-medication moves
	// the pipeline from scheduled to pending.
	if appt.Type == TypeInfusion &&
		effStatus == StatusAwaitingMedication &&
		effCheckedIn && !appt.CheckedIn &&
		next.Details.PharmacyStatus() == PharmacyScheduled {
		next.Details = next.Details.setInfusionField(FieldPharmacyStatus, string(PharmacyPending))
		next.History = AppendChange(next.History, ChangeRecord{
			Timestamp:  now,
			UserID:     actor.ID,
			UserName:   actor.Name,
			ChangeKind: ChangePharmacyStatus,
			Field:      FieldPharmacyStatus,
			OldValue:   string(PharmacyScheduled),
			NewValue:   string(PharmacyPending),
			Reason:     "automatic change on checkin/status",
		})
	}

	// Only an actual change of the linked prescription id counts as a swap.
	if newID := next.Details.PrescriptionID(); patchTouchesPrescription(patch.Details) && newID != prevPrescriptionID {
		next.History = AppendChange(next.History, ChangeRecord{
			Timestamp:  now,
			UserID:     actor.ID,
			UserName:   actor.Name,
			ChangeKind: ChangePrescriptionSwap,
			Field:      FieldPrescriptionID,
			OldValue:   prevPrescriptionID,
			NewValue:   newID,
			Reason:     patch.Reason,
		})
		next.Details = appendSwapEntry(next.Details, prevPrescriptionID, newID, actor, patch.Reason, now)
	}

	return next, prevPrescriptionID, nil
}

func patchTouchesPrescription(patch Details) bool {
	sub, ok := patch[DetailInfusion].(map[string]any)
	if !ok {
		return false
	}
	_, ok = sub[FieldPrescriptionID]
	return ok
}

func appendSwapEntry(d Details, oldID, newID string, actor Actor, reason string, now time.Time) Details {
	out := d.Clone()
	if out == nil {
		out = Details{}
	}
	entry := map[string]any{
		"timestamp":           now.Format(time.RFC3339),
		"user_id":             actor.ID,
		"user_name":           actor.Name,
		"old_prescription_id": oldID,
		"new_prescription_id": newID,
		"reason":              reason,
	}
	prev, _ := out[DetailPrescriptionSwaps].([]any)
	out[DetailPrescriptionSwaps] = append(append([]any(nil), prev...), entry)
	return out
}

func boolValue(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
