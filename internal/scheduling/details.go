package scheduling

// Details carries the type-specific sub-state of an appointment as a nested
// document. Exactly one of the per-type sub-objects may be populated; the
// cross-cutting sub-objects are legal on any appointment type.
type Details map[string]any

// Per-type detail keys. Writing one that does not match the appointment's
// type is rejected by MergeDetails.
const (
	DetailInfusion     = "infusion"
	DetailProcedure    = "procedure"
	DetailConsultation = "consultation"
)

// Cross-cutting detail keys, legal regardless of appointment type.
const (
	DetailSuspension        = "suspension"
	DetailCancellation      = "cancellation"
	DetailAdverseEvent      = "adverse_event"
	DetailReschedule        = "reschedule"
	DetailPrescriptionSwaps = "prescription_swap_history"
)

// Fields of the infusion sub-object the core reads and writes.
const (
	FieldPrescriptionID = "prescription_id"
	FieldPharmacyStatus = "pharmacy_status"
	FieldCycleDay       = "cycle_day"
	FieldPreparedItems  = "prepared_items"
)

var detailOwner = map[string]AppointmentType{
	DetailInfusion:     TypeInfusion,
	DetailProcedure:    TypeProcedure,
	DetailConsultation: TypeConsultation,
}

func detailKeyFor(t AppointmentType) string {
	switch t {
	case TypeInfusion:
		return DetailInfusion
	case TypeProcedure:
		return DetailProcedure
	default:
		return DetailConsultation
	}
}

// ValidateDetailKeys checks that every top-level key in patch is legal for
// an appointment of type t.
func ValidateDetailKeys(t AppointmentType, patch Details) error {
	for key := range patch {
		owner, isTyped := detailOwner[key]
		if isTyped && owner != t {
			return invalidDetailKey(key, t)
		}
	}
	return nil
}

// MergeDetails merges patch into current without mutating either. Keys whose
// current and new values are both nested objects merge field by field (new
// fields overwrite, unspecified fields persist); any other value replaces
// the old one outright.
func MergeDetails(t AppointmentType, current, patch Details) (Details, error) {
	if err := ValidateDetailKeys(t, patch); err != nil {
		return nil, err
	}
	merged := cloneMap(map[string]any(current))
	for key, val := range patch {
		merged[key] = mergeValue(merged[key], val)
	}
	return merged, nil
}

func mergeValue(oldVal, newVal any) any {
	oldMap, oldOK := oldVal.(map[string]any)
	newMap, newOK := newVal.(map[string]any)
	if oldOK && newOK {
		merged := cloneMap(oldMap)
		for k, v := range newMap {
			merged[k] = mergeValue(merged[k], v)
		}
		return merged
	}
	return cloneValue(newVal)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case Details:
		return cloneMap(map[string]any(val))
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}

// Clone returns a deep copy of d.
func (d Details) Clone() Details {
	if d == nil {
		return nil
	}
	return Details(cloneMap(map[string]any(d)))
}

// Infusion returns the infusion sub-object, or nil when absent.
func (d Details) Infusion() map[string]any {
	sub, _ := d[DetailInfusion].(map[string]any)
	return sub
}

// PrescriptionID returns the prescription linked through the infusion
// sub-object, or "" when there is none.
func (d Details) PrescriptionID() string {
	id, _ := d.Infusion()[FieldPrescriptionID].(string)
	return id
}

// PharmacyStatus returns the infusion sub-object's pharmacy pipeline status.
func (d Details) PharmacyStatus() PharmacyStatus {
	s, _ := d.Infusion()[FieldPharmacyStatus].(string)
	return PharmacyStatus(s)
}

// CycleDay returns the infusion sub-object's cycle-day number, tolerating
// the float64 that JSON decoding produces.
func (d Details) CycleDay() int {
	switch v := d.Infusion()[FieldCycleDay].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return 0
	}
}

func (d Details) setInfusionField(key string, val any) Details {
	out := d.Clone()
	if out == nil {
		out = Details{}
	}
	sub, _ := out[DetailInfusion].(map[string]any)
	if sub == nil {
		sub = map[string]any{}
	}
	sub[key] = val
	out[DetailInfusion] = sub
	return out
}
