package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDetailKeys(t *testing.T) {
	t.Run("Matching Typed Key", func(t *testing.T) {
		err := ValidateDetailKeys(TypeInfusion, Details{
			DetailInfusion: map[string]any{FieldPharmacyStatus: "pending"},
		})
		assert.NoError(t, err)
	})

	t.Run("Foreign Typed Key Rejected", func(t *testing.T) {
		err := ValidateDetailKeys(TypeConsultation, Details{
			DetailInfusion: map[string]any{FieldPharmacyStatus: "pending"},
		})
		assert.ErrorIs(t, err, ErrInvalidDetailKey)
	})

	t.Run("Cross Cutting Keys Legal On Any Type", func(t *testing.T) {
		patch := Details{
			DetailSuspension:   map[string]any{"reason": "fever"},
			DetailAdverseEvent: map[string]any{"grade": 2},
		}
		assert.NoError(t, ValidateDetailKeys(TypeInfusion, patch))
		assert.NoError(t, ValidateDetailKeys(TypeProcedure, patch))
		assert.NoError(t, ValidateDetailKeys(TypeConsultation, patch))
	})
}

func TestMergeDetails(t *testing.T) {
	t.Run("Nested Objects Merge Field By Field", func(t *testing.T) {
		current := Details{
			DetailInfusion: map[string]any{
				FieldPrescriptionID: "rx-1",
				FieldPharmacyStatus: "scheduled",
				FieldCycleDay:       1,
			},
		}
		merged, err := MergeDetails(TypeInfusion, current, Details{
			DetailInfusion: map[string]any{FieldPharmacyStatus: "preparing"},
		})
		require.NoError(t, err)

		inf := merged.Infusion()
		assert.Equal(t, "preparing", inf[FieldPharmacyStatus])
		assert.Equal(t, "rx-1", inf[FieldPrescriptionID], "untouched fields persist")
		assert.Equal(t, 1, inf[FieldCycleDay])
	})

	t.Run("Non Map Values Replace Outright", func(t *testing.T) {
		current := Details{"note_count": 3}
		merged, err := MergeDetails(TypeProcedure, current, Details{"note_count": 4})
		require.NoError(t, err)
		assert.Equal(t, 4, merged["note_count"])
	})

	t.Run("Inputs Are Not Mutated", func(t *testing.T) {
		current := Details{
			DetailInfusion: map[string]any{FieldPharmacyStatus: "scheduled"},
		}
		_, err := MergeDetails(TypeInfusion, current, Details{
			DetailInfusion: map[string]any{FieldPharmacyStatus: "ready"},
		})
		require.NoError(t, err)
		assert.Equal(t, "scheduled", current.Infusion()[FieldPharmacyStatus])
	})

	t.Run("Invalid Key Fails Whole Merge", func(t *testing.T) {
		_, err := MergeDetails(TypeConsultation, Details{}, Details{
			DetailProcedure: map[string]any{"procedure_name": "port flush"},
		})
		assert.ErrorIs(t, err, ErrInvalidDetailKey)
	})

	t.Run("Deep Nesting", func(t *testing.T) {
		current := Details{
			DetailInfusion: map[string]any{
				"access": map[string]any{"kind": "port", "side": "left"},
			},
		}
		merged, err := MergeDetails(TypeInfusion, current, Details{
			DetailInfusion: map[string]any{
				"access": map[string]any{"side": "right"},
			},
		})
		require.NoError(t, err)
		access := merged.Infusion()["access"].(map[string]any)
		assert.Equal(t, "right", access["side"])
		assert.Equal(t, "port", access["kind"])
	})
}

func TestDetailsAccessors(t *testing.T) {
	d := Details{
		DetailInfusion: map[string]any{
			FieldPrescriptionID: "rx-9",
			FieldPharmacyStatus: "pending",
			FieldCycleDay:       float64(8), // JSON decoding produces float64
		},
	}

	assert.Equal(t, "rx-9", d.PrescriptionID())
	assert.Equal(t, PharmacyPending, d.PharmacyStatus())
	assert.Equal(t, 8, d.CycleDay())

	var empty Details
	assert.Equal(t, "", empty.PrescriptionID())
	assert.Equal(t, 0, empty.CycleDay())
}
