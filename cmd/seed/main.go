package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oncotrack/chemo-scheduling/internal/db"
	"github.com/oncotrack/chemo-scheduling/internal/scheduling"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	patientIDs, err := seedPatients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed patients: %v", err)
	}
	prescriptions, err := seedPrescriptions(context.Background(), pool, patientIDs, 300)
	if err != nil {
		log.Fatalf("seed prescriptions: %v", err)
	}
	if err := seedAppointments(context.Background(), pool, patientIDs, prescriptions); err != nil {
		log.Fatalf("seed appointments: %v", err)
	}

	log.Println("seed complete")
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) ([]string, error) {
	log.Printf("seeding %d patients", count)

	const batchSize = 500
	ids := make([]string, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.NewString()
			name := gofakeit.Name()
			record := fmt.Sprintf("%07d", gofakeit.Number(1, 9999999))

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, record_number, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, record)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return ids, nil
}

type seededPrescription struct {
	id        string
	patientID string
	cycleDays []int
}

var protocols = []string{
	"FOLFOX-6", "FOLFIRI", "CHOP", "R-CHOP", "AC-T",
	"CarboTaxol", "FLOT", "CAPOX", "ABVD", "BEP",
}

var medications = []string{
	"Oxaliplatin", "Fluorouracil", "Leucovorin", "Irinotecan",
	"Cyclophosphamide", "Doxorubicin", "Vincristine", "Paclitaxel",
	"Carboplatin", "Docetaxel", "Rituximab", "Bleomycin",
}

var cycleShapes = [][]int{
	{1}, {1, 8}, {1, 8, 15}, {1, 2, 3},
}

func seedPrescriptions(ctx context.Context, pool *pgxpool.Pool, patientIDs []string, count int) ([]seededPrescription, error) {
	log.Printf("seeding %d prescriptions", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	seeded := make([]seededPrescription, 0, count)

	for i := 0; i < count; i++ {
		id := uuid.NewString()
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		days := cycleShapes[gofakeit.Number(0, len(cycleShapes)-1)]

		content := scheduling.PrescriptionContent{
			IssuedAt: now.Format(time.RFC3339),
			Patient: scheduling.PatientSnapshot{
				Name:         gofakeit.Name(),
				RecordNumber: fmt.Sprintf("%07d", gofakeit.Number(1, 9999999)),
				WeightKg:     float64(gofakeit.Number(45, 110)),
				HeightCm:     float64(gofakeit.Number(150, 195)),
			},
			Physician: scheduling.PhysicianSnapshot{
				Name:    "Dr. " + gofakeit.Name(),
				License: fmt.Sprintf("CRM-%05d", gofakeit.Number(1, 99999)),
			},
			Protocol: scheduling.ProtocolRef{
				Name:         protocols[gofakeit.Number(0, len(protocols)-1)],
				CurrentCycle: gofakeit.Number(1, 6),
			},
			Blocks: []scheduling.MedicationBlock{
				{
					Order:    1,
					Category: "chemotherapy",
					Items: []scheduling.MedicationItem{
						{
							Medication:      medications[gofakeit.Number(0, len(medications)-1)],
							Dose:            float64(gofakeit.Number(50, 400)),
							Unit:            "mg/m2",
							Route:           "IV",
							DurationMinutes: gofakeit.Number(30, 180),
							CycleDays:       days,
						},
					},
				},
			},
		}
		contentJSON, err := json.Marshal(content)
		if err != nil {
			return nil, err
		}

		history := []scheduling.StatusChange{{
			Timestamp: now,
			UserID:    "seed",
			UserName:  "seed",
			OldStatus: "",
			NewStatus: scheduling.PrescriptionPending,
			Reason:    "prescription issued",
		}}
		historyJSON, err := json.Marshal(history)
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO prescriptions (
				id, patient_id, physician_id, status, content,
				history_of_status, history_of_appointments,
				created_at, updated_at
			)
			VALUES ($1, $2, $3, $4, $5, $6, '[]', now(), now())
		`, id, patientID, uuid.NewString(), scheduling.PrescriptionPending, contentJSON, historyJSON)
		if err != nil {
			return nil, err
		}

		seeded = append(seeded, seededPrescription{id: id, patientID: patientID, cycleDays: days})
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("prescriptions seeded")
	return seeded, nil
}

func seedAppointments(ctx context.Context, pool *pgxpool.Pool, patientIDs []string, prescriptions []seededPrescription) error {
	log.Println("seeding appointments")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	total := 0

	// One infusion per cycle-day of every prescription.
	for _, p := range prescriptions {
		for _, day := range p.cycleDays {
			details := scheduling.Details{
				scheduling.DetailInfusion: map[string]any{
					scheduling.FieldPrescriptionID: p.id,
					scheduling.FieldCycleDay:       day,
					scheduling.FieldPharmacyStatus: string(scheduling.PharmacyScheduled),
					scheduling.FieldPreparedItems:  []any{},
				},
			}
			date := today.AddDate(0, 0, day)
			if err := insertAppointment(ctx, tx, p.patientID, scheduling.TypeInfusion, date, details); err != nil {
				return err
			}
			total++
		}
	}

	// A spread of consultations and procedures for random patients.
	for i := 0; i < 400; i++ {
		patientID := patientIDs[gofakeit.Number(0, len(patientIDs)-1)]
		date := today.AddDate(0, 0, gofakeit.Number(0, 30))

		if i%2 == 0 {
			details := scheduling.Details{
				scheduling.DetailConsultation: map[string]any{
					"physician_name": "Dr. " + gofakeit.Name(),
					"specialty":      "oncology",
				},
			}
			if err := insertAppointment(ctx, tx, patientID, scheduling.TypeConsultation, date, details); err != nil {
				return err
			}
		} else {
			details := scheduling.Details{
				scheduling.DetailProcedure: map[string]any{
					"procedure_name": "port flush",
				},
			}
			if err := insertAppointment(ctx, tx, patientID, scheduling.TypeProcedure, date, details); err != nil {
				return err
			}
		}
		total++
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Printf("appointments seeded: %d", total)
	return nil
}

func insertAppointment(ctx context.Context, tx pgx.Tx, patientID string, typ scheduling.AppointmentType, date time.Time, details scheduling.Details) error {
	startHour := gofakeit.Number(7, 17)
	start := fmt.Sprintf("%02d:%02d", startHour, gofakeit.Number(0, 1)*30)
	end := fmt.Sprintf("%02d:%02d", startHour+gofakeit.Number(1, 3), gofakeit.Number(0, 1)*30)

	shift := scheduling.ShiftMorning
	if startHour >= 12 {
		shift = scheduling.ShiftAfternoon
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}
	history := []scheduling.ChangeRecord{{
		Timestamp:  time.Now(),
		UserID:     "seed",
		UserName:   "seed",
		ChangeKind: scheduling.ChangeCreated,
		NewValue:   string(scheduling.StatusScheduled),
	}}
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, type, date, shift, start_time, end_time,
			checked_in, status, walk_in, notes, tags, details,
			history_of_changes, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, false, $8, false, '', '[]', $9, $10, 'seed', now(), now())
	`, uuid.NewString(), patientID, typ, date, shift, start, end,
		scheduling.StatusScheduled, detailsJSON, historyJSON)
	return err
}
