package scheduling

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx, so the same store
// code serves pooled reads and transaction-scoped writes.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type PgStore struct {
	pool *pgxpool.Pool
	q    querier
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool, q: pool}
}

func (s *PgStore) Appointments() AppointmentStore   { return &pgAppointments{q: s.q} }
func (s *PgStore) Prescriptions() PrescriptionStore { return &pgPrescriptions{q: s.q} }
func (s *PgStore) Patients() PatientStore           { return &pgPatients{q: s.q} }

// RunInTx opens a transaction and hands fn a Store whose writes are staged
// on it. A nested call joins the ambient transaction instead of opening a
// second one.
func (s *PgStore) RunInTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if s.pool == nil {
		return fn(ctx, s)
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &PgStore{q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Appointments

type pgAppointments struct {
	q querier
}

const appointmentColumns = `
	id, patient_id, type, date, shift, start_time, end_time,
	checked_in, status, walk_in, COALESCE(notes, ''), tags, details,
	history_of_changes, COALESCE(created_by, ''), created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var (
		a       Appointment
		tags    []byte
		details []byte
		history []byte
	)
	err := row.Scan(
		&a.ID, &a.PatientID, &a.Type, &a.Date, &a.Shift, &a.StartTime, &a.EndTime,
		&a.CheckedIn, &a.Status, &a.WalkIn, &a.Notes, &tags, &details,
		&history, &a.CreatedBy, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(tags, &a.Tags); err != nil {
		return nil, fmt.Errorf("decode appointment tags: %w", err)
	}
	if err := unmarshalJSON(details, &a.Details); err != nil {
		return nil, fmt.Errorf("decode appointment details: %w", err)
	}
	if err := unmarshalJSON(history, &a.History); err != nil {
		return nil, fmt.Errorf("decode appointment history: %w", err)
	}
	return &a, nil
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	defer rows.Close()
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgAppointments) Find(ctx context.Context, id string) (*Appointment, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *pgAppointments) FindMany(ctx context.Context, ids []string) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *pgAppointments) FindByPrescriptionAndCycleDay(ctx context.Context, prescriptionID string, cycleDay int) ([]Appointment, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE details->'infusion'->>'prescription_id' = $1
		  AND (details->'infusion'->>'cycle_day')::int = $2
	`, prescriptionID, cycleDay)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *pgAppointments) ListByPrescription(ctx context.Context, prescriptionID string, includeCompleted bool) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE details->'infusion'->>'prescription_id' = $1`
	if !includeCompleted {
		query += `
		  AND status <> 'completed'`
	}
	rows, err := r.q.Query(ctx, query, prescriptionID)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *pgAppointments) List(ctx context.Context, from, to time.Time, patientID string) ([]Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE date >= $1 AND date <= $2`
	args := []any{from, to}
	if patientID != "" {
		query += `
		  AND patient_id = $3`
		args = append(args, patientID)
	}
	query += `
		ORDER BY date, start_time`
	rows, err := r.q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return collectAppointments(rows)
}

func (r *pgAppointments) Create(ctx context.Context, a *Appointment) error {
	tags, details, history, err := marshalAppointmentDocs(a)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO appointments (
			id, patient_id, type, date, shift, start_time, end_time,
			checked_in, status, walk_in, notes, tags, details,
			history_of_changes, created_by, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`, a.ID, a.PatientID, a.Type, a.Date, a.Shift, a.StartTime, a.EndTime,
		a.CheckedIn, a.Status, a.WalkIn, a.Notes, tags, details,
		history, a.CreatedBy, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func (r *pgAppointments) Update(ctx context.Context, a *Appointment) error {
	tags, details, history, err := marshalAppointmentDocs(a)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE appointments
		SET date = $2, shift = $3, start_time = $4, end_time = $5,
		    checked_in = $6, status = $7, walk_in = $8, notes = $9,
		    tags = $10, details = $11, history_of_changes = $12,
		    updated_at = $13
		WHERE id = $1
	`, a.ID, a.Date, a.Shift, a.StartTime, a.EndTime,
		a.CheckedIn, a.Status, a.WalkIn, a.Notes,
		tags, details, history, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update appointment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAppointmentNotFound
	}
	return nil
}

func (r *pgAppointments) UpdateMany(ctx context.Context, appts []Appointment) error {
	for i := range appts {
		if err := r.Update(ctx, &appts[i]); err != nil {
			return fmt.Errorf("appointment %s: %w", appts[i].ID, err)
		}
	}
	return nil
}

func marshalAppointmentDocs(a *Appointment) (tags, details, history []byte, err error) {
	if tags, err = json.Marshal(emptyIfNilSlice(a.Tags)); err != nil {
		return nil, nil, nil, fmt.Errorf("encode appointment tags: %w", err)
	}
	d := a.Details
	if d == nil {
		d = Details{}
	}
	if details, err = json.Marshal(d); err != nil {
		return nil, nil, nil, fmt.Errorf("encode appointment details: %w", err)
	}
	h := a.History
	if h == nil {
		h = []ChangeRecord{}
	}
	if history, err = json.Marshal(h); err != nil {
		return nil, nil, nil, fmt.Errorf("encode appointment history: %w", err)
	}
	return tags, details, history, nil
}

// Prescriptions

type pgPrescriptions struct {
	q querier
}

const prescriptionColumns = `
	id, patient_id, COALESCE(physician_id, ''), status, content,
	history_of_status, history_of_appointments,
	COALESCE(replacement_prescription_id, ''),
	COALESCE(original_prescription_id, ''), created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var (
		p             Prescription
		content       []byte
		statusHistory []byte
		apptHistory   []byte
	)
	err := row.Scan(
		&p.ID, &p.PatientID, &p.PhysicianID, &p.Status, &content,
		&statusHistory, &apptHistory,
		&p.ReplacementID, &p.OriginalID, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPrescriptionNotFound
		}
		return nil, err
	}
	if err := unmarshalJSON(content, &p.Content); err != nil {
		return nil, fmt.Errorf("decode prescription content: %w", err)
	}
	if err := unmarshalJSON(statusHistory, &p.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode prescription status history: %w", err)
	}
	if err := unmarshalJSON(apptHistory, &p.AppointmentHistory); err != nil {
		return nil, fmt.Errorf("decode prescription appointment history: %w", err)
	}
	return &p, nil
}

func collectPrescriptions(rows pgx.Rows) ([]Prescription, error) {
	defer rows.Close()
	var result []Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *pgPrescriptions) Find(ctx context.Context, id string) (*Prescription, error) {
	row := r.q.QueryRow(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = $1
	`, id)
	return scanPrescription(row)
}

func (r *pgPrescriptions) FindMany(ctx context.Context, ids []string) ([]Prescription, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}
	return collectPrescriptions(rows)
}

func (r *pgPrescriptions) ListActive(ctx context.Context) ([]Prescription, error) {
	rows, err := r.q.Query(ctx, `
		SELECT `+prescriptionColumns+`
		FROM prescriptions
		WHERE status NOT IN ('suspended', 'replaced', 'cancelled')
	`)
	if err != nil {
		return nil, err
	}
	return collectPrescriptions(rows)
}

func (r *pgPrescriptions) Create(ctx context.Context, p *Prescription) error {
	content, statusHistory, apptHistory, err := marshalPrescriptionDocs(p)
	if err != nil {
		return err
	}
	_, err = r.q.Exec(ctx, `
		INSERT INTO prescriptions (
			id, patient_id, physician_id, status, content,
			history_of_status, history_of_appointments,
			replacement_prescription_id, original_prescription_id,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), $10, $11)
	`, p.ID, p.PatientID, p.PhysicianID, p.Status, content,
		statusHistory, apptHistory,
		p.ReplacementID, p.OriginalID, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert prescription: %w", err)
	}
	return nil
}

func (r *pgPrescriptions) Update(ctx context.Context, p *Prescription) error {
	content, statusHistory, apptHistory, err := marshalPrescriptionDocs(p)
	if err != nil {
		return err
	}
	tag, err := r.q.Exec(ctx, `
		UPDATE prescriptions
		SET status = $2, content = $3, history_of_status = $4,
		    history_of_appointments = $5,
		    replacement_prescription_id = NULLIF($6, ''),
		    original_prescription_id = NULLIF($7, ''),
		    updated_at = $8
		WHERE id = $1
	`, p.ID, p.Status, content, statusHistory, apptHistory,
		p.ReplacementID, p.OriginalID, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update prescription: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPrescriptionNotFound
	}
	return nil
}

func marshalPrescriptionDocs(p *Prescription) (content, statusHistory, apptHistory []byte, err error) {
	if content, err = json.Marshal(p.Content); err != nil {
		return nil, nil, nil, fmt.Errorf("encode prescription content: %w", err)
	}
	sh := p.StatusHistory
	if sh == nil {
		sh = []StatusChange{}
	}
	if statusHistory, err = json.Marshal(sh); err != nil {
		return nil, nil, nil, fmt.Errorf("encode prescription status history: %w", err)
	}
	ah := p.AppointmentHistory
	if ah == nil {
		ah = []AppointmentRecord{}
	}
	if apptHistory, err = json.Marshal(ah); err != nil {
		return nil, nil, nil, fmt.Errorf("encode prescription appointment history: %w", err)
	}
	return content, statusHistory, apptHistory, nil
}

// Patients

type pgPatients struct {
	q querier
}

func (r *pgPatients) Find(ctx context.Context, id string) (*Patient, error) {
	var p Patient
	err := r.q.QueryRow(ctx, `
		SELECT id, name, record_number, created_at, updated_at
		FROM patients
		WHERE id = $1
	`, id).Scan(&p.ID, &p.Name, &p.RecordNumber, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPatientNotFound
		}
		return nil, err
	}
	return &p, nil
}

func unmarshalJSON(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, dst)
}

func emptyIfNilSlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
