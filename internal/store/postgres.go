package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"clinic-triage/internal/models"
)

// Store wraps pgxpool for Postgres persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a pooled connection to Postgres.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

const patientColumns = `id, ticket, name, description, category, sub_priority, arrival_time, status, contacts, state, location, updated_at`

// CreatePatient inserts a patient in StatusWaiting.
func (s *Store) CreatePatient(ctx context.Context, p CreatePatientParams) (models.Patient, error) {
	now := time.Now().UTC()
	arrival := p.ArrivalTime
	if arrival.IsZero() {
		arrival = now
	}
	if p.Contacts == nil {
		p.Contacts = []models.Contact{}
	}
	contactsJSON, err := json.Marshal(p.Contacts)
	if err != nil {
		return models.Patient{}, fmt.Errorf("marshal contacts: %w", err)
	}

	id := uuid.New().String()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO patients (id, ticket, name, description, category, sub_priority, arrival_time, status, contacts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, id, p.Ticket, p.Name, p.Description, string(p.Category), p.SubPriority, arrival, string(models.StatusWaiting), contactsJSON, now)
	if err != nil {
		return models.Patient{}, fmt.Errorf("insert patient: %w", err)
	}

	return models.Patient{
		ID:          id,
		Ticket:      p.Ticket,
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		SubPriority: p.SubPriority,
		ArrivalTime: arrival,
		Status:      models.StatusWaiting,
		Contacts:    p.Contacts,
		UpdatedAt:   now,
	}, nil
}

// Get fetches a patient by id.
func (s *Store) Get(ctx context.Context, id string) (models.Patient, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
	return scanPatient(row)
}

// ListPatients returns every patient ordered by arrival.
func (s *Store) ListPatients(ctx context.Context) ([]models.Patient, error) {
	return s.query(ctx, `SELECT `+patientColumns+` FROM patients ORDER BY arrival_time, id`)
}

// ListWaiting returns patients in StatusWaiting.
func (s *Store) ListWaiting(ctx context.Context) ([]models.Patient, error) {
	return s.query(ctx, `SELECT `+patientColumns+` FROM patients WHERE status = $1 ORDER BY arrival_time, id`, string(models.StatusWaiting))
}

func (s *Store) query(ctx context.Context, sql string, args ...any) ([]models.Patient, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query patients: %w", err)
	}
	defer rows.Close()
	var out []models.Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}

// UpdateStatus is a compare-and-set on status: the row is only touched when it
// is still in `from`.
func (s *Store) UpdateStatus(ctx context.Context, id string, from, to models.Status) (models.Patient, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE patients SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+patientColumns, id, string(from), string(to))
	p, err := scanPatient(row)
	if errors.Is(err, models.ErrNotFound) {
		// Distinguish a missing row from one that moved on under us.
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return models.Patient{}, getErr
		}
		return models.Patient{}, fmt.Errorf("patient %s no longer %s: %w", id, from, models.ErrConflict)
	}
	return p, err
}

// UpdatePatient applies a staff edit inside a row-locking transaction.
func (s *Store) UpdatePatient(ctx context.Context, id string, u PatientUpdate) (models.Patient, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Patient{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // safe no-op on commit

	p, err := scanPatient(tx.QueryRow(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return models.Patient{}, err
	}
	if u.TouchesTriage() && !p.Editable() {
		return models.Patient{}, fmt.Errorf("patient %s: %w", id, models.ErrLocked)
	}
	u.apply(&p)
	contactsJSON, err := json.Marshal(p.Contacts)
	if err != nil {
		return models.Patient{}, fmt.Errorf("marshal contacts: %w", err)
	}
	p, err = scanPatient(tx.QueryRow(ctx, `
		UPDATE patients
		SET name = $2, description = $3, category = $4, sub_priority = $5, contacts = $6, state = $7, location = $8, updated_at = NOW()
		WHERE id = $1
		RETURNING `+patientColumns,
		id, p.Name, p.Description, string(p.Category), p.SubPriority, contactsJSON, p.State, p.Location))
	if err != nil {
		return models.Patient{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Patient{}, fmt.Errorf("commit: %w", err)
	}
	return p, nil
}

// DeletePatient removes a patient record.
func (s *Store) DeletePatient(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM patients WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient %s: %w", id, models.ErrNotFound)
	}
	return nil
}

// AppendAudit adds an audit row.
func (s *Store) AppendAudit(ctx context.Context, patientID, event, detail string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO audit_logs (patient_id, event, detail, ts)
		VALUES ($1, $2, $3, NOW())
	`, patientID, event, detail)
	return err
}

// AuditTrail returns audit rows for a patient oldest first.
func (s *Store) AuditTrail(ctx context.Context, patientID string) ([]models.AuditLog, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT patient_id, event, detail, ts FROM audit_logs WHERE patient_id = $1 ORDER BY ts, id
	`, patientID)
	if err != nil {
		return nil, fmt.Errorf("query audit: %w", err)
	}
	defer rows.Close()
	var out []models.AuditLog
	for rows.Next() {
		var a models.AuditLog
		if err := rows.Scan(&a.PatientID, &a.Event, &a.Detail, &a.Recorded); err != nil {
			return nil, fmt.Errorf("scan audit: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// Ping checks connectivity for health checks.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func scanPatient(row pgx.Row) (models.Patient, error) {
	var p models.Patient
	var category, status string
	var contactsJSON []byte
	var state, location pgtype.Text

	if err := row.Scan(&p.ID, &p.Ticket, &p.Name, &p.Description, &category, &p.SubPriority, &p.ArrivalTime, &status, &contactsJSON, &state, &location, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Patient{}, fmt.Errorf("patient: %w", models.ErrNotFound)
		}
		return models.Patient{}, fmt.Errorf("scan patient: %w", err)
	}
	p.Category = models.Category(category)
	p.Status = models.Status(status)
	if err := json.Unmarshal(contactsJSON, &p.Contacts); err != nil {
		return models.Patient{}, fmt.Errorf("unmarshal contacts: %w", err)
	}
	p.State = textPtr(state)
	p.Location = textPtr(location)
	return p, nil
}

func textPtr(t pgtype.Text) *string {
	if t.Valid {
		return &t.String
	}
	return nil
}
