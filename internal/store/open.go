package store

import (
	"context"
	"fmt"

	"clinic-triage/internal/config"
	"clinic-triage/internal/models"
)

// Backend is the full repository surface shared by the Postgres and in-memory stores.
type Backend interface {
	CreatePatient(ctx context.Context, p CreatePatientParams) (models.Patient, error)
	Get(ctx context.Context, id string) (models.Patient, error)
	ListPatients(ctx context.Context) ([]models.Patient, error)
	ListWaiting(ctx context.Context) ([]models.Patient, error)
	UpdateStatus(ctx context.Context, id string, from, to models.Status) (models.Patient, error)
	UpdatePatient(ctx context.Context, id string, u PatientUpdate) (models.Patient, error)
	DeletePatient(ctx context.Context, id string) error
	AppendAudit(ctx context.Context, patientID, event, detail string) error
	AuditTrail(ctx context.Context, patientID string) ([]models.AuditLog, error)
	Close()
}

var (
	_ Backend = (*Store)(nil)
	_ Backend = (*Memory)(nil)
)

// Open returns the backend selected by cfg.StoreBackend, running migrations for Postgres.
func Open(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.StoreBackend {
	case "memory":
		return NewMemory(), nil
	case "postgres":
		st, err := New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := st.RunMigrations(ctx); err != nil {
			st.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}
