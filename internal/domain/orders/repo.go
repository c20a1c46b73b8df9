package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Find* methods return (nil, nil) when no row matches; a non-nil error is
// reserved for storage failures.

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	// Update rewrites the identity and demographic fields of an existing
	// row; used when a confirmed submission corrects a prior record.
	Update(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	FindByMRN(ctx context.Context, mrn string) (*Patient, error)
	FindByNameDOB(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error)
}

type ProviderRepository interface {
	Create(ctx context.Context, p *Provider) error
	GetByID(ctx context.Context, id uuid.UUID) (*Provider, error)
	FindByNPI(ctx context.Context, npi string) (*Provider, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*Order, error)
	// FindByPatientMedication matches medication name case-insensitively,
	// newest first.
	FindByPatientMedication(ctx context.Context, patientID uuid.UUID, medication string) ([]*Order, error)
	// ClaimProcessing moves pending -> processing only when the row is still
	// pending. Returns false when another worker got there first or the
	// state changed underneath the queue.
	ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error)
	// SetStatus writes the new state and error message unconditionally;
	// callers enforce transition legality.
	SetStatus(ctx context.Context, id uuid.UUID, status Status, errorMessage *string) error
	Search(ctx context.Context, search string, limit, offset int) ([]*OrderSummary, int, error)
	Export(ctx context.Context) ([]*ExportRow, error)
}
