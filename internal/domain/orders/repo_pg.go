package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/careplan/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// isUniqueViolation unwraps a Postgres 23505 error and names the constraint
// so the intake service can convert the race into a duplicate response.
func isUniqueViolation(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return pgErr.ConstraintName, true
	}
	return "", false
}

// =========== Patient Repository ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository {
	return &patientRepoPG{pool: pool}
}

func (r *patientRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const patientCols = `id, mrn, first_name, last_name, dob, sex, weight_kg, allergies, created_at`

func (r *patientRepoPG) scan(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.MRN, &p.FirstName, &p.LastName, &p.DOB,
		&p.Sex, &p.WeightKG, &p.Allergies, &p.CreatedAt)
	return &p, err
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO patients (id, mrn, first_name, last_name, dob, sex, weight_kg, allergies)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.MRN, p.FirstName, p.LastName, p.DOB, p.Sex, p.WeightKG, p.Allergies)
	return err
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE patients SET first_name=$2, last_name=$3, dob=$4, sex=$5, weight_kg=$6, allergies=$7
		WHERE id = $1`,
		p.ID, p.FirstName, p.LastName, p.DOB, p.Sex, p.WeightKG, p.Allergies)
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE id = $1`, id))
}

func (r *patientRepoPG) FindByMRN(ctx context.Context, mrn string) (*Patient, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+patientCols+` FROM patients WHERE mrn = $1`, mrn))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (r *patientRepoPG) FindByNameDOB(ctx context.Context, firstName, lastName string, dob time.Time) (*Patient, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+patientCols+` FROM patients
		WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2) AND dob = $3
		ORDER BY created_at LIMIT 1`,
		firstName, lastName, dob))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// =========== Provider Repository ===========

type providerRepoPG struct{ pool *pgxpool.Pool }

func NewProviderRepoPG(pool *pgxpool.Pool) ProviderRepository {
	return &providerRepoPG{pool: pool}
}

func (r *providerRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const providerCols = `id, npi, first_name, last_name, created_at`

func (r *providerRepoPG) scan(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(&p.ID, &p.NPI, &p.FirstName, &p.LastName, &p.CreatedAt)
	return &p, err
}

func (r *providerRepoPG) Create(ctx context.Context, p *Provider) error {
	p.ID = uuid.New()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO providers (id, npi, first_name, last_name)
		VALUES ($1,$2,$3,$4)`,
		p.ID, p.NPI, p.FirstName, p.LastName)
	return err
}

func (r *providerRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE id = $1`, id))
}

func (r *providerRepoPG) FindByNPI(ctx context.Context, npi string) (*Provider, error) {
	p, err := r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+providerCols+` FROM providers WHERE npi = $1`, npi))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

// =========== Order Repository ===========

type orderRepoPG struct{ pool *pgxpool.Pool }

func NewOrderRepoPG(pool *pgxpool.Pool) OrderRepository {
	return &orderRepoPG{pool: pool}
}

func (r *orderRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const orderCols = `id, patient_id, provider_id, medication_name, primary_diagnosis,
	additional_diagnoses, medication_history, clinical_notes, status, error_message,
	order_date, created_at, updated_at`

func (r *orderRepoPG) scan(row pgx.Row) (*Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.PatientID, &o.ProviderID, &o.MedicationName, &o.PrimaryDiagnosis,
		&o.AdditionalDiagnoses, &o.MedicationHistory, &o.ClinicalNotes, &o.Status, &o.ErrorMessage,
		&o.OrderDate, &o.CreatedAt, &o.UpdatedAt)
	return &o, err
}

func (r *orderRepoPG) Create(ctx context.Context, o *Order) error {
	o.ID = uuid.New()
	if o.Status == "" {
		o.Status = StatusPending
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO orders (id, patient_id, provider_id, medication_name, primary_diagnosis,
			additional_diagnoses, medication_history, clinical_notes, status, order_date)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		o.ID, o.PatientID, o.ProviderID, o.MedicationName, o.PrimaryDiagnosis,
		o.AdditionalDiagnoses, o.MedicationHistory, o.ClinicalNotes, o.Status, o.OrderDate)
	return err
}

func (r *orderRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `SELECT `+orderCols+` FROM orders WHERE id = $1`, id))
}

func (r *orderRepoPG) FindByPatientMedication(ctx context.Context, patientID uuid.UUID, medication string) ([]*Order, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+orderCols+` FROM orders
		WHERE patient_id = $1 AND LOWER(medication_name) = LOWER($2)
		ORDER BY order_date DESC, created_at DESC`,
		patientID, medication)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Order
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

func (r *orderRepoPG) ClaimProcessing(ctx context.Context, id uuid.UUID) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET status = $2, error_message = NULL, updated_at = NOW()
		WHERE id = $1 AND status = $3`,
		id, StatusProcessing, StatusPending)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *orderRepoPG) SetStatus(ctx context.Context, id uuid.UUID, status Status, errorMessage *string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE orders SET status = $2, error_message = $3, updated_at = NOW()
		WHERE id = $1`,
		id, status, errorMessage)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *orderRepoPG) Search(ctx context.Context, search string, limit, offset int) ([]*OrderSummary, int, error) {
	from := ` FROM orders o
		JOIN patients p ON p.id = o.patient_id
		JOIN providers pr ON pr.id = o.provider_id`
	where := ``
	var args []interface{}
	idx := 1

	if search != "" {
		where = fmt.Sprintf(` WHERE p.first_name ILIKE $%d OR p.last_name ILIKE $%d
			OR p.mrn ILIKE $%d OR o.medication_name ILIKE $%d`, idx, idx, idx, idx)
		args = append(args, "%"+search+"%")
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*)`+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT o.id, p.first_name || ' ' || p.last_name, p.mrn,
		pr.first_name || ' ' || pr.last_name, pr.npi,
		o.medication_name, o.status, o.order_date, o.created_at` +
		from + where +
		fmt.Sprintf(` ORDER BY o.created_at DESC LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*OrderSummary
	for rows.Next() {
		var s OrderSummary
		if err := rows.Scan(&s.ID, &s.PatientName, &s.MRN, &s.ProviderName, &s.NPI,
			&s.MedicationName, &s.Status, &s.OrderDate, &s.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, &s)
	}
	return items, total, rows.Err()
}

func (r *orderRepoPG) Export(ctx context.Context) ([]*ExportRow, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT o.id, p.mrn, p.first_name || ' ' || p.last_name,
			pr.npi, pr.first_name || ' ' || pr.last_name,
			o.medication_name, o.primary_diagnosis, o.status, o.order_date, o.error_message,
			cp.content, cp.generated_at
		FROM orders o
		JOIN patients p ON p.id = o.patient_id
		JOIN providers pr ON pr.id = o.provider_id
		LEFT JOIN care_plans cp ON cp.order_id = o.id
		ORDER BY o.created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*ExportRow
	for rows.Next() {
		var row ExportRow
		if err := rows.Scan(&row.OrderID, &row.MRN, &row.PatientName, &row.NPI, &row.ProviderName,
			&row.MedicationName, &row.PrimaryDiagnosis, &row.Status, &row.OrderDate, &row.ErrorMessage,
			&row.PlanContent, &row.PlanGeneratedAt); err != nil {
			return nil, err
		}
		items = append(items, &row)
	}
	return items, rows.Err()
}
