package careplan

import (
	"context"
	"errors"
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

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const planCols = `id, order_id, content, model, generated_at`

func (r *repoPG) Upsert(ctx context.Context, plan *CarePlan) error {
	if plan.ID == uuid.Nil {
		plan.ID = uuid.New()
	}
	plan.GeneratedAt = time.Now()
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO care_plans (id, order_id, content, model, generated_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (order_id) DO UPDATE
		SET content = EXCLUDED.content, model = EXCLUDED.model, generated_at = EXCLUDED.generated_at`,
		plan.ID, plan.OrderID, plan.Content, plan.Model, plan.GeneratedAt)
	return err
}

func (r *repoPG) Delete(ctx context.Context, orderID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `DELETE FROM care_plans WHERE order_id = $1`, orderID)
	return err
}

func (r *repoPG) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*CarePlan, error) {
	var p CarePlan
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT `+planCols+` FROM care_plans WHERE order_id = $1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.Content, &p.Model, &p.GeneratedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
