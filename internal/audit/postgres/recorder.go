package postgres

import (
	"context"

	"nowait/queue-service/internal/audit"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Recorder appends registration records to a registration_log table.
type Recorder struct {
	pool *pgxpool.Pool
}

func NewRecorder(pool *pgxpool.Pool) *Recorder {
	return &Recorder{pool: pool}
}

func (r *Recorder) Record(ctx context.Context, rec audit.Record) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO registration_log (recorded_at, token_number, name, contact, status, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rec.Timestamp, rec.Number, rec.Name, rec.Contact, rec.Status, rec.PaymentMethod)
	return err
}
