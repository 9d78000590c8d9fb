package payments

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-garage/garage/internal/billing/invoices"
	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
)

// PostgresRepository stores payments in PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgresRepository.
func NewRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx runs fn in a read-committed transaction. The payment insert and the
// invoice status update commit together or not at all.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

// GetInvoice loads the invoice a payment summary refers to.
func (r *PostgresRepository) GetInvoice(ctx context.Context, id int64) (invoices.Invoice, error) {
	return invoices.Load(ctx, r.pool, id)
}

// ListByInvoice returns an invoice's payments in recording order.
func (r *PostgresRepository) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return listByInvoice(ctx, r.pool, invoiceID)
}

func listByInvoice(ctx context.Context, conn db.DBTX, invoiceID int64) ([]Payment, error) {
	rows, err := conn.Query(ctx, `SELECT id, invoice_id, amount, method, date, reference, notes, created_at
FROM payments WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var (
			p      Payment
			amount pgtype.Numeric
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &p.Method, &p.Date, &p.Reference, &p.Notes, &p.CreatedAt); err != nil {
			return nil, err
		}
		p.Amount = db.Decimal(amount)
		out = append(out, p)
	}
	return out, rows.Err()
}

func (t *txRepo) LockInvoice(ctx context.Context, id int64) (invoices.Invoice, error) {
	return invoices.GetForUpdate(ctx, t.tx, id)
}

func (t *txRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]Payment, error) {
	return listByInvoice(ctx, t.tx, invoiceID)
}

func (t *txRepo) Insert(ctx context.Context, p *Payment) error {
	return t.tx.QueryRow(ctx, `INSERT INTO payments (invoice_id, amount, method, date, reference, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		p.InvoiceID, db.Numeric(p.Amount), p.Method, p.Date, p.Reference, p.Notes, p.CreatedAt).Scan(&p.ID)
}

func (t *txRepo) UpdateInvoiceStatus(ctx context.Context, change invoices.StatusChange) error {
	return invoices.SetStatus(ctx, t.tx, change)
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(t.tx).Record(ctx, log)
}
