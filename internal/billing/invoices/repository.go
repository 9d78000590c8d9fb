package invoices

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/billing/quotes"
	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
)

const invoiceColumns = `id, number, client_id, client_info, date, due_date, status, items, total_ht, total_vat,
total_ttc, total_discount, quote_id, payment_method, payment_details, notes, legal_notices, sent_at, paid_at,
cancelled_at, cancellation_reason, created_at, updated_at`

const activeQuoteIndex = "invoices_active_quote_idx"

// PostgresRepository stores invoices in PostgreSQL.
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

// WithTx runs fn in a read-committed transaction; invoice and quote rows are
// serialised with FOR UPDATE.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func scanInvoice(row pgx.Row) (Invoice, error) {
	var (
		inv                    Invoice
		info, items, details   []byte
		ht, vat, ttc, discount pgtype.Numeric
	)
	if err := row.Scan(&inv.ID, &inv.Number, &inv.ClientID, &info, &inv.Date, &inv.DueDate, &inv.Status, &items,
		&ht, &vat, &ttc, &discount, &inv.QuoteID, &inv.PaymentMethod, &details, &inv.Notes, &inv.LegalNotices,
		&inv.SentAt, &inv.PaidAt, &inv.CancelledAt, &inv.CancellationReason, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
		return Invoice{}, err
	}
	if err := json.Unmarshal(info, &inv.ClientInfo); err != nil {
		return Invoice{}, fmt.Errorf("decode client info: %w", err)
	}
	if err := json.Unmarshal(items, &inv.Items); err != nil {
		return Invoice{}, fmt.Errorf("decode invoice items: %w", err)
	}
	if err := json.Unmarshal(details, &inv.PaymentDetails); err != nil {
		return Invoice{}, fmt.Errorf("decode payment details: %w", err)
	}
	inv.TotalHT, inv.TotalVAT = db.Decimal(ht), db.Decimal(vat)
	inv.TotalTTC, inv.TotalDiscount = db.Decimal(ttc), db.Decimal(discount)
	return inv, nil
}

func getInvoice(ctx context.Context, conn db.DBTX, id int64, lock bool) (Invoice, error) {
	query := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	inv, err := scanInvoice(conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Invoice{}, shared.NotFound("invoice", id)
	}
	return inv, err
}

// Get loads one invoice.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Invoice, error) {
	return getInvoice(ctx, r.pool, id, false)
}

// Load reads an invoice through conn without locking.
func Load(ctx context.Context, conn db.DBTX, id int64) (Invoice, error) {
	return getInvoice(ctx, conn, id, false)
}

// GetForUpdate loads and row-locks an invoice; concurrent payments and status
// changes on the same invoice queue behind this lock.
func GetForUpdate(ctx context.Context, conn db.DBTX, id int64) (Invoice, error) {
	return getInvoice(ctx, conn, id, true)
}

// SetStatus writes the lifecycle columns of an invoice and nothing else.
func SetStatus(ctx context.Context, conn db.DBTX, c StatusChange) error {
	tag, err := conn.Exec(ctx, `UPDATE invoices SET status = $2, sent_at = $3, paid_at = $4, cancelled_at = $5,
cancellation_reason = $6, updated_at = $7 WHERE id = $1`,
		c.ID, c.Status, c.SentAt, c.PaidAt, c.CancelledAt, c.CancellationReason, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("invoice", c.ID)
	}
	return nil
}

// List returns invoices matching filters, newest first.
func (r *PostgresRepository) List(ctx context.Context, f ListFilters) ([]Invoice, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.Status != nil {
		args = append(args, *f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if f.ClientID != nil {
		args = append(args, *f.ClientID)
		conds = append(conds, fmt.Sprintf("client_id = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM invoices`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM invoices%s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
		invoiceColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	defer rows.Close()

	var out []Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, inv)
	}
	return out, total, rows.Err()
}

func (t *txRepo) Counters() numbering.Store {
	return numbering.NewPostgresStore(t.tx)
}

func (t *txRepo) GetClient(ctx context.Context, id int64) (clients.Client, error) {
	return clients.NewRepository(t.tx).Get(ctx, id)
}

func (t *txRepo) GetQuoteForUpdate(ctx context.Context, id int64) (quotes.Quote, error) {
	return quotes.GetForUpdate(ctx, t.tx, id)
}

func (t *txRepo) InsertQuoteEvent(ctx context.Context, e *quotes.Event) error {
	return quotes.InsertEvent(ctx, t.tx, e)
}

func (t *txRepo) ActiveInvoiceForQuote(ctx context.Context, quoteID int64) (int64, bool, error) {
	return quotes.ActiveInvoiceID(ctx, t.tx, quoteID)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	return GetForUpdate(ctx, t.tx, id)
}

func (t *txRepo) Insert(ctx context.Context, inv *Invoice) error {
	info, items, details, err := encodeJSON(inv)
	if err != nil {
		return err
	}
	err = t.tx.QueryRow(ctx, `INSERT INTO invoices (number, client_id, client_info, date, due_date, status, items,
total_ht, total_vat, total_ttc, total_discount, quote_id, payment_method, payment_details, notes, legal_notices,
created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18) RETURNING id`,
		inv.Number, inv.ClientID, info, inv.Date, inv.DueDate, inv.Status, items,
		db.Numeric(inv.TotalHT), db.Numeric(inv.TotalVAT), db.Numeric(inv.TotalTTC), db.Numeric(inv.TotalDiscount),
		inv.QuoteID, inv.PaymentMethod, details, inv.Notes, inv.LegalNotices, inv.CreatedAt, inv.UpdatedAt,
	).Scan(&inv.ID)
	if db.IsUniqueViolation(err) && db.ConstraintName(err) == activeQuoteIndex {
		return shared.Conflict("quote already has an active invoice", map[string]any{"quote_id": inv.QuoteID})
	}
	return err
}

// Update rewrites the content columns. The service only calls it for drafts;
// the status guard in the WHERE clause keeps issued rows untouched regardless.
func (t *txRepo) Update(ctx context.Context, inv Invoice) error {
	info, items, details, err := encodeJSON(&inv)
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `UPDATE invoices SET client_id = $2, client_info = $3, date = $4, due_date = $5,
items = $6, total_ht = $7, total_vat = $8, total_ttc = $9, total_discount = $10, payment_method = $11,
payment_details = $12, notes = $13, updated_at = $14
WHERE id = $1 AND status = 'DRAFT'`,
		inv.ID, inv.ClientID, info, inv.Date, inv.DueDate, items,
		db.Numeric(inv.TotalHT), db.Numeric(inv.TotalVAT), db.Numeric(inv.TotalTTC), db.Numeric(inv.TotalDiscount),
		inv.PaymentMethod, details, inv.Notes, inv.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Policy("only draft invoices may be modified", nil)
	}
	return nil
}

func (t *txRepo) UpdateStatus(ctx context.Context, change StatusChange) error {
	return SetStatus(ctx, t.tx, change)
}

func (t *txRepo) Delete(ctx context.Context, id int64) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM invoices WHERE id = $1 AND status = 'DRAFT'`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.Policy("only draft invoices may be deleted; cancel the invoice instead", nil)
	}
	return nil
}

func (t *txRepo) RecordAudit(ctx context.Context, log shared.AuditLog) error {
	return shared.NewAuditLogger(t.tx).Record(ctx, log)
}

func encodeJSON(inv *Invoice) (info, items, details []byte, err error) {
	if info, err = json.Marshal(inv.ClientInfo); err != nil {
		return nil, nil, nil, fmt.Errorf("encode client info: %w", err)
	}
	if items, err = json.Marshal(inv.Items); err != nil {
		return nil, nil, nil, fmt.Errorf("encode invoice items: %w", err)
	}
	if details, err = json.Marshal(inv.PaymentDetails); err != nil {
		return nil, nil, nil, fmt.Errorf("encode payment details: %w", err)
	}
	return info, items, details, nil
}
