package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/billing/numbering"
	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
)

const quoteColumns = `id, number, client_id, date, validity_date, status, items, total_ht, total_vat,
total_ttc, total_discount, payment_details, notes, created_at, updated_at`

// PostgresRepository stores quotes in PostgreSQL.
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

// WithTx runs fn in a read-committed transaction; rows are serialised with
// FOR UPDATE and the counter upsert.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithLockingTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

func scanQuote(row pgx.Row) (Quote, error) {
	var (
		q                      Quote
		items, details         []byte
		ht, vat, ttc, discount pgtype.Numeric
	)
	if err := row.Scan(&q.ID, &q.Number, &q.ClientID, &q.Date, &q.ValidityDate, &q.Status, &items,
		&ht, &vat, &ttc, &discount, &details, &q.Notes, &q.CreatedAt, &q.UpdatedAt); err != nil {
		return Quote{}, err
	}
	if err := json.Unmarshal(items, &q.Items); err != nil {
		return Quote{}, fmt.Errorf("decode quote items: %w", err)
	}
	if err := json.Unmarshal(details, &q.PaymentDetails); err != nil {
		return Quote{}, fmt.Errorf("decode payment details: %w", err)
	}
	q.TotalHT, q.TotalVAT = db.Decimal(ht), db.Decimal(vat)
	q.TotalTTC, q.TotalDiscount = db.Decimal(ttc), db.Decimal(discount)
	return q, nil
}

func getQuote(ctx context.Context, conn db.DBTX, id int64, lock bool) (Quote, error) {
	query := `SELECT ` + quoteColumns + ` FROM quotes WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	q, err := scanQuote(conn.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Quote{}, shared.NotFound("quote", id)
	}
	return q, err
}

// Get loads one quote.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Quote, error) {
	return getQuote(ctx, r.pool, id, false)
}

// GetForUpdate loads and row-locks a quote inside tx. Exported for other
// billing repositories sharing the transaction.
func GetForUpdate(ctx context.Context, tx db.DBTX, id int64) (Quote, error) {
	return getQuote(ctx, tx, id, true)
}

// List returns quotes matching filters, newest first.
func (r *PostgresRepository) List(ctx context.Context, f ListFilters) ([]Quote, int, error) {
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
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM quotes`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count quotes: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	rows, err := r.pool.Query(ctx, fmt.Sprintf(`SELECT %s FROM quotes%s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
		quoteColumns, where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list quotes: %w", err)
	}
	defer rows.Close()

	var out []Quote
	for rows.Next() {
		q, err := scanQuote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, q)
	}
	return out, total, rows.Err()
}

// ListEvents returns a quote's event log, oldest first.
func (r *PostgresRepository) ListEvents(ctx context.Context, quoteID int64) ([]Event, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, quote_id, type, from_status, to_status, actor_id, created_at
FROM quote_events WHERE quote_id = $1 ORDER BY id`, quoteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.QuoteID, &e.Type, &e.FromStatus, &e.ToStatus, &e.ActorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListExpirable returns SENT/VIEWED quotes whose validity date is before asOf.
func (r *PostgresRepository) ListExpirable(ctx context.Context, asOf time.Time) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM quotes WHERE status IN ($1, $2) AND validity_date < $3 ORDER BY id`,
		StatusSent, StatusViewed, asOf)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (t *txRepo) Counters() numbering.Store {
	return numbering.NewPostgresStore(t.tx)
}

func (t *txRepo) GetClient(ctx context.Context, id int64) (clients.Client, error) {
	return clients.NewRepository(t.tx).Get(ctx, id)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id int64) (Quote, error) {
	return GetForUpdate(ctx, t.tx, id)
}

func (t *txRepo) Insert(ctx context.Context, q *Quote) error {
	items, details, err := encodeJSON(q)
	if err != nil {
		return err
	}
	return t.tx.QueryRow(ctx, `INSERT INTO quotes (number, client_id, date, validity_date, status, items, total_ht,
total_vat, total_ttc, total_discount, payment_details, notes, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14) RETURNING id`,
		q.Number, q.ClientID, q.Date, q.ValidityDate, q.Status, items,
		db.Numeric(q.TotalHT), db.Numeric(q.TotalVAT), db.Numeric(q.TotalTTC), db.Numeric(q.TotalDiscount),
		details, q.Notes, q.CreatedAt, q.UpdatedAt,
	).Scan(&q.ID)
}

func (t *txRepo) Update(ctx context.Context, q Quote) error {
	items, details, err := encodeJSON(&q)
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE quotes SET date = $2, validity_date = $3, items = $4, total_ht = $5, total_vat = $6,
total_ttc = $7, total_discount = $8, payment_details = $9, notes = $10, updated_at = $11 WHERE id = $1`,
		q.ID, q.Date, q.ValidityDate, items,
		db.Numeric(q.TotalHT), db.Numeric(q.TotalVAT), db.Numeric(q.TotalTTC), db.Numeric(q.TotalDiscount),
		details, q.Notes, q.UpdatedAt)
	return err
}

func (t *txRepo) UpdateStatus(ctx context.Context, id int64, status Status, at time.Time) error {
	_, err := t.tx.Exec(ctx, `UPDATE quotes SET status = $2, updated_at = $3 WHERE id = $1`, id, status, at)
	return err
}

// Delete removes the quote; quote_events rows follow through ON DELETE CASCADE.
func (t *txRepo) Delete(ctx context.Context, id int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM quotes WHERE id = $1`, id)
	return err
}

func (t *txRepo) InsertEvent(ctx context.Context, e *Event) error {
	return InsertEvent(ctx, t.tx, e)
}

func (t *txRepo) ActiveInvoiceID(ctx context.Context, quoteID int64) (int64, bool, error) {
	return ActiveInvoiceID(ctx, t.tx, quoteID)
}

// InsertEvent appends to the quote event log.
func InsertEvent(ctx context.Context, conn db.DBTX, e *Event) error {
	return conn.QueryRow(ctx, `INSERT INTO quote_events (quote_id, type, from_status, to_status, actor_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		e.QuoteID, e.Type, e.FromStatus, e.ToStatus, e.ActorID, e.CreatedAt).Scan(&e.ID)
}

// ActiveInvoiceID returns the id of the non-cancelled invoice referencing quoteID, if any.
func ActiveInvoiceID(ctx context.Context, conn db.DBTX, quoteID int64) (int64, bool, error) {
	var id int64
	err := conn.QueryRow(ctx, `SELECT id FROM invoices WHERE quote_id = $1 AND status <> 'CANCELLED' LIMIT 1`, quoteID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

func encodeJSON(q *Quote) ([]byte, []byte, error) {
	items, err := json.Marshal(q.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("encode quote items: %w", err)
	}
	details, err := json.Marshal(q.PaymentDetails)
	if err != nil {
		return nil, nil, fmt.Errorf("encode payment details: %w", err)
	}
	return items, details, nil
}
