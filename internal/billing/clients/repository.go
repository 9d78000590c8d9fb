package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/atelier-garage/garage/internal/platform/db"
	"github.com/atelier-garage/garage/internal/shared"
)

const clientColumns = `id, type, first_name, last_name, company_name, siret, email, phone,
street, postal_code, city, country, created_at, updated_at`

// PostgresRepository stores clients in PostgreSQL.
type PostgresRepository struct {
	db db.DBTX
}

// NewRepository constructs a PostgresRepository.
func NewRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

func scanClient(row pgx.Row) (Client, error) {
	var c Client
	err := row.Scan(&c.ID, &c.Type, &c.FirstName, &c.LastName, &c.CompanyName, &c.SIRET, &c.Email, &c.Phone,
		&c.Address.Street, &c.Address.PostalCode, &c.Address.City, &c.Address.Country, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Get loads one client.
func (r *PostgresRepository) Get(ctx context.Context, id int64) (Client, error) {
	c, err := scanClient(r.db.QueryRow(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Client{}, shared.NotFound("client", id)
	}
	return c, err
}

// List returns clients matching the search text on names, company or email.
func (r *PostgresRepository) List(ctx context.Context, f ListFilters) ([]Client, int, error) {
	where := ""
	args := []any{}
	if f.Search != "" {
		args = append(args, "%"+strings.ToLower(f.Search)+"%")
		where = ` WHERE LOWER(first_name || ' ' || last_name || ' ' || company_name || ' ' || email) LIKE $1`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM clients`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count clients: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	query := fmt.Sprintf(`SELECT %s FROM clients%s ORDER BY id DESC LIMIT $%d OFFSET $%d`,
		clientColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list clients: %w", err)
	}
	defer rows.Close()

	var out []Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

// Create inserts c and assigns its id.
func (r *PostgresRepository) Create(ctx context.Context, c *Client) error {
	return r.db.QueryRow(ctx, `INSERT INTO clients (type, first_name, last_name, company_name, siret, email, phone,
street, postal_code, city, country, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13) RETURNING id`,
		c.Type, c.FirstName, c.LastName, c.CompanyName, c.SIRET, c.Email, c.Phone,
		c.Address.Street, c.Address.PostalCode, c.Address.City, c.Address.Country, c.CreatedAt, c.UpdatedAt,
	).Scan(&c.ID)
}

// Update replaces a client's fields.
func (r *PostgresRepository) Update(ctx context.Context, c Client) error {
	tag, err := r.db.Exec(ctx, `UPDATE clients SET type = $2, first_name = $3, last_name = $4, company_name = $5,
siret = $6, email = $7, phone = $8, street = $9, postal_code = $10, city = $11, country = $12, updated_at = $13
WHERE id = $1`,
		c.ID, c.Type, c.FirstName, c.LastName, c.CompanyName, c.SIRET, c.Email, c.Phone,
		c.Address.Street, c.Address.PostalCode, c.Address.City, c.Address.Country, c.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.NotFound("client", c.ID)
	}
	return nil
}
