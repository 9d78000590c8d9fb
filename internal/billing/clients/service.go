package clients

import (
	"context"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/atelier-garage/garage/internal/shared"
)

// Repository persists clients.
type Repository interface {
	Get(ctx context.Context, id int64) (Client, error)
	List(ctx context.Context, filters ListFilters) ([]Client, int, error)
	Create(ctx context.Context, c *Client) error
	Update(ctx context.Context, c Client) error
}

// Service manages client records. Edits never reach issued invoices, which
// carry their own snapshot.
type Service struct {
	repo     Repository
	validate *validator.Validate
	now      func() time.Time
}

// NewService constructs a client service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, validate: shared.NewValidator(), now: time.Now}
}

func (s *Service) Create(ctx context.Context, req ClientRequest) (Client, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Client{}, err
	}
	now := s.now().UTC()
	c := fromRequest(req)
	c.CreatedAt, c.UpdatedAt = now, now
	if err := s.repo.Create(ctx, &c); err != nil {
		return Client{}, shared.StorageError("create client", err)
	}
	return c, nil
}

func (s *Service) Update(ctx context.Context, id int64, req ClientRequest) (Client, error) {
	if err := shared.ValidateStruct(s.validate, req); err != nil {
		return Client{}, err
	}
	existing, err := s.repo.Get(ctx, id)
	if err != nil {
		return Client{}, shared.StorageError("load client", err)
	}
	c := fromRequest(req)
	c.ID = existing.ID
	c.CreatedAt = existing.CreatedAt
	c.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, c); err != nil {
		return Client{}, shared.StorageError("update client", err)
	}
	return c, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Client, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		return Client{}, shared.StorageError("load client", err)
	}
	return c, nil
}

func (s *Service) List(ctx context.Context, filters ListFilters) (ListResponse, error) {
	page := shared.NewPage(filters.Limit, filters.Offset)
	filters.Limit, filters.Offset = page.Limit, page.Offset
	filters.Search = strings.TrimSpace(filters.Search)
	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return ListResponse{}, shared.StorageError("list clients", err)
	}
	if items == nil {
		items = []Client{}
	}
	return ListResponse{Items: items, Total: total}, nil
}

func fromRequest(req ClientRequest) Client {
	addr := req.Address
	if addr.Country == "" {
		addr.Country = "FR"
	}
	return Client{
		Type:        req.Type,
		FirstName:   strings.TrimSpace(req.FirstName),
		LastName:    strings.TrimSpace(req.LastName),
		CompanyName: strings.TrimSpace(req.CompanyName),
		SIRET:       req.SIRET,
		Email:       strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:       strings.TrimSpace(req.Phone),
		Address:     addr,
	}
}
