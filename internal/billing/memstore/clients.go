package memstore

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/atelier-garage/garage/internal/billing/clients"
	"github.com/atelier-garage/garage/internal/shared"
)

// ClientRepo implements clients.Repository.
type ClientRepo struct{ s *Store }

// Clients returns the client repository view.
func (s *Store) Clients() *ClientRepo { return &ClientRepo{s} }

// SeedClient stores c and returns it with its assigned id.
func (s *Store) SeedClient(c clients.Client) clients.Client {
	s.read(func(st *state) {
		c.ID = st.nextID()
		st.clients[c.ID] = c
	})
	return c
}

func (r *ClientRepo) Get(_ context.Context, id int64) (clients.Client, error) {
	var (
		c  clients.Client
		ok bool
	)
	r.s.read(func(st *state) { c, ok = st.clients[id] })
	if !ok {
		return clients.Client{}, shared.NotFound("client", id)
	}
	return c, nil
}

func (r *ClientRepo) List(_ context.Context, f clients.ListFilters) ([]clients.Client, int, error) {
	var out []clients.Client
	needle := strings.ToLower(f.Search)
	r.s.read(func(st *state) {
		for _, c := range st.clients {
			hay := strings.ToLower(c.FirstName + " " + c.LastName + " " + c.CompanyName + " " + c.Email)
			if needle == "" || strings.Contains(hay, needle) {
				out = append(out, c)
			}
		}
	})
	slices.SortFunc(out, func(a, b clients.Client) int { return cmp.Compare(b.ID, a.ID) })
	return page(out, f.Limit, f.Offset), len(out), nil
}

func (r *ClientRepo) Create(ctx context.Context, c *clients.Client) error {
	return r.s.Atomically(ctx, func(tx *Tx) error {
		if err := tx.write(); err != nil {
			return err
		}
		c.ID = tx.st.nextID()
		tx.st.clients[c.ID] = *c
		return nil
	})
}

func (r *ClientRepo) Update(ctx context.Context, c clients.Client) error {
	return r.s.Atomically(ctx, func(tx *Tx) error {
		if err := tx.write(); err != nil {
			return err
		}
		if _, ok := tx.st.clients[c.ID]; !ok {
			return shared.NotFound("client", c.ID)
		}
		tx.st.clients[c.ID] = c
		return nil
	})
}
