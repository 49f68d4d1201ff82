package memory

import (
	"context"
	"slices"
	"strings"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type clientsRepo struct{ scope }

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	defer r.lock()()
	c, ok := r.s.clients[id]
	if !ok {
		return domain.Client{}, store.ErrNotFound
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	defer r.lock()()
	out := make([]domain.Client, 0, len(r.s.clients))
	for _, c := range r.s.clients {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b domain.Client) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *clientsRepo) UpsertClient(ctx context.Context, c domain.Client) error {
	defer r.lock()()
	if prev, ok := r.s.clients[c.ID]; ok && c.CreatedAt.IsZero() {
		c.CreatedAt = prev.CreatedAt
	}
	put(r.scope, r.s.clients, c.ID, c)
	return nil
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	defer r.lock()()
	if _, ok := r.s.clients[id]; !ok {
		return store.ErrNotFound
	}
	del(r.scope, r.s.clients, id)
	return nil
}
