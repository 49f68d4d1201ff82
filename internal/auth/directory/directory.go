// Package directory is the read side of client registration: it loads the
// client registry into the store and resolves clients and their key sets
// for authentication.
package directory

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
)

// ErrUnknownClient is returned for a client_id that is not registered.
var ErrUnknownClient = errors.New("directory: unknown client")

// Directory looks clients up in the store and caches their parsed JWK Sets.
type Directory struct {
	clients store.Clients

	mu      sync.RWMutex
	keySets map[string]cachedKeySet
}

type cachedKeySet struct {
	raw []byte
	set *jwtx.ClientKeySet
}

// New returns a directory backed by clients.
func New(clients store.Clients) *Directory {
	return &Directory{clients: clients, keySets: map[string]cachedKeySet{}}
}

// Client returns the registered client. Inactive clients are returned too;
// callers decide what a suspended client may do.
func (d *Directory) Client(ctx context.Context, id string) (domain.Client, error) {
	if id == "" {
		return domain.Client{}, ErrUnknownClient
	}
	c, err := d.clients.GetClientByID(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Client{}, ErrUnknownClient
	}
	if err != nil {
		return domain.Client{}, fmt.Errorf("directory: get client: %w", err)
	}
	return c, nil
}

// KeySet returns the client's parsed JWK Set. The parsed set is cached until
// the stored document changes.
func (d *Directory) KeySet(c domain.Client) (*jwtx.ClientKeySet, error) {
	if len(c.JWKS) == 0 {
		return nil, fmt.Errorf("directory: client %q has no jwks", c.ID)
	}

	d.mu.RLock()
	cached, ok := d.keySets[c.ID]
	d.mu.RUnlock()
	if ok && bytes.Equal(cached.raw, c.JWKS) {
		return cached.set, nil
	}

	set, err := jwtx.ParseClientKeySet(c.JWKS)
	if err != nil {
		return nil, fmt.Errorf("directory: client %q jwks: %w", c.ID, err)
	}

	d.mu.Lock()
	d.keySets[c.ID] = cachedKeySet{raw: bytes.Clone(c.JWKS), set: set}
	d.mu.Unlock()
	return set, nil
}

// Sync upserts clients into the store. Existing clients keep their
// creation time.
func (d *Directory) Sync(ctx context.Context, clients []domain.Client) error {
	for _, c := range clients {
		existing, err := d.clients.GetClientByID(ctx, c.ID)
		switch {
		case err == nil:
			c.CreatedAt = existing.CreatedAt
		case !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("directory: sync %q: %w", c.ID, err)
		}
		if err := d.clients.UpsertClient(ctx, c); err != nil {
			return fmt.Errorf("directory: sync %q: %w", c.ID, err)
		}
	}
	return nil
}

// List returns every registered client.
func (d *Directory) List(ctx context.Context) ([]domain.Client, error) {
	return d.clients.ListClients(ctx)
}
