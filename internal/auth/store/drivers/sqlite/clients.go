package sqlite

import (
	"context"

	"github.com/aussiebroadwan/fapiauth/internal/auth/domain"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
)

type clientsRepo struct {
	q dbtx
}

const clientColumns = `id, name, status, auth_method, redirect_uris, scopes, require_par,
	cert_fingerprint, jwks, created_at, updated_at`

func scanClient(row interface{ Scan(...any) error }) (domain.Client, error) {
	var (
		c                    domain.Client
		redirects, scopes    string
		createdAt, updatedAt int64
	)
	err := row.Scan(&c.ID, &c.Name, &c.Status, &c.AuthMethod, &redirects, &scopes, &c.RequirePAR,
		&c.CertFingerprint, &c.JWKS, &createdAt, &updatedAt)
	if err != nil {
		return domain.Client{}, err
	}
	c.RedirectURIs = splitAndFilter(redirects)
	c.Scopes = splitAndFilter(scopes)
	c.CreatedAt = fromMillis(createdAt)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func (r *clientsRepo) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+clientColumns+` FROM clients WHERE id = ?`, id)
	c, err := scanClient(row)
	if err != nil {
		return domain.Client{}, mapNotFound(err)
	}
	return c, nil
}

func (r *clientsRepo) ListClients(ctx context.Context) ([]domain.Client, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT `+clientColumns+` FROM clients ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var clients []domain.Client
	for rows.Next() {
		c, err := scanClient(rows)
		if err != nil {
			return nil, err
		}
		clients = append(clients, c)
	}
	return clients, rows.Err()
}

func (r *clientsRepo) UpsertClient(ctx context.Context, c domain.Client) error {
	var jwks []byte
	if len(c.JWKS) > 0 {
		jwks = c.JWKS
	}
	_, err := r.q.ExecContext(ctx, `
		INSERT INTO clients (`+clientColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			status = excluded.status,
			auth_method = excluded.auth_method,
			redirect_uris = excluded.redirect_uris,
			scopes = excluded.scopes,
			require_par = excluded.require_par,
			cert_fingerprint = excluded.cert_fingerprint,
			jwks = excluded.jwks,
			updated_at = excluded.updated_at`,
		c.ID, c.Name, c.Status, c.AuthMethod, joinFields(c.RedirectURIs), joinFields(c.Scopes), c.RequirePAR,
		c.CertFingerprint, jwks, toMillis(c.CreatedAt), toMillis(c.UpdatedAt),
	)
	return err
}

func (r *clientsRepo) DeleteClient(ctx context.Context, id string) error {
	n, err := rowsAffected(r.q.ExecContext(ctx, `DELETE FROM clients WHERE id = ?`, id))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
