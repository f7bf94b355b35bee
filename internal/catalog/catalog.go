// Package catalog tracks the indexing status of each email record in
// Postgres. It is an operational ledger, not a source of truth for search:
// the index itself stays authoritative, the catalog answers "did record X
// make it in, and if not, why".
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/inboxforge/inboxforge/internal/mail"
	"github.com/inboxforge/inboxforge/pkg/postgres"
	"github.com/inboxforge/inboxforge/pkg/resilience"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusIndexed Status = "INDEXED"
	StatusFailed  Status = "FAILED"
)

const schema = `
CREATE TABLE IF NOT EXISTS email_catalog (
	id         TEXT PRIMARY KEY,
	sender     TEXT NOT NULL DEFAULT '',
	subject    TEXT NOT NULL DEFAULT '',
	status     TEXT NOT NULL,
	detail     TEXT NOT NULL DEFAULT '',
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS email_catalog_status_idx ON email_catalog (status);
`

// Catalog records per-email indexing status. A nil *Catalog is valid and
// turns every method into a no-op, so callers need no enabled checks.
type Catalog struct {
	client *postgres.Client
	logger *slog.Logger
}

func New(client *postgres.Client) *Catalog {
	return &Catalog{
		client: client,
		logger: slog.Default().With("component", "catalog"),
	}
}

// EnsureSchema creates the catalog table if it does not exist, retrying
// while Postgres comes up.
func (c *Catalog) EnsureSchema(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return resilience.Retry(ctx, "catalog-schema", resilience.RetryConfig{MaxAttempts: 5}, func() error {
		_, err := c.client.DB.ExecContext(ctx, schema)
		return err
	})
}

// MarkPending upserts records as PENDING before an index attempt.
func (c *Catalog) MarkPending(ctx context.Context, records []mail.EmailRecord) error {
	if c == nil || len(records) == 0 {
		return nil
	}
	return c.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO email_catalog (id, sender, subject, status, detail, updated_at)
			VALUES ($1, $2, $3, $4, '', $5)
			ON CONFLICT (id) DO UPDATE
			SET sender = $2, subject = $3, status = $4, detail = '', updated_at = $5`)
		if err != nil {
			return fmt.Errorf("preparing catalog upsert: %w", err)
		}
		defer stmt.Close()
		now := time.Now().UTC()
		for _, rec := range records {
			if _, err := stmt.ExecContext(ctx, rec.ID, rec.Sender, rec.Subject, string(StatusPending), now); err != nil {
				return fmt.Errorf("upserting record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

// MarkIndexed transitions records to INDEXED after a successful commit.
func (c *Catalog) MarkIndexed(ctx context.Context, ids []string) error {
	return c.setStatus(ctx, ids, StatusIndexed, "")
}

// MarkFailed transitions records to FAILED with the failure reason.
func (c *Catalog) MarkFailed(ctx context.Context, ids []string, reason string) error {
	return c.setStatus(ctx, ids, StatusFailed, reason)
}

func (c *Catalog) setStatus(ctx context.Context, ids []string, status Status, detail string) error {
	if c == nil || len(ids) == 0 {
		return nil
	}
	return c.client.InTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE email_catalog
			SET status = $2, detail = $3, updated_at = $4
			WHERE id = $1`)
		if err != nil {
			return fmt.Errorf("preparing catalog update: %w", err)
		}
		defer stmt.Close()
		now := time.Now().UTC()
		for _, id := range ids {
			if _, err := stmt.ExecContext(ctx, id, string(status), detail, now); err != nil {
				return fmt.Errorf("updating record %s: %w", id, err)
			}
		}
		return nil
	})
}

// Entry is one catalog row.
type Entry struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Subject   string    `json:"subject"`
	Status    Status    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Lookup returns the catalog entry for id, or sql.ErrNoRows.
func (c *Catalog) Lookup(ctx context.Context, id string) (Entry, error) {
	var e Entry
	if c == nil {
		return e, sql.ErrNoRows
	}
	row := c.client.DB.QueryRowContext(ctx, `
		SELECT id, sender, subject, status, detail, updated_at
		FROM email_catalog WHERE id = $1`, id)
	if err := row.Scan(&e.ID, &e.Sender, &e.Subject, &e.Status, &e.Detail, &e.UpdatedAt); err != nil {
		return e, err
	}
	return e, nil
}

// Ping reports whether the backing database is reachable.
func (c *Catalog) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.client.Ping(ctx)
}
