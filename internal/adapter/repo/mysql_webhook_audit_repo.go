package repo

import (
	"context"
	"database/sql"

	"github.com/SamuelSilva2021/opamenu-ecosistema-sub006/internal/usecase"
)

// MySQLWebhookAuditRepo appends every authenticated webhook receipt.
// Append-only; manual-review tooling reads it, nothing updates it.
type MySQLWebhookAuditRepo struct{ db *sql.DB }

func NewMySQLWebhookAuditRepo(db *sql.DB) *MySQLWebhookAuditRepo {
	return &MySQLWebhookAuditRepo{db: db}
}

func (r *MySQLWebhookAuditRepo) Insert(ctx context.Context, rec *usecase.WebhookAuditRecord) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO webhook_events (provider, event_id, external_id, outcome, payload, received_at)
VALUES (?,?,?,?,?,?)
`, rec.Provider, rec.EventID, rec.ExternalID, rec.Outcome, rec.Payload, rec.ReceivedAt)
	return err
}

var _ usecase.WebhookAuditRepo = (*MySQLWebhookAuditRepo)(nil)
