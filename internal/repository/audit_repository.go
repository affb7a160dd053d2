package repository

import (
	"context"
	"database/sql"

	"github.com/aakar745/stallpay-recon/internal/models"
)

// AuditRepository persists the append-only reconciliation trail. Rows are
// never updated or deleted.
type AuditRepository struct {
	db *sql.DB
}

func NewAuditRepository(db *sql.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS reconciliation_actions (
			id VARCHAR(36) PRIMARY KEY,
			receipt_number VARCHAR(32) NOT NULL,
			merchant_ref VARCHAR(64),
			decision VARCHAR(32) NOT NULL,
			before_state VARCHAR(16) NOT NULL,
			after_state VARCHAR(16) NOT NULL,
			evidence JSONB,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_recon_actions_receipt ON reconciliation_actions(receipt_number)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

func (r *AuditRepository) Append(ctx context.Context, action *models.ReconciliationAction) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO reconciliation_actions
			(id, receipt_number, merchant_ref, decision, before_state, after_state, evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, action.ID, action.ReceiptNumber, action.MerchantRef, action.Decision,
		action.BeforeState, action.AfterState, []byte(action.Evidence), action.CreatedAt)
	return err
}

func (r *AuditRepository) ListByReceipt(ctx context.Context, receiptNumber string) ([]models.ReconciliationAction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, receipt_number, merchant_ref, decision, before_state, after_state, evidence, created_at
		FROM reconciliation_actions
		WHERE receipt_number = $1
		ORDER BY created_at
	`, receiptNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.ReconciliationAction
	for rows.Next() {
		var (
			a        models.ReconciliationAction
			mref     sql.NullString
			evidence []byte
		)
		if err := rows.Scan(&a.ID, &a.ReceiptNumber, &mref, &a.Decision,
			&a.BeforeState, &a.AfterState, &evidence, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.MerchantRef = mref.String
		a.Evidence = evidence
		out = append(out, a)
	}
	return out, rows.Err()
}
