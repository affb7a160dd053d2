package repository

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"time"

	"github.com/lib/pq"

	"github.com/aakar745/stallpay-recon/internal/interfaces"
	"github.com/aakar745/stallpay-recon/internal/models"
)

type LedgerRepository struct {
	db *sql.DB
}

func NewLedgerRepository(db *sql.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

func (r *LedgerRepository) InitDB() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS charge_records (
			receipt_number VARCHAR(32) PRIMARY KEY,
			exhibition_id VARCHAR(64) NOT NULL,
			vendor_id VARCHAR(64),
			stall_number VARCHAR(32),
			company_name VARCHAR(255),
			amount NUMERIC(12,2) NOT NULL,
			payment_status VARCHAR(16) NOT NULL,
			gateway_transaction_id VARCHAR(64),
			gateway_merchant_ref VARCHAR(64) UNIQUE,
			paid_at TIMESTAMP,
			receipt_generated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_charge_records_exhibition ON charge_records(exhibition_id)`,
		`CREATE INDEX IF NOT EXISTS idx_charge_records_status ON charge_records(payment_status)`,
		`CREATE INDEX IF NOT EXISTS idx_charge_records_txn ON charge_records(gateway_transaction_id)`,
	}

	for _, query := range queries {
		if _, err := r.db.Exec(query); err != nil {
			return err
		}
	}

	return nil
}

const chargeColumns = `receipt_number, exhibition_id, vendor_id, stall_number, company_name,
		amount, payment_status, gateway_transaction_id, gateway_merchant_ref,
		paid_at, receipt_generated, created_at, updated_at`

func (r *LedgerRepository) getOne(ctx context.Context, where string, arg any) (*models.ChargeRecord, error) {
	var (
		rec    models.ChargeRecord
		vendor sql.NullString
		stall  sql.NullString
		comp   sql.NullString
		txnID  sql.NullString
		mref   sql.NullString
		paidAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx,
		`SELECT `+chargeColumns+` FROM charge_records WHERE `+where, arg,
	).Scan(&rec.ReceiptNumber, &rec.ExhibitionID, &vendor, &stall, &comp,
		&rec.Amount, &rec.PaymentStatus, &txnID, &mref,
		&paidAt, &rec.ReceiptGenerated, &rec.CreatedAt, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, interfaces.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	rec.VendorID = vendor.String
	rec.StallNumber = stall.String
	rec.CompanyName = comp.String
	rec.GatewayTransactionID = txnID.String
	rec.GatewayMerchantRef = mref.String
	if paidAt.Valid {
		t := paidAt.Time
		rec.PaidAt = &t
	}
	return &rec, nil
}

func (r *LedgerRepository) GetByReceiptNumber(ctx context.Context, receiptNumber string) (*models.ChargeRecord, error) {
	return r.getOne(ctx, `receipt_number = $1`, receiptNumber)
}

func (r *LedgerRepository) GetByMerchantRef(ctx context.Context, merchantRef string) (*models.ChargeRecord, error) {
	return r.getOne(ctx, `gateway_merchant_ref = $1`, merchantRef)
}

func (r *LedgerRepository) GetByGatewayTransactionID(ctx context.Context, transactionID string) (*models.ChargeRecord, error) {
	return r.getOne(ctx, `gateway_transaction_id = $1`, transactionID)
}

func (r *LedgerRepository) ReceiptNumbersInScope(ctx context.Context, scope models.ScanScope) ([]interfaces.ScopedReceipt, error) {
	query := `SELECT exhibition_id, receipt_number FROM charge_records WHERE 1=1`
	args := []any{}
	if scope.ExhibitionID != "" {
		args = append(args, scope.ExhibitionID)
		query += ` AND exhibition_id = $1`
	}
	if scope.StartDate != nil {
		args = append(args, *scope.StartDate)
		query += ` AND created_at >= $` + strconv.Itoa(len(args))
	}
	if scope.EndDate != nil {
		args = append(args, *scope.EndDate)
		query += ` AND created_at <= $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []interfaces.ScopedReceipt
	for rows.Next() {
		var sr interfaces.ScopedReceipt
		if err := rows.Scan(&sr.ExhibitionID, &sr.ReceiptNumber); err != nil {
			return nil, err
		}
		out = append(out, sr)
	}
	return out, rows.Err()
}

func (r *LedgerRepository) LatestReceiptNumber(ctx context.Context) (string, error) {
	var receipt sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(receipt_number) FROM charge_records`,
	).Scan(&receipt)
	if err != nil {
		return "", err
	}
	if !receipt.Valid {
		return "", interfaces.ErrNotFound
	}
	return receipt.String, nil
}

// CreatePaid inserts a record already in paid state. The receipt-number
// primary key and the merchant-ref unique index are the idempotency keys:
// a 23505 from either is reported as ErrDuplicate so the caller can
// re-read and re-evaluate instead of double-applying.
func (r *LedgerRepository) CreatePaid(ctx context.Context, rec *models.ChargeRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO charge_records
			(receipt_number, exhibition_id, vendor_id, stall_number, company_name,
			 amount, payment_status, gateway_transaction_id, gateway_merchant_ref,
			 paid_at, receipt_generated)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, FALSE)
	`, rec.ReceiptNumber, rec.ExhibitionID, rec.VendorID, rec.StallNumber, rec.CompanyName,
		rec.Amount, rec.PaymentStatus, rec.GatewayTransactionID, rec.GatewayMerchantRef,
		rec.PaidAt)
	if isUniqueViolation(err) {
		return interfaces.ErrDuplicate
	}
	return err
}

// MarkPaid moves a record to paid only if it is still in the expected
// status. No rows affected means a concurrent writer got there first.
func (r *LedgerRepository) MarkPaid(ctx context.Context, receiptNumber string, from models.PaymentStatus, transactionID string, amount float64, paidAt time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		UPDATE charge_records
		SET payment_status = $1, gateway_transaction_id = $2, amount = $3,
		    paid_at = $4, updated_at = NOW()
		WHERE receipt_number = $5 AND payment_status = $6
	`, models.StatusPaid, transactionID, amount, paidAt, receiptNumber, from)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
