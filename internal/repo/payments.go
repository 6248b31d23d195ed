package repo

import (
	"context"
	"fmt"

	"github.com/Alijeyrad/teleconsult/internal/model"
)

func (q *queries) CreateReceipt(ctx context.Context, r *model.Receipt) error {
	err := q.db.QueryRowContext(ctx, `
		INSERT INTO consultation_receipts
			(consultation_id, receipt_number, amount, payment_method, payment_status, issued_by,
			 receipt_content, issued_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		r.ConsultationID, r.Number, r.Amount, r.PaymentMethod, string(r.PaymentStatus), r.IssuedBy,
		string(r.Content), r.IssuedAt, r.UpdatedAt,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert receipt for %s: %w", r.ConsultationID, mapError(err))
	}
	return nil
}

func (q *queries) GetReceiptByConsultation(ctx context.Context, consultationID string) (*model.Receipt, error) {
	r := &model.Receipt{}
	var content []byte
	err := q.db.QueryRowContext(ctx, `
		SELECT id, consultation_id, receipt_number, amount, payment_method, payment_status, issued_by,
		       receipt_content, issued_at, updated_at
		FROM consultation_receipts
		WHERE consultation_id = $1`, consultationID,
	).Scan(&r.ID, &r.ConsultationID, &r.Number, &r.Amount, &r.PaymentMethod, &r.PaymentStatus, &r.IssuedBy,
		&content, &r.IssuedAt, &r.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	r.Content = content
	return r, nil
}

func (q *queries) CreatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO payment_transactions
			(id, merchant_transaction_id, consultation_id, amount, amount_minor, state,
			 gateway_transaction_id, response_code, redirect_url, gateway_response, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		p.ID, p.MerchantTransactionID, p.ConsultationID, p.Amount, p.AmountMinor, string(p.State),
		p.GatewayTransactionID, p.ResponseCode, p.RedirectURL, nullJSON(p.GatewayResponse), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert payment %s: %w", p.ID, mapError(err))
	}
	return nil
}

func (q *queries) GetPaymentTransaction(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error) {
	p := &model.PaymentTransaction{}
	var raw []byte
	err := q.db.QueryRowContext(ctx, `
		SELECT id, merchant_transaction_id, consultation_id, amount, amount_minor, state,
		       gateway_transaction_id, response_code, redirect_url, gateway_response, created_at, updated_at
		FROM payment_transactions
		WHERE merchant_transaction_id = $1`, merchantTxnID,
	).Scan(&p.ID, &p.MerchantTransactionID, &p.ConsultationID, &p.Amount, &p.AmountMinor, &p.State,
		&p.GatewayTransactionID, &p.ResponseCode, &p.RedirectURL, &raw, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, mapError(err)
	}
	p.GatewayResponse = raw
	return p, nil
}

func (q *queries) UpdatePaymentTransaction(ctx context.Context, p *model.PaymentTransaction) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE payment_transactions
		SET state = $2, gateway_transaction_id = $3, response_code = $4, gateway_response = $5, updated_at = $6
		WHERE merchant_transaction_id = $1`,
		p.MerchantTransactionID, string(p.State), p.GatewayTransactionID, p.ResponseCode,
		nullJSON(p.GatewayResponse), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update payment %s: %w", p.MerchantTransactionID, mapError(err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// nullJSON maps an empty document to SQL NULL.
func nullJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
