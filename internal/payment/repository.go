package payment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

var ErrDuplicateOrder = errors.New("payment with this order id already exists")

type Repository interface {
	CreatePayment(ctx context.Context, p *Payment) error
	SaveGatewayState(ctx context.Context, p *Payment) error
	GetByOrderID(ctx context.Context, orderID string) (*Payment, error)
	GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error)
	UpdateByPaymentID(ctx context.Context, paymentID string, apply func(p *Payment) error) (*Payment, error)
	ClaimForSync(ctx context.Context, statuses []Status, limit int) ([]*Payment, error)

	CreateReceipt(ctx context.Context, r *Receipt) (*Receipt, error)
	CreateReceiptItem(ctx context.Context, item *ReceiptItem) error
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const paymentColumns = `id, order_id, amount, description, success, status, payment_id,
	error_code, payment_url, message, details, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanPayment(row scanner) (*Payment, error) {
	var p Payment
	err := row.Scan(
		&p.ID, &p.OrderID, &p.Amount, &p.Description, &p.Success, &p.Status, &p.PaymentID,
		&p.ErrorCode, &p.PaymentURL, &p.Message, &p.Details, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, err
	}
	return &p, nil
}

func (r *repository) CreatePayment(ctx context.Context, p *Payment) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO payments (order_id, amount, description, success, status, payment_id,
			error_code, payment_url, message, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`,
		p.OrderID, p.Amount, p.Description, p.Success, p.Status, p.PaymentID,
		p.ErrorCode, p.PaymentURL, p.Message, p.Details,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "23505" {
		return ErrDuplicateOrder
	}
	return err
}

// SaveGatewayState persists the gateway-reported fields of p. The row is
// only written while its updated_at still matches p.UpdatedAt; otherwise
// ErrStaleState is returned and the newer row is left alone.
func (r *repository) SaveGatewayState(ctx context.Context, p *Payment) error {
	err := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET success = $1, status = $2, payment_id = $3, error_code = $4,
			payment_url = $5, message = $6, details = $7, updated_at = clock_timestamp()
		WHERE id = $8 AND updated_at = $9
		RETURNING updated_at
	`,
		p.Success, p.Status, p.PaymentID, p.ErrorCode, p.PaymentURL, p.Message, p.Details, p.ID, p.UpdatedAt,
	).Scan(&p.UpdatedAt)
	if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, p.ID,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return ErrPaymentNotFound
	}
	return ErrStaleState
}

func (r *repository) GetByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE order_id = $1`, orderID)
	return r.withReceipt(ctx, r.db, row)
}

func (r *repository) GetByPaymentID(ctx context.Context, paymentID string) (*Payment, error) {
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1`, paymentID)
	return r.withReceipt(ctx, r.db, row)
}

// UpdateByPaymentID locks the payment row, lets apply mutate it and saves
// the gateway fields in the same transaction. Nothing is written when apply
// fails.
func (r *repository) UpdateByPaymentID(
	ctx context.Context,
	paymentID string,
	apply func(p *Payment) error,
) (*Payment, error) {
	if paymentID == "" {
		return nil, ErrPaymentNotFound
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	p, err := scanPayment(tx.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE payment_id = $1 FOR UPDATE`, paymentID))
	if err != nil {
		return nil, err
	}

	if err := apply(p); err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		UPDATE payments
		SET success = $1, status = $2, payment_id = $3, error_code = $4,
			payment_url = $5, message = $6, details = $7, updated_at = clock_timestamp()
		WHERE id = $8
		RETURNING updated_at
	`,
		p.Success, p.Status, p.PaymentID, p.ErrorCode, p.PaymentURL, p.Message, p.Details, p.ID,
	).Scan(&p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return p, nil
}

// ClaimForSync picks up to limit payments in one of statuses, least recently
// synced first, and stamps synced_at on them. Payments whose poll keeps
// failing therefore move to the back of the queue. Rows locked by a
// concurrent writer are skipped.
func (r *repository) ClaimForSync(ctx context.Context, statuses []Status, limit int) ([]*Payment, error) {
	names := make([]string, 0, len(statuses))
	for _, s := range statuses {
		names = append(names, string(s))
	}

	rows, err := r.db.QueryContext(ctx, `
		UPDATE payments SET synced_at = clock_timestamp()
		WHERE id IN (
			SELECT id FROM payments
			WHERE status = ANY($1) AND payment_id <> ''
			ORDER BY synced_at ASC NULLS FIRST, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+paymentColumns,
		pq.Array(names), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreateReceipt stores r for its payment. A payment owns at most one
// receipt; when one already exists it is returned instead.
func (r *repository) CreateReceipt(ctx context.Context, rc *Receipt) (*Receipt, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO receipts (payment_id, email, phone, taxation)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (payment_id) DO NOTHING
		RETURNING id
	`, rc.PaymentID, rc.Email, rc.Phone, rc.Taxation).Scan(&rc.ID)

	if errors.Is(err, sql.ErrNoRows) {
		existing, err := loadReceipt(ctx, r.db, rc.PaymentID)
		if err != nil {
			return nil, err
		}
		if existing == nil {
			return nil, fmt.Errorf("receipt for payment %d vanished", rc.PaymentID)
		}
		return existing, nil
	}
	if err != nil {
		return nil, err
	}
	return rc, nil
}

func (r *repository) CreateReceiptItem(ctx context.Context, item *ReceiptItem) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO receipt_items (receipt_id, name, price, quantity, amount, tax, ean13, shop_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		item.ReceiptID, item.Name, item.Price, item.Quantity, item.Amount, item.Tax, item.Ean13, item.ShopCode,
	).Scan(&item.ID)
}

func (r *repository) withReceipt(ctx context.Context, q querier, row *sql.Row) (*Payment, error) {
	p, err := scanPayment(row)
	if err != nil {
		return nil, err
	}

	p.Receipt, err = loadReceipt(ctx, q, p.ID)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// loadReceipt returns nil without error when the payment has no receipt.
func loadReceipt(ctx context.Context, q querier, paymentID int64) (*Receipt, error) {
	var rc Receipt
	err := q.QueryRowContext(ctx, `
		SELECT id, payment_id, email, phone, taxation
		FROM receipts WHERE payment_id = $1
	`, paymentID).Scan(&rc.ID, &rc.PaymentID, &rc.Email, &rc.Phone, &rc.Taxation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, receipt_id, name, price, quantity, amount, tax, ean13, shop_code
		FROM receipt_items WHERE receipt_id = $1 ORDER BY id
	`, rc.ID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var it ReceiptItem
		if err := rows.Scan(
			&it.ID, &it.ReceiptID, &it.Name, &it.Price, &it.Quantity, &it.Amount, &it.Tax, &it.Ean13, &it.ShopCode,
		); err != nil {
			return nil, err
		}
		rc.Items = append(rc.Items, &it)
	}
	return &rc, rows.Err()
}
