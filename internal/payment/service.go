package payment

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"tinkoff-merchant/internal/event"
	"tinkoff-merchant/internal/logger"
)

type Service interface {
	Create(ctx context.Context, orderID string, amount int64, description string) (*Payment, error)
	Get(ctx context.Context, orderID string) (*Payment, error)
	WithReceipt(ctx context.Context, p *Payment, email string, taxation Taxation, phone string) (*Payment, error)
	WithItems(ctx context.Context, p *Payment, items []NewItem) (*Payment, error)

	Init(ctx context.Context, p *Payment) (*Payment, error)
	RefreshStatus(ctx context.Context, p *Payment) (*Payment, error)
	Cancel(ctx context.Context, p *Payment) (*Payment, error)
	CancelOrders(ctx context.Context, orderIDs []string) []CancelResult

	ApplyNotification(ctx context.Context, paymentID string, fields map[string]any) (*Payment, error)
}

// Defaults are applied to receipts and receipt items before they are stored.
type Defaults struct {
	Taxation Taxation
	ItemTax  Tax
}

type CancelResult struct {
	OrderID string `json:"order_id"`
	Status  Status `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

type service struct {
	repo     Repository
	gateway  Gateway
	events   event.Publisher
	defaults Defaults
}

func NewService(repo Repository, gateway Gateway, events event.Publisher, defaults Defaults) Service {
	return &service{
		repo:     repo,
		gateway:  gateway,
		events:   events,
		defaults: defaults,
	}
}

// Create stores a new local payment. Its status stays empty until Init.
func (s *service) Create(ctx context.Context, orderID string, amount int64, description string) (*Payment, error) {
	if orderID == "" {
		return nil, &ValidationError{Msg: "order id is required"}
	}
	if amount <= 0 {
		return nil, &ValidationError{Msg: "amount must be positive"}
	}

	p := &Payment{OrderID: orderID, Amount: amount, Description: description}
	if err := s.repo.CreatePayment(ctx, p); err != nil {
		return nil, err
	}

	logger.FromCtx(logger.WithOrderID(ctx, orderID)).Info("payment created", zap.Int64("amount", amount))
	return p, nil
}

func (s *service) Get(ctx context.Context, orderID string) (*Payment, error) {
	return s.repo.GetByOrderID(ctx, orderID)
}

// WithReceipt attaches a receipt once. Calling it again on a payment that
// already has one returns the payment unchanged.
func (s *service) WithReceipt(
	ctx context.Context,
	p *Payment,
	email string,
	taxation Taxation,
	phone string,
) (*Payment, error) {
	if p.ID == 0 {
		if err := s.repo.CreatePayment(ctx, p); err != nil {
			return nil, err
		}
	}

	if p.Receipt != nil {
		return p, nil
	}

	rc := &Receipt{PaymentID: p.ID, Email: email, Phone: phone, Taxation: taxation}
	rc.ApplyDefaults(s.defaults.Taxation)

	stored, err := s.repo.CreateReceipt(ctx, rc)
	if err != nil {
		return nil, err
	}
	p.Receipt = stored
	return p, nil
}

func (s *service) WithItems(ctx context.Context, p *Payment, items []NewItem) (*Payment, error) {
	if p.Receipt == nil {
		return nil, ErrReceiptMissing
	}

	for _, in := range items {
		item := in.toItem()
		item.ReceiptID = p.Receipt.ID
		item.ApplyDefaults(s.defaults.ItemTax)

		if err := s.repo.CreateReceiptItem(ctx, item); err != nil {
			return nil, err
		}
		p.Receipt.Items = append(p.Receipt.Items, item)
	}
	return p, nil
}

// Init registers the payment with the gateway and stores the answer.
// On error nothing is stored and p may hold a partial update.
func (s *service) Init(ctx context.Context, p *Payment) (*Payment, error) {
	ctx = logger.WithOrderID(ctx, p.OrderID)

	if p.ID == 0 {
		if err := s.repo.CreatePayment(ctx, p); err != nil {
			return nil, err
		}
	}

	return s.callAndSave(ctx, p, s.gateway.Init)
}

func (s *service) RefreshStatus(ctx context.Context, p *Payment) (*Payment, error) {
	return s.callAndSave(logger.WithOrderID(ctx, p.OrderID), p, s.gateway.Status)
}

func (s *service) Cancel(ctx context.Context, p *Payment) (*Payment, error) {
	return s.callAndSave(logger.WithOrderID(ctx, p.OrderID), p, s.gateway.Cancel)
}

// CancelOrders cancels each order independently; one failure does not stop the rest.
func (s *service) CancelOrders(ctx context.Context, orderIDs []string) []CancelResult {
	results := make([]CancelResult, 0, len(orderIDs))

	for _, orderID := range orderIDs {
		res := CancelResult{OrderID: orderID}

		p, err := s.repo.GetByOrderID(ctx, orderID)
		if err == nil {
			p, err = s.Cancel(ctx, p)
		}

		if err != nil {
			res.Error = err.Error()
		} else {
			res.Status = p.Status
		}
		results = append(results, res)
	}
	return results
}

// ApplyNotification applies authenticated notification fields to the
// payment with the given gateway id under a row lock.
func (s *service) ApplyNotification(ctx context.Context, paymentID string, fields map[string]any) (*Payment, error) {
	var prev Status

	p, err := s.repo.UpdateByPaymentID(ctx, paymentID, func(p *Payment) error {
		prev = p.Status
		ApplyResponse(p, fields)
		return nil
	})
	if err != nil {
		return nil, err
	}

	ctx = logger.WithOrderID(ctx, p.OrderID)
	s.afterUpdate(ctx, prev, p)
	return p, nil
}

// callAndSave runs a gateway call on p and stores the answer. When the row
// changed while the call was in flight the stored state wins and is returned.
func (s *service) callAndSave(
	ctx context.Context,
	p *Payment,
	call func(context.Context, *Payment) (*Payment, error),
) (*Payment, error) {
	log := logger.FromCtx(ctx)
	prev := p.Status

	if _, err := call(ctx, p); err != nil {
		log.Error("gateway call failed", zap.Error(err))
		return p, err
	}

	err := s.repo.SaveGatewayState(ctx, p)
	if errors.Is(err, ErrStaleState) {
		log.Info("payment changed during gateway call, keeping stored state",
			zap.String("payment_id", p.PaymentID), zap.String("answer", string(p.Status)))
		return s.repo.GetByOrderID(ctx, p.OrderID)
	}
	if err != nil {
		log.Error("failed to save gateway state", zap.Error(err))
		return p, err
	}

	s.afterUpdate(ctx, prev, p)
	return p, nil
}

func (s *service) afterUpdate(ctx context.Context, prev Status, p *Payment) {
	log := logger.FromCtx(ctx).With(
		zap.String("payment_id", p.PaymentID),
		zap.String("from", string(prev)),
		zap.String("to", string(p.Status)),
	)

	if prev.IsRegression(p.Status) {
		log.Warn("payment status moved backwards")
	}
	log.Info("payment updated", zap.Bool("success", p.Success), zap.String("error_code", p.ErrorCode))

	if s.events == nil {
		return
	}
	if err := s.events.Publish(event.Event{Type: event.PaymentUpdated, Payload: p}); err != nil {
		log.Error("payment.updated subscriber failed", zap.Error(err))
	}
}

// IsNotFound is a convenience for handlers.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPaymentNotFound)
}
