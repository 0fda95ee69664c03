package payment

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment is a single acquiring transaction. OrderID, Amount and Description
// are fixed at creation; the remaining fields mirror what the gateway reports.
type Payment struct {
	ID          int64
	OrderID     string
	Amount      int64 // minor units
	Description string

	Success    bool
	Status     Status
	PaymentID  string
	ErrorCode  string
	PaymentURL string
	Message    string
	Details    string

	Receipt *Receipt

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CanRedirect reports whether the buyer can be sent to the payment form.
func (p *Payment) CanRedirect() bool {
	return p.Status == StatusNew && p.PaymentURL != ""
}

func (p *Payment) IsPaid() bool {
	return p.Status == StatusConfirmed || p.Status == StatusAuthorized
}

// Receipt is the fiscal receipt sent along with Init.
type Receipt struct {
	ID        int64
	PaymentID int64
	Email     string
	Phone     string
	Taxation  Taxation
	Items     []*ReceiptItem
}

// ApplyDefaults fills Taxation when it was left empty.
func (r *Receipt) ApplyDefaults(taxation Taxation) {
	if r.Taxation == "" {
		r.Taxation = taxation
	}
}

type ReceiptItem struct {
	ID        int64
	ReceiptID int64
	Name      string
	Price     int64 // minor units
	Quantity  decimal.Decimal
	Amount    int64 // minor units, Price*Quantity when left zero
	Tax       Tax
	Ean13     string
	ShopCode  string
}

// ApplyDefaults fills Tax when empty and computes Amount when zero.
// Explicit values are never overwritten.
func (i *ReceiptItem) ApplyDefaults(tax Tax) {
	if i.Amount == 0 {
		i.Amount = ItemAmount(i.Price, i.Quantity)
	}
	if i.Tax == "" {
		i.Tax = tax
	}
}

// ItemAmount is price*quantity rounded to the nearest minor unit, halves
// rounded away from zero.
func ItemAmount(price int64, quantity decimal.Decimal) int64 {
	return decimal.NewFromInt(price).Mul(quantity).Round(0).IntPart()
}

// NewItem is the input for Service.WithItems.
type NewItem struct {
	Name     string
	Price    int64
	Quantity decimal.Decimal
	Amount   int64
	Tax      Tax
	Ean13    string
	ShopCode string
}

func (n NewItem) toItem() *ReceiptItem {
	return &ReceiptItem{
		Name:     n.Name,
		Price:    n.Price,
		Quantity: n.Quantity.Round(3),
		Amount:   n.Amount,
		Tax:      n.Tax,
		Ean13:    n.Ean13,
		ShopCode: n.ShopCode,
	}
}
