package payment

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Response fields copied onto a Payment by ApplyResponse.
const (
	fieldSuccess    = "Success"
	fieldStatus     = "Status"
	fieldPaymentID  = "PaymentId"
	fieldErrorCode  = "ErrorCode"
	fieldPaymentURL = "PaymentURL"
	fieldMessage    = "Message"
	fieldDetails    = "Details"
)

// ToWire builds the Init request body.
func ToWire(p *Payment) map[string]any {
	data := map[string]any{
		"Amount":      p.Amount,
		"OrderId":     p.OrderID,
		"Description": p.Description,
	}
	if p.Receipt != nil {
		data["Receipt"] = p.Receipt.ToWire()
	}
	return data
}

func (r *Receipt) ToWire() map[string]any {
	items := make([]map[string]any, 0, len(r.Items))
	for _, item := range r.Items {
		items = append(items, item.ToWire())
	}

	return map[string]any{
		"Email":    r.Email,
		"Phone":    r.Phone,
		"Taxation": string(r.Taxation),
		"Items":    items,
	}
}

func (i *ReceiptItem) ToWire() map[string]any {
	return map[string]any{
		"Name":     i.Name,
		"Price":    i.Price,
		"Quantity": json.Number(i.Quantity.String()),
		"Amount":   i.Amount,
		"Tax":      string(i.Tax),
		"Ean13":    i.Ean13,
		"ShopCode": i.ShopCode,
	}
}

// ApplyResponse copies the known response fields onto p. Fields missing
// from the response keep their current value.
func ApplyResponse(p *Payment, response map[string]any) *Payment {
	if v, ok := response[fieldSuccess]; ok {
		p.Success = toBool(v)
	}
	if v, ok := response[fieldStatus]; ok {
		p.Status = Status(toString(v))
	}
	if v, ok := response[fieldPaymentID]; ok {
		p.PaymentID = toString(v)
	}
	if v, ok := response[fieldErrorCode]; ok {
		p.ErrorCode = toString(v)
	}
	if v, ok := response[fieldPaymentURL]; ok {
		p.PaymentURL = toString(v)
	}
	if v, ok := response[fieldMessage]; ok {
		p.Message = toString(v)
	}
	if v, ok := response[fieldDetails]; ok {
		p.Details = toString(v)
	}
	return p
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

func toBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(t))
		return b
	case json.Number:
		n, err := t.Int64()
		return err == nil && n != 0
	default:
		return false
	}
}
