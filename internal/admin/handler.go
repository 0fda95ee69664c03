package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"tinkoff-merchant/internal/logger"
	"tinkoff-merchant/internal/payment"
)

const maxCancelBatch = 100

// Payments is the part of the payment service used by the admin endpoints.
type Payments interface {
	Get(ctx context.Context, orderID string) (*payment.Payment, error)
	CancelOrders(ctx context.Context, orderIDs []string) []payment.CancelResult
}

type Handler struct {
	payments Payments
}

func NewHandler(payments Payments) *Handler {
	return &Handler{payments: payments}
}

// Register mounts the admin routes on mux. wrap is applied to every route.
func (h *Handler) Register(mux *http.ServeMux, wrap func(http.Handler) http.Handler) {
	mux.Handle("POST /admin/payments/cancel", wrap(http.HandlerFunc(h.Cancel)))
	mux.Handle("GET /admin/payments/{orderID}", wrap(http.HandlerFunc(h.Get)))
}

type cancelRequest struct {
	OrderIDs []string `json:"order_ids"`
}

type cancelResponse struct {
	Results []payment.CancelResult `json:"results"`
}

// Cancel cancels the selected orders at the gateway.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON payload")
		return
	}
	if len(req.OrderIDs) == 0 {
		writeError(w, http.StatusBadRequest, "order_ids is required")
		return
	}
	if len(req.OrderIDs) > maxCancelBatch {
		writeError(w, http.StatusBadRequest, "too many order_ids")
		return
	}

	results := h.payments.CancelOrders(r.Context(), req.OrderIDs)

	failed := 0
	for _, res := range results {
		if res.Error != "" {
			failed++
		}
	}
	logger.FromCtx(r.Context()).Info("admin cancel",
		zap.Int("requested", len(req.OrderIDs)),
		zap.Int("failed", failed),
	)

	writeJSON(w, http.StatusOK, cancelResponse{Results: results})
}

type itemView struct {
	Name     string `json:"name"`
	Price    int64  `json:"price"`
	Quantity string `json:"quantity"`
	Amount   int64  `json:"amount"`
	Tax      string `json:"tax"`
	Ean13    string `json:"ean13,omitempty"`
	ShopCode string `json:"shop_code,omitempty"`
}

type receiptView struct {
	Email    string     `json:"email,omitempty"`
	Phone    string     `json:"phone,omitempty"`
	Taxation string     `json:"taxation"`
	Items    []itemView `json:"items"`
}

type paymentView struct {
	OrderID     string       `json:"order_id"`
	Amount      int64        `json:"amount"`
	Description string       `json:"description,omitempty"`
	Success     bool         `json:"success"`
	Status      string       `json:"status"`
	PaymentID   string       `json:"payment_id,omitempty"`
	ErrorCode   string       `json:"error_code,omitempty"`
	PaymentURL  string       `json:"payment_url,omitempty"`
	Message     string       `json:"message,omitempty"`
	Details     string       `json:"details,omitempty"`
	Receipt     *receiptView `json:"receipt,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func toView(p *payment.Payment) paymentView {
	v := paymentView{
		OrderID:     p.OrderID,
		Amount:      p.Amount,
		Description: p.Description,
		Success:     p.Success,
		Status:      string(p.Status),
		PaymentID:   p.PaymentID,
		ErrorCode:   p.ErrorCode,
		PaymentURL:  p.PaymentURL,
		Message:     p.Message,
		Details:     p.Details,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}

	if rc := p.Receipt; rc != nil {
		v.Receipt = &receiptView{
			Email:    rc.Email,
			Phone:    rc.Phone,
			Taxation: string(rc.Taxation),
			Items:    make([]itemView, 0, len(rc.Items)),
		}
		for _, it := range rc.Items {
			v.Receipt.Items = append(v.Receipt.Items, itemView{
				Name:     it.Name,
				Price:    it.Price,
				Quantity: it.Quantity.String(),
				Amount:   it.Amount,
				Tax:      string(it.Tax),
				Ean13:    it.Ean13,
				ShopCode: it.ShopCode,
			})
		}
	}
	return v
}

// Get returns the stored payment for an order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	orderID := r.PathValue("orderID")

	p, err := h.payments.Get(r.Context(), orderID)
	if err != nil {
		status := payment.HTTPStatus(err)
		if status >= http.StatusInternalServerError {
			logger.FromCtx(r.Context()).Error("failed to load payment", zap.String("order_id", orderID), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toView(p))
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.L().Error("failed to write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
