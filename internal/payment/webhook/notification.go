package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"tinkoff-merchant/internal/logger"
	"tinkoff-merchant/internal/metrics"
	"tinkoff-merchant/internal/payment"
	"tinkoff-merchant/internal/signing"
)

const (
	// Path is where the gateway posts payment notifications.
	Path = "/tinkoff/notification/"

	responseOK       = "OK"
	responseNotFound = "Payment not found"
	responseBadReq   = "Bad request"

	maxBodySize = 1 << 20
)

// Notifier is the part of the payment service the handler needs.
type Notifier interface {
	ApplyNotification(ctx context.Context, paymentID string, fields map[string]any) (*payment.Payment, error)
}

// Keys is the part of the gateway client the handler needs.
type Keys interface {
	HasKeys() bool
	TerminalKey() string
	VerifyToken(token string, fields map[string]any) bool
}

type Handler struct {
	svc     Notifier
	keys    Keys
	deduper Deduper
	stats   metrics.Notifications
}

// NewHandler builds the notification endpoint. deduper may be nil.
func NewHandler(svc Notifier, keys Keys, deduper Deduper) *Handler {
	return &Handler{
		svc:     svc,
		keys:    keys,
		deduper: deduper,
	}
}

// Stats returns the notification counters.
func (h *Handler) Stats() map[string]uint64 {
	return h.stats.Snapshot()
}

// Handle authenticates a notification body and applies it to the matching
// payment. Duplicates of an already applied notification return nil.
func (h *Handler) Handle(ctx context.Context, body []byte) (*payment.Payment, error) {
	h.stats.Received.Inc()

	p, duplicate, err := h.handle(ctx, body)
	switch {
	case err != nil:
		h.stats.Rejected.Inc()
	case duplicate:
		h.stats.Duplicate.Inc()
	default:
		h.stats.Applied.Inc()
	}
	return p, err
}

func (h *Handler) handle(ctx context.Context, body []byte) (*payment.Payment, bool, error) {
	if !h.keys.HasKeys() {
		return nil, false, payment.ErrMissingKeys
	}

	fields, err := decode(body)
	if err != nil {
		return nil, false, err
	}

	terminalKey, _ := fields[signing.FieldTerminalKey].(string)
	if terminalKey != h.keys.TerminalKey() {
		return nil, false, &payment.AuthenticationError{Reason: payment.ReasonBadTerminalKey}
	}

	token, _ := fields[signing.FieldToken].(string)
	if !h.keys.VerifyToken(token, fields) {
		return nil, false, &payment.AuthenticationError{Reason: payment.ReasonBadToken}
	}

	paymentID := field(fields, "PaymentId")
	ctx = logger.WithOrderID(ctx, field(fields, "OrderId"))
	log := logger.FromCtx(ctx).With(zap.String("payment_id", paymentID))

	if h.deduper != nil {
		seen, err := h.deduper.Seen(ctx, token)
		if err != nil {
			log.Warn("notification dedup lookup failed", zap.Error(err))
		}
		if seen {
			log.Info("duplicate notification skipped")
			return nil, true, nil
		}
	}

	p, err := h.svc.ApplyNotification(ctx, paymentID, fields)
	if err != nil {
		return nil, false, err
	}

	if h.deduper != nil {
		if err := h.deduper.Mark(ctx, token); err != nil {
			log.Warn("failed to mark notification", zap.Error(err))
		}
	}
	return p, false, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	log := logger.FromCtx(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		writeText(w, http.StatusBadRequest, responseBadReq)
		return
	}
	defer r.Body.Close()

	if _, err := h.Handle(r.Context(), body); err != nil {
		status := payment.HTTPStatus(err)
		log.Warn("notification rejected", zap.Int("status", status), zap.Error(err))
		writeText(w, status, responseText(err, status))
		return
	}

	writeText(w, http.StatusOK, responseOK)
}

func decode(body []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, &payment.ValidationError{Msg: responseBadReq, Err: err}
	}
	if fields == nil {
		return nil, &payment.ValidationError{Msg: responseBadReq}
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, &payment.ValidationError{Msg: responseBadReq, Err: errors.New("trailing data after notification")}
	}
	return fields, nil
}

func field(fields map[string]any, key string) string {
	v, ok := fields[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

func responseText(err error, status int) string {
	var authErr *payment.AuthenticationError
	switch {
	case errors.As(err, &authErr):
		return authErr.Reason
	case status == http.StatusNotFound:
		return responseNotFound
	case status == http.StatusBadRequest:
		return responseBadReq
	default:
		return http.StatusText(status)
	}
}

func writeText(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text)
}
