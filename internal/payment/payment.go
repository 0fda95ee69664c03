package payment

import (
	"context"
)

// Gateway is the acquiring API as seen by the service and the notification
// handler.
type Gateway interface {
	Init(ctx context.Context, p *Payment) (*Payment, error)
	Status(ctx context.Context, p *Payment) (*Payment, error)
	Cancel(ctx context.Context, p *Payment) (*Payment, error)

	TerminalKey() string
	VerifyToken(token string, fields map[string]any) bool
}
