package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"tinkoff-merchant/internal/payment"
)

type MockLister struct {
	mock.Mock
}

func (m *MockLister) ClaimForSync(ctx context.Context, statuses []payment.Status, limit int) ([]*payment.Payment, error) {
	args := m.Called(ctx, statuses, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*payment.Payment), args.Error(1)
}

type MockRefresher struct {
	mock.Mock
}

func (m *MockRefresher) RefreshStatus(ctx context.Context, p *payment.Payment) (*payment.Payment, error) {
	args := m.Called(ctx, p)
	return p, args.Error(0)
}

func TestScheduler_SyncStatuses(t *testing.T) {
	t.Run("RefreshesEachPending", func(t *testing.T) {
		lister := new(MockLister)
		svc := new(MockRefresher)
		core, logs := observer.New(zap.InfoLevel)
		s := New("@every 5m", lister, svc, zap.New(core))

		p1 := &payment.Payment{OrderID: "ord-1", PaymentID: "1", Status: payment.StatusNew}
		p2 := &payment.Payment{OrderID: "ord-2", PaymentID: "2", Status: payment.StatusAuthorized}
		p3 := &payment.Payment{OrderID: "ord-3", PaymentID: "3", Status: payment.StatusFormShowed}

		lister.On("ClaimForSync", mock.Anything, payment.PendingStatuses, defaultBatch).
			Return([]*payment.Payment{p1, p2, p3}, nil)
		svc.On("RefreshStatus", mock.Anything, p1).Return(nil)
		svc.On("RefreshStatus", mock.Anything, p2).Return(errors.New("gateway down"))
		svc.On("RefreshStatus", mock.Anything, p3).Return(nil)

		refreshed := s.SyncStatuses(context.Background())

		assert.Equal(t, 2, refreshed)
		svc.AssertNumberOfCalls(t, "RefreshStatus", 3)

		failed := logs.FilterMessage("status sync failed").All()
		require.Len(t, failed, 1)
		assert.Equal(t, "ord-2", failed[0].ContextMap()["order_id"])
	})

	t.Run("ListError", func(t *testing.T) {
		lister := new(MockLister)
		svc := new(MockRefresher)
		s := New("@every 5m", lister, svc, zap.NewNop())

		lister.On("ClaimForSync", mock.Anything, mock.Anything, mock.Anything).Return(nil, errors.New("db down"))

		assert.Equal(t, 0, s.SyncStatuses(context.Background()))
		svc.AssertNotCalled(t, "RefreshStatus", mock.Anything, mock.Anything)
	})
}

func TestScheduler_Start(t *testing.T) {
	t.Run("Disabled", func(t *testing.T) {
		s := New(ScheduleOff, new(MockLister), new(MockRefresher), zap.NewNop())

		require.NoError(t, s.Start())
		assert.Empty(t, s.cron.Entries())
	})

	t.Run("InvalidSchedule", func(t *testing.T) {
		s := New("every now and then", new(MockLister), new(MockRefresher), zap.NewNop())

		assert.Error(t, s.Start())
	})

	t.Run("Registers", func(t *testing.T) {
		s := New("@every 1h", new(MockLister), new(MockRefresher), zap.NewNop())

		require.NoError(t, s.Start())
		defer s.Stop(context.Background())

		assert.Len(t, s.cron.Entries(), 1)
	})
}
