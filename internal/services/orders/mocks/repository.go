package mocks

import (
	"context"
	"time"

	"github.com/BearBump/BundleBox/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateOrder(ctx context.Context, o *models.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockRepository) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	args := m.Called(ctx, id)
	var o *models.Order
	if v := args.Get(0); v != nil {
		o = v.(*models.Order)
	}
	return o, args.Error(1)
}

func (m *MockRepository) ListOrders(ctx context.Context, f models.OrderFilter) ([]*models.Order, error) {
	args := m.Called(ctx, f)
	var out []*models.Order
	if v := args.Get(0); v != nil {
		out = v.([]*models.Order)
	}
	return out, args.Error(1)
}

func (m *MockRepository) ListOrdersByIDs(ctx context.Context, ids []string) ([]*models.Order, error) {
	args := m.Called(ctx, ids)
	var out []*models.Order
	if v := args.Get(0); v != nil {
		out = v.([]*models.Order)
	}
	return out, args.Error(1)
}

func (m *MockRepository) UpdateOrder(ctx context.Context, id string, mutate models.OrderMutation) (*models.Order, error) {
	args := m.Called(ctx, id, mutate)
	var o *models.Order
	if v := args.Get(0); v != nil {
		o = v.(*models.Order)
	}
	return o, args.Error(1)
}

func (m *MockRepository) ExportOrders(ctx context.Context, ids []string, at time.Time) (int, error) {
	args := m.Called(ctx, ids, at)
	return args.Int(0), args.Error(1)
}

type MockExporter struct {
	mock.Mock
}

func (m *MockExporter) Render(orders []*models.Order) ([]byte, error) {
	args := m.Called(orders)
	var b []byte
	if v := args.Get(0); v != nil {
		b = v.([]byte)
	}
	return b, args.Error(1)
}

func (m *MockExporter) FileName(at time.Time) string {
	args := m.Called(at)
	return args.String(0)
}
