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

func (m *MockRepository) CreateAgent(ctx context.Context, a *models.Agent) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *MockRepository) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	args := m.Called(ctx, id)
	var a *models.Agent
	if v := args.Get(0); v != nil {
		a = v.(*models.Agent)
	}
	return a, args.Error(1)
}

func (m *MockRepository) GetAgentByEmail(ctx context.Context, email string) (*models.Agent, error) {
	args := m.Called(ctx, email)
	var a *models.Agent
	if v := args.Get(0); v != nil {
		a = v.(*models.Agent)
	}
	return a, args.Error(1)
}

func (m *MockRepository) ListAgents(ctx context.Context, approvalStatus string) ([]*models.Agent, error) {
	args := m.Called(ctx, approvalStatus)
	var out []*models.Agent
	if v := args.Get(0); v != nil {
		out = v.([]*models.Agent)
	}
	return out, args.Error(1)
}

func (m *MockRepository) SetAgentApproval(ctx context.Context, id, approvalStatus string, active bool, at time.Time) error {
	args := m.Called(ctx, id, approvalStatus, active, at)
	return args.Error(0)
}
