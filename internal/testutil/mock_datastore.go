package testutil

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/oncoderma/oncoderma-go/internal/datastore"
)

// MockDataStore implements datastore.Interface with testify expectations.
type MockDataStore struct {
	mock.Mock
}

var _ datastore.Interface = (*MockDataStore)(nil)

func (m *MockDataStore) Open() error {
	return m.Called().Error(0)
}

func (m *MockDataStore) Close() error {
	return m.Called().Error(0)
}

func (m *MockDataStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockDataStore) CreatePrediction(ctx context.Context, p *datastore.Prediction) error {
	return m.Called(ctx, p).Error(0)
}

func (m *MockDataStore) QueryPredictions(ctx context.Context, userID uint, filter datastore.HistoryFilter) ([]datastore.Prediction, error) {
	args := m.Called(ctx, userID, filter)
	if v := args.Get(0); v != nil {
		return v.([]datastore.Prediction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) GetPredictionForUser(ctx context.Context, userID, id uint) (*datastore.Prediction, error) {
	args := m.Called(ctx, userID, id)
	if v := args.Get(0); v != nil {
		return v.(*datastore.Prediction), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) DashboardStats(ctx context.Context, userID uint) (*datastore.DashboardStats, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.(*datastore.DashboardStats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) CreateUser(ctx context.Context, u *datastore.User) error {
	return m.Called(ctx, u).Error(0)
}

func (m *MockDataStore) GetUserByUsername(ctx context.Context, username string) (*datastore.User, error) {
	args := m.Called(ctx, username)
	if v := args.Get(0); v != nil {
		return v.(*datastore.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) GetUserByID(ctx context.Context, id uint) (*datastore.User, error) {
	args := m.Called(ctx, id)
	if v := args.Get(0); v != nil {
		return v.(*datastore.User), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) UsernameExists(ctx context.Context, username string) (bool, error) {
	args := m.Called(ctx, username)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataStore) UpdateUserNames(ctx context.Context, id uint, firstName, lastName, email string) error {
	return m.Called(ctx, id, firstName, lastName, email).Error(0)
}

func (m *MockDataStore) TouchLastLogin(ctx context.Context, id uint) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockDataStore) GetOrCreateProfile(ctx context.Context, userID uint) (*datastore.UserProfile, error) {
	args := m.Called(ctx, userID)
	if v := args.Get(0); v != nil {
		return v.(*datastore.UserProfile), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDataStore) UpdateProfile(ctx context.Context, profile *datastore.UserProfile) error {
	return m.Called(ctx, profile).Error(0)
}
