// internal/mocks/mocks.go
package mocks

import (
	"context"

	"github.com/damon-houk/exchange-rate-grabber/internal/domain/entity"
	"github.com/damon-houk/exchange-rate-grabber/internal/domain/service"
	"github.com/stretchr/testify/mock"
)

// MockFetcher mocks the Fetcher interface
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, req service.Request) ([]byte, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

// MockGrabber mocks the Grabber interface
type MockGrabber struct {
	mock.Mock
}

func (m *MockGrabber) GetExchangeRates(ctx context.Context) ([]*entity.ExchangeRate, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entity.ExchangeRate), args.Error(1)
}

func (m *MockGrabber) Spec() entity.GrabberSpec {
	args := m.Called()
	return args.Get(0).(entity.GrabberSpec)
}

// MockObserver mocks the Observer interface
type MockObserver struct {
	mock.Mock
}

func (m *MockObserver) ExchangeRateCreated(current entity.Snapshot) error {
	args := m.Called(current)
	return args.Error(0)
}

func (m *MockObserver) ExchangeRateUpdated(previous, current entity.Snapshot) error {
	args := m.Called(previous, current)
	return args.Error(0)
}

func (m *MockObserver) ExchangeRateChanged(previous, current entity.Snapshot) error {
	args := m.Called(previous, current)
	return args.Error(0)
}

// MockExchangeRateRepository mocks the ExchangeRateRepository interface
type MockExchangeRateRepository struct {
	mock.Mock
}

func (m *MockExchangeRateRepository) StoreRate(ctx context.Context, rate *entity.ExchangeRate) error {
	args := m.Called(ctx, rate)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) FindRates(ctx context.Context) ([]entity.Record, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Record), args.Error(1)
}

func (m *MockExchangeRateRepository) DeleteRate(ctx context.Context, key entity.Key) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) StoreSnapshot(ctx context.Context, snapshot entity.Snapshot) error {
	args := m.Called(ctx, snapshot)
	return args.Error(0)
}

func (m *MockExchangeRateRepository) FindHistory(ctx context.Context, key entity.Key, limit int) ([]entity.Snapshot, error) {
	args := m.Called(ctx, key, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.Snapshot), args.Error(1)
}
