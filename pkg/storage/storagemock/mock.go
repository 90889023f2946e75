package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/sauresha/sauresha/pkg/storage"
	"github.com/sauresha/sauresha/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) InsertReadings(ctx context.Context, flatID string, readings []types.Reading) error {
	args := m.Called(ctx, flatID, readings)
	return args.Error(0)
}

func (m *MockDatabase) GetReadingHistory(ctx context.Context, flatID, meterID string, start, end time.Time) ([]types.Reading, error) {
	args := m.Called(ctx, flatID, meterID, start, end)
	if len(args) > 0 {
		if v := args.Get(0); v != nil {
			return v.([]types.Reading), args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) GetLatestReadingTime(ctx context.Context, flatID, meterID string) (time.Time, error) {
	args := m.Called(ctx, flatID, meterID)
	if len(args) > 0 {
		return args.Get(0).(time.Time), args.Error(1)
	}
	return time.Time{}, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
