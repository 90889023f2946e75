package sauresmock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sauresha/sauresha/pkg/saures"
	"github.com/sauresha/sauresha/pkg/types"
)

type MockSystem struct {
	mock.Mock
}

var _ saures.System = (*MockSystem)(nil)

func (m *MockSystem) Authenticate(ctx context.Context) bool {
	args := m.Called(ctx)
	return args.Bool(0)
}

func (m *MockSystem) ListFlats(ctx context.Context) map[string]string {
	args := m.Called(ctx)
	if v := args.Get(0); v != nil {
		return v.(map[string]string)
	}
	return map[string]string{}
}

func (m *MockSystem) FetchFlatData(ctx context.Context, flatID string, reload bool) []types.Controller {
	args := m.Called(ctx, flatID, reload)
	if v := args.Get(0); v != nil {
		return v.([]types.Controller)
	}
	return nil
}

func (m *MockSystem) Controllers(ctx context.Context, flatID string) []types.Controller {
	args := m.Called(ctx, flatID)
	if v := args.Get(0); v != nil {
		return v.([]types.Controller)
	}
	return nil
}

func (m *MockSystem) Controller(flatID, sn string) types.ControllerInfo {
	args := m.Called(flatID, sn)
	if v := args.Get(0); v != nil {
		return v.(types.ControllerInfo)
	}
	return types.ControllerInfo{}
}

func (m *MockSystem) Classify(ctx context.Context, flatID string) (types.Buckets, error) {
	args := m.Called(ctx, flatID)
	if v := args.Get(0); v != nil {
		return v.(types.Buckets), args.Error(1)
	}
	return types.Buckets{}, args.Error(1)
}

func (m *MockSystem) Lookup(flatID, meterID string, bucket types.Bucket) types.Sensor {
	args := m.Called(flatID, meterID, bucket)
	if v := args.Get(0); v != nil {
		return v.(types.Sensor)
	}
	return types.Sensor{}
}

func (m *MockSystem) SendCommand(ctx context.Context, meterID, command string) bool {
	args := m.Called(ctx, meterID, command)
	return args.Bool(0)
}

func (m *MockSystem) RefreshAll(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockSystem) Snapshot() types.Snapshot {
	args := m.Called()
	if v := args.Get(0); v != nil {
		return v.(types.Snapshot)
	}
	return types.Snapshot{}
}
