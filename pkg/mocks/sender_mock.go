package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/outflowhq/outflow/pkg/protocol"
)

// MockSender is a mock implementation of protocol.Sender interface.
type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, channelID string, payload protocol.Payload) (protocol.SendResult, error) {
	args := m.Called(ctx, channelID, payload)

	return args.Get(0).(protocol.SendResult), args.Error(1)
}

// MockAudienceResolver is a mock implementation of
// protocol.AudienceResolver interface.
type MockAudienceResolver struct {
	mock.Mock
}

func (m *MockAudienceResolver) Resolve(ctx context.Context, spec protocol.AudienceSpec) ([]protocol.AudienceMember, error) {
	args := m.Called(ctx, spec)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]protocol.AudienceMember), args.Error(1)
}
