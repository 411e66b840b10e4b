package messaging

import (
	"context"
	"sync"
)

// MockMessageSender records messages in memory for testing.
type MockMessageSender struct {
	mu       sync.Mutex
	messages []*SettlementMessage
	Err      error
}

// NewMockMessageSender creates a new MockMessageSender.
func NewMockMessageSender() *MockMessageSender {
	return &MockMessageSender{}
}

// SendSettlement records the message, or returns Err when set.
func (m *MockMessageSender) SendSettlement(_ context.Context, msg *SettlementMessage) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MockMessageSender) Messages() []*SettlementMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*SettlementMessage, len(m.messages))
	copy(out, m.messages)
	return out
}

// Close does nothing.
func (m *MockMessageSender) Close() error {
	return nil
}

// Ensure MockMessageSender implements MessageSender
var _ MessageSender = (*MockMessageSender)(nil)
