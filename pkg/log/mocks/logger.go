// Package mocks provides testify mocks for the log package.
package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/pinwise/pinwise-go/pkg/log"
)

// MockLogger is a mock implementation of log.Logger.
type MockLogger struct {
	mock.Mock
}

// NewMockLogger creates a MockLogger and registers its expectation check
// with t.Cleanup.
func NewMockLogger(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockLogger {
	m := &MockLogger{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

// Log provides a mock function with given fields: event
func (m *MockLogger) Log(event log.Event) {
	m.Called(event)
}

// EXPECT returns a typed expectation builder.
func (m *MockLogger) EXPECT() *MockLoggerExpecter {
	return &MockLoggerExpecter{mock: &m.Mock}
}

// MockLoggerExpecter builds typed expectations for MockLogger.
type MockLoggerExpecter struct {
	mock *mock.Mock
}

// MockLoggerLogCall is a typed wrapper around *mock.Call.
type MockLoggerLogCall struct {
	*mock.Call
}

// Log is a helper method to define mock.On call
//   - event log.Event
func (e *MockLoggerExpecter) Log(event interface{}) *MockLoggerLogCall {
	return &MockLoggerLogCall{Call: e.mock.On("Log", event)}
}

// Run sets a typed handler invoked with the logged event.
func (c *MockLoggerLogCall) Run(run func(event log.Event)) *MockLoggerLogCall {
	c.Call.Run(func(args mock.Arguments) {
		run(args[0].(log.Event))
	})
	return c
}

// Return finishes the expectation; Log has no results.
func (c *MockLoggerLogCall) Return() *MockLoggerLogCall {
	c.Call.Return()
	return c
}

// Maybe marks the call as optional.
func (c *MockLoggerLogCall) Maybe() *MockLoggerLogCall {
	c.Call.Maybe()
	return c
}

// Times sets the number of expected calls.
func (c *MockLoggerLogCall) Times(n int) *MockLoggerLogCall {
	c.Call.Times(n)
	return c
}

// Compile-time interface satisfaction check.
var _ log.Logger = (*MockLogger)(nil)
