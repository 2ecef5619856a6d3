// Package testutil provides test helpers for toolgram (e.g. MockEngine).
package testutil

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/skosovsky/toolgram"
)

// ErrNoOutput is returned by MockEngine when its script is exhausted and no Fallback is set.
var ErrNoOutput = errors.New("mock engine: no scripted output left")

// MockEngine is a scripted toolgram.Engine. Each Generate call consumes the next entry of
// Outputs; GenerateFn, when set, replaces the script entirely.
type MockEngine struct {
	// Outputs are returned in order.
	Outputs []string
	// Fallback is returned once Outputs is exhausted. Empty means ErrNoOutput.
	Fallback string
	// Err, when set, is returned by every call.
	Err error
	// Delay holds each call for the duration or until ctx is done.
	Delay      time.Duration
	GenerateFn func(ctx context.Context, req toolgram.GenerateRequest) (string, error)

	mu       sync.Mutex
	requests []toolgram.GenerateRequest
	next     int

	running atomic.Int32
	peak    atomic.Int32
}

// Generate implements toolgram.Engine.
func (m *MockEngine) Generate(ctx context.Context, req toolgram.GenerateRequest) (string, error) {
	n := m.running.Add(1)
	defer m.running.Add(-1)
	for {
		p := m.peak.Load()
		if n <= p || m.peak.CompareAndSwap(p, n) {
			break
		}
	}

	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay > 0 {
		timer := time.NewTimer(m.Delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		}
	}
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, req)
	}
	if m.Err != nil {
		return "", m.Err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.next < len(m.Outputs) {
		out := m.Outputs[m.next]
		m.next++
		return out, nil
	}
	if m.Fallback != "" {
		return m.Fallback, nil
	}
	return "", ErrNoOutput
}

// Requests returns a copy of every request received so far.
func (m *MockEngine) Requests() []toolgram.GenerateRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]toolgram.GenerateRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Calls returns the number of Generate calls.
func (m *MockEngine) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// MaxConcurrent returns the highest number of Generate calls that were in flight at once.
func (m *MockEngine) MaxConcurrent() int {
	return int(m.peak.Load())
}

// Ensure MockEngine implements Engine.
var _ toolgram.Engine = (*MockEngine)(nil)
