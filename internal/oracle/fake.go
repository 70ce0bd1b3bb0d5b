package oracle

import (
	"context"
	"sync"
	"time"
)

// FakeResult scripts one Complete call of a FakeBackend.
type FakeResult struct {
	Text string
	Err  error
}

// FakeBackend replays scripted results in order and counts invocations.
// Intended for tests; once the script runs out the last result repeats.
type FakeBackend struct {
	BackendName string
	ModelName   string
	Script      []FakeResult

	mu    sync.Mutex
	calls int
}

var _ Backend = (*FakeBackend)(nil)

// NewFake builds a backend that always succeeds with the given text.
func NewFake(name, text string) *FakeBackend {
	return &FakeBackend{BackendName: name, ModelName: name + "-model", Script: []FakeResult{{Text: text}}}
}

func (f *FakeBackend) Name() string {
	if f.BackendName == "" {
		return "fake"
	}
	return f.BackendName
}

func (f *FakeBackend) Model() string {
	if f.ModelName == "" {
		return "fake-model"
	}
	return f.ModelName
}

// Calls reports how many times Complete ran.
func (f *FakeBackend) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *FakeBackend) Complete(_ context.Context, _ Request) (Response, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	f.mu.Unlock()

	if len(f.Script) == 0 {
		return Response{Backend: f.Name(), Model: f.Model()}, nil
	}
	if idx >= len(f.Script) {
		idx = len(f.Script) - 1
	}
	step := f.Script[idx]
	if step.Err != nil {
		return Response{}, step.Err
	}
	return Response{
		Text:         step.Text,
		Backend:      f.Name(),
		Model:        f.Model(),
		InputTokens:  len(step.Text) / 4,
		OutputTokens: len(step.Text) / 8,
		Latency:      time.Millisecond,
	}, nil
}
