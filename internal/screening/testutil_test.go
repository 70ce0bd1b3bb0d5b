package screening

import (
	"context"
	"sync"
	"time"

	"AdverseScreener/internal/domain"
	"AdverseScreener/internal/oracle"
)

// oracleStep scripts one reply of the fake invoker.
type oracleStep struct {
	text string
	err  error
}

// fakeOracle replays scripted replies in call order and keeps the requests
// it saw, so tests can assert exactly how many oracle calls a stage made.
type fakeOracle struct {
	mu    sync.Mutex
	steps []oracleStep
	seen  []oracle.Request
}

func scriptedOracle(steps ...oracleStep) *fakeOracle {
	return &fakeOracle{steps: steps}
}

func (f *fakeOracle) Invoke(_ context.Context, req oracle.Request, record oracle.RecordFunc) (oracle.Response, error) {
	f.mu.Lock()
	idx := len(f.seen)
	f.seen = append(f.seen, req)
	f.mu.Unlock()

	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	step := f.steps[idx]

	if record != nil {
		record(domain.OracleCallRecord{
			Stage:        req.Stage,
			Backend:      "fake",
			Model:        "fake-model",
			PromptDigest: req.Digest(),
			InputTokens:  10,
			OutputTokens: 5,
			CostUSD:      0.0001,
			Success:      step.err == nil,
			Timestamp:    time.Now().UTC(),
		})
	}

	if step.err != nil {
		return oracle.Response{}, step.err
	}
	return oracle.Response{
		Text:         step.text,
		Backend:      "fake",
		Model:        "fake-model",
		InputTokens:  10,
		OutputTokens: 5,
	}, nil
}

func (f *fakeOracle) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

func (f *fakeOracle) stages() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	stages := make([]string, len(f.seen))
	for i, req := range f.seen {
		stages[i] = req.Stage
	}
	return stages
}
