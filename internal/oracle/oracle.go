package oracle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Classified backend failures. Backends wrap one of these so the client can
// pick the right recovery policy with errors.Is.
var (
	ErrTimeout         = errors.New("oracle timeout")
	ErrRateLimited     = errors.New("oracle rate limited")
	ErrInvalidResponse = errors.New("oracle returned invalid response")
	ErrUnavailable     = errors.New("oracle unavailable")
)

// Request is one structured completion request issued by a pipeline stage.
type Request struct {
	Stage     string
	System    string
	Prompt    string
	MaxTokens int
}

// Digest returns a short stable fingerprint of the prompt for audit records.
func (r Request) Digest() string {
	sum := sha256.Sum256([]byte(r.System + "\n" + r.Prompt))
	return hex.EncodeToString(sum[:])[:16]
}

// Response carries the raw completion text plus usage accounting.
type Response struct {
	Text         string
	Backend      string
	Model        string
	InputTokens  int
	OutputTokens int
	Latency      time.Duration
}

// Backend is a single interchangeable text-generation provider. All
// implementations run at temperature zero so replays are deterministic.
type Backend interface {
	Name() string
	Model() string
	Complete(ctx context.Context, req Request) (Response, error)
}
