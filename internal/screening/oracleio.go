package screening

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"AdverseScreener/internal/oracle"
)

// OracleInvoker is the slice of the oracle client the stages depend on.
type OracleInvoker interface {
	Invoke(ctx context.Context, req oracle.Request, record oracle.RecordFunc) (oracle.Response, error)
}

// decodeOracleJSON parses an oracle reply into out. Backends occasionally
// wrap JSON in code fences or prose; the decoder tolerates both by locating
// the outermost JSON value. Failures wrap oracle.ErrInvalidResponse.
func decodeOracleJSON(text string, out any) error {
	payload := extractJSON(text)
	if payload == "" {
		return fmt.Errorf("no JSON value in oracle reply: %w", oracle.ErrInvalidResponse)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("decode oracle reply: %v: %w", err, oracle.ErrInvalidResponse)
	}
	return nil
}

func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if fenced, ok := stripFence(text); ok {
		text = fenced
	}

	start := strings.IndexAny(text, "{[")
	if start < 0 {
		return ""
	}
	var closer byte = '}'
	if text[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(text, closer)
	if end <= start {
		return ""
	}
	return text[start : end+1]
}

func stripFence(text string) (string, bool) {
	if !strings.HasPrefix(text, "```") {
		return "", false
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text), true
}

// invokeWithRepair runs one oracle invocation and, when the reply fails
// schema validation, re-invokes exactly once with a repair prompt that
// includes the malformed output. Transport errors are returned as-is;
// the retry budget for those lives inside the oracle client.
func invokeWithRepair(ctx context.Context, inv OracleInvoker, req oracle.Request, record oracle.RecordFunc, validate func(string) error) (oracle.Response, error) {
	resp, err := inv.Invoke(ctx, req, record)
	if err != nil {
		return oracle.Response{}, err
	}

	firstErr := validate(resp.Text)
	if firstErr == nil {
		return resp, nil
	}
	if !errors.Is(firstErr, oracle.ErrInvalidResponse) {
		return oracle.Response{}, firstErr
	}

	repair := req
	repair.Prompt = repairPrompt(resp.Text, firstErr)
	resp, err = inv.Invoke(ctx, repair, record)
	if err != nil {
		return oracle.Response{}, err
	}
	if err := validate(resp.Text); err != nil {
		return oracle.Response{}, fmt.Errorf("reply invalid after repair: %w", err)
	}
	return resp, nil
}
