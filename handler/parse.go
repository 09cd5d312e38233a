package handler

import (
	"encoding/json"
	"strings"

	errorskg "github.com/sehgal-vip/travel-agent/errors"
)

// ParseJSON decodes generated text into v. The whole payload is tried
// first, then the first fenced block. Anything else is ErrUnparsed.
func ParseJSON(text string, v any) error {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return errorskg.ErrUnparsed
	}
	if json.Unmarshal([]byte(trimmed), v) == nil {
		return nil
	}
	block, ok := fencedBlock(trimmed)
	if !ok {
		return errorskg.ErrUnparsed
	}
	if err := json.Unmarshal([]byte(block), v); err != nil {
		return errorskg.ErrUnparsed
	}
	return nil
}

func fencedBlock(text string) (string, bool) {
	const fence = "```"
	start := strings.Index(text, fence)
	if start < 0 {
		return "", false
	}
	body := text[start+len(fence):]
	// Drop the info string, e.g. "json".
	nl := strings.IndexByte(body, '\n')
	if nl < 0 {
		return "", false
	}
	body = body[nl+1:]
	end := strings.Index(body, fence)
	if end < 0 {
		return "", false
	}
	return strings.TrimSpace(body[:end]), true
}
