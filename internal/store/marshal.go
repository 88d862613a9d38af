package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/brp/internal/brp"
)

// marshalMessage encodes a request or response as JSON TEXT.
// HTML escaping is off so stored text matches what went over the wire.
func marshalMessage(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func unmarshalRequest(data string) (brp.Request, error) {
	var req brp.Request
	if err := json.Unmarshal([]byte(data), &req); err != nil {
		return brp.Request{}, fmt.Errorf("unmarshal request: %w", err)
	}
	return req, nil
}

func unmarshalResponse(data string) (brp.Response, error) {
	var resp brp.Response
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		return brp.Response{}, fmt.Errorf("unmarshal response: %w", err)
	}
	return resp, nil
}

// errorCode returns the response's error code, or NULL for successes.
func errorCode(resp brp.Response) any {
	if e := resp.Err(); e != nil {
		return string(e.Code)
	}
	return nil
}
