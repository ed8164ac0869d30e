// Package response defines the standardized result envelope every task
// body produces. The engine, variable resolver, and error context all
// read and write this one shape.
package response

import (
	"encoding/json"
	"time"
)

// Status represents the outcome classification of a task execution.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusWarning   Status = "warning"
)

// Response is the canonical task result envelope.
// Invariants (enforced by Normalize):
//   - Success == false implies Status == failed and Error is non-empty.
//   - Success == true with Status == warning implies Result and Warning are set.
type Response struct {
	Success bool   `json:"success"`
	Status  Status `json:"status"`
	Result  any    `json:"result,omitempty"`
	// Response mirrors Result for readers that predate the Result field.
	Response     any            `json:"response,omitempty"`
	Error        string         `json:"error,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	ErrorDetails map[string]any `json:"error_details,omitempty"`
	Warning      string         `json:"warning,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	Timestamp    string         `json:"timestamp"`
}

// knownKeys are the envelope's own fields. Anything else supplied by a
// task body is moved into Metadata rather than dropped.
var knownKeys = map[string]bool{
	"success":       true,
	"status":        true,
	"result":        true,
	"response":      true,
	"error":         true,
	"error_code":    true,
	"error_details": true,
	"warning":       true,
	"metadata":      true,
	"timestamp":     true,
}

// NewSuccess creates a completed response wrapping the given result.
func NewSuccess(result any) *Response {
	r := &Response{
		Success: true,
		Status:  StatusCompleted,
		Result:  result,
	}
	return r.Normalize()
}

// NewWarning creates a successful response that carries a warning message.
func NewWarning(result any, warning string) *Response {
	r := &Response{
		Success: true,
		Status:  StatusWarning,
		Result:  result,
		Warning: warning,
	}
	return r.Normalize()
}

// NewFailure creates a failed response. An empty code defaults to
// CodeUnknownError during normalization.
func NewFailure(errMsg, code string, details map[string]any) *Response {
	r := &Response{
		Success:      false,
		Status:       StatusFailed,
		Error:        errMsg,
		ErrorCode:    code,
		ErrorDetails: details,
	}
	return r.Normalize()
}

// FromValue converts an arbitrary task body return value into a Response.
// Values already shaped like a response envelope (a map carrying a
// "success" key, or a *Response) are normalized in place; anything else
// is wrapped as a successful result.
func FromValue(v any) *Response {
	switch t := v.(type) {
	case *Response:
		return t.Normalize()
	case Response:
		return t.Normalize()
	case map[string]any:
		if _, ok := t["success"]; ok {
			return FromMap(t)
		}
		return NewSuccess(t)
	default:
		return NewSuccess(v)
	}
}

// FromMap builds a Response from a loosely shaped map. Unknown keys are
// preserved under Metadata.
func FromMap(m map[string]any) *Response {
	r := &Response{}
	if v, ok := m["success"].(bool); ok {
		r.Success = v
	}
	if v, ok := m["status"].(string); ok {
		r.Status = Status(v)
	}
	if v, ok := m["result"]; ok {
		r.Result = v
	}
	if v, ok := m["response"]; ok && r.Result == nil {
		r.Result = v
	}
	if v, ok := m["error"].(string); ok {
		r.Error = v
	}
	if v, ok := m["error_code"].(string); ok {
		r.ErrorCode = v
	}
	if v, ok := m["error_details"].(map[string]any); ok {
		r.ErrorDetails = v
	}
	if v, ok := m["warning"].(string); ok {
		r.Warning = v
	}
	if v, ok := m["metadata"].(map[string]any); ok {
		r.Metadata = v
	}
	if v, ok := m["timestamp"].(string); ok {
		r.Timestamp = v
	}
	for k, v := range m {
		if knownKeys[k] {
			continue
		}
		if r.Metadata == nil {
			r.Metadata = make(map[string]any)
		}
		r.Metadata[k] = v
	}
	return r.Normalize()
}

// Normalize enforces the envelope invariants and fills derived fields.
// It returns the receiver for chaining.
func (r *Response) Normalize() *Response {
	if !r.Success {
		r.Status = StatusFailed
		if r.Error == "" {
			r.Error = "task failed"
		}
		if r.ErrorCode == "" {
			r.ErrorCode = CodeUnknownError
		}
	} else if r.Status == "" {
		r.Status = StatusCompleted
	}
	if r.Success && r.Status == StatusWarning && (r.Warning == "" || r.Result == nil) {
		// Warning requires both a result and a message; a partial
		// warning degrades to completed.
		r.Status = StatusCompleted
	}
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	if r.Timestamp == "" {
		r.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	r.Response = r.Result
	return r
}

// Normalize on a value receiver returns a normalized copy pointer.
func (r Response) normalizeCopy() *Response {
	c := r
	return c.Normalize()
}

// AsMap renders the response as a plain map so the variable resolver can
// navigate it with dotted paths. The Result mirror and zero-valued
// optional fields follow the JSON shape.
func (r *Response) AsMap() map[string]any {
	m := map[string]any{
		"success":   r.Success,
		"status":    string(r.Status),
		"timestamp": r.Timestamp,
	}
	if r.Result != nil {
		m["result"] = r.Result
		m["response"] = r.Result
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	if r.ErrorCode != "" {
		m["error_code"] = r.ErrorCode
	}
	if r.ErrorDetails != nil {
		m["error_details"] = r.ErrorDetails
	}
	if r.Warning != "" {
		m["warning"] = r.Warning
	}
	if len(r.Metadata) > 0 {
		m["metadata"] = r.Metadata
	}
	return m
}

// MarshalJSON renders the normalized envelope.
func (r *Response) MarshalJSON() ([]byte, error) {
	type alias Response
	c := *r.normalizeCopy()
	return json.Marshal(alias(c))
}
