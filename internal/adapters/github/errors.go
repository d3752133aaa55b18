package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrAPI is wrapped by every non-2xx response.
var ErrAPI = errors.New("github api error")

// APIError carries the status and message of a failed API call.
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("github: %s %s: %d %s", e.Method, e.Endpoint, e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return ErrAPI }

func newAPIError(method, endpoint string, resp *http.Response) *APIError {
	e := &APIError{Method: method, Endpoint: endpoint, Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		e.Message = body.Message
	}
	return e
}
