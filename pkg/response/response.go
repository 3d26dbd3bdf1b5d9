package response

// APIResponse is the generic envelope used by every HTTP endpoint. Success
// carries Data; failure carries Error, plus Retryable=true when the caller
// (typically the billing provider's webhook retrier) should resubmit.
// Use OK / Err / ErrRetryable helpers to construct instances.
type APIResponse[T any] struct {
	Success   bool   `json:"success"`
	Data      T      `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// OK returns a successful response with data.
func OK[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Success: true, Data: data}
}

// Err returns a non-retryable error response.
func Err[T any](msg string) *APIResponse[T] {
	return &APIResponse[T]{Success: false, Error: msg}
}

// ErrRetryable returns an error response flagged for resubmission.
func ErrRetryable[T any](msg string) *APIResponse[T] {
	return &APIResponse[T]{Success: false, Error: msg, Retryable: true}
}
