package domain

// Result is the success/failure envelope returned to presentation layers.
type Result[T any] struct {
	Success bool   `json:"success"`
	Data    *T     `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// OK wraps data in a successful result.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: &data}
}

// Fail wraps an error in a failed result.
func Fail[T any](err error) Result[T] {
	return Result[T]{Success: false, Error: err.Error()}
}
