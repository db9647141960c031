package rate

import "errors"

var (
	// ErrInvalidPolicy is returned when a limit or window is not positive.
	ErrInvalidPolicy = errors.New("invalid rate limit policy")
	// ErrUnavailable is returned when the counter store cannot be reached.
	ErrUnavailable = errors.New("rate limiter unavailable")
)
