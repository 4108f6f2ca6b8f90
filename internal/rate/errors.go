package rate

import "errors"

var (
	// ErrRateLimited is returned once a login window's failure budget is spent.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable wraps Redis failures.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
