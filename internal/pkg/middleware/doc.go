// Package middleware holds HTTP middleware shared by the server.
//
// RateLimiter applies a per-client token bucket:
//
//	rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
//	handler = rl.Middleware(handler)
package middleware
